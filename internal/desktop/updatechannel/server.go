package updatechannel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"caminomanager/internal/platform/metrics"
)

const writeTimeout = 5 * time.Second

// Installer quits the application and relaunches it on the staged update.
type Installer interface {
	InstallUpdate(ctx context.Context) error
}

// Server is the privileged end of the channel. It answers version queries,
// runs the installer on request and broadcasts update notifications to every
// connected UI.
type Server struct {
	version   string
	installer Installer
	cycle     *Cycle
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	metrics   *metrics.Metrics
	origins   []string

	mu    sync.Mutex
	peers map[*peer]struct{}
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithAllowedOrigins restricts the Origin header accepted on upgrade. A
// request without an Origin header is always accepted.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.origins = origins }
}

func NewServer(version string, installer Installer, opts ...ServerOption) *Server {
	s := &Server{
		version:   version,
		installer: installer,
		logger:    slog.Default(),
		peers:     make(map[*peer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cycle = NewCycle(s.logger, s.metrics)
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: 5 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || len(s.origins) == 0 || slices.Contains(s.origins, origin)
}

type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) write(env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteJSON(env)
}

// ServeHTTP upgrades the connection and serves it until the UI disconnects.
// A new UI first receives the notifications of the open cycle.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "update channel upgrade failed", "error", err)
		return
	}
	p := &peer{conn: conn}

	s.mu.Lock()
	s.peers[p] = struct{}{}
	for _, kind := range s.cycle.Replay() {
		if err := p.write(Envelope{Kind: KindEvent, Channel: kind.Channel()}); err != nil {
			s.logger.WarnContext(r.Context(), "update channel replay failed", "error", err)
			break
		}
	}
	s.mu.Unlock()

	defer s.remove(p)

	ctx := context.WithoutCancel(r.Context())
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				s.logger.DebugContext(ctx, "update channel read ended", "error", err)
			}
			return
		}
		s.handle(ctx, p, env)
	}
}

func (s *Server) handle(ctx context.Context, p *peer, env Envelope) {
	if env.Kind != KindInvoke {
		s.logger.WarnContext(ctx, "unexpected update channel message", "kind", env.Kind, "channel", env.Channel)
		return
	}

	switch env.Channel {
	case ChannelGetAppVersion:
		payload, _ := json.Marshal(versionPayload{Version: s.version})
		s.reply(ctx, p, Envelope{Kind: KindResult, Channel: env.Channel, ID: env.ID, Payload: payload})
	case ChannelInstallUpdate:
		// No acknowledgement: the installer terminates this process.
		go func() {
			if err := s.installer.InstallUpdate(ctx); err != nil {
				s.logger.ErrorContext(ctx, "install update failed", "error", err)
			}
		}()
	default:
		s.logger.WarnContext(ctx, "unknown update channel", "channel", env.Channel)
		if env.ID != "" {
			s.reply(ctx, p, Envelope{Kind: KindResult, Channel: env.Channel, ID: env.ID, Error: "unknown channel"})
		}
	}
}

func (s *Server) reply(ctx context.Context, p *peer, env Envelope) {
	if err := p.write(env); err != nil {
		s.logger.WarnContext(ctx, "update channel reply failed", "channel", env.Channel, "error", err)
	}
}

// NotifyAvailable announces that version is being downloaded.
func (s *Server) NotifyAvailable(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle.Available(version) {
		s.broadcastLocked(EventAvailable)
	}
}

// NotifyDownloaded announces that version is staged and ready to install.
func (s *Server) NotifyDownloaded(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle.Downloaded(version) {
		s.broadcastLocked(EventDownloaded)
	}
}

// broadcastLocked must run under s.mu, together with the cycle decision, so
// a UI registering in between gets the event from Replay or from here, not
// both.
func (s *Server) broadcastLocked(kind EventKind) {
	env := Envelope{Kind: KindEvent, Channel: kind.Channel()}
	for p := range s.peers {
		if err := p.write(env); err != nil {
			s.logger.Warn("update event delivery failed", "channel", env.Channel, "error", err)
			delete(s.peers, p)
			_ = p.conn.Close()
		}
	}
}

// Peers returns the number of connected UIs.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) remove(p *peer) {
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	_ = p.conn.Close()
}

// Close disconnects every UI.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.peers {
		p.mu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		p.mu.Unlock()
		_ = p.conn.Close()
		delete(s.peers, p)
	}
}
