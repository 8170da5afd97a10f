package updatechannel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Bridge is the UI end of the channel. It never surfaces channel failures
// to subscribers: when the channel is down their callbacks simply never run.
type Bridge struct {
	conn     *websocket.Conn
	registry *Registry
	logger   *slog.Logger

	writeMu sync.Mutex
	seq     atomic.Uint64

	pendingMu sync.Mutex
	pending   map[string]chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

type BridgeOption func(*Bridge)

func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = logger }
}

func NewBridge(opts ...BridgeOption) *Bridge {
	b := &Bridge{
		registry: NewRegistry(),
		logger:   slog.Default(),
		pending:  make(map[string]chan Envelope),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect dials the privileged process at url. Subscribe before connecting
// so the notifications replayed on connect are not missed. After a failed
// dial the Bridge stays usable and silent.
func (b *Bridge) Connect(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		b.logger.WarnContext(ctx, "update channel unavailable", "error", err)
		b.shutdown()
		return err
	}
	b.writeMu.Lock()
	b.conn = conn
	b.writeMu.Unlock()
	go b.readLoop()
	return nil
}

func (b *Bridge) readLoop() {
	defer b.shutdown()
	for {
		var env Envelope
		if err := b.conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Kind {
		case KindEvent:
			if kind, ok := eventForChannel(env.Channel); ok {
				b.registry.Emit(kind)
			}
		case KindResult:
			b.pendingMu.Lock()
			ch, ok := b.pending[env.ID]
			delete(b.pending, env.ID)
			b.pendingMu.Unlock()
			if ok {
				ch <- env
			}
		}
	}
}

func (b *Bridge) shutdown() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.pendingMu.Lock()
		for key, ch := range b.pending {
			close(ch)
			delete(b.pending, key)
		}
		b.pendingMu.Unlock()
	})
}

// Done is closed once the channel is down.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) send(env Envelope) error {
	select {
	case <-b.done:
		return ErrChannelClosed
	default:
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.conn == nil {
		return ErrChannelClosed
	}
	if err := b.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return b.conn.WriteJSON(env)
}

// GetAppVersion asks the privileged process for the running version.
func (b *Bridge) GetAppVersion(ctx context.Context) (string, error) {
	key := strconv.FormatUint(b.seq.Add(1), 10)
	ch := make(chan Envelope, 1)

	b.pendingMu.Lock()
	select {
	case <-b.done:
		b.pendingMu.Unlock()
		return "", ErrChannelClosed
	default:
	}
	b.pending[key] = ch
	b.pendingMu.Unlock()

	forget := func() {
		b.pendingMu.Lock()
		delete(b.pending, key)
		b.pendingMu.Unlock()
	}

	if err := b.send(Envelope{Kind: KindInvoke, Channel: ChannelGetAppVersion, ID: key}); err != nil {
		forget()
		return "", errors.Join(ErrChannelClosed, err)
	}

	select {
	case <-ctx.Done():
		forget()
		return "", ctx.Err()
	case env, ok := <-ch:
		if !ok {
			return "", ErrChannelClosed
		}
		if env.Error != "" {
			return "", errors.New(env.Error)
		}
		var payload versionPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return "", err
		}
		return payload.Version, nil
	}
}

// OnUpdateAvailable subscribes cb to update-available.
func (b *Bridge) OnUpdateAvailable(cb func()) (unsubscribe func()) {
	return b.registry.Subscribe(EventAvailable, cb)
}

// OnUpdateDownloaded subscribes cb to update-downloaded.
func (b *Bridge) OnUpdateDownloaded(cb func()) (unsubscribe func()) {
	return b.registry.Subscribe(EventDownloaded, cb)
}

// InstallUpdate asks the privileged process to quit and install. Nothing is
// returned: on success the process exits before it could answer.
func (b *Bridge) InstallUpdate() {
	if err := b.send(Envelope{Kind: KindInvoke, Channel: ChannelInstallUpdate}); err != nil {
		b.logger.Debug("install-update not delivered", "error", err)
	}
}

// Close hangs up the channel.
func (b *Bridge) Close() error {
	b.writeMu.Lock()
	if b.conn == nil {
		b.writeMu.Unlock()
		b.shutdown()
		return nil
	}
	_ = b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	b.writeMu.Unlock()
	err := b.conn.Close()
	<-b.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
