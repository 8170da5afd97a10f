package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	audit "caminomanager/pkg/platform/audit"
	"caminomanager/pkg/requestcontext"
)

const sinkPublishTimeout = 5 * time.Second

// Publisher writes audit events to the primary store synchronously and
// forwards a copy to an optional sink in the background.
type Publisher struct {
	store  audit.Store
	sink   audit.Sink
	logger *slog.Logger

	queue     chan audit.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Int64
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSink forwards persisted events to sink through a bounded queue.
// Events that do not fit are dropped and counted.
func WithSink(sink audit.Sink, buffer int) Option {
	return func(p *Publisher) {
		if sink == nil {
			return
		}
		if buffer <= 0 {
			buffer = 1024
		}
		p.sink = sink
		p.queue = make(chan audit.Event, buffer)
	}
}

// NewPublisher creates a publisher over store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.wg.Add(1)
		go p.forward()
	}
	return p
}

// Emit persists event. A store failure is returned so the caller's
// operation fails with it.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit persistence failed",
			"action", event.Action,
			"user_id", event.UserID.String(),
			"error", err,
		)
		return fmt.Errorf("audit persistence failed: %w", err)
	}

	if p.queue != nil {
		select {
		case p.queue <- event:
		default:
			p.dropped.Add(1)
			p.logger.WarnContext(ctx, "audit sink queue full, event dropped", "action", event.Action)
		}
	}
	return nil
}

// ListRecent proxies to the primary store.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}

// Dropped returns how many events never reached the sink because the queue was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Publisher) forward() {
	defer p.wg.Done()
	for event := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sinkPublishTimeout)
		if err := p.sink.Publish(ctx, event); err != nil {
			p.logger.Warn("audit sink publish failed", "action", event.Action, "error", err)
		}
		cancel()
	}
}

// Close drains queued events into the sink and closes it.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.queue == nil {
			return
		}
		close(p.queue)
		p.wg.Wait()
		p.sink.Close()
	})
}
