package updatechannel

import (
	"log/slog"
	"sync"

	"caminomanager/internal/platform/metrics"
)

// Dispositions reported on camino_update_events_total.
const (
	DispositionSent    = "sent"
	DispositionDropped = "dropped"
)

// Cycle orders the notifications of the privileged process. An update
// cycle opens with Available and may see Downloaded once, for the same
// version, afterwards.
type Cycle struct {
	mu         sync.Mutex
	version    string
	available  bool
	downloaded bool
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewCycle(logger *slog.Logger, m *metrics.Metrics) *Cycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cycle{logger: logger, metrics: m}
}

// Available opens a cycle for version. A repeat for the open version is
// dropped.
func (c *Cycle) Available(version string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.available && c.version == version {
		c.drop(EventAvailable, version, "cycle already open")
		return false
	}
	c.version = version
	c.available = true
	c.downloaded = false
	c.metrics.IncUpdateEvent(ChannelUpdateAvailable, DispositionSent)
	return true
}

// Downloaded accepts the artifact notification for the open cycle, once.
func (c *Cycle) Downloaded(version string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.available || c.version != version:
		c.drop(EventDownloaded, version, "no available notification for this version")
		return false
	case c.downloaded:
		c.drop(EventDownloaded, version, "artifact already announced")
		return false
	}
	c.downloaded = true
	c.metrics.IncUpdateEvent(ChannelUpdateDownloaded, DispositionSent)
	return true
}

// Replay returns the events a newly connected UI needs to catch up with the
// open cycle, in order.
func (c *Cycle) Replay() []EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []EventKind
	if c.available {
		out = append(out, EventAvailable)
	}
	if c.downloaded {
		out = append(out, EventDownloaded)
	}
	return out
}

func (c *Cycle) drop(kind EventKind, version, reason string) {
	c.metrics.IncUpdateEvent(kind.Channel(), DispositionDropped)
	c.logger.Warn("update notification dropped",
		"channel", kind.Channel(),
		"version", version,
		"reason", reason,
	)
}
