package updatechannel

import "sync"

// PromptState is the visibility of the "restart to update" prompt.
type PromptState int

const (
	PromptHidden PromptState = iota
	PromptPending
	PromptReady
)

func (s PromptState) String() string {
	switch s {
	case PromptPending:
		return "pending"
	case PromptReady:
		return "ready"
	default:
		return "hidden"
	}
}

// UpdateSource is the UI side of the channel as seen by the prompt.
type UpdateSource interface {
	OnUpdateAvailable(cb func()) (unsubscribe func())
	OnUpdateDownloaded(cb func()) (unsubscribe func())
	InstallUpdate()
}

// Prompt drives the restart prompt: hidden until an update is available,
// pending while it downloads, ready once it is staged. onShow runs exactly
// once per cycle, when the prompt becomes ready. The server drops repeated
// available events for the open cycle, so each one the prompt sees starts a
// new cycle.
type Prompt struct {
	source UpdateSource
	onShow func()
	unsubs []func()

	mu    sync.Mutex
	state PromptState
}

func NewPrompt(source UpdateSource, onShow func()) *Prompt {
	p := &Prompt{source: source, onShow: onShow}
	p.unsubs = []func(){
		source.OnUpdateAvailable(p.available),
		source.OnUpdateDownloaded(p.downloaded),
	}
	return p
}

// available opens a new cycle. A prompt still showing an older staged
// version goes back to pending until the new artifact is downloaded.
func (p *Prompt) available() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PromptPending
}

func (p *Prompt) downloaded() {
	p.mu.Lock()
	if p.state != PromptPending {
		p.mu.Unlock()
		return
	}
	p.state = PromptReady
	p.mu.Unlock()

	if p.onShow != nil {
		p.onShow()
	}
}

func (p *Prompt) State() PromptState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Restart installs the staged update. It does nothing unless the prompt is
// showing.
func (p *Prompt) Restart() bool {
	if p.State() != PromptReady {
		return false
	}
	p.source.InstallUpdate()
	return true
}

// Dismiss hides the prompt. A later cycle can show it again.
func (p *Prompt) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PromptHidden
}

// Close unsubscribes from the channel.
func (p *Prompt) Close() {
	for _, unsub := range p.unsubs {
		unsub()
	}
}
