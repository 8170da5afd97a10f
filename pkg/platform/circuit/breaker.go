// Package circuit tracks the health of a dependency from the outcomes of
// calls to it. The breaker never blocks calls; callers read its state to
// decide whether they are running degraded.
package circuit

import "sync"

type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// StateChange reports a transition caused by the recorded outcome.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker opens after FailureThreshold consecutive failures and closes again
// after SuccessThreshold consecutive successes.
type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int

	mu        sync.Mutex
	state     State
	failures  int
	successes int
}

type Option func(*Breaker)

func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) { b.successThreshold = n }
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{name: name, failureThreshold: 5, successThreshold: 3}
	for _, opt := range opts {
		opt(b)
	}
	if b.failureThreshold < 1 {
		b.failureThreshold = 1
	}
	if b.successThreshold < 1 {
		b.successThreshold = 1
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// RecordFailure counts a failed call. degraded is true while the breaker is
// open after the call.
func (b *Breaker) RecordFailure() (degraded bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes = 0
	b.failures++
	if b.state == StateClosed && b.failures >= b.failureThreshold {
		b.state = StateOpen
		change.Opened = true
	}
	return b.state == StateOpen, change
}

// RecordSuccess counts a successful call. healthy is true while the breaker
// is closed after the call.
func (b *Breaker) RecordSuccess() (healthy bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == StateOpen {
		b.successes++
		if b.successes < b.successThreshold {
			return false, change
		}
		b.state = StateClosed
		b.successes = 0
		change.Closed = true
	}
	return true, change
}

// Reset closes the breaker and forgets all counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}
