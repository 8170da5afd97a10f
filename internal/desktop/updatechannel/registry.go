package updatechannel

import (
	"slices"
	"sync"
)

// Registry fans update events out to subscribers. Callbacks run on the
// emitting goroutine, outside the registry lock.
type Registry struct {
	mu   sync.Mutex
	next uint64
	subs map[EventKind]map[uint64]func()
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[EventKind]map[uint64]func())}
}

// Subscribe registers cb for kind. The returned function removes the
// subscription and may be called any number of times.
func (r *Registry) Subscribe(kind EventKind, cb func()) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	key := r.next
	if r.subs[kind] == nil {
		r.subs[kind] = make(map[uint64]func())
	}
	r.subs[kind][key] = cb

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs[kind], key)
		})
	}
}

// Emit calls every current subscriber of kind in subscription order and
// reports how many ran.
func (r *Registry) Emit(kind EventKind) int {
	r.mu.Lock()
	keys := make([]uint64, 0, len(r.subs[kind]))
	for key := range r.subs[kind] {
		keys = append(keys, key)
	}
	r.mu.Unlock()
	slices.Sort(keys)

	called := 0
	for _, key := range keys {
		// A callback may unsubscribe a later one.
		r.mu.Lock()
		cb, ok := r.subs[kind][key]
		r.mu.Unlock()
		if ok {
			cb()
			called++
		}
	}
	return called
}

// Len returns the number of subscribers of kind.
func (r *Registry) Len(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[kind])
}
