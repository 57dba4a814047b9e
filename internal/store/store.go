package store

import "sync"

// Store owns the current State and the subscriber list. All writes go
// through Update or Reset, which commit a fresh snapshot and then notify
// every subscriber synchronously, so a subscriber always pulls a state at
// least as new as the commit that woke it.
type Store struct {
	mu    sync.RWMutex
	state State

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int
}

// New creates a store holding the initial empty state.
func New() *Store {
	return &Store{
		state: initialState(),
		subs:  map[int]func(){},
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers a listener invoked after every commit. Listeners get
// no payload; they pull the latest snapshot via State. The returned func
// removes the subscription.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Update clones the current state, applies mutate to the clone, commits it
// with a bumped version and notifies subscribers.
func (s *Store) Update(mutate func(next *State)) {
	s.mu.Lock()
	next := s.state.clone()
	mutate(&next)
	next.Version = s.state.Version + 1
	s.state = next
	s.mu.Unlock()

	s.notify()
}

// Reset discards everything and installs a fresh initial state carrying the
// given connection status. Used when the relay connection drops: repos,
// sessions, messages and stream flags must all be re-derived on reconnect.
func (s *Store) Reset(conn ConnState) {
	s.mu.Lock()
	next := initialState()
	next.Conn = conn
	next.Version = s.state.Version + 1
	s.state = next
	s.mu.Unlock()

	s.notify()
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
