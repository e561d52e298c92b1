package speech

import (
	"sort"
	"sync"
)

// Store holds the canonical in-memory queue state and fans out change
// notifications. Every committed mutation replaces the aggregate with a copy
// and synchronously invokes all registered listeners before Update returns.
// Listeners receive no arguments and read a fresh snapshot via State; they
// never observe a stale snapshot after being notified.
type Store struct {
	mu        sync.Mutex
	state     QueueState
	listeners map[int]func()
	order     []int
	nextID    int
}

// NewStore creates a store with sensible initial state.
func NewStore() *Store {
	return &Store{
		state: QueueState{
			Items:         []QueueItem{},
			Volume:        1.0,
			PlaybackSpeed: 1.0,
		},
		listeners: make(map[int]func()),
	}
}

// State returns an immutable snapshot of the current state.
func (s *Store) State() QueueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers a listener and returns its unsubscribe function.
// Listeners fire in registration order, but must not rely on any ordering
// beyond "all listeners fire after each committed mutation".
func (s *Store) Subscribe(listener func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.order = append(s.order, id)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
		for i, lid := range s.order {
			if lid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

// Update applies a mutation to a copy of the state, commits the copy, and
// synchronously notifies every listener. Listeners may call State and even
// Subscribe re-entrantly.
func (s *Store) Update(mutate func(*QueueState)) {
	s.mu.Lock()
	next := s.state.Clone()
	mutate(&next)
	s.state = next
	fns := make([]func(), 0, len(s.order))
	for _, id := range s.order {
		if fn, ok := s.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Replace swaps in a whole state snapshot. Used by secondary surfaces when a
// state broadcast arrives.
func (s *Store) Replace(state QueueState) {
	s.Update(func(st *QueueState) {
		*st = state.Clone()
	})
}

// sortPending orders items so pending ones ascend by position, with ties
// broken by insertion order. Non-pending items keep their relative order
// after the pending block.
func sortPending(items []QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if (a.Status == StatusPending) != (b.Status == StatusPending) {
			return a.Status == StatusPending
		}
		if a.Status != StatusPending {
			return false
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
}
