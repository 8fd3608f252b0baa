package integrations

import "sync"

// Store is the externally-owned home of a Params value. Widgets receive it by
// reference and change it only through Update. Every Update bumps the revision
// and notifies subscribers after the lock is released. Writes are last-write-wins.
type Store struct {
	mu     sync.Mutex
	params Params
	rev    uint64
	subs   map[int]func(Params, uint64)
	nextID int
}

// NewStore creates a store seeded with initial.
func NewStore(initial Params) *Store {
	return &Store{
		params: initial.clone(),
		subs:   make(map[int]func(Params, uint64)),
	}
}

// Snapshot returns a copy of the current params and their revision.
func (s *Store) Snapshot() (Params, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.clone(), s.rev
}

// Update applies fn to a copy of the current params, stores the result and
// returns the new revision.
func (s *Store) Update(fn func(Params) Params) uint64 {
	s.mu.Lock()
	next := fn(s.params.clone()).clone()
	s.params = next
	s.rev++
	rev := s.rev
	subs := make([]func(Params, uint64), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(next.clone(), rev)
	}
	return rev
}

// Reset clears the params. It is the external reset path; widgets never call it.
func (s *Store) Reset() uint64 {
	return s.Update(func(Params) Params { return Params{} })
}

// Subscribe registers fn to run after every Update. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Params, uint64)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
