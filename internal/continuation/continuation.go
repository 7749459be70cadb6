// Package continuation implements the single-shot, retid-keyed store that
// lets a suspended VM context be resumed when its REPLY arrives.
//
// Grounded on coreengine/kernel/interrupts.go's InterruptService: a
// mutex-guarded map keyed by a generated id, looked up once and then
// retired. Unlike InterruptService (which tracks pending/resolved/expired
// status for a human-facing interrupt), a continuation is pure
// store-then-take: the first (and only) successful lookup by id removes
// it, matching mvrt_continuation_get's single-use contract in the
// original runtime.
package continuation

import "sync"

// ID is a continuation's reply-correlation id (the wire "retid" field).
type ID uint64

// Store holds suspended continuations, keyed by a monotonically
// generated ID. The stored value is opaque to Store — callers (the VM)
// decide what a "continuation" is (a saved Context plus anything else
// needed to resume).
type Store struct {
	mu   sync.Mutex
	next ID
	live map[ID]any
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{live: make(map[ID]any)}
}

// New allocates a fresh ID for state and records it, returning the ID to
// embed in the outbound PROP_GET/CALL_FUNC_RET message's "retid" field.
func (s *Store) New(state any) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	// Skip any id that collides with one still live, so a wrapped
	// counter never clobbers an old, still-suspended continuation.
	for {
		if _, exists := s.live[id]; !exists {
			break
		}
		id++
	}
	s.next = id + 1
	s.live[id] = state
	return id
}

// Take removes and returns the continuation registered under id. The
// second return is false if id is unknown (already taken, or never
// issued — e.g. a stray or duplicate REPLY).
func (s *Store) Take(id ID) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.live[id]
	if ok {
		delete(s.live, id)
	}
	return state, ok
}

// Len reports the number of currently suspended continuations, exported
// for the continuation-table-size gauge in internal/observability.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}
