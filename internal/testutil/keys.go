package testutil

import "sync"

// KeySequence hands out auto-increment keys per table.
//
// Keys are never reused, not even after a rollback, the way database
// sequences behave.
//
// Thread-safety: all methods are safe for concurrent use.
type KeySequence struct {
	mu   sync.Mutex
	next map[string]int64
}

// NewKeySequence creates a sequence whose first key for every table is 1.
func NewKeySequence() *KeySequence {
	return &KeySequence{next: make(map[string]int64)}
}

// Next returns the next key of table.
func (s *KeySequence) Next(table string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[table]++
	return s.next[table]
}

// Current returns the last key handed out for table, 0 if none.
func (s *KeySequence) Current(table string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next[table]
}

// Reset restarts every table at 1.
func (s *KeySequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = make(map[string]int64)
}
