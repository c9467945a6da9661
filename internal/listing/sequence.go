package listing

import "sync"

// Sequencer hands out a monotonic number per query key so that only the most
// recently issued request for a key may update a view.
type Sequencer struct {
	mu   sync.Mutex
	last map[string]uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{last: make(map[string]uint64)}
}

// Next issues a new sequence number for key, superseding any earlier one.
func (s *Sequencer) Next(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[key]++
	return s.last[key]
}

// IsCurrent reports whether seq is the latest number issued for key.
func (s *Sequencer) IsCurrent(key string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[key] == seq
}
