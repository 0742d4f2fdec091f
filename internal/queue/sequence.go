package queue

import "sync/atomic"

// Sequencer hands out increasing arrival numbers for queued messages.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next sequence number, starting at 1.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

// Last returns the most recently issued number.
func (s *Sequencer) Last() uint64 { return s.n.Load() }
