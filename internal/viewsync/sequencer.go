package viewsync

import "sync/atomic"

// Sequencer issues strictly increasing sequence numbers for the lifetime of
// the process. There is deliberately no reset.
type Sequencer struct {
	n atomic.Uint64
}

// Next returns a value greater than every value returned before.
func (s *Sequencer) Next() uint64 {
	return s.n.Add(1)
}

// Last returns the most recently issued value, or 0 if none was issued.
func (s *Sequencer) Last() uint64 {
	return s.n.Load()
}
