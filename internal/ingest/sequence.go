package ingest

import "sync"

// sequencer runs post-insert work in ticket order. Tickets are issued while
// the append lock is held, so ticket order is seq order.
type sequencer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	issued uint64
	turn   uint64
}

func newSequencer() *sequencer {
	s := &sequencer{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// next issues the next ticket.
func (s *sequencer) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.issued
	s.issued++
	return t
}

// do blocks until every earlier ticket has finished, then runs fn.
// The turn passes on even if fn panics.
func (s *sequencer) do(ticket uint64, fn func()) {
	s.mu.Lock()
	for s.turn != ticket {
		s.cond.Wait()
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.turn++
		s.cond.Broadcast()
		s.mu.Unlock()
	}()
	fn()
}
