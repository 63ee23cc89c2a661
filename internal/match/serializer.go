package match

import "sync"

// serializer runs functions strictly one at a time per key, in the
// order Do was called. Different keys never block each other. A key's
// queue entry is removed once its last pending call finishes, so
// memory tracks in-flight work rather than historical key count.
//
// This is what keeps two near-simultaneous moves for the same session
// (one from REST, one from a websocket) from both observing the
// pre-move position.
type serializer struct {
	mu     sync.Mutex
	queues map[string]*keyQueue
}

type keyQueue struct {
	tail    chan struct{}
	pending int
}

func newSerializer() *serializer {
	return &serializer{queues: make(map[string]*keyQueue)}
}

// Do blocks until every earlier call for key has finished, then runs
// fn and returns its error. A failing fn does not poison the queue.
func (s *serializer) Do(key string, fn func() error) error {
	s.mu.Lock()
	q := s.queues[key]
	if q == nil {
		q = &keyQueue{}
		s.queues[key] = q
	}
	q.pending++
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	s.mu.Unlock()

	if prev != nil {
		<-prev
	}
	err := fn()
	close(done)

	s.mu.Lock()
	q.pending--
	if q.pending == 0 {
		delete(s.queues, key)
	}
	s.mu.Unlock()
	return err
}

// inflightKeys reports how many keys currently hold a queue.
func (s *serializer) inflightKeys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}
