package stream

import "sync"

// Subscriber is one reader attached to a Broker. Every delivered event
// costs a credit, and the reader hands credits back as it drains C. An
// event finding no credit or a full buffer is dropped for this reader.
type Subscriber struct {
	id string
	ch chan *Event

	mu      sync.Mutex
	credits int64
	closed  bool
}

func newSubscriber(id string, buffer int, credits int64) *Subscriber {
	return &Subscriber{id: id, ch: make(chan *Event, buffer), credits: credits}
}

// ID returns the identifier the subscriber was registered under.
func (s *Subscriber) ID() string { return s.id }

// C yields events until the subscriber is removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits lets n more events through.
func (s *Subscriber) AddCredits(n int64) {
	s.mu.Lock()
	s.credits += n
	s.mu.Unlock()
}

// Credits returns how many more events the subscriber will accept.
func (s *Subscriber) Credits() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits
}

// offer never blocks. A credit is only spent if the event is buffered.
func (s *Subscriber) offer(evt *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.credits <= 0 {
		return false
	}
	select {
	case s.ch <- evt:
		s.credits--
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
