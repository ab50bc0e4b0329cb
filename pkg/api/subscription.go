package api

import (
	"sync"
)

// Subscription is the handle of a live query. It is active until Cancel is
// called or the producer fails; afterwards no emission is delivered.
type Subscription struct {
	mu        sync.Mutex
	cancelled bool
	err       error
	done      chan struct{}
	stop      func()
}

// NewSubscription returns an active subscription. stop releases the
// underlying listener and is called at most once.
func NewSubscription(stop func()) *Subscription {
	return &Subscription{done: make(chan struct{}), stop: stop}
}

// Cancel ends the subscription. It is safe to call more than once and from
// inside an emission. It does not wait for an emission already in flight.
func (s *Subscription) Cancel() {
	s.finish(nil)
}

// Fail ends the subscription with err. It has no effect once cancelled.
func (s *Subscription) Fail(err error) {
	s.finish(err)
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.err = err
	close(s.done)
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Deliver runs emit if the subscription is still active and reports whether
// it ran.
func (s *Subscription) Deliver(emit func()) bool {
	if !s.Active() {
		return false
	}
	emit()
	return true
}

func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cancelled
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err is the failure that ended the subscription, nil after a plain Cancel.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
