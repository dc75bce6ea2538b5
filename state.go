package baton

import (
	"sync"

	"github.com/creachadair/baton/trigger"
)

// kind distinguishes the two kinds of handle.
type kind int

const (
	sendKind kind = iota
	recvKind
)

// state is the slot shared by all the handles of one channel.
type state[T any] struct {
	skipInitial bool        // read-only after initialization
	policy      ClosePolicy // read-only after initialization

	// μ protects the fields below. It is never held while a caller waits.
	μ      sync.Mutex
	value  T
	epoch  uint64 // version of value; 0 is before the first value
	closed bool
	nsend  int // live sender handles
	nrecv  int // live receiver handles

	wake trigger.Cond // fires on every send and at close
	done trigger.Cond // set at close
}

func newState[T any](init T, cfg config) *state[T] {
	return &state[T]{
		skipInitial: cfg.skipInitial,
		policy:      cfg.policy,
		value:       init,
		epoch:       1,
	}
}

// An observation is the result of checking the state for a value newer than
// a given epoch. Exactly one of three cases holds:
//
//   - ready == nil && !ended: value is fresh as of epoch.
//   - ended: the channel is closed and nothing newer remains.
//   - ready != nil: nothing newer yet; wait on ready and check again.
type observation[T any] struct {
	value T
	epoch uint64
	ended bool
	ready <-chan struct{}
}

// observe checks for a value newer than since. The wait channel, if any, is
// obtained under the same lock as the check, so a send or close that follows
// the check always fires it.
func (s *state[T]) observe(since uint64) observation[T] {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.epoch > since {
		return observation[T]{value: s.value, epoch: s.epoch}
	} else if s.closed {
		return observation[T]{ended: true}
	}
	return observation[T]{ready: s.wake.Ready()}
}

// publish stores v and wakes all waiters. It reports false without storing v
// if the channel is closed.
func (s *state[T]) publish(v T) bool {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.closed {
		return false
	}
	s.publishLocked(v)
	return true
}

// publishIf stores v if keep(old, v) is false for the current value old. It
// reports whether v was stored, and false for ok if the channel is closed.
func (s *state[T]) publishIf(v T, keep func(old, v T) bool) (stored, ok bool) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.closed {
		return false, false
	} else if keep(s.value, v) {
		return false, true
	}
	s.publishLocked(v)
	return true, true
}

// update replaces the current value with fn(value). It reports false without
// calling fn if the channel is closed.
func (s *state[T]) update(fn func(T) T) bool {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.closed {
		return false
	}
	s.publishLocked(fn(s.value))
	return true
}

func (s *state[T]) publishLocked(v T) {
	s.value = v
	s.epoch++
	s.wake.Signal()
}

// peek returns the current value.
func (s *state[T]) peek() T {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.value
}

// changed reports whether a value newer than since is available.
func (s *state[T]) changed(since uint64) bool {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.epoch > since
}

// baseline returns the epoch a new receiver starts from.
func (s *state[T]) baseline() uint64 {
	if !s.skipInitial {
		return 0
	}
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.epoch
}

// open returns a new counted handle of kind k.
func (s *state[T]) open(k kind) *handle[T] {
	s.μ.Lock()
	defer s.μ.Unlock()
	if k == sendKind {
		s.nsend++
	} else {
		s.nrecv++
	}
	return newHandle(s, k)
}

// release releases h, closing the channel if h was the last handle of a kind
// with authority to close it. It reports false if h was already released.
func (s *state[T]) release(h *handle[T]) bool {
	s.μ.Lock()
	defer s.μ.Unlock()
	if h.released() {
		return false
	}
	close(h.closing)

	n := &s.nrecv
	if h.kind == sendKind {
		n = &s.nsend
	}
	*n--
	if *n == 0 && s.policy.closedBy(h.kind) {
		s.closeLocked()
	}
	return true
}

// closeLocked marks the channel closed and wakes all waiters. It is safe to
// call more than once.
func (s *state[T]) closeLocked() {
	s.closed = true
	s.wake.Set()
	s.done.Set()
}

// isClosed reports whether the channel is closed.
func (s *state[T]) isClosed() bool {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.closed
}
