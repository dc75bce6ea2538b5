package baton

// A Sender is the sending side of a channel. A Sender is safe for concurrent
// use by multiple goroutines; use [Sender.Clone] to obtain an additional
// independently-closable handle.
type Sender[T any] struct {
	h *handle[T]
}

func newSender[T any](h *handle[T]) *Sender[T] {
	s := &Sender[T]{h: h}
	track(s, h)
	return s
}

// Send stores v as the current value of the channel and wakes any waiting
// receivers. If the channel or s is closed, Send reports an error of
// concrete type *[SendError] carrying v; the error matches [ErrClosed].
func (s *Sender[T]) Send(v T) error {
	if s.h.released() || !s.h.st.publish(v) {
		return &SendError[T]{Value: v}
	}
	return nil
}

// SendIfChangedFunc sends v unless equal(old, v) reports true for the current
// value old. It reports whether v was sent. The comparison and the send are
// done atomically with respect to other senders. If the channel or s is
// closed, SendIfChangedFunc reports false and an error as for [Sender.Send].
//
// The equal function is called with the channel locked, and must not call
// methods of any handle on the same channel.
func (s *Sender[T]) SendIfChangedFunc(v T, equal func(old, v T) bool) (bool, error) {
	if s.h.released() {
		return false, &SendError[T]{Value: v}
	}
	sent, ok := s.h.st.publishIf(v, equal)
	if !ok {
		return false, &SendError[T]{Value: v}
	}
	return sent, nil
}

// SendIfChanged sends v on s unless it is equal to the current value, so that
// receivers are not woken for an unchanged value. It reports whether v was
// sent.
func SendIfChanged[T comparable](s *Sender[T], v T) (bool, error) {
	return s.SendIfChangedFunc(v, func(old, v T) bool { return old == v })
}

// Update sends fn(old) where old is the current value, atomically with
// respect to other senders. If the channel or s is closed, Update reports
// [ErrClosed] and does not call fn.
//
// The fn function is called with the channel locked, and must not call
// methods of any handle on the same channel.
func (s *Sender[T]) Update(fn func(old T) T) error {
	if s.h.released() || !s.h.st.update(fn) {
		return ErrClosed
	}
	return nil
}

// Get returns the current value of the channel. It does not block, and does
// not affect any receiver.
func (s *Sender[T]) Get() T { return s.h.st.peek() }

// Clone returns a new Sender for the same channel. The channel is not closed
// by senders until s and all its clones are closed. Clone panics if s is
// closed.
func (s *Sender[T]) Clone() *Sender[T] {
	if s.h.released() {
		panic("baton: clone of closed Sender")
	}
	return newSender(s.h.st.open(sendKind))
}

// Subscribe returns a new Receiver for the channel. Whether the current value
// counts as unseen by the new receiver is governed by [SkipInitial].
// Subscribe panics if s is closed, as [Sender.Clone] does. If the channel is
// closed but s is not, the new receiver reports any value it has not seen
// and then [ErrEnded].
func (s *Sender[T]) Subscribe() *Receiver[T] {
	if s.h.released() {
		panic("baton: subscribe on closed Sender")
	}
	return newReceiver(s.h.st.open(recvKind), s.h.st.baseline())
}

// Close closes s. If s is the last open sender and senders have authority to
// close the channel, the channel is closed and waiting receivers are woken.
// Close reports [ErrClosed] if s was already closed.
func (s *Sender[T]) Close() error {
	if !s.h.release() {
		return ErrClosed
	}
	return nil
}

// Closed reports whether the channel is closed. It does not report whether s
// itself has been closed.
func (s *Sender[T]) Closed() bool { return s.h.st.isClosed() }

// Done returns a channel that is closed when the channel is closed.
func (s *Sender[T]) Done() <-chan struct{} { return s.h.st.done.Ready() }
