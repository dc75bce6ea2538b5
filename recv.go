package baton

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/creachadair/baton/trigger"
)

// A Receiver is the receiving side of a channel. Each receiver tracks the
// version of the last value it reported, and [Receiver.Next] reports only a
// value newer than that.
//
// A Receiver is safe for concurrent use. Calls to Next on the same receiver
// are serialized, and each new value is reported to at most one of them. Use
// [Receiver.Clone] to give each goroutine its own view of the channel.
type Receiver[T any] struct {
	h    *handle[T]
	seen atomic.Uint64 // epoch of the last value reported
	turn chan struct{} // holds a token while a call to Next is active
	mark trigger.Cond  // fires when MarkChanged resets seen
}

func newReceiver[T any](h *handle[T], seen uint64) *Receiver[T] {
	r := &Receiver[T]{h: h, turn: make(chan struct{}, 1)}
	r.seen.Store(seen)
	track(r, h)
	return r
}

// Next blocks until a value r has not yet seen is available, and returns it.
// If several values were sent since the last call, only the latest is
// reported. Next reports [ErrEnded] if the channel is closed and no unseen
// value remains, or if r is closed. If ctx ends first, Next reports the
// error from ctx.
//
// Concurrent calls to Next on r wait their turn; a value reported to one of
// them is not reported to another.
//
// If an unseen value is available and no other call to Next is active on r,
// Next reports it even if ctx has already ended, so a call with a canceled
// context polls without blocking.
func (r *Receiver[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case r.turn <- struct{}{}:
	default:
		select {
		case r.turn <- struct{}{}:
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-r.h.closing:
			return zero, ErrEnded
		}
	}
	defer func() { <-r.turn }()
	return r.observe(ctx)
}

// observe runs the wait loop for Next. The caller must hold the turn token.
func (r *Receiver[T]) observe(ctx context.Context) (T, error) {
	var zero T
	for {
		if r.h.released() {
			return zero, ErrEnded
		}

		// N.B. take the mark channel before loading seen, so that a MarkChanged
		// after the load always wakes the wait below.
		marked := r.mark.Ready()
		since := r.seen.Load()
		obs := r.h.st.observe(since)
		if obs.ended {
			return zero, ErrEnded
		} else if obs.ready == nil {
			if !r.seen.CompareAndSwap(since, obs.epoch) {
				continue // MarkChanged intervened; check again
			}
			return obs.value, nil
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-r.h.closing:
			return zero, ErrEnded
		case <-obs.ready:
			// Something happened; check again.
		case <-marked:
		}
	}
}

// Seq returns an iterator over the values reported by successive calls to
// [Receiver.Next]. The sequence ends when Next reports an error.
func (r *Receiver[T]) Seq(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := r.Next(ctx)
			if err != nil || !yield(v) {
				return
			}
		}
	}
}

// Get returns the current value of the channel without marking it seen. It
// does not block.
func (r *Receiver[T]) Get() T { return r.h.st.peek() }

// HasChanged reports whether the channel holds a value r has not yet seen.
// It does not block, and does not mark the value seen.
func (r *Receiver[T]) HasChanged() bool {
	return !r.h.released() && r.h.st.changed(r.seen.Load())
}

// MarkChanged marks the current value of the channel as unseen by r, so that
// the next call to Next reports it. A call to Next already waiting on r wakes
// and reports the current value.
func (r *Receiver[T]) MarkChanged() {
	r.seen.Store(0)
	r.mark.Signal()
}

// Clone returns a new Receiver for the same channel, which has seen the same
// values as r but thereafter tracks its position independently. Clone panics
// if r is closed.
func (r *Receiver[T]) Clone() *Receiver[T] {
	if r.h.released() {
		panic("baton: clone of closed Receiver")
	}
	return newReceiver(r.h.st.open(recvKind), r.seen.Load())
}

// Close closes r, ending any call to Next pending on r. If r is the last open
// receiver and receivers have authority to close the channel, the channel is
// closed and further sends fail. Close reports [ErrClosed] if r was already
// closed.
func (r *Receiver[T]) Close() error {
	if !r.h.release() {
		return ErrClosed
	}
	return nil
}

// Closed reports whether the channel is closed. It does not report whether r
// itself has been closed.
func (r *Receiver[T]) Closed() bool { return r.h.st.isClosed() }

// Done returns a channel that is closed when the channel is closed.
func (r *Receiver[T]) Done() <-chan struct{} { return r.h.st.done.Ready() }
