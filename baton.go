// Package baton implements a single-slot channel in which only the latest
// value matters.
//
// A channel is created by [New], which returns a [Sender] and a [Receiver]
// sharing one slot. The sender overwrites the slot with [Sender.Send]; a
// receiver waits with [Receiver.Next] for a value it has not yet seen. If
// several values are sent while a receiver is not waiting, it sees only the
// last of them. Each receiver tracks its own position, so clones of a
// receiver may be at different points in the history, but all of them share
// the single current value; there is no per-receiver backlog.
//
// Handles are reference counted. Closing the last handle of a kind (see
// [ClosePolicy]) closes the channel: pending and future calls to Next report
// [ErrEnded] once no unseen value remains, and Send reports [ErrClosed].
// Handles that become unreachable without being closed are released by the
// garbage collector, but callers should not rely on the timing of that.
package baton

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrClosed is reported when sending into a closed channel, or when closing
// a handle that was already closed.
var ErrClosed = errors.New("channel is closed")

// ErrEnded is reported by [Receiver.Next] when no more values will arrive on
// the receiver. It is an expected condition, like io.EOF, not a failure.
var ErrEnded = errors.New("no more values")

// SendError is the concrete type of the error reported by a [Sender] that
// could not deliver a value. It carries the rejected value back to the
// caller.
type SendError[T any] struct {
	Value T // the value that was not sent
}

// Error implements the error interface.
func (e *SendError[T]) Error() string { return "send on closed channel" }

// Is reports whether target is [ErrClosed].
func (e *SendError[T]) Is(target error) bool { return target == ErrClosed }

// A ClosePolicy determines which handles have the authority to close a
// channel when the last of them is released.
type ClosePolicy int

const (
	// EitherGone closes the channel when the last sender or the last receiver
	// is released, whichever comes first. This is the default.
	EitherGone ClosePolicy = iota

	// SendersGone closes the channel only when the last sender is released.
	// Sends continue to succeed after all receivers are gone.
	SendersGone

	// ReceiversGone closes the channel only when the last receiver is
	// released. Receivers wait indefinitely after all senders are gone.
	ReceiversGone
)

func (p ClosePolicy) String() string {
	switch p {
	case EitherGone:
		return "EitherGone"
	case SendersGone:
		return "SendersGone"
	case ReceiversGone:
		return "ReceiversGone"
	default:
		return fmt.Sprintf("ClosePolicy(%d)", int(p))
	}
}

func (p ClosePolicy) closedBy(k kind) bool {
	switch p {
	case SendersGone:
		return k == sendKind
	case ReceiversGone:
		return k == recvKind
	}
	return true
}

// An Option configures a channel constructed by [New].
type Option func(*config)

type config struct {
	skipInitial bool
	policy      ClosePolicy
}

// SkipInitial makes new receivers treat the initial value as already seen,
// so the first call to [Receiver.Next] waits for a value sent after the
// receiver was created. By default, the first call to Next reports the
// current value without waiting.
func SkipInitial() Option { return func(c *config) { c.skipInitial = true } }

// CloseWhen sets the policy for closing the channel when handles are
// released. The default is [EitherGone].
func CloseWhen(p ClosePolicy) Option { return func(c *config) { c.policy = p } }

// New constructs a new channel holding init, and returns a sender and a
// receiver for it. New panics if an option is invalid.
func New[T any](init T, opts ...Option) (*Sender[T], *Receiver[T]) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.policy < EitherGone || cfg.policy > ReceiversGone {
		panic(fmt.Sprintf("baton: invalid close policy %v", cfg.policy))
	}
	st := newState(init, cfg)
	return newSender(st.open(sendKind)), newReceiver(st.open(recvKind), st.baseline())
}

// A handle is one counted reference to a channel state. Releasing a handle
// is idempotent; only the first release is counted.
type handle[T any] struct {
	st      *state[T]
	kind    kind
	closing chan struct{} // closed when the handle is released
}

func newHandle[T any](st *state[T], k kind) *handle[T] {
	return &handle[T]{st: st, kind: k, closing: make(chan struct{})}
}

// release releases h, and reports whether this call did so.
func (h *handle[T]) release() bool { return h.st.release(h) }

func (h *handle[T]) released() bool {
	select {
	case <-h.closing:
		return true
	default:
		return false
	}
}

// track arranges for h to be released when owner becomes unreachable.
func track[T, H any](owner *H, h *handle[T]) {
	runtime.AddCleanup(owner, func(h *handle[T]) { h.release() }, h)
}
