// Package trigger provides a broadcast wakeup condition shared by multiple
// goroutines.
package trigger

import "sync"

// Cond is a broadcast condition. Goroutines obtain a channel from Ready and
// block on it; the channel is closed when the condition fires.
//
// Signal fires the condition for the goroutines that already hold a channel,
// and starts a new generation: a channel obtained from Ready after Signal
// returns is not closed by that Signal, only by a later one. Set fires the
// condition permanently; once set, Ready returns a closed channel.
//
// A zero Cond is ready for use, but must not be copied after first use.
type Cond struct {
	μ   sync.Mutex
	ch  chan struct{} // current generation; nil until a waiter asks
	set bool          // permanently active
}

// Ready returns a channel that is closed when c next fires. If c has been
// Set, the returned channel is already closed.
func (c *Cond) Ready() <-chan struct{} {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.ch == nil {
		c.ch = make(chan struct{})
		if c.set {
			close(c.ch)
		}
	}
	return c.ch
}

// Signal wakes all goroutines waiting on a channel from Ready. If c has been
// Set, Signal has no effect.
func (c *Cond) Signal() {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.set {
		return
	}
	if c.ch != nil {
		close(c.ch)
		c.ch = nil // the next waiter gets a fresh channel
	}
}

// Set activates c permanently, waking all pending waiters. Set is safe to
// call more than once.
func (c *Cond) Set() {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.set {
		return
	}
	c.set = true
	if c.ch != nil {
		close(c.ch)
	}
}
