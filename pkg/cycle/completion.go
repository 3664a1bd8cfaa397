// Package cycle runs the fixed-rate control cycle of a device and the
// completions its blocking requests wait on.
package cycle

import (
	"sync"
	"time"

	"nexmotion-go/pkg/errors"
)

// Infinite makes Wait block until the completion is done.
const Infinite time.Duration = -1

// Completion is the result of a request that finishes on a later cycle.
type Completion struct {
	err  error
	done chan struct{}
	once sync.Once
}

// NewCompletion creates a pending Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Completed returns a Completion that is already done with err.
func Completed(err error) *Completion {
	c := NewCompletion()
	c.Complete(err)
	return c
}

// Test returns true if the completion has a result.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Complete sets the result and wakes any waiters. Only the first call
// has an effect.
func (c *Completion) Complete(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done returns a channel closed on completion.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the completion is done or the timeout expires. A
// negative timeout waits forever. On timeout it returns ProcessTimeout
// and the completion stays pending.
func (c *Completion) Wait(timeout time.Duration) error {
	if timeout < 0 {
		<-c.done
		return c.err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return c.err
	case <-timer.C:
		return errors.Newf(errors.ProcessTimeout, "no completion within %v", timeout)
	}
}
