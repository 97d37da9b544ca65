package fleet

import (
	"sync"
	"sync/atomic"
)

// Abort is the fleet-wide stop flag. It goes from false to true once and
// never back. Workers read it between exchanges, never during one.
type Abort struct {
	requested atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewAbort returns an unset flag.
func NewAbort() *Abort {
	return &Abort{done: make(chan struct{})}
}

// Trigger sets the flag. It reports whether this call was the one that set it.
func (a *Abort) Trigger() bool {
	first := false
	a.once.Do(func() {
		a.requested.Store(true)
		close(a.done)
		first = true
	})
	return first
}

// Requested reports whether the flag is set.
func (a *Abort) Requested() bool { return a.requested.Load() }

// Done is closed when the flag is set.
func (a *Abort) Done() <-chan struct{} { return a.done }
