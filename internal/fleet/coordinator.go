package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Step is one teardown action. Steps run in the order they were added.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Coordinator runs the shutdown sequence exactly once, whoever asks first:
// a fatal worker error, a user interrupt or normal completion.
type Coordinator struct {
	abort *Abort
	log   *zap.Logger

	mu      sync.Mutex
	steps   []Step
	started bool
	reason  string
	done    chan struct{}
}

// NewCoordinator returns a Coordinator that sets abort before any step.
func NewCoordinator(abort *Abort, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{abort: abort, log: log, done: make(chan struct{})}
}

// Add appends a step. Steps added after shutdown started are ignored.
func (c *Coordinator) Add(name string, run func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.steps = append(c.steps, Step{Name: name, Run: run})
}

// Shutdown runs the sequence. Only the first call does anything; it returns
// true for that call. Later calls return false immediately; use Done to wait.
func (c *Coordinator) Shutdown(ctx context.Context, reason string) bool {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return false
	}
	c.started = true
	c.reason = reason
	steps := c.steps
	c.mu.Unlock()

	defer close(c.done)

	c.abort.Trigger()
	c.log.Info("Shutting down: " + reason)

	for _, s := range steps {
		start := time.Now()
		if err := runStep(ctx, s); err != nil {
			c.log.Warn("shutdown step failed", zap.String("step", s.Name), zap.Error(err))
			continue
		}
		c.log.Debug("shutdown step done", zap.String("step", s.Name), zap.Duration("took", time.Since(start)))
	}
	return true
}

func runStep(ctx context.Context, s Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Run(ctx)
}

// Done is closed when the sequence has finished.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Reason is the reason given to the first Shutdown call.
func (c *Coordinator) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}
