// Package fleet runs the parallel chat workers and tears everything down
// when they stop.
package fleet

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatprobe/internal/chat"
)

// Asker performs one exchange. *chat.Controller implements it.
type Asker interface {
	Ask(ctx context.Context) (*chat.Exchange, error)
}

// WorkerFactory prepares the worker with the given id ("W1") and 1-based
// index, typically by opening a page and building a controller on it.
type WorkerFactory func(ctx context.Context, id string, index int) (Asker, error)

// Observer is told about every finished exchange.
type Observer interface {
	ExchangeFinished(worker string, ex *chat.Exchange, err error)
}

// Observers fans out to several observers.
type Observers []Observer

func (obs Observers) ExchangeFinished(worker string, ex *chat.Exchange, err error) {
	for _, o := range obs {
		o.ExchangeFinished(worker, ex, err)
	}
}

// Orchestrator runs workers until the abort flag is set or one of them fails.
type Orchestrator struct {
	abort    *Abort
	factory  WorkerFactory
	yield    time.Duration
	observer Observer
	onFatal  func(worker string, err error)
	log      *zap.Logger
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithYield sets the pause between a worker's exchanges.
func WithYield(d time.Duration) Option { return func(o *Orchestrator) { o.yield = d } }

// WithObserver reports exchange outcomes to obs.
func WithObserver(obs Observer) Option { return func(o *Orchestrator) { o.observer = obs } }

// WithFatalHook runs fn when a worker fails for a reason other than abort.
// The hook is expected to start shutdown.
func WithFatalHook(fn func(worker string, err error)) Option {
	return func(o *Orchestrator) { o.onFatal = fn }
}

// NewOrchestrator returns an Orchestrator sharing abort with the rest of the run.
func NewOrchestrator(abort *Abort, factory WorkerFactory, log *zap.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		abort:   abort,
		factory: factory,
		yield:   500 * time.Millisecond,
		log:     log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts n workers and blocks until all of them have stopped. It returns
// the first worker failure that was not caused by abort.
func (o *Orchestrator) Run(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", n)
	}
	o.log.Info("starting workers", zap.Int("parallelism", n))

	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("W%d", i)
		g.Go(func() error {
			return o.loop(gctx, id, i)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) loop(ctx context.Context, id string, index int) error {
	log := o.log.With(zap.String("worker", id))

	w, err := o.factory(ctx, id, index)
	if err != nil {
		if o.stopping(ctx) {
			return nil
		}
		return o.fail(id, fmt.Errorf("worker %s setup: %w", id, err))
	}

	for !o.abort.Requested() {
		ex, err := w.Ask(ctx)
		if err != nil && o.stopping(ctx) {
			// Closing the browser surfaces as arbitrary errors mid-exchange.
			o.observe(id, ex, fmt.Errorf("%w: %w", context.Canceled, err))
			log.Debug("exchange interrupted by shutdown", zap.Error(err))
			return nil
		}
		o.observe(id, ex, err)
		if err != nil {
			return o.fail(id, fmt.Errorf("worker %s: %w", id, err))
		}

		select {
		case <-o.abort.Done():
		case <-ctx.Done():
			return nil
		case <-time.After(o.yield):
		}
	}
	log.Debug("worker stopped")
	return nil
}

func (o *Orchestrator) observe(id string, ex *chat.Exchange, err error) {
	if o.observer != nil {
		o.observer.ExchangeFinished(id, ex, err)
	}
}

func (o *Orchestrator) stopping(ctx context.Context) bool {
	return o.abort.Requested() || ctx.Err() != nil
}

func (o *Orchestrator) fail(id string, err error) error {
	o.log.Error("worker failed", zap.String("worker", id), zap.Error(err))
	if o.onFatal != nil {
		o.onFatal(id, err)
	}
	return err
}
