package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatprobe/internal/artifact"
	"chatprobe/internal/browser"
	"chatprobe/internal/capture"
	"chatprobe/internal/chat"
	"chatprobe/internal/config"
	"chatprobe/internal/fleet"
	"chatprobe/internal/ledger"
	"chatprobe/internal/logging"
	"chatprobe/internal/metrics"
	"chatprobe/internal/resolver"
	"chatprobe/internal/terminal"
)

// Per-step bounds during shutdown.
const (
	browserCloseTimeout = 30 * time.Second
	stepTimeout         = 10 * time.Second
)

// browserSession is the part of the browser the shutdown steps need.
type browserSession interface {
	Shutdown(ctx context.Context) error
	HARPath() string
}

// app is one process run: the shared browser, the capture sinks and the
// shutdown sequence that finalizes them.
type app struct {
	cfg     *config.Config
	console *logging.Console
	log     *zap.Logger
	names   artifact.Names
	runID   string

	abort       *fleet.Abort
	coord       *fleet.Coordinator
	finalizer   *artifact.Finalizer
	interrupted atomic.Bool

	recorder *capture.Recorder
	archive  *capture.NetworkArchive
	wslog    *capture.WSLog
	harTmp   string
	wsLogTmp string
	ledger   *ledger.Store
	metrics  *metrics.Metrics
	guard    *terminal.Guard

	sm *browser.SessionManager

	mu      sync.Mutex
	session browserSession

	// newWorker builds a worker; defaults to browserWorker.
	newWorker fleet.WorkerFactory
}

func newApp(cfg *config.Config, console *logging.Console, log *zap.Logger, start time.Time) *app {
	abort := fleet.NewAbort()
	fin := artifact.NewFinalizer(logging.Named(log, logging.CategoryArtifact))
	fin.WaitTimeout = cfg.GetFlushTimeout()
	fin.PollInterval = cfg.GetPollInterval()
	fin.StablePolls = cfg.Output.StablePolls

	a := &app{
		cfg:       cfg,
		console:   console,
		log:       log,
		names:     artifact.NewNames(cfg.Output.Dir, start),
		runID:     uuid.NewString(),
		abort:     abort,
		coord:     fleet.NewCoordinator(abort, logging.Named(log, logging.CategoryShutdown)),
		finalizer: fin,
	}
	a.newWorker = a.browserWorker
	return a
}

// Run executes the configured mode and always finishes with a full shutdown.
func (a *app) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.abort.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	stopSignals := a.watchSignals()
	defer stopSignals()

	if err := a.start(ctx); err != nil {
		return a.finish(err)
	}

	var err error
	switch a.cfg.Mode {
	case config.ModeAuthCheck:
		err = a.authCheck(ctx)
	case config.ModeLogin:
		err = a.login(ctx)
	default:
		err = a.runFleet(ctx)
	}
	return a.finish(err)
}

// start opens the capture sinks, registers the shutdown steps and launches
// the browser.
func (a *app) start(ctx context.Context) error {
	a.registerSteps()
	if err := a.openCapture(); err != nil {
		return err
	}
	if err := a.openTerminal(); err != nil {
		return err
	}

	sm := browser.NewSessionManager(a.cfg.Browser, logging.Named(a.log, logging.CategoryBrowser))
	if a.cfg.ArtifactsEnabled() {
		sinks := capture.Sinks{
			Recorder: a.recorder,
			Archive:  a.archive,
			WSLog:    a.wslog,
			Logger:   logging.Named(a.log, logging.CategoryCapture),
		}
		if a.metrics != nil {
			sinks.Observer = a.metrics
		}
		sm.WithCapture(sinks, a.harTmp)
		a.log.Info("HAR temp path: " + a.harTmp)
	}
	a.sm = sm
	a.setSession(sm)

	if a.cfg.Mode == config.ModeLogin {
		a.log.Info("A browser will open for sign-in; chatprobe exits once you are signed in.")
	}
	if err := sm.Start(ctx); err != nil {
		return err
	}
	return nil
}

// openCapture creates the run's recorders, ledger and metrics endpoint.
func (a *app) openCapture() error {
	if a.cfg.Metrics.Addr != "" {
		a.metrics = metrics.New(logging.Named(a.log, logging.CategoryMetrics))
		if _, err := a.metrics.Start(a.cfg.Metrics.Addr); err != nil {
			return err
		}
	}
	if !a.cfg.ArtifactsEnabled() {
		return nil
	}

	a.recorder = capture.NewRecorder()
	a.archive = capture.NewNetworkArchive()
	a.harTmp = a.names.Prefix("network") + ".tmp.har"
	a.wsLogTmp = a.names.Prefix("ws") + ".tmp.log"

	wslog, err := capture.OpenWSLog(a.wsLogTmp)
	if err != nil {
		return err
	}
	a.wslog = wslog

	store, err := ledger.Open(a.names.Prefix("ledger")+".db", a.runID, logging.Named(a.log, logging.CategoryLedger))
	if err != nil {
		return err
	}
	a.ledger = store
	return nil
}

// openTerminal switches stdin to raw mode when configured and it is a TTY.
func (a *app) openTerminal() error {
	if !a.cfg.Terminal.RawStdin {
		return nil
	}
	g, err := terminal.Hijack(os.Stdin)
	if err != nil {
		return fmt.Errorf("raw stdin: %w", err)
	}
	a.guard = g
	if g.Active() {
		a.console.SetRaw(true)
		terminal.WatchInterrupt(os.Stdin, func() { a.interrupt("Ctrl+C") })
	}
	return nil
}

// watchSignals routes SIGINT and SIGTERM to the interrupt path.
func (a *app) watchSignals() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	stop := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			a.interrupt(sig.String())
		case <-stop:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(stop)
	}
}

func (a *app) interrupt(source string) {
	a.interrupted.Store(true)
	a.coord.Shutdown(context.Background(), "user interrupt ("+source+")")
}

// registerSteps lays out the shutdown sequence. Steps skip whatever was
// never opened.
func (a *app) registerSteps() {
	a.coord.Add("close browser", a.closeBrowser)
	if a.cfg.ArtifactsEnabled() {
		a.coord.Add("finalize network capture", a.finalizeNetwork)
		a.coord.Add("finalize websocket log", a.finalizeWSLog)
		a.coord.Add("finalize websocket har", a.finalizeWSHAR)
		a.coord.Add("close ledger", a.closeLedger)
	}
	a.coord.Add("stop metrics", func(ctx context.Context) error {
		if a.metrics == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, stepTimeout)
		defer cancel()
		return a.metrics.Shutdown(ctx)
	})
	a.coord.Add("restore terminal", a.restoreTerminal)
	a.coord.Add("close console", func(context.Context) error {
		return a.console.Close()
	})
}

func (a *app) setSession(s browserSession) {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
}

func (a *app) currentSession() browserSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *app) closeBrowser(ctx context.Context) error {
	session := a.currentSession()
	if session == nil {
		return nil
	}
	harPath := session.HARPath()
	if harPath != "" {
		a.log.Info(fmt.Sprintf("HAR temp exists before close: %t", fileExists(harPath)))
	}

	ctx, cancel := context.WithTimeout(ctx, browserCloseTimeout)
	defer cancel()
	err := session.Shutdown(ctx)

	if harPath != "" {
		a.log.Info(fmt.Sprintf("HAR temp exists after close: %t", fileExists(harPath)))
	}
	return err
}

func (a *app) finalizeNetwork(ctx context.Context) error {
	if a.currentSession() == nil || a.harTmp == "" {
		return nil
	}
	path, err := a.finalizer.PromoteStable(ctx, a.harTmp, a.names.Prefix("network"), ".har")
	if errors.Is(err, artifact.ErrNotWritten) {
		a.log.Warn("HAR file was not written", zap.String("path", a.harTmp))
		return nil
	}
	if err != nil {
		return err
	}
	a.log.Info("HAR saved: " + path)
	return nil
}

func (a *app) finalizeWSLog(context.Context) error {
	if a.wslog == nil {
		return nil
	}
	if err := a.wslog.Close(); err != nil {
		return err
	}
	path, err := a.finalizer.Promote(a.wsLogTmp, a.names.Prefix("ws"), ".log")
	if err != nil {
		return err
	}
	a.log.Info("WS log saved: " + path)
	return nil
}

func (a *app) finalizeWSHAR(context.Context) error {
	if a.recorder == nil {
		return nil
	}
	doc := a.recorder.Finalize()
	path, err := a.finalizer.WriteJSON(a.names.Prefix("ws_har"), ".json", doc)
	if err != nil {
		return err
	}
	a.log.Info("WS HAR-like JSON saved: "+path, zap.Int("connections", len(doc.Log.Entries)))
	return nil
}

func (a *app) closeLedger(ctx context.Context) error {
	if a.ledger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	if sum, err := a.ledger.Summary(ctx); err == nil {
		fields := make([]zap.Field, 0, len(sum)+1)
		fields = append(fields, zap.String("run_id", a.runID))
		for outcome, n := range sum {
			fields = append(fields, zap.Int(outcome, n))
		}
		a.log.Info("Exchange summary", fields...)
	}
	if err := a.ledger.Close(); err != nil {
		return err
	}
	a.log.Info("Ledger saved: " + a.ledger.Path())
	return nil
}

func (a *app) restoreTerminal(context.Context) error {
	if a.guard == nil {
		return nil
	}
	a.console.SetRaw(false)
	return a.guard.Restore()
}

// finish turns the mode's result into an exit status once shutdown is done.
func (a *app) finish(err error) error {
	if a.interrupted.Load() {
		<-a.coord.Done()
		return &exitError{code: exitInterrupted}
	}

	var ee *exitError
	if err != nil && !errors.As(err, &ee) {
		a.log.Error(err.Error())
		a.coord.Shutdown(context.Background(), "failure")
		<-a.coord.Done()
		return &exitError{code: exitFailure, err: err}
	}

	a.coord.Shutdown(context.Background(), "finalize")
	<-a.coord.Done()
	return err
}

func (a *app) readyOptions(allowLogin bool) browser.ReadyOptions {
	b := a.cfg.Browser
	return browser.ReadyOptions{
		Target:             a.cfg.Target.URL,
		Headless:           b.Headless,
		AllowLoginRequired: allowLogin,
		NavTimeout:         b.GetNavTimeout(),
		SettleDelay:        b.GetSettleDelay(),
		LoginTimeout:       b.GetLoginTimeout(),
		LoginPoll:          b.GetLoginPoll(),
	}
}

func (a *app) authCheck(ctx context.Context) error {
	page, err := a.sm.OpenPage(ctx, "W1")
	if err != nil {
		return err
	}
	loginFound, err := browser.EnsureReady(ctx, page, a.readyOptions(true), logging.Named(a.log, logging.CategoryBrowser))
	if err != nil {
		return err
	}
	if loginFound {
		a.log.Info("Auth check: login required.")
		return &exitError{code: exitLoginRequired}
	}
	a.log.Info("Auth check: existing session valid.")
	return nil
}

func (a *app) login(ctx context.Context) error {
	page, err := a.sm.OpenPage(ctx, "W1")
	if err != nil {
		return err
	}
	if _, err := browser.EnsureReady(ctx, page, a.readyOptions(false), logging.Named(a.log, logging.CategoryBrowser)); err != nil {
		return err
	}
	a.log.Info("Login complete. Closing browser and exiting.")
	return nil
}

// runFleet runs the workers until interrupt or the first worker failure.
func (a *app) runFleet(ctx context.Context) error {
	observers := fleet.Observers{}
	if a.ledger != nil {
		observers = append(observers, a.ledger)
	}
	if a.metrics != nil {
		observers = append(observers, a.metrics)
	}

	o := fleet.NewOrchestrator(a.abort, a.newWorker, logging.Named(a.log, logging.CategoryFleet),
		fleet.WithYield(a.cfg.Chat.Timings().Yield),
		fleet.WithObserver(observers),
		fleet.WithFatalHook(func(worker string, err error) {
			a.coord.Shutdown(context.Background(), fmt.Sprintf("worker %s failed", worker))
		}),
	)
	return o.Run(ctx, a.cfg.Parallelism)
}

// browserWorker opens the worker's tab, gets it to the chat and builds the
// controller that drives it.
func (a *app) browserWorker(ctx context.Context, id string, index int) (fleet.Asker, error) {
	page, err := a.sm.OpenPage(ctx, id)
	if err != nil {
		return nil, err
	}
	blog := logging.Named(a.log, logging.CategoryBrowser).With(zap.String("worker", id))
	if _, err := browser.EnsureReady(ctx, page, a.readyOptions(false), blog); err != nil {
		return nil, err
	}

	timings := a.cfg.Chat.Timings()
	res := resolver.New(resolver.Options{
		AppName:              a.cfg.Target.AppName,
		StrategyTimeout:      timings.StrategyTimeout,
		FrameStrategyTimeout: timings.FrameStrategyTimeout,
		PollInterval:         timings.ResolvePoll,
	}, logging.Named(a.log, logging.CategoryResolver).With(zap.String("worker", id)))

	clog := logging.Named(a.log, logging.CategoryChat).With(zap.String("worker", id))
	var diag *chat.Diagnostics
	if a.cfg.Debug.Diagnostics {
		diag = &chat.Diagnostics{Names: a.names, Finalizer: a.finalizer, Log: clog}
	}
	return chat.NewController(page, res, logging.NewStreamWriter(a.console, id), chat.Options{
		Question:        a.cfg.Target.Question,
		Timings:         timings,
		MinAnswerLength: a.cfg.Chat.MinAnswerLength,
		Diagnostics:     diag,
	}, clog), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
