// Package browser runs the shared Chrome instance the workers chat through:
// one persistent profile, one tab per worker, and every tab's network and
// WebSocket traffic streamed into the capture package.
package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatprobe/internal/capture"
	"chatprobe/internal/config"
)

// Session describes one worker's tab.
type Session struct {
	ID        string    `json:"id"`
	Worker    string    `json:"worker"`
	TargetID  string    `json:"target_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionRecord struct {
	meta Session
	page *Page
}

// SessionManager owns the Chrome process and the tabs opened in it.
type SessionManager struct {
	cfg   config.BrowserConfig
	log   *zap.Logger
	now   func() time.Time
	sinks *capture.Sinks
	// harPath is where the network archive is written when the browser closes.
	harPath string

	mu         sync.RWMutex
	launcher   *launcher.Launcher
	browser    *rod.Browser
	sessions   map[string]*sessionRecord
	controlURL string
	streams    sync.WaitGroup
}

// NewSessionManager creates a session manager. Nothing is launched until Start.
func NewSessionManager(cfg config.BrowserConfig, log *zap.Logger) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*sessionRecord),
	}
}

// WithCapture streams every tab's traffic into sinks and writes the network
// archive to harPath on Shutdown.
func (m *SessionManager) WithCapture(sinks capture.Sinks, harPath string) *SessionManager {
	m.sinks = &sinks
	m.harPath = harPath
	return m
}

// HARPath is the temp path of the network archive, empty without capture.
func (m *SessionManager) HARPath() string { return m.harPath }

// Start launches Chrome on the persistent profile and connects to it.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.log.Warn("stale browser connection, relaunching")
		_ = m.browser.Close()
		m.browser = nil
	}

	profile, err := filepath.Abs(m.cfg.ProfileDir)
	if err != nil {
		return fmt.Errorf("resolve profile dir: %w", err)
	}

	l := launcher.New().
		UserDataDir(profile).
		Headless(m.cfg.Headless).
		NoSandbox(m.cfg.NoSandbox)
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.launcher = l
	m.browser = b
	m.controlURL = controlURL
	m.log.Debug("browser started",
		zap.String("profile", profile),
		zap.Bool("headless", m.cfg.Headless),
		zap.String("control_url", controlURL),
	)
	return nil
}

// ControlURL returns the DevTools WebSocket URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// OpenPage opens a blank tab for worker, sized to the configured viewport,
// with its traffic already being captured.
func (m *SessionManager) OpenPage(ctx context.Context, worker string) (*Page, error) {
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, errors.New("browser not connected")
	}

	rp, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	rp = rp.Context(context.Background())

	if err := rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		m.log.Warn("failed to set viewport", zap.String("worker", worker), zap.Error(err))
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	if m.sinks != nil {
		wait := streamEvents(rp.Context(streamCtx), capture.NewTap(worker, *m.sinks), m.now)
		m.streams.Add(1)
		go func() {
			defer m.streams.Done()
			wait()
		}()
	}

	page := newPage(rp, cancel)
	meta := Session{
		ID:        uuid.NewString(),
		Worker:    worker,
		TargetID:  string(rp.TargetID),
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: page}
	m.mu.Unlock()
	return page, nil
}

// List returns the open sessions.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, rec.meta)
	}
	return out
}

// Shutdown closes every tab and the browser, waits for the event streams to
// drain, then writes the network archive. Calling it again is a no-op.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	b, l := m.browser, m.launcher
	m.browser, m.launcher = nil, nil
	records := m.sessions
	m.sessions = make(map[string]*sessionRecord)
	m.controlURL = ""
	m.mu.Unlock()

	if b == nil {
		return nil
	}

	for _, rec := range records {
		rec.page.cancel()
	}

	var errs []error
	if err := b.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if l != nil {
		l.Kill()
	}

	drained := make(chan struct{})
	go func() {
		m.streams.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("event streams did not drain: %w", ctx.Err()))
	}

	if m.sinks != nil && m.sinks.Archive != nil && m.harPath != "" {
		if err := m.sinks.Archive.Flush(m.harPath); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
