package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var labelColors = []lipgloss.Color{"39", "208", "170", "42", "220", "203"}

// Console is the run's terminal output. Everything written to it is also
// appended to a mirror file until the mirror is closed. Worker labels are
// coloured on the terminal only; the mirror always gets plain text.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	mirror   io.WriteCloser
	raw      bool
	renderer *lipgloss.Renderer
	styles   map[string]lipgloss.Style
}

// NewConsole writes to out and, if mirror is non-nil, to mirror.
func NewConsole(out io.Writer, mirror io.WriteCloser) *Console {
	return &Console{
		out:      out,
		mirror:   mirror,
		renderer: lipgloss.NewRenderer(out),
		styles:   make(map[string]lipgloss.Style),
	}
}

// OpenConsole writes to out and mirrors into the file at mirrorPath.
func OpenConsole(out io.Writer, mirrorPath string) (*Console, error) {
	if err := os.MkdirAll(filepath.Dir(mirrorPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create console log dir: %w", err)
	}
	f, err := os.OpenFile(mirrorPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open console log: %w", err)
	}
	return NewConsole(out, f), nil
}

// Write implements io.Writer (and zapcore.WriteSyncer with Sync).
func (c *Console) Write(p []byte) (int, error) {
	c.emit(string(p), string(p))
	return len(p), nil
}

// Sync is a no-op; writes are unbuffered.
func (c *Console) Sync() error { return nil }

// Printf writes a formatted line. A trailing newline is added if missing.
func (c *Console) Printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	c.emit(s, s)
}

// SetRaw tells the console that the terminal is in raw mode, where a bare
// "\n" does not return the carriage.
func (c *Console) SetRaw(raw bool) {
	c.mu.Lock()
	c.raw = raw
	c.mu.Unlock()
}

// Close closes the mirror file. The terminal keeps receiving output.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror == nil {
		return nil
	}
	err := c.mirror.Close()
	c.mirror = nil
	return err
}

// label renders "[W1]" in the worker's colour for the terminal.
func (c *Console) label(worker string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.styles[worker]
	if !ok {
		st = c.renderer.NewStyle().Bold(true).Foreground(labelColors[len(c.styles)%len(labelColors)])
		c.styles[worker] = st
	}
	return st.Render("[" + worker + "]")
}

// emit writes styled to the terminal and plain to the mirror.
func (c *Console) emit(styled, plain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw {
		styled = strings.ReplaceAll(styled, "\n", "\r\n")
	}
	if c.out != nil {
		_, _ = io.WriteString(c.out, styled)
	}
	if c.mirror != nil {
		_, _ = io.WriteString(c.mirror, plain)
	}
}
