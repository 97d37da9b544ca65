package capture

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"chatprobe/internal/artifact"
)

// WSLog is the plain-text WebSocket event log. Every line carries the
// wall-clock time and the worker label:
//
//	[12:04:05] [W1] WS SENT wss://host/chat encoding=json
//	[12:04:05] [W1]   {
//	[12:04:05] [W1]     "type": 4
//	[12:04:05] [W1]   }
type WSLog struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	clock  func() time.Time
	path   string
}

// OpenWSLog creates (or appends to) the log at path.
func OpenWSLog(path string) (*WSLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ws log: %w", err)
	}
	return &WSLog{w: f, closer: f, clock: time.Now, path: path}, nil
}

// NewWSLog writes the log to w. Used where no file is wanted.
func NewWSLog(w io.Writer) *WSLog {
	return &WSLog{w: w, clock: time.Now}
}

// Path is the file the log writes to, empty for writer-backed logs.
func (l *WSLog) Path() string { return l.path }

// Event writes one single-line event.
func (l *WSLog) Event(worker, event, detail string) {
	l.write(worker, []string{strings.TrimSpace(event + " " + detail)})
}

// Block writes a head line followed by body, one indented line per body line.
func (l *WSLog) Block(worker, head, body string) {
	lines := []string{head}
	for _, line := range strings.Split(body, "\n") {
		lines = append(lines, "  "+line)
	}
	l.write(worker, lines)
}

// Headers writes a header map as an indented JSON block, keys sorted.
func (l *WSLog) Headers(worker, head string, h Headers) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([][2]string, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, [2]string{k, h[k]})
	}
	l.Block(worker, head, formatHeaders(ordered))
}

// Close flushes and closes the underlying file. Writes after Close are dropped.
func (l *WSLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	l.w = nil
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *WSLog) write(worker string, lines []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return
	}

	prefix := fmt.Sprintf("[%s] [%s] ", artifact.ClockStamp(l.clock()), worker)
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(l.w, b.String())
}

func formatHeaders(kv [][2]string) string {
	if len(kv) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteString("{\n")
	for i, p := range kv {
		k, _ := json.Marshal(p[0])
		v, _ := json.Marshal(p[1])
		fmt.Fprintf(&b, "  %s: %s", k, v)
		if i < len(kv)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}")
	return b.String()
}
