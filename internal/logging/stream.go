package logging

import (
	"strings"
	"sync"
	"time"

	"chatprobe/internal/artifact"
)

// StreamWriter prints incremental text for one worker. The
// "[HH:MM:SS] [W1] " prefix is written once at the start of each visual
// line, however the text is split across writes, so output from several
// workers stays attributable.
type StreamWriter struct {
	mu          sync.Mutex
	console     *Console
	worker      string
	clock       func() time.Time
	atLineStart bool
}

// NewStreamWriter returns a writer for worker's streamed output.
func NewStreamWriter(c *Console, worker string) *StreamWriter {
	return &StreamWriter{console: c, worker: worker, clock: time.Now, atLineStart: true}
}

// WriteDelta appends text to the current line, prefixing new lines.
func (s *StreamWriter) WriteDelta(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var styled, plain strings.Builder
	for _, piece := range strings.SplitAfter(text, "\n") {
		if piece == "" {
			continue
		}
		if s.atLineStart {
			ts := "[" + artifact.ClockStamp(s.clock()) + "] "
			styled.WriteString(ts + s.console.label(s.worker) + " ")
			plain.WriteString(ts + "[" + s.worker + "] ")
		}
		styled.WriteString(piece)
		plain.WriteString(piece)
		s.atLineStart = strings.HasSuffix(piece, "\n")
	}
	s.console.emit(styled.String(), plain.String())
}

// Line writes a complete line, closing any partial line first.
func (s *StreamWriter) Line(text string) {
	s.EndLine()
	s.WriteDelta(text + "\n")
}

// EndLine terminates a partially written line.
func (s *StreamWriter) EndLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.atLineStart {
		s.console.emit("\n", "\n")
		s.atLineStart = true
	}
}
