package chat

import (
	"strings"
	"time"
)

// Class is the verdict on a snapshot of answer text.
type Class int

const (
	ClassEmpty Class = iota
	// ClassInterim text is a placeholder or still being produced.
	ClassInterim
	ClassFinal
)

func (c Class) String() string {
	switch c {
	case ClassEmpty:
		return "empty"
	case ClassInterim:
		return "interim"
	case ClassFinal:
		return "final"
	}
	return "unknown"
}

var interimMarkers = []string{"generating", "searching", "i'll search"}

// Classify decides whether text looks like a finished answer.
func Classify(text string, minLen int) Class {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return ClassEmpty
	}
	if len([]rune(t)) < minLen {
		return ClassInterim
	}
	for _, m := range interimMarkers {
		if strings.Contains(t, m) {
			return ClassInterim
		}
	}
	if strings.HasSuffix(t, "...") || strings.HasSuffix(t, "…") {
		return ClassInterim
	}
	return ClassFinal
}

// RestatesQuestion reports whether text is the question echoed back: it
// contains the question and less than minLen characters besides.
func RestatesQuestion(text, question string, minLen int) bool {
	q := normalize(question)
	if q == "" {
		return false
	}
	t := normalize(text)
	if !strings.Contains(t, q) {
		return false
	}
	rest := strings.TrimSpace(strings.Replace(t, q, "", 1))
	return len([]rune(rest)) < minLen
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Settler decides when a streamed answer is complete. A snapshot is
// accepted once it is final, not an echo of the question, no stop control is
// showing, and it has stayed unchanged for Window.
type Settler struct {
	Question  string
	MinLength int
	Window    time.Duration

	candidate string
	since     time.Time
}

// Observe feeds one snapshot taken at now. It returns the settled text and
// true once the snapshot has held for the window.
func (s *Settler) Observe(text string, stopVisible bool, now time.Time) (string, bool) {
	text = strings.TrimSpace(text)
	if stopVisible || Classify(text, s.MinLength) != ClassFinal || RestatesQuestion(text, s.Question, s.MinLength) {
		s.candidate = ""
		s.since = time.Time{}
		return "", false
	}
	if text != s.candidate {
		s.candidate = text
		s.since = now
		return "", false
	}
	if now.Sub(s.since) >= s.Window {
		return text, true
	}
	return "", false
}
