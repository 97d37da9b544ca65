package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeltaTrackerReassemblesPrefixGrowth(t *testing.T) {
	var d DeltaTracker
	var out string
	for _, snap := range []string{"", "Hel", "Hello", "Hello", "Hello wo"} {
		out += d.Next(snap)
	}
	assert.Equal(t, "Hello wo", out)
	assert.Equal(t, "Hello wo", d.Last())
}

func TestDeltaTrackerDiscontinuity(t *testing.T) {
	var d DeltaTracker
	assert.Equal(t, "Searching", d.Next("Searching"))
	assert.Equal(t, "\nThe answer", d.Next("The answer"))
	assert.Equal(t, "", d.Next("The answer"))
	assert.Equal(t, " is 42", d.Next("The answer is 42"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Class
	}{
		{"", ClassEmpty},
		{"   \n", ClassEmpty},
		{"Short reply", ClassInterim},
		{"Generating response...", ClassInterim},
		{"Searching the web for Boston weather", ClassInterim},
		{"I'll search for that and get back to you", ClassInterim},
		{"Let me think about the forecast…", ClassInterim},
		{"Boston is sunny today with a high of 70.", ClassFinal},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text, 20))
		})
	}
	assert.Equal(t, "interim", ClassInterim.String())
}

func TestRestatesQuestion(t *testing.T) {
	q := "What is the weather in Boston today"
	assert.True(t, RestatesQuestion("what is the weather in  boston today", q, 20))
	assert.True(t, RestatesQuestion("You said: What is the weather in Boston today", q, 20))
	assert.False(t, RestatesQuestion("What is the weather in Boston today? It is sunny and 70 degrees.", q, 20))
	assert.False(t, RestatesQuestion("Sunny and 70 degrees in Boston.", q, 20))
	assert.False(t, RestatesQuestion("anything", "", 20))
}

func TestSettler(t *testing.T) {
	s := &Settler{Question: "what is the weather in boston today", MinLength: 20, Window: 600 * time.Millisecond}
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	final := "It is 68 degrees and clear in Boston."

	_, ok := s.Observe("Generating response...", false, t0)
	assert.False(t, ok, "interim text never settles")

	_, ok = s.Observe(final, false, t0.Add(100*time.Millisecond))
	assert.False(t, ok)
	_, ok = s.Observe(final, false, t0.Add(400*time.Millisecond))
	assert.False(t, ok, "window not yet elapsed")
	got, ok := s.Observe(final, false, t0.Add(700*time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, final, got)
}

func TestSettlerResetsOnStopControlAndChange(t *testing.T) {
	s := &Settler{MinLength: 20, Window: 600 * time.Millisecond}
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	text := "It is 68 degrees and clear in Boston."

	s.Observe(text, false, t0)
	_, ok := s.Observe(text, true, t0.Add(700*time.Millisecond))
	assert.False(t, ok, "stop control visible")

	s.Observe(text, false, t0.Add(800*time.Millisecond))
	_, ok = s.Observe(text+" More soon", false, t0.Add(1500*time.Millisecond))
	assert.False(t, ok, "text changed")
	got, ok := s.Observe(text+" More soon", false, t0.Add(2100*time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, text+" More soon", got)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeAnswered},
		{context.Canceled, OutcomeAborted},
		{&ExchangeError{Stage: "resolve", Err: fmt.Errorf("%w: x", ErrNoControl)}, OutcomeNoControl},
		{&ExchangeError{Stage: "submit", Err: ErrNotSubmitted}, OutcomeNotSubmitted},
		{&ExchangeError{Stage: "response", Err: ErrConnectionClosed}, OutcomeConnectionClosed},
		{&ExchangeError{Stage: "response", Err: ErrUIError}, OutcomeUIError},
		{&ExchangeError{Stage: "response", Err: ErrResponseTimeout}, OutcomeTimeout},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err))
	}
}
