package chat

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chatprobe/internal/artifact"
	"chatprobe/internal/config"
	"chatprobe/internal/dom"
	"chatprobe/internal/dom/domtest"
	"chatprobe/internal/logging"
	"chatprobe/internal/resolver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const question = "what is the weather in boston today"

func fastTimings() config.ChatTimings {
	return config.ChatTimings{
		ResolveTimeout:       500 * time.Millisecond,
		ResolvePoll:          10 * time.Millisecond,
		StrategyTimeout:      50 * time.Millisecond,
		FrameStrategyTimeout: 50 * time.Millisecond,
		SubmitConfirm:        100 * time.Millisecond,
		SendButtonTimeout:    50 * time.Millisecond,
		InputClearTimeout:    200 * time.Millisecond,
		InputClearPoll:       10 * time.Millisecond,
		ResponseTimeout:      2 * time.Second,
		ResponsePoll:         20 * time.Millisecond,
		StopCheckTimeout:     50 * time.Millisecond,
		StabilityWindow:      60 * time.Millisecond,
		Yield:                10 * time.Millisecond,
	}
}

type harness struct {
	page  *domtest.Page
	input *domtest.Element
	out   *bytes.Buffer
	ctrl  *Controller
}

func newHarness(t *testing.T, timings config.ChatTimings, diag *Diagnostics) *harness {
	t.Helper()
	page := domtest.NewPage()
	input := domtest.NewElement("composer")
	page.Set("textarea", input)

	var out bytes.Buffer
	stream := logging.NewStreamWriter(logging.NewConsole(&out, nil), "W1")
	res := resolver.New(resolver.Options{
		AppName:              "copilot",
		StrategyTimeout:      timings.StrategyTimeout,
		FrameStrategyTimeout: timings.FrameStrategyTimeout,
		PollInterval:         timings.ResolvePoll,
	}, nil)
	ctrl := NewController(page, res, stream, Options{
		Question:        question,
		Timings:         timings,
		MinAnswerLength: 20,
		Diagnostics:     diag,
	}, nil)
	return &harness{page: page, input: input, out: &out, ctrl: ctrl}
}

// scripted returns an element whose text walks through steps, one per read,
// and then stays on the last step.
func scripted(steps ...string) *domtest.Element {
	el := domtest.NewElement("answer")
	var reads atomic.Int32
	el.TextFn = func() string {
		i := int(reads.Add(1)) - 1
		if i >= len(steps) {
			i = len(steps) - 1
		}
		return steps[i]
	}
	return el
}

func TestAskStreamsAndSettles(t *testing.T) {
	h := newHarness(t, fastTimings(), nil)
	final := "The weather in Boston is sunny and 72F."
	answer := scripted("Generating response...", "Generating response...", "The weather in Boston", final)
	h.input.OnPress = func(dom.Key) {
		h.input.SetInputValue("")
		h.page.Append("article", answer)
	}

	ex, err := h.ctrl.Ask(context.Background())
	require.NoError(t, err)
	assert.Equal(t, final, ex.Answer)
	assert.Equal(t, question, ex.Question)
	assert.True(t, strings.HasSuffix(ex.Streamed, final), "streamed %q", ex.Streamed)
	assert.Greater(t, ex.Duration(), time.Duration(0))

	assert.Equal(t, []string{"click", "fill:" + question, "press:Enter"}, h.input.Actions())
	out := h.out.String()
	assert.Contains(t, out, `Sending question: "`+question+`"`)
	assert.Contains(t, out, "[W1] Generating response...")
	assert.True(t, strings.HasSuffix(out, final+"\n"))
}

func TestAskWaitsForStopControlToDisappear(t *testing.T) {
	h := newHarness(t, fastTimings(), nil)
	final := "It is cloudy in Boston with light rain."
	stop := domtest.NewElement("stop").WithAttr("aria-label", "Stop responding")
	h.page.Set("button", stop)
	h.input.OnPress = func(dom.Key) {
		h.input.SetInputValue("")
		h.page.Append("article", domtest.NewElement("answer").WithText(final))
	}

	hidden := make(chan time.Time, 1)
	go func() {
		time.Sleep(250 * time.Millisecond)
		stop.Hide()
		hidden <- time.Now()
	}()

	ex, err := h.ctrl.Ask(context.Background())
	require.NoError(t, err)
	assert.Equal(t, final, ex.Answer)
	assert.False(t, ex.Finished.Before(<-hidden), "answer accepted while stop control was showing")
	assert.Contains(t, h.out.String(), final)
}

func TestAskFallsBackToSendButton(t *testing.T) {
	h := newHarness(t, fastTimings(), nil)
	final := "Boston is expecting snow this evening."
	send := domtest.NewElement("send").WithAttr("aria-label", "Send")
	send.OnClick = func() {
		h.input.SetInputValue("")
		h.page.Append("article", domtest.NewElement("answer").WithText(final))
	}
	h.page.Set("button", send)

	ex, err := h.ctrl.Ask(context.Background())
	require.NoError(t, err)
	assert.Equal(t, final, ex.Answer)
	assert.Equal(t, []string{"click"}, send.Actions())
}

func TestAskIgnoresEchoedQuestion(t *testing.T) {
	h := newHarness(t, fastTimings(), nil)
	final := "Today in Boston: partly cloudy, high of 64."
	echo := domtest.NewElement("echo").WithText(question)
	h.input.OnPress = func(dom.Key) {
		h.input.SetInputValue("")
		h.page.Append("article", echo)
		go func() {
			time.Sleep(150 * time.Millisecond)
			h.page.Append("article", domtest.NewElement("answer").WithText(final))
		}()
	}

	ex, err := h.ctrl.Ask(context.Background())
	require.NoError(t, err)
	assert.Equal(t, final, ex.Answer)
}

func TestAskFailurePhrases(t *testing.T) {
	tests := []struct {
		name   string
		banner string
		want   error
	}{
		{"connection", "Connection closed. Reconnecting", ErrConnectionClosed},
		{"ui error", "Something went wrong. Please try again.", ErrUIError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, fastTimings(), nil)
			h.input.OnPress = func(dom.Key) {
				h.input.SetInputValue("")
				h.page.Set("main", domtest.NewElement("main").WithText(tt.banner))
			}

			start := time.Now()
			_, err := h.ctrl.Ask(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			var exErr *ExchangeError
			require.True(t, errors.As(err, &exErr))
			assert.Equal(t, "response", exErr.Stage)
			assert.Less(t, time.Since(start), time.Second, "failure phrases end the exchange immediately")
		})
	}
}

func TestAskResponseTimeout(t *testing.T) {
	timings := fastTimings()
	timings.ResponseTimeout = 150 * time.Millisecond
	h := newHarness(t, timings, nil)
	h.input.OnPress = func(dom.Key) { h.input.SetInputValue("") }

	ex, err := h.ctrl.Ask(context.Background())
	assert.ErrorIs(t, err, ErrResponseTimeout)
	assert.Empty(t, ex.Answer)
}

func TestAskUnclearedInputIsNotFatal(t *testing.T) {
	h := newHarness(t, fastTimings(), nil)
	final := "Sunny with a light breeze off the harbor."
	h.input.OnPress = func(dom.Key) {
		h.page.Append("article", domtest.NewElement("answer").WithText(final))
	}

	ex, err := h.ctrl.Ask(context.Background())
	require.NoError(t, err)
	assert.Equal(t, final, ex.Answer)
	assert.Contains(t, h.out.String(), "[W1] "+final+"\n")
}

func TestAskNoControlWritesDiagnostics(t *testing.T) {
	dir := t.TempDir()
	diag := &Diagnostics{
		Names:     artifact.NewNames(dir, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Finalizer: artifact.NewFinalizer(nil),
	}
	timings := fastTimings()
	timings.ResolveTimeout = 100 * time.Millisecond
	h := newHarness(t, timings, diag)
	h.page.Set("textarea")
	h.page.SetContent("Sign in", "<html><body>Sign in</body></html>")

	_, err := h.ctrl.Ask(context.Background())
	assert.ErrorIs(t, err, ErrNoControl)
	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "resolve", exErr.Stage)

	html, err := os.ReadFile(filepath.Join(dir, "chat_debug_2025-06-01T12-00-00-000Z.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Sign in")
	_, err = os.Stat(filepath.Join(dir, "chat_debug_2025-06-01T12-00-00-000Z.png"))
	assert.NoError(t, err)
}

func TestAskCancelled(t *testing.T) {
	h := newHarness(t, fastTimings(), nil)
	h.input.OnPress = func(dom.Key) { h.input.SetInputValue("") }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := h.ctrl.Ask(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var exErr *ExchangeError
	assert.False(t, errors.As(err, &exErr))
}
