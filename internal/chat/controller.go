// Package chat drives one question/answer exchange against a chat page:
// find the input, send the question, follow the streamed reply and decide
// when it is complete.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatprobe/internal/config"
	"chatprobe/internal/dom"
	"chatprobe/internal/logging"
	"chatprobe/internal/resolver"
)

var (
	ErrNoControl        = errors.New("chat input not found")
	ErrNotSubmitted     = errors.New("question could not be submitted")
	ErrConnectionClosed = errors.New("connection closed")
	ErrUIError          = errors.New("something went wrong / try again (detected in UI)")
	ErrResponseTimeout  = errors.New("timed out waiting for a response")
)

// ExchangeError is an exchange-fatal failure at a named stage.
type ExchangeError struct {
	Stage string
	Err   error
}

func (e *ExchangeError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *ExchangeError) Unwrap() error { return e.Err }

// MessageSelectors match message-like nodes in the transcript.
var MessageSelectors = []string{
	"article",
	`[data-testid*="message" i]`,
	`[class*="message" i]`,
	`[role="article"]`,
}

// TranscriptSelectors locate the transcript container, most specific first.
var TranscriptSelectors = []string{"main", `[role="main"]`, "body"}

var (
	connectionPhrases = []string{"connection closed", "disconnected"}
	uiErrorPhrases    = []string{"something went wrong", "try again"}
)

// Exchange is the record of one question and its answer.
type Exchange struct {
	Question string
	Started  time.Time
	Finished time.Time
	// Answer is the settled text; empty when the exchange failed.
	Answer string
	// Streamed is everything written to the stream while waiting.
	Streamed string
}

// Duration is how long the exchange took.
func (e *Exchange) Duration() time.Duration {
	if e.Finished.IsZero() {
		return 0
	}
	return e.Finished.Sub(e.Started)
}

// Options configure a Controller.
type Options struct {
	Question        string
	Timings         config.ChatTimings
	MinAnswerLength int
	// Diagnostics, when non-nil, dumps page state after a failed resolution.
	Diagnostics *Diagnostics
}

// Controller performs exchanges on one page.
type Controller struct {
	page     dom.Page
	resolver *resolver.Resolver
	stream   *logging.StreamWriter
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

// NewController returns a Controller for page.
func NewController(page dom.Page, res *resolver.Resolver, stream *logging.StreamWriter, opts Options, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MinAnswerLength <= 0 {
		opts.MinAnswerLength = 20
	}
	return &Controller{
		page:     page,
		resolver: res,
		stream:   stream,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// Ask sends the question once and waits for the answer. The returned
// Exchange is never nil; on failure the error is an *ExchangeError or ctx's
// error.
func (c *Controller) Ask(ctx context.Context) (*Exchange, error) {
	ex := &Exchange{Question: c.opts.Question, Started: c.now()}
	err := c.ask(ctx, ex)
	ex.Finished = c.now()
	return ex, err
}

func (c *Controller) ask(ctx context.Context, ex *Exchange) error {
	t := c.opts.Timings

	control, err := c.resolver.Resolve(ctx, c.page, t.ResolveTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.opts.Diagnostics != nil {
			c.opts.Diagnostics.Dump(ctx, c.page)
		}
		return &ExchangeError{Stage: "resolve", Err: fmt.Errorf("%w: %v", ErrNoControl, err)}
	}

	baseline := c.counts(ctx)

	c.stream.Line(fmt.Sprintf("Sending question: %q", ex.Question))
	if err := control.Write(ctx, ex.Question); err != nil {
		return &ExchangeError{Stage: "write", Err: err}
	}

	if err := c.submit(ctx, control, baseline); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ExchangeError{Stage: "submit", Err: err}
	}

	if !c.waitCleared(ctx, control, t.InputClearTimeout) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("input did not clear after submit", zap.Duration("waited", t.InputClearTimeout))
	}

	answer, err := c.await(ctx, ex, baseline)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ExchangeError{Stage: "response", Err: err}
	}
	ex.Answer = answer
	c.stream.EndLine()
	return nil
}

// submit presses Enter and falls back to a send button when nothing shows
// that the question went out.
func (c *Controller) submit(ctx context.Context, control resolver.Control, baseline map[string]int) error {
	t := c.opts.Timings

	enterErr := control.Submit(ctx)
	if enterErr == nil && c.confirmed(ctx, control, baseline, t.SubmitConfirm) {
		return nil
	}
	if enterErr != nil {
		c.log.Debug("enter failed", zap.Error(enterErr))
	}

	btn, s := resolver.FirstUsable(ctx, c.page, resolver.SendStrategies(), t.SendButtonTimeout)
	if btn == nil {
		if enterErr != nil {
			return fmt.Errorf("%w: enter failed (%v) and no send button", ErrNotSubmitted, enterErr)
		}
		c.log.Debug("submit unconfirmed and no send button; continuing")
		return nil
	}
	c.log.Debug("clicking send button", zap.String("strategy", s.Name()))
	if err := btn.Click(ctx); err != nil {
		if enterErr != nil {
			return fmt.Errorf("%w: %v", ErrNotSubmitted, err)
		}
		c.log.Debug("send button click failed", zap.Error(err))
	}
	return nil
}

// confirmed polls until the input is empty or a new message node appears.
func (c *Controller) confirmed(ctx context.Context, control resolver.Control, baseline map[string]int, window time.Duration) bool {
	deadline := c.now().Add(window)
	for {
		if v, err := control.Read(ctx); err == nil && strings.TrimSpace(v) == "" {
			return true
		}
		if c.newest(ctx, baseline) != nil {
			return true
		}
		if !c.now().Before(deadline) || sleep(ctx, c.opts.Timings.InputClearPoll) != nil {
			return false
		}
	}
}

func (c *Controller) waitCleared(ctx context.Context, control resolver.Control, timeout time.Duration) bool {
	deadline := c.now().Add(timeout)
	for {
		if v, err := control.Read(ctx); err == nil && strings.TrimSpace(v) == "" {
			return true
		}
		if !c.now().Before(deadline) || sleep(ctx, c.opts.Timings.InputClearPoll) != nil {
			return false
		}
	}
}

func (c *Controller) await(ctx context.Context, ex *Exchange, baseline map[string]int) (string, error) {
	t := c.opts.Timings
	deadline := c.now().Add(t.ResponseTimeout)
	var tracker DeltaTracker
	settler := &Settler{Question: ex.Question, MinLength: c.opts.MinAnswerLength, Window: t.StabilityWindow}

	for {
		if err := c.checkTranscript(ctx); err != nil {
			return "", err
		}

		if node := c.newest(ctx, baseline); node != nil {
			text, err := node.Text(ctx)
			if err == nil {
				if d := tracker.Next(text); d != "" {
					c.stream.WriteDelta(d)
					ex.Streamed += d
				}
				if answer, ok := settler.Observe(text, c.stopVisible(ctx), c.now()); ok {
					return answer, nil
				}
			}
		}

		if !c.now().Before(deadline) {
			return "", ErrResponseTimeout
		}
		if err := sleep(ctx, t.ResponsePoll); err != nil {
			return "", err
		}
	}
}

func (c *Controller) checkTranscript(ctx context.Context) error {
	root := c.transcript(ctx)
	if root == nil {
		return nil
	}
	text, err := root.Text(ctx)
	if err != nil {
		return nil
	}
	lower := strings.ToLower(text)
	for _, p := range connectionPhrases {
		if strings.Contains(lower, p) {
			return ErrConnectionClosed
		}
	}
	for _, p := range uiErrorPhrases {
		if strings.Contains(lower, p) {
			return ErrUIError
		}
	}
	return nil
}

func (c *Controller) transcript(ctx context.Context) dom.Element {
	for _, sel := range TranscriptSelectors {
		if el, err := dom.First(ctx, c.page, sel); err == nil && el != nil {
			return el
		}
	}
	return nil
}

func (c *Controller) counts(ctx context.Context) map[string]int {
	out := make(map[string]int, len(MessageSelectors))
	for _, sel := range MessageSelectors {
		out[sel] = dom.Count(ctx, c.page, sel)
	}
	return out
}

// newest returns the last node of the first selector that has grown past
// its baseline, or nil.
func (c *Controller) newest(ctx context.Context, baseline map[string]int) dom.Element {
	for _, sel := range MessageSelectors {
		els, err := c.page.Query(ctx, sel)
		if err != nil {
			continue
		}
		if len(els) > baseline[sel] {
			return els[len(els)-1]
		}
	}
	return nil
}

// stopVisible reports whether a stop-generating control is showing.
func (c *Controller) stopVisible(ctx context.Context) bool {
	sctx, cancel := context.WithTimeout(ctx, c.opts.Timings.StopCheckTimeout)
	defer cancel()
	for _, s := range resolver.StopStrategies() {
		els, err := s.Candidates(sctx, c.page)
		if err != nil {
			continue
		}
		for _, el := range els {
			if ok, err := el.Visible(sctx); err == nil && ok {
				return true
			}
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
