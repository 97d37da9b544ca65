// Package resolver finds the chat input on a page whose markup is not under
// our control.
//
// Resolution is layered: an ordered list of selector strategies is tried on
// the main document, then on each frame, and finally a deep walk that
// crosses shadow roots is matched by tag, role, editability and label
// keywords. The whole sequence is retried until a timeout.
package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatprobe/internal/dom"
)

// ErrNoMatch is returned when no input was found before the timeout.
var ErrNoMatch = errors.New("resolver: no chat input found")

// Options configure a Resolver.
type Options struct {
	Strategies           []Strategy
	StrategyTimeout      time.Duration // per strategy, main document
	FrameStrategyTimeout time.Duration // per strategy, frames
	PollInterval         time.Duration // between resolution rounds
	AppName              string        // label token required by the keyword match
}

// Resolver locates chat inputs.
type Resolver struct {
	opts Options
	log  *zap.Logger
}

// New returns a Resolver. Missing options get defaults.
func New(opts Options, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Strategies == nil {
		opts.Strategies = DefaultInputStrategies(opts.AppName)
	}
	if opts.StrategyTimeout <= 0 {
		opts.StrategyTimeout = 1500 * time.Millisecond
	}
	if opts.FrameStrategyTimeout <= 0 {
		opts.FrameStrategyTimeout = time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Resolver{opts: opts, log: log}
}

// Resolve looks for the chat input until timeout elapses. It returns
// ErrNoMatch on timeout, or ctx's error if ctx ends first.
func (r *Resolver) Resolve(ctx context.Context, page dom.Page, timeout time.Duration) (Control, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for round := 1; ; round++ {
		if c := r.attempt(rctx, page); c != nil {
			r.log.Debug("chat input resolved", zap.Stringer("kind", c.Kind()), zap.Int("round", round))
			return c, nil
		}

		select {
		case <-rctx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r.log.Debug("chat input not found", zap.Int("rounds", round), zap.Duration("timeout", timeout))
			return nil, ErrNoMatch
		case <-time.After(r.opts.PollInterval):
		}
	}
}

func (r *Resolver) attempt(ctx context.Context, page dom.Page) Control {
	if el, s := FirstUsable(ctx, page, r.opts.Strategies, r.opts.StrategyTimeout); el != nil {
		r.log.Debug("matched strategy", zap.String("root", page.Label()), zap.String("strategy", s.Name()))
		return Queryable(el)
	}

	frames, err := page.Frames(ctx)
	if err != nil {
		r.log.Debug("listing frames failed", zap.Error(err))
	}
	for _, f := range frames {
		if el, s := FirstUsable(ctx, f, r.opts.Strategies, r.opts.FrameStrategyTimeout); el != nil {
			r.log.Debug("matched strategy", zap.String("root", f.Label()), zap.String("strategy", s.Name()))
			return Queryable(el)
		}
	}

	roots := append([]dom.Root{page}, frames...)
	for _, root := range roots {
		if ctx.Err() != nil {
			return nil
		}
		if el := r.deepFind(ctx, root); el != nil {
			r.log.Debug("matched deep walk", zap.String("root", root.Label()))
			return RawNode(el, page)
		}
	}
	return nil
}

func (r *Resolver) deepFind(ctx context.Context, root dom.Root) dom.Element {
	nodes, err := root.DeepScan(ctx)
	if err != nil {
		return nil
	}
	for i, n := range nodes {
		if !MatchesInput(n, r.opts.AppName) {
			continue
		}
		el, err := root.DeepElement(ctx, i)
		if err == nil && el != nil {
			return el
		}
	}
	return nil
}

// MatchesInput reports whether a scanned node looks like a chat input:
// a textarea, a text input, an editable element, a textbox role, or a label
// mentioning both "message" and the application name.
func MatchesInput(n dom.NodeInfo, appName string) bool {
	tag := strings.ToLower(n.Tag)
	switch {
	case tag == "textarea":
		return true
	case tag == "input" && strings.EqualFold(n.Type, "text"):
		return true
	case strings.EqualFold(n.ContentEditable, "true"):
		return true
	case strings.EqualFold(n.Role, "textbox"):
		return true
	}

	if appName == "" {
		return false
	}
	label := strings.ToLower(n.AriaLabel + " " + n.Placeholder + " " + n.DataPlaceholder)
	return strings.Contains(label, "message") && strings.Contains(label, strings.ToLower(appName))
}
