package resolver

import (
	"context"
	"regexp"
	"strings"
	"time"

	"chatprobe/internal/dom"
)

// Strategy is one way of finding an element. Strategies are independent and
// tried in order; each returns its candidates in document order.
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, root dom.Root) ([]dom.Element, error)
}

// CSS matches a selector.
type CSS string

func (s CSS) Name() string { return "css " + string(s) }

func (s CSS) Candidates(ctx context.Context, root dom.Root) ([]dom.Element, error) {
	return root.Query(ctx, string(s))
}

// Attr matches elements of Selector whose attribute Attr matches Pattern.
type Attr struct {
	Selector string
	Attr     string
	Pattern  *regexp.Regexp
}

func (s Attr) Name() string { return "attr " + s.Attr + "~" + s.Pattern.String() }

func (s Attr) Candidates(ctx context.Context, root dom.Root) ([]dom.Element, error) {
	els, err := root.Query(ctx, s.Selector)
	if err != nil {
		return nil, err
	}
	return filter(ctx, els, func(el dom.Element) bool {
		v, ok, err := el.Attribute(ctx, s.Attr)
		return err == nil && ok && s.Pattern.MatchString(v)
	}), nil
}

// Text matches elements of Selector whose text matches Pattern.
type Text struct {
	Selector string
	Pattern  *regexp.Regexp
}

func (s Text) Name() string { return "text " + s.Selector + "~" + s.Pattern.String() }

func (s Text) Candidates(ctx context.Context, root dom.Root) ([]dom.Element, error) {
	els, err := root.Query(ctx, s.Selector)
	if err != nil {
		return nil, err
	}
	return filter(ctx, els, func(el dom.Element) bool {
		t, err := el.Text(ctx)
		return err == nil && s.Pattern.MatchString(t)
	}), nil
}

// implicitRoles maps an ARIA role to the elements that carry it explicitly
// or implicitly.
var implicitRoles = map[string]string{
	"textbox": `[role="textbox"], textarea, input:not([type]), input[type="text"], input[type="search"]`,
	"button":  `[role="button"], button, input[type="button"], input[type="submit"]`,
}

// Role matches elements with an ARIA role whose accessible name matches
// Named. A nil Named matches any element of the role.
type Role struct {
	Role  string
	Named *regexp.Regexp
}

func (s Role) Name() string {
	if s.Named == nil {
		return "role " + s.Role
	}
	return "role " + s.Role + " name~" + s.Named.String()
}

func (s Role) Candidates(ctx context.Context, root dom.Root) ([]dom.Element, error) {
	selector, ok := implicitRoles[s.Role]
	if !ok {
		selector = `[role="` + s.Role + `"]`
	}
	els, err := root.Query(ctx, selector)
	if err != nil || s.Named == nil {
		return els, err
	}
	return filter(ctx, els, func(el dom.Element) bool {
		return s.Named.MatchString(accessibleName(ctx, el))
	}), nil
}

// accessibleName approximates the accessible name: aria-label, then
// visible text, then title and placeholder.
func accessibleName(ctx context.Context, el dom.Element) string {
	if v, ok, err := el.Attribute(ctx, "aria-label"); err == nil && ok && strings.TrimSpace(v) != "" {
		return v
	}
	if t, err := el.Text(ctx); err == nil && strings.TrimSpace(t) != "" {
		return t
	}
	for _, attr := range []string{"title", "placeholder"} {
		if v, ok, err := el.Attribute(ctx, attr); err == nil && ok && v != "" {
			return v
		}
	}
	return ""
}

func filter(ctx context.Context, els []dom.Element, keep func(dom.Element) bool) []dom.Element {
	var out []dom.Element
	for _, el := range els {
		if ctx.Err() != nil {
			break
		}
		if keep(el) {
			out = append(out, el)
		}
	}
	return out
}

// FirstUsable tries strategies in order against root, each bounded by
// perStrategy. The first strategy with any candidate wins: its first
// visible candidate, or else its first candidate. It returns nil when no
// strategy matches.
func FirstUsable(ctx context.Context, root dom.Root, strategies []Strategy, perStrategy time.Duration) (dom.Element, Strategy) {
	for _, s := range strategies {
		if ctx.Err() != nil {
			return nil, nil
		}
		sctx, cancel := context.WithTimeout(ctx, perStrategy)
		el := pick(sctx, s, root)
		cancel()
		if el != nil {
			return el, s
		}
	}
	return nil, nil
}

func pick(ctx context.Context, s Strategy, root dom.Root) dom.Element {
	els, err := s.Candidates(ctx, root)
	if err != nil || len(els) == 0 {
		return nil
	}
	for _, el := range els {
		if ctx.Err() != nil {
			break
		}
		if ok, err := el.Visible(ctx); err == nil && ok {
			return el
		}
	}
	return els[0]
}

// DefaultInputStrategies are the chat input heuristics, most specific first.
// appName is the product name expected in the input's placeholder.
func DefaultInputStrategies(appName string) []Strategy {
	strategies := []Strategy{
		CSS("textarea"),
		CSS("textarea[placeholder]"),
	}
	if appName != "" {
		quoted := regexp.QuoteMeta(appName)
		strategies = append(strategies,
			CSS(`[placeholder="Message `+titleCase(appName)+`"]`),
			Attr{Selector: "[placeholder]", Attr: "placeholder", Pattern: regexp.MustCompile(`(?i)message ` + quoted)},
		)
	}
	return append(strategies,
		CSS(`div[contenteditable="true"]`),
		CSS(`[contenteditable="true"][aria-label]`),
		CSS(`[aria-label*="Message" i]`),
		CSS(`[data-placeholder*="Message" i]`),
		Role{Role: "textbox"},
		CSS(`div[role="textbox"]`),
		CSS(`input[type="text"]`),
	)
}

// SendStrategies find a send button.
func SendStrategies() []Strategy {
	return []Strategy{
		Role{Role: "button", Named: regexp.MustCompile(`(?i)send`)},
		Text{Selector: "button", Pattern: regexp.MustCompile(`Send`)},
		CSS(`[aria-label*="Send" i]`),
	}
}

// StopStrategies find the control that cancels a running generation; its
// presence means the answer is still streaming.
func StopStrategies() []Strategy {
	return []Strategy{
		Role{Role: "button", Named: regexp.MustCompile(`(?i)stop`)},
		CSS(`[aria-label*="stop" i]`),
		CSS(`[data-testid*="stop" i]`),
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
