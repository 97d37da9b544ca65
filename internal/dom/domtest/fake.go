// Package domtest provides in-memory fakes of the dom interfaces.
package domtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"chatprobe/internal/dom"
)

// Element is a scriptable fake element.
type Element struct {
	mu     sync.Mutex
	name   string
	hidden bool
	text   string
	value  string
	attrs  map[string]string

	// TextFn, when set, supplies Text on every call.
	TextFn func() string
	// FillErr makes Fill fail.
	FillErr error
	// OnClick, OnPress and OnInput run after the matching action.
	OnClick func()
	OnPress func(dom.Key)
	OnInput func(string)

	actions []string
}

// NewElement returns a visible element.
func NewElement(name string) *Element {
	return &Element{name: name, attrs: make(map[string]string)}
}

func (e *Element) String() string { return e.name }

// WithText sets the element's text and returns it.
func (e *Element) WithText(s string) *Element {
	e.SetText(s)
	return e
}

// WithAttr sets an attribute and returns the element.
func (e *Element) WithAttr(name, value string) *Element {
	e.mu.Lock()
	e.attrs[name] = value
	e.mu.Unlock()
	return e
}

// Hide makes the element report itself invisible.
func (e *Element) Hide() *Element {
	e.mu.Lock()
	e.hidden = true
	e.mu.Unlock()
	return e
}

// SetText replaces the text content.
func (e *Element) SetText(s string) {
	e.mu.Lock()
	e.text = s
	e.mu.Unlock()
}

// SetInputValue replaces the form value without recording an action.
func (e *Element) SetInputValue(s string) {
	e.mu.Lock()
	e.value = s
	e.mu.Unlock()
}

// Actions returns the recorded actions, e.g. "fill:hello", "press:Enter".
func (e *Element) Actions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.actions...)
}

func (e *Element) record(a string) {
	e.mu.Lock()
	e.actions = append(e.actions, a)
	e.mu.Unlock()
}

func (e *Element) Visible(context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.hidden, nil
}

func (e *Element) Text(context.Context) (string, error) {
	if e.TextFn != nil {
		return e.TextFn(), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

func (e *Element) Value(ctx context.Context) (string, error) {
	e.mu.Lock()
	v := e.value
	e.mu.Unlock()
	if v != "" {
		return v, nil
	}
	return e.Text(ctx)
}

func (e *Element) Attribute(_ context.Context, name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *Element) Click(context.Context) error {
	e.record("click")
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) Fill(_ context.Context, text string) error {
	if e.FillErr != nil {
		e.record("fill-failed")
		return e.FillErr
	}
	e.record("fill:" + text)
	e.SetInputValue(text)
	if e.OnInput != nil {
		e.OnInput(text)
	}
	return nil
}

func (e *Element) Type(_ context.Context, text string) error {
	e.record("type:" + text)
	e.SetInputValue(text)
	if e.OnInput != nil {
		e.OnInput(text)
	}
	return nil
}

func (e *Element) SetValue(_ context.Context, text string) error {
	e.record("set:" + text)
	e.SetInputValue(text)
	if e.OnInput != nil {
		e.OnInput(text)
	}
	return nil
}

func (e *Element) Press(_ context.Context, key dom.Key) error {
	e.record("press:" + string(key))
	if e.OnPress != nil {
		e.OnPress(key)
	}
	return nil
}

// Root is a fake document. Selectors are matched literally; a comma
// separated list returns the union of its parts in list order.
type Root struct {
	mu        sync.Mutex
	name      string
	selectors map[string][]dom.Element
	nodes     []dom.NodeInfo
	nodeEls   []dom.Element
	queries   int
}

// NewRoot returns an empty document.
func NewRoot(name string) *Root {
	return &Root{name: name, selectors: make(map[string][]dom.Element)}
}

// Set makes selector match els, replacing earlier matches.
func (r *Root) Set(selector string, els ...dom.Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectors[selector] = els
}

// Append adds els to selector's matches.
func (r *Root) Append(selector string, els ...dom.Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectors[selector] = append(r.selectors[selector], els...)
}

// AddDeep adds an element reachable only through DeepScan.
func (r *Root) AddDeep(info dom.NodeInfo, el dom.Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, info)
	r.nodeEls = append(r.nodeEls, el)
}

// Queries is the number of Query calls made so far.
func (r *Root) Queries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queries
}

func (r *Root) Label() string { return r.name }

func (r *Root) Query(ctx context.Context, selector string) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries++

	var out []dom.Element
	seen := make(map[dom.Element]bool)
	for _, part := range strings.Split(selector, ",") {
		for _, el := range r.selectors[strings.TrimSpace(part)] {
			if !seen[el] {
				seen[el] = true
				out = append(out, el)
			}
		}
	}
	return out, nil
}

func (r *Root) DeepScan(ctx context.Context) ([]dom.NodeInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dom.NodeInfo(nil), r.nodes...), nil
}

func (r *Root) DeepElement(_ context.Context, i int) (dom.Element, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.nodeEls) {
		return nil, fmt.Errorf("deep element %d: %w", i, dom.ErrDetached)
	}
	return r.nodeEls[i], nil
}

// Page is a fake tab.
type Page struct {
	*Root

	mu     sync.Mutex
	url    string
	title  string
	html   string
	frames []dom.Root
	keys   []dom.Key
	closed bool

	// Redirect, when set, maps a navigation target to the URL the page ends up on.
	Redirect func(url string) string
	// OnKey runs after PressKey.
	OnKey func(dom.Key)
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{Root: NewRoot("page"), url: "about:blank"}
}

// AddFrame attaches a frame document.
func (p *Page) AddFrame(f dom.Root) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
}

// SetURL changes the current URL, e.g. when a login completes.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// SetContent sets the title and HTML returned for diagnostics.
func (p *Page) SetContent(title, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title, p.html = title, html
}

// Keys returns the page-level keys pressed so far.
func (p *Page) Keys() []dom.Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dom.Key(nil), p.keys...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Redirect != nil {
		url = p.Redirect(url)
	}
	p.SetURL(url)
	return nil
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Title(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *Page) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (p *Page) Frames(context.Context) ([]dom.Root, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dom.Root(nil), p.frames...), nil
}

func (p *Page) PressKey(_ context.Context, key dom.Key) error {
	p.mu.Lock()
	p.keys = append(p.keys, key)
	p.mu.Unlock()
	if p.OnKey != nil {
		p.OnKey(key)
	}
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
