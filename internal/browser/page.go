package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"chatprobe/internal/dom"
)

// deepScanJS walks the document and every open shadow root, keeps the
// elements on window for DeepElement and returns a descriptor per element.
const deepScanJS = `() => {
	const out = [];
	const els = [];
	const walk = (root, inShadow) => {
		const all = root.querySelectorAll('*');
		for (const el of all) {
			els.push(el);
			out.push({
				tag: el.tagName.toLowerCase(),
				type: el.getAttribute('type') || '',
				role: el.getAttribute('role') || '',
				ariaLabel: el.getAttribute('aria-label') || '',
				placeholder: el.getAttribute('placeholder') || '',
				dataPlaceholder: el.getAttribute('data-placeholder') || '',
				contentEditable: el.getAttribute('contenteditable') || '',
				inShadow: inShadow,
			});
			if (el.shadowRoot) walk(el.shadowRoot, true);
		}
	};
	walk(document, false);
	window.__chatprobeDeep = els;
	return out;
}`

const deepElementJS = `(i) => (window.__chatprobeDeep || [])[i] || null`

const setValueJS = `(text) => {
	const tag = this.tagName;
	if (tag === 'TEXTAREA' || tag === 'INPUT') {
		this.value = text;
	} else {
		this.textContent = text;
	}
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
}`

const valueJS = `() => {
	const tag = this.tagName;
	if (tag === 'TEXTAREA' || tag === 'INPUT') return String(this.value);
	return this.innerText || this.textContent || '';
}`

// root implements dom.Root over a rod page or frame.
type root struct {
	label string
	page  *rod.Page
}

func (r *root) Label() string { return r.label }

func (r *root) Query(ctx context.Context, selector string) ([]dom.Element, error) {
	els, err := r.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el, page: r.page})
	}
	return out, nil
}

func (r *root) DeepScan(ctx context.Context) ([]dom.NodeInfo, error) {
	res, err := r.page.Context(ctx).Eval(deepScanJS)
	if err != nil {
		return nil, fmt.Errorf("deep scan %s: %w", r.label, err)
	}
	var nodes []dom.NodeInfo
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &nodes); err != nil {
		return nil, fmt.Errorf("decode deep scan: %w", err)
	}
	return nodes, nil
}

func (r *root) DeepElement(ctx context.Context, i int) (dom.Element, error) {
	el, err := r.page.Context(ctx).Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(deepElementJS, i))
	if err != nil {
		var notFound *rod.ElementNotFoundError
		var expect *rod.ExpectElementError
		if errors.As(err, &notFound) || errors.As(err, &expect) {
			return nil, fmt.Errorf("deep element %d: %w", i, dom.ErrDetached)
		}
		return nil, err
	}
	return &element{el: el, page: r.page}, nil
}

// Page implements dom.Page over a rod page.
type Page struct {
	root
	cancel func()
}

func newPage(p *rod.Page, cancel func()) *Page {
	return &Page{root: root{label: "page", page: p}, cancel: cancel}
}

// Rod returns the underlying rod page.
func (p *Page) Rod() *rod.Page { return p.page }

func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(true, nil)
}

func (p *Page) Frames(ctx context.Context) ([]dom.Root, error) {
	iframes, err := p.page.Context(ctx).Elements("iframe, frame")
	if err != nil {
		return nil, err
	}
	var out []dom.Root
	for i, f := range iframes {
		fp, err := f.Context(ctx).Frame()
		if err != nil {
			continue
		}
		out = append(out, &root{label: fmt.Sprintf("frame[%d]", i), page: fp})
	}
	return out, nil
}

func (p *Page) PressKey(ctx context.Context, key dom.Key) error {
	k, err := rodKey(key)
	if err != nil {
		return err
	}
	return p.page.Context(ctx).Keyboard.Press(k)
}

// Close stops the page's event stream and closes the tab.
func (p *Page) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return p.page.Close()
}

// element implements dom.Element.
type element struct {
	el   *rod.Element
	page *rod.Page
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *element) Value(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(valueJS)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) Fill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	_ = el.SelectAllText()
	return el.Input(text)
}

func (e *element) Type(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.Focus(); err != nil {
		return err
	}
	pg := e.page.Context(ctx)
	for _, r := range text {
		err := proto.InputDispatchKeyEvent{
			Type: proto.InputDispatchKeyEventTypeChar,
			Text: string(r),
		}.Call(pg)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *element) SetValue(ctx context.Context, text string) error {
	_, err := e.el.Context(ctx).Eval(setValueJS, text)
	return err
}

func (e *element) Press(ctx context.Context, key dom.Key) error {
	k, err := rodKey(key)
	if err != nil {
		return err
	}
	return e.el.Context(ctx).Type(k)
}

func rodKey(k dom.Key) (input.Key, error) {
	switch k {
	case dom.KeyEnter:
		return input.Enter, nil
	}
	return 0, fmt.Errorf("unsupported key %q", k)
}
