// Package dom is the page capability the rest of chatprobe drives: DOM
// queries, element actions, frames and a shadow-piercing scan. The browser
// package implements it over go-rod; tests use the fakes in domtest.
package dom

import (
	"context"
	"errors"
)

// Key is a keyboard key name.
type Key string

const KeyEnter Key = "Enter"

// ErrDetached is returned when an element is no longer in the document.
var ErrDetached = errors.New("dom: element detached")

// Element is one DOM element.
type Element interface {
	Visible(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	// Value returns the form value, or the text content for non-form elements.
	Value(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Click(ctx context.Context) error
	// Fill replaces the element's content the way a user edit would.
	Fill(ctx context.Context, text string) error
	// Type sends text as individual keystrokes.
	Type(ctx context.Context, text string) error
	// SetValue assigns value/textContent directly and dispatches input and
	// change events.
	SetValue(ctx context.Context, text string) error
	Press(ctx context.Context, key Key) error
}

// NodeInfo describes an element found by DeepScan.
type NodeInfo struct {
	Tag             string `json:"tag"`
	Type            string `json:"type"`
	Role            string `json:"role"`
	AriaLabel       string `json:"ariaLabel"`
	Placeholder     string `json:"placeholder"`
	DataPlaceholder string `json:"dataPlaceholder"`
	ContentEditable string `json:"contentEditable"`
	InShadow        bool   `json:"inShadow"`
}

// Root is a document: the page itself or one of its frames.
type Root interface {
	// Label names the root in logs ("page", "frame[2]").
	Label() string
	// Query returns the elements matching a CSS selector, in document order.
	// Shadow trees are not pierced.
	Query(ctx context.Context, selector string) ([]Element, error)
	// DeepScan walks the whole tree including open shadow roots and returns
	// a descriptor per element. Indexes stay valid until the next DeepScan.
	DeepScan(ctx context.Context) ([]NodeInfo, error)
	// DeepElement returns the element at index i of the last DeepScan.
	DeepElement(ctx context.Context, i int) (Element, error)
}

// Page is a browser tab.
type Page interface {
	Root
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// Frames returns the embedded frames' documents.
	Frames(ctx context.Context) ([]Root, error)
	// PressKey sends a key to whatever has focus.
	PressKey(ctx context.Context, key Key) error
	Close() error
}

// First returns the first element matching selector, or nil.
func First(ctx context.Context, r Root, selector string) (Element, error) {
	els, err := r.Query(ctx, selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// Count returns how many elements match selector. Query errors count as zero.
func Count(ctx context.Context, r Root, selector string) int {
	els, err := r.Query(ctx, selector)
	if err != nil {
		return 0
	}
	return len(els)
}
