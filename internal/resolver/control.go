package resolver

import (
	"context"
	"fmt"

	"chatprobe/internal/dom"
)

// Kind says how a Control was found and therefore how it is driven.
type Kind int

const (
	// KindQueryable is an element found by a selector strategy; it supports
	// native fill and element-level key presses.
	KindQueryable Kind = iota + 1
	// KindRawNode is an element found by the deep walk; its content is
	// assigned directly and Enter goes to the page.
	KindRawNode
)

func (k Kind) String() string {
	switch k {
	case KindQueryable:
		return "queryable"
	case KindRawNode:
		return "raw-node"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Control is a resolved chat input. The only implementations are the two
// kinds above.
type Control interface {
	Kind() Kind
	Element() dom.Element
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, text string) error
	Submit(ctx context.Context) error

	sealed()
}

// Queryable wraps an element found by a selector strategy.
func Queryable(el dom.Element) Control { return queryableControl{el: el} }

// RawNode wraps an element found by the deep walk on page.
func RawNode(el dom.Element, page dom.Page) Control { return rawNodeControl{el: el, page: page} }

type queryableControl struct {
	el dom.Element
}

func (queryableControl) Kind() Kind             { return KindQueryable }
func (c queryableControl) Element() dom.Element { return c.el }
func (queryableControl) sealed()                {}

func (c queryableControl) Read(ctx context.Context) (string, error) {
	return c.el.Value(ctx)
}

// Write focuses the element and fills it, falling back to keystrokes for
// editors that reject a programmatic fill.
func (c queryableControl) Write(ctx context.Context, text string) error {
	_ = c.el.Click(ctx)
	fillErr := c.el.Fill(ctx, text)
	if fillErr == nil {
		return nil
	}
	if err := c.el.Type(ctx, text); err != nil {
		return fmt.Errorf("fill failed (%v), typing failed: %w", fillErr, err)
	}
	return nil
}

func (c queryableControl) Submit(ctx context.Context) error {
	return c.el.Press(ctx, dom.KeyEnter)
}

type rawNodeControl struct {
	el   dom.Element
	page dom.Page
}

func (rawNodeControl) Kind() Kind             { return KindRawNode }
func (c rawNodeControl) Element() dom.Element { return c.el }
func (rawNodeControl) sealed()                {}

func (c rawNodeControl) Read(ctx context.Context) (string, error) {
	return c.el.Value(ctx)
}

func (c rawNodeControl) Write(ctx context.Context, text string) error {
	_ = c.el.Click(ctx)
	return c.el.SetValue(ctx, text)
}

func (c rawNodeControl) Submit(ctx context.Context) error {
	return c.page.PressKey(ctx, dom.KeyEnter)
}
