package chat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"chatprobe/internal/artifact"
	"chatprobe/internal/dom"
)

// diagnosticSelectors are counted per document when the input cannot be found.
var diagnosticSelectors = []string{
	"textarea",
	`div[contenteditable="true"]`,
	`div[role="textbox"]`,
	`input[type="text"]`,
	`[role="textbox"]`,
}

const snippetLen = 400

// Diagnostics records what a page looked like when no chat input could be
// found.
type Diagnostics struct {
	Names     artifact.Names
	Finalizer *artifact.Finalizer
	Log       *zap.Logger
}

// Dump logs selector counts and page metadata, then saves a screenshot and
// the page HTML. Every step is best effort.
func (d *Diagnostics) Dump(ctx context.Context, page dom.Page) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	roots := []dom.Root{page}
	frames, err := page.Frames(ctx)
	if err == nil {
		roots = append(roots, frames...)
	}
	for _, r := range roots {
		fields := []zap.Field{zap.String("root", r.Label())}
		for _, sel := range diagnosticSelectors {
			fields = append(fields, zap.Int(sel, dom.Count(ctx, r, sel)))
		}
		log.Info("input candidates", fields...)
	}

	url, _ := page.URL(ctx)
	title, _ := page.Title(ctx)
	log.Info("page state",
		zap.String("url", url),
		zap.String("title", title),
		zap.Int("frames", len(frames)),
		zap.String("body", d.bodySnippet(ctx, page)),
	)

	if d.Finalizer == nil {
		return
	}
	prefix := d.Names.Prefix("debug")
	if png, err := page.Screenshot(ctx); err != nil {
		log.Warn("screenshot failed", zap.Error(err))
	} else if path, err := d.Finalizer.WriteFile(prefix, ".png", png); err != nil {
		log.Warn("saving screenshot failed", zap.Error(err))
	} else {
		log.Info("saved screenshot", zap.String("path", path))
	}
	if html, err := page.HTML(ctx); err != nil {
		log.Warn("reading html failed", zap.Error(err))
	} else if path, err := d.Finalizer.WriteFile(prefix, ".html", []byte(html)); err != nil {
		log.Warn("saving html failed", zap.Error(err))
	} else {
		log.Info("saved html", zap.String("path", path))
	}
}

func (d *Diagnostics) bodySnippet(ctx context.Context, page dom.Page) string {
	body, err := dom.First(ctx, page, "body")
	if err != nil || body == nil {
		return ""
	}
	text, err := body.Text(ctx)
	if err != nil {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > snippetLen {
		text = string(r[:snippetLen])
	}
	return text
}
