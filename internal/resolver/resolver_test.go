package resolver

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatprobe/internal/dom"
	"chatprobe/internal/dom/domtest"
)

func fastResolver() *Resolver {
	return New(Options{
		AppName:              "copilot",
		StrategyTimeout:      50 * time.Millisecond,
		FrameStrategyTimeout: 50 * time.Millisecond,
		PollInterval:         20 * time.Millisecond,
	}, nil)
}

func TestResolveShadowOnlyControl(t *testing.T) {
	page := domtest.NewPage()
	page.AddDeep(dom.NodeInfo{Tag: "div"}, domtest.NewElement("wrapper"))
	input := domtest.NewElement("shadow-input")
	page.AddDeep(dom.NodeInfo{Tag: "div", ContentEditable: "true", InShadow: true}, input)

	start := time.Now()
	c, err := fastResolver().Resolve(context.Background(), page, time.Second)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, KindRawNode, c.Kind())
	assert.Same(t, input, c.Element())
}

func TestResolveLateShadowControl(t *testing.T) {
	page := domtest.NewPage()
	input := domtest.NewElement("late")

	go func() {
		time.Sleep(80 * time.Millisecond)
		page.AddDeep(dom.NodeInfo{Tag: "textarea", InShadow: true}, input)
	}()

	c, err := fastResolver().Resolve(context.Background(), page, 2*time.Second)
	require.NoError(t, err)
	assert.Same(t, input, c.Element())
}

func TestResolveAbsentControlIsBounded(t *testing.T) {
	page := domtest.NewPage()
	page.AddDeep(dom.NodeInfo{Tag: "div", AriaLabel: "Message"}, domtest.NewElement("not-it"))

	timeout := 300 * time.Millisecond
	start := time.Now()
	c, err := fastResolver().Resolve(context.Background(), page, timeout)
	elapsed := time.Since(start)

	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
	assert.Greater(t, page.Queries(), len(DefaultInputStrategies("copilot")), "should retry across rounds")
}

func TestResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fastResolver().Resolve(ctx, domtest.NewPage(), time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestResolvePrefersMainDocumentStrategies(t *testing.T) {
	page := domtest.NewPage()
	frame := domtest.NewRoot("frame[0]")
	page.AddFrame(frame)

	frameInput := domtest.NewElement("frame-textarea")
	frame.Set("textarea", frameInput)
	mainInput := domtest.NewElement("main-editable")
	page.Set(`div[contenteditable="true"]`, mainInput)

	c, err := fastResolver().Resolve(context.Background(), page, time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindQueryable, c.Kind())
	assert.Same(t, mainInput, c.Element())
}

func TestResolveFallsBackToFrames(t *testing.T) {
	page := domtest.NewPage()
	frame := domtest.NewRoot("frame[0]")
	page.AddFrame(frame)
	frameInput := domtest.NewElement("frame-textarea")
	frame.Set("textarea", frameInput)
	page.AddDeep(dom.NodeInfo{Tag: "textarea"}, domtest.NewElement("deep"))

	c, err := fastResolver().Resolve(context.Background(), page, time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindQueryable, c.Kind())
	assert.Same(t, frameInput, c.Element())
}

func TestFirstUsablePrefersVisible(t *testing.T) {
	root := domtest.NewRoot("page")
	hidden := domtest.NewElement("hidden").Hide()
	shown := domtest.NewElement("shown")
	root.Set("textarea", hidden, shown)

	el, s := FirstUsable(context.Background(), root, []Strategy{CSS("textarea")}, time.Second)
	assert.Same(t, shown, el)
	assert.Equal(t, "css textarea", s.Name())

	root.Set("textarea", hidden)
	el, _ = FirstUsable(context.Background(), root, []Strategy{CSS("textarea")}, time.Second)
	assert.Same(t, hidden, el, "a present but hidden element still counts")

	el, s = FirstUsable(context.Background(), root, []Strategy{CSS("input")}, time.Second)
	assert.Nil(t, el)
	assert.Nil(t, s)
}

func TestStrategies(t *testing.T) {
	root := domtest.NewRoot("page")
	send := domtest.NewElement("send").WithAttr("aria-label", "Send message")
	other := domtest.NewElement("other").WithText("Attach")
	root.Set("button", other, send)
	root.Set("[placeholder]", domtest.NewElement("ph").WithAttr("placeholder", "Message Copilot"))

	ctx := context.Background()

	got, err := Role{Role: "button", Named: regexp.MustCompile(`(?i)send`)}.Candidates(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []dom.Element{send}, got)

	got, err = Text{Selector: "button", Pattern: regexp.MustCompile(`Attach`)}.Candidates(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []dom.Element{other}, got)

	got, err = Attr{Selector: "[placeholder]", Attr: "placeholder", Pattern: regexp.MustCompile(`(?i)message copilot`)}.Candidates(ctx, root)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMatchesInput(t *testing.T) {
	tests := []struct {
		name string
		node dom.NodeInfo
		want bool
	}{
		{"textarea", dom.NodeInfo{Tag: "TEXTAREA"}, true},
		{"text input", dom.NodeInfo{Tag: "input", Type: "Text"}, true},
		{"password input", dom.NodeInfo{Tag: "input", Type: "password"}, false},
		{"editable", dom.NodeInfo{Tag: "div", ContentEditable: "true"}, true},
		{"not editable", dom.NodeInfo{Tag: "div", ContentEditable: "false"}, false},
		{"textbox role", dom.NodeInfo{Tag: "span", Role: "textbox"}, true},
		{"label with both tokens", dom.NodeInfo{Tag: "div", AriaLabel: "Message", DataPlaceholder: "Copilot"}, true},
		{"label missing app name", dom.NodeInfo{Tag: "div", Placeholder: "Message"}, false},
		{"plain div", dom.NodeInfo{Tag: "div"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesInput(tt.node, "copilot"))
		})
	}
}

func TestControlVariants(t *testing.T) {
	ctx := context.Background()

	t.Run("queryable fills and presses on the element", func(t *testing.T) {
		el := domtest.NewElement("input")
		c := Queryable(el)
		require.NoError(t, c.Write(ctx, "hi"))
		require.NoError(t, c.Submit(ctx))

		v, err := c.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, "hi", v)
		assert.Equal(t, []string{"click", "fill:hi", "press:Enter"}, el.Actions())
	})

	t.Run("queryable falls back to typing", func(t *testing.T) {
		el := domtest.NewElement("input")
		el.FillErr = errors.New("not fillable")
		c := Queryable(el)
		require.NoError(t, c.Write(ctx, "hi"))
		assert.Equal(t, []string{"click", "fill-failed", "type:hi"}, el.Actions())
	})

	t.Run("raw node assigns and presses on the page", func(t *testing.T) {
		page := domtest.NewPage()
		el := domtest.NewElement("shadow")
		c := RawNode(el, page)
		require.NoError(t, c.Write(ctx, "hi"))
		require.NoError(t, c.Submit(ctx))

		assert.Equal(t, []string{"click", "set:hi"}, el.Actions())
		assert.Equal(t, []dom.Key{dom.KeyEnter}, page.Keys())
		assert.Equal(t, "raw-node", c.Kind().String())
	})
}
