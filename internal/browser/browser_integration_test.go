//go:build integration

package browser_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatprobe/internal/browser"
	"chatprobe/internal/capture"
	"chatprobe/internal/chat"
	"chatprobe/internal/config"
	"chatprobe/internal/logging"
	"chatprobe/internal/resolver"
)

const chatPage = `<html>
<body>
<main>
	<textarea placeholder="Message Copilot"></textarea>
</main>
<script>
	const ws = new WebSocket(location.href.replace('http', 'ws') + 'ws');
	const box = document.querySelector('textarea');
	const main = document.querySelector('main');
	let answer = null;
	ws.onmessage = (ev) => {
		const msg = JSON.parse(ev.data);
		if (!answer) {
			answer = document.createElement('article');
			main.appendChild(answer);
		}
		answer.textContent = msg.text;
	};
	box.addEventListener('keydown', (ev) => {
		if (ev.key !== 'Enter') return;
		ev.preventDefault();
		ws.send(JSON.stringify({ question: box.value }));
		box.value = '';
	});
</script>
</body>
</html>`

var upgrader = websocket.Upgrader{}

// chatServer serves a one-page chat that streams its answer over a WebSocket.
func chatServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, chatPage)
	})
	mux.HandleFunc("/chat/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			words := bytes.Fields([]byte(answer))
			var sofar []byte
			for i, w := range words {
				if i > 0 {
					sofar = append(sofar, ' ')
				}
				sofar = append(sofar, w...)
				msg, _ := json.Marshal(map[string]string{"text": string(sofar)})
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
				time.Sleep(20 * time.Millisecond)
			}
		}
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestSessionManagerChatRoundTrip_Integration(t *testing.T) {
	answer := "Boston is clear and sunny this afternoon with a high of 70."
	ts := chatServer(t, answer)
	dir := t.TempDir()

	cfg := config.DefaultBrowserConfig()
	cfg.Headless = true
	cfg.ProfileDir = filepath.Join(dir, "profile")

	recorder := capture.NewRecorder()
	archive := capture.NewNetworkArchive()
	harPath := filepath.Join(dir, "network.har")
	sm := browser.NewSessionManager(cfg, nil).WithCapture(capture.Sinks{
		Recorder: recorder,
		Archive:  archive,
	}, harPath)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require.NoError(t, sm.Start(ctx), "Failed to start browser")
	defer func() {
		if err := sm.Shutdown(context.Background()); err != nil {
			t.Logf("Shutdown error: %v", err)
		}
	}()

	page, err := sm.OpenPage(ctx, "W1")
	require.NoError(t, err)
	require.Len(t, sm.List(), 1)

	loginFound, err := browser.EnsureReady(ctx, page, browser.ReadyOptions{
		Target:      ts.URL + "/chat/",
		Headless:    true,
		NavTimeout:  10 * time.Second,
		SettleDelay: 200 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.False(t, loginFound)

	timings := config.DefaultChatConfig().Timings()
	timings.StabilityWindow = 500 * time.Millisecond
	var out bytes.Buffer
	ctrl := chat.NewController(page,
		resolver.New(resolver.Options{AppName: "copilot"}, nil),
		logging.NewStreamWriter(logging.NewConsole(&out, nil), "W1"),
		chat.Options{Question: "weather in boston", Timings: timings, MinAnswerLength: 20},
		nil,
	)
	ex, err := ctrl.Ask(ctx)
	require.NoError(t, err, "console: %s", out.String())
	assert.Equal(t, answer, ex.Answer)

	require.NoError(t, sm.Shutdown(ctx))

	doc := recorder.Finalize()
	require.Len(t, doc.Log.Entries, 1)
	entry := doc.Log.Entries[0]
	assert.Contains(t, entry.Request.URL, "/chat/ws")
	assert.NotEmpty(t, entry.WebSocketMessages)

	_, err = os.Stat(harPath)
	assert.NoError(t, err, "network archive written on shutdown")
	assert.Positive(t, archive.Len())
}
