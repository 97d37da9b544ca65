package capture

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Observer is notified of capture activity. The metrics package implements it.
type Observer interface {
	ConnectionOpened()
	FrameRecorded(dir Direction, enc Encoding)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened() {}
func (nopObserver) FrameRecorded(Direction, Encoding) {}

// Sinks are the shared destinations every page's Tap writes to.
type Sinks struct {
	Recorder *Recorder
	Archive  *NetworkArchive
	WSLog    *WSLog
	Observer Observer
	Logger   *zap.Logger
}

// Tap turns one page's network events into capture records. A page delivers
// its events in order on a single goroutine, so a Tap is not safe for
// concurrent use and each page gets its own.
type Tap struct {
	worker  string
	sinks   Sinks
	sockets map[string]string
}

// NewTap returns the tap for the page owned by worker (e.g. "W1").
func NewTap(worker string, sinks Sinks) *Tap {
	if sinks.Observer == nil {
		sinks.Observer = nopObserver{}
	}
	if sinks.Logger == nil {
		sinks.Logger = zap.NewNop()
	}
	return &Tap{worker: worker, sinks: sinks, sockets: make(map[string]string)}
}

// OnRequest handles any request. Upgrade requests are also recorded as
// pending WebSocket exchanges.
func (t *Tap) OnRequest(ev RequestEvent) {
	if t.sinks.Archive != nil {
		t.sinks.Archive.Request(ev)
	}
	if !IsUpgradeRequest(ev.ResourceType, ev.Headers) {
		return
	}
	t.sinks.Recorder.RecordRequest(ev.URL, ev.Headers, ev.Time)
	t.logEvent("WS REQ", ev.URL)
	t.logHeaders("WS REQ HEADERS", ev.Headers)
}

// OnResponse handles any response. Upgrade responses are matched to the
// pending exchange for their URL.
func (t *Tap) OnResponse(ev ResponseEvent) {
	if t.sinks.Archive != nil {
		t.sinks.Archive.Response(ev)
	}
	if !IsUpgradeResponse(ev.ResourceType, ev.Headers) {
		return
	}
	t.sinks.Recorder.RecordResponse(ev.URL, ev.Status, ev.StatusText, ev.Headers, ev.Time)
	t.logEvent("WS RESP", fmt.Sprintf("%s status=%d", ev.URL, ev.Status))
	t.logHeaders("WS RESP HEADERS", ev.Headers)
}

// OnSocketCreated opens a connection for socketID.
func (t *Tap) OnSocketCreated(socketID, url string, at time.Time) {
	t.sockets[socketID] = url
	t.sinks.Recorder.Open(socketID, url, at)
	t.sinks.Observer.ConnectionOpened()
	t.sinks.Logger.Debug("websocket opened", zap.String("worker", t.worker), zap.String("url", url))
	t.logEvent("WS OPEN", url)
}

// OnHandshakeRequest records the upgrade request of a known socket. The
// browser reports these without a URL, so it is taken from the socket.
func (t *Tap) OnHandshakeRequest(socketID string, headers Headers, at time.Time) {
	t.OnRequest(RequestEvent{
		ID:           t.worker + "/" + socketID,
		URL:          t.sockets[socketID],
		Method:       "GET",
		ResourceType: "WebSocket",
		Headers:      headers,
		Time:         at,
	})
}

// OnHandshakeResponse records the upgrade response of a known socket.
func (t *Tap) OnHandshakeResponse(socketID string, status int, statusText string, headers Headers, at time.Time) {
	t.OnResponse(ResponseEvent{
		ID:           t.worker + "/" + socketID,
		URL:          t.sockets[socketID],
		ResourceType: "WebSocket",
		Status:       status,
		StatusText:   statusText,
		Headers:      headers,
		Time:         at,
	})
}

// OnFrame classifies and records a frame.
func (t *Tap) OnFrame(socketID string, dir Direction, data []byte, binary bool, at time.Time) {
	p := ClassifyPayload(data, binary)
	if _, ok := t.sinks.Recorder.AddFrame(socketID, dir, p, at); !ok {
		t.sinks.Logger.Debug("frame for unknown socket dropped", zap.String("worker", t.worker), zap.String("socket", socketID))
		return
	}
	t.sinks.Observer.FrameRecorded(dir, p.Encoding)

	event := "WS RECV"
	if dir == DirectionSend {
		event = "WS SENT"
	}
	if t.sinks.WSLog != nil {
		t.sinks.WSLog.Block(t.worker, fmt.Sprintf("%s %s encoding=%s", event, t.sockets[socketID], p.Encoding), p.Data)
	}
}

// OnSocketClosed stamps the connection's close time.
func (t *Tap) OnSocketClosed(socketID string, at time.Time) {
	if _, ok := t.sinks.Recorder.Close(socketID, at); !ok {
		return
	}
	t.logEvent("WS CLOSE", t.sockets[socketID])
}

func (t *Tap) logEvent(event, detail string) {
	if t.sinks.WSLog != nil {
		t.sinks.WSLog.Event(t.worker, event, detail)
	}
}

func (t *Tap) logHeaders(head string, h Headers) {
	if t.sinks.WSLog != nil {
		t.sinks.WSLog.Headers(t.worker, head, h)
	}
}
