// Package capture records WebSocket upgrade exchanges and frames observed on
// the browser's pages, and serializes them as HAR-like archives.
//
// The Recorder is driven purely by events. Upgrade exchanges are keyed by
// URL and connections by the browser's socket identifier, so events from
// several pages can interleave without a global sequence.
package capture

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatprobe/internal/artifact"
)

// Direction of a frame relative to the page.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// RequestInfo is the request half of an upgrade exchange.
type RequestInfo struct {
	Headers Headers
	Time    time.Time
}

// ResponseInfo is the response half of an upgrade exchange.
type ResponseInfo struct {
	Status     int
	StatusText string
	Headers    Headers
	Time       time.Time
}

// PendingExchange is an observed upgrade request, optionally matched with
// its response and claimed by at most one Connection.
type PendingExchange struct {
	URL      string
	Request  RequestInfo
	Response *ResponseInfo

	conn *Connection
}

// Frame is one logged WebSocket message. Frames are immutable once appended.
type Frame struct {
	Time      time.Time
	Direction Direction
	Payload
}

// Connection is an opened WebSocket and everything seen on it.
type Connection struct {
	ID       string
	SocketID string
	URL      string
	Exchange *PendingExchange
	Frames   []Frame
	Opened   time.Time
	Closed   *time.Time
}

// Recorder holds the in-memory capture model. It is safe for concurrent use
// by several page event loops.
type Recorder struct {
	mu       sync.Mutex
	pending  []*PendingExchange
	conns    []*Connection
	bySocket map[string]*Connection

	creator HARCreator
	newID   func() string
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		bySocket: make(map[string]*Connection),
		creator:  HARCreator{Name: "chatprobe", Version: "1.0"},
		newID:    uuid.NewString,
	}
}

// RecordRequest registers an upgrade request for url.
func (r *Recorder) RecordRequest(url string, headers Headers, at time.Time) *PendingExchange {
	r.mu.Lock()
	defer r.mu.Unlock()

	ex := &PendingExchange{URL: url, Request: RequestInfo{Headers: cloneHeaders(headers), Time: at}}
	r.pending = append(r.pending, ex)
	r.adopt(ex)
	return ex
}

// RecordResponse attaches a response to the most recently recorded exchange
// for url that has no response yet. Repeated upgrade attempts to one URL are
// tolerated this way; concurrent attempts may be misattributed. With no
// candidate an exchange with an empty request is synthesized.
func (r *Recorder) RecordResponse(url string, status int, statusText string, headers Headers, at time.Time) *PendingExchange {
	r.mu.Lock()
	defer r.mu.Unlock()

	ex := r.lastUnmatched(url)
	if ex == nil {
		ex = &PendingExchange{URL: url, Request: RequestInfo{Headers: Headers{}, Time: at}}
		r.pending = append(r.pending, ex)
		r.adopt(ex)
	}
	ex.Response = &ResponseInfo{Status: status, StatusText: statusText, Headers: cloneHeaders(headers), Time: at}
	return ex
}

// Open creates the connection for socketID, seeded from the newest exchange
// for url that no other connection has claimed.
func (r *Recorder) Open(socketID, url string, at time.Time) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Connection{ID: r.newID(), SocketID: socketID, URL: url, Opened: at}
	for i := len(r.pending) - 1; i >= 0; i-- {
		ex := r.pending[i]
		if ex.URL == url && ex.conn == nil {
			ex.conn = c
			c.Exchange = ex
			break
		}
	}
	r.conns = append(r.conns, c)
	r.bySocket[socketID] = c
	return c
}

// AddFrame appends a frame to the socket's log. Frames for unknown sockets
// are dropped and reported as not recorded.
func (r *Recorder) AddFrame(socketID string, dir Direction, p Payload, at time.Time) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.bySocket[socketID]
	if c == nil {
		return nil, false
	}
	if n := len(c.Frames); n > 0 && at.Before(c.Frames[n-1].Time) {
		at = c.Frames[n-1].Time
	}
	c.Frames = append(c.Frames, Frame{Time: at, Direction: dir, Payload: p})
	return c, true
}

// Close stamps the socket's close time. Only the first close counts.
func (r *Recorder) Close(socketID string, at time.Time) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.bySocket[socketID]
	if c == nil {
		return nil, false
	}
	if c.Closed == nil {
		c.Closed = &at
	}
	return c, true
}

// Connections returns the number of connections seen so far.
func (r *Recorder) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Finalize builds the HAR-like archive of every connection, in open order.
// It may be called more than once; the model is not consumed.
func (r *Recorder) Finalize() WSLogDocument {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]HARWSEntry, 0, len(r.conns))
	for _, c := range r.conns {
		entries = append(entries, c.entry())
	}
	return WSLogDocument{Log: WSLogContent{Version: HARVersion, Creator: r.creator, Entries: entries}}
}

// adopt binds ex to the newest unclaimed connection for its URL. Browsers
// can report the socket before its handshake.
func (r *Recorder) adopt(ex *PendingExchange) {
	for i := len(r.conns) - 1; i >= 0; i-- {
		c := r.conns[i]
		if c.URL == ex.URL && c.Exchange == nil {
			c.Exchange = ex
			ex.conn = c
			return
		}
	}
}

func (r *Recorder) lastUnmatched(url string) *PendingExchange {
	for i := len(r.pending) - 1; i >= 0; i-- {
		if ex := r.pending[i]; ex.URL == url && ex.Response == nil {
			return ex
		}
	}
	return nil
}

func (c *Connection) entry() HARWSEntry {
	req := RequestInfo{Headers: Headers{}, Time: c.Opened}
	var resp *ResponseInfo
	if c.Exchange != nil {
		req = c.Exchange.Request
		if req.Time.IsZero() {
			req.Time = c.Opened
		}
		resp = c.Exchange.Response
	}

	response := HARResponse{HTTPVersion: "HTTP/1.1", Headers: []HARHeader{}, HeadersSize: -1}
	if resp != nil {
		response.Status = resp.Status
		response.StatusText = resp.StatusText
		response.Headers = headerList(resp.Headers)
	}

	msgs := make([]HARWSMessage, 0, len(c.Frames))
	for _, f := range c.Frames {
		msgs = append(msgs, HARWSMessage{
			Time:     artifact.ISOStamp(f.Time),
			Type:     string(f.Direction),
			Data:     f.Data,
			Encoding: string(f.Encoding),
		})
	}

	return HARWSEntry{
		HAREntry: HAREntry{
			StartedDateTime: artifact.ISOStamp(req.Time),
			Request: HARRequest{
				Method:      "GET",
				URL:         c.URL,
				HTTPVersion: "HTTP/1.1",
				Headers:     headerList(req.Headers),
				HeadersSize: -1,
			},
			Response: response,
		},
		WebSocketMessages: msgs,
	}
}

func headerList(h Headers) []HARHeader {
	out := make([]HARHeader, 0, len(h))
	for k, v := range h {
		out = append(out, HARHeader{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func cloneHeaders(h Headers) Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
