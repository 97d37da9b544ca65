package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chatprobe/internal/artifact"
)

// RequestEvent is a request reported by a page.
type RequestEvent struct {
	ID           string
	URL          string
	Method       string
	ResourceType string
	Headers      Headers
	Time         time.Time
}

// ResponseEvent is a response reported by a page.
type ResponseEvent struct {
	ID           string
	URL          string
	ResourceType string
	Status       int
	StatusText   string
	Headers      Headers
	MIMEType     string
	Protocol     string
	Time         time.Time
}

type archiveEntry struct {
	req  RequestEvent
	resp *ResponseEvent
}

// NetworkArchive is the session-wide HTTP capture: every request and
// response seen on any page, written out as a standard HAR 1.2 file when the
// browsing context closes. Bodies are not captured.
type NetworkArchive struct {
	mu      sync.Mutex
	entries []*archiveEntry
	byID    map[string]*archiveEntry
	creator HARCreator
}

// NewNetworkArchive returns an empty archive.
func NewNetworkArchive() *NetworkArchive {
	return &NetworkArchive{
		byID:    make(map[string]*archiveEntry),
		creator: HARCreator{Name: "chatprobe", Version: "1.0"},
	}
}

// Request records a request. A repeated ID (a redirect hop) starts a new entry.
func (a *NetworkArchive) Request(ev RequestEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := &archiveEntry{req: ev}
	a.entries = append(a.entries, e)
	a.byID[ev.ID] = e
}

// Response attaches a response to its request by ID. Responses without a
// known request get an entry of their own.
func (a *NetworkArchive) Response(ev ResponseEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.byID[ev.ID]
	if e == nil {
		e = &archiveEntry{req: RequestEvent{ID: ev.ID, URL: ev.URL, Method: "GET", Time: ev.Time}}
		a.entries = append(a.entries, e)
		a.byID[ev.ID] = e
	}
	resp := ev
	e.resp = &resp
}

// Len is the number of recorded entries.
func (a *NetworkArchive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Document renders the archive as HAR 1.2.
func (a *NetworkArchive) Document() HARLog {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]HAREntry, 0, len(a.entries))
	for _, e := range a.entries {
		entries = append(entries, e.harEntry())
	}
	return HARLog{Log: HARLogContent{Version: HARVersion, Creator: a.creator, Entries: entries}}
}

// Flush writes the archive to path. The document is staged next to path and
// renamed into place, so path only ever holds a complete file.
func (a *NetworkArchive) Flush(path string) error {
	data, err := json.MarshalIndent(a.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal network archive: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}
	part := path + ".part"
	if err := os.WriteFile(part, data, 0644); err != nil {
		return fmt.Errorf("failed to write network archive: %w", err)
	}
	if err := os.Rename(part, path); err != nil {
		return fmt.Errorf("failed to move network archive into place: %w", err)
	}
	return nil
}

func (e *archiveEntry) harEntry() HAREntry {
	method := e.req.Method
	if method == "" {
		method = "GET"
	}
	out := HAREntry{
		StartedDateTime: artifact.ISOStamp(e.req.Time),
		Request: HARRequest{
			Method:      method,
			URL:         e.req.URL,
			HTTPVersion: "HTTP/1.1",
			Headers:     headerList(e.req.Headers),
			HeadersSize: -1,
			BodySize:    -1,
		},
		Response: HARResponse{
			HTTPVersion: "HTTP/1.1",
			Headers:     []HARHeader{},
			Content:     &HARContent{Size: -1, MimeType: "x-unknown"},
			HeadersSize: -1,
			BodySize:    -1,
		},
		Timings: HARTimings{Send: 0, Wait: -1, Receive: 0},
	}
	if e.resp == nil {
		return out
	}

	r := e.resp
	version := r.Protocol
	if version == "" {
		version = "HTTP/1.1"
	}
	mime := r.MIMEType
	if mime == "" {
		mime = "x-unknown"
	}
	out.Response = HARResponse{
		Status:      r.Status,
		StatusText:  r.StatusText,
		HTTPVersion: version,
		Headers:     headerList(r.Headers),
		Content:     &HARContent{Size: -1, MimeType: mime},
		RedirectURL: r.Headers.Get("Location"),
		HeadersSize: -1,
		BodySize:    -1,
	}
	if !r.Time.IsZero() && !e.req.Time.IsZero() && r.Time.After(e.req.Time) {
		wait := float64(r.Time.Sub(e.req.Time)) / float64(time.Millisecond)
		out.Time = wait
		out.Timings.Wait = wait
	}
	return out
}
