package capture

// ============================================
// HAR 1.2 Types
// ============================================

// HARVersion is the fixed archive version written by every document.
const HARVersion = "1.2"

// HARLog is the top-level HAR structure.
type HARLog struct {
	Log HARLogContent `json:"log"`
}

// HARLogContent holds the HAR log metadata and entries.
type HARLogContent struct {
	Version string     `json:"version"`
	Creator HARCreator `json:"creator"`
	Entries []HAREntry `json:"entries"`
}

// WSLogDocument is the HAR-like archive of WebSocket connections. It shares
// the HAR envelope but every entry carries the connection's frame log.
type WSLogDocument struct {
	Log WSLogContent `json:"log"`
}

// WSLogContent mirrors HARLogContent with WebSocket entries.
type WSLogContent struct {
	Version string       `json:"version"`
	Creator HARCreator   `json:"creator"`
	Entries []HARWSEntry `json:"entries"`
}

// HARCreator identifies the tool that generated the HAR.
type HARCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HAREntry represents a single HTTP request/response pair.
type HAREntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         HARRequest  `json:"request"`
	Response        HARResponse `json:"response"`
	Cache           struct{}    `json:"cache"`
	Timings         HARTimings  `json:"timings"`
	Comment         string      `json:"comment,omitempty"`
}

// HARWSEntry is a HAREntry for an upgraded connection plus its ordered frames.
type HARWSEntry struct {
	HAREntry
	WebSocketMessages []HARWSMessage `json:"_webSocketMessages"`
}

// HARWSMessage is one logged frame.
type HARWSMessage struct {
	Time     string `json:"time"`
	Type     string `json:"type"`
	Data     string `json:"data"`
	Encoding string `json:"encoding"`
}

// HARRequest represents the HTTP request.
type HARRequest struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []HARHeader `json:"headers"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int         `json:"bodySize"`
}

// HARResponse represents the HTTP response. Content is omitted for
// WebSocket entries, which have no body.
type HARResponse struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []HARHeader `json:"headers"`
	Content     *HARContent `json:"content,omitempty"`
	RedirectURL string      `json:"redirectURL,omitempty"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int         `json:"bodySize"`
}

// HARContent represents the response body content. Bodies are never
// captured, only their declared type.
type HARContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
}

// HARTimings represents timing information for the request.
type HARTimings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// HARHeader represents a single HTTP header.
type HARHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
