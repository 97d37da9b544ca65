package capture

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Encoding tags how a frame payload was stored.
type Encoding string

const (
	EncodingBase64 Encoding = "base64" // binary frame, base64 text
	EncodingJSON   Encoding = "json"   // text frame that parsed as JSON, pretty-printed
	EncodingText   Encoding = "text"   // anything else, verbatim
)

// Payload is a classified frame body.
type Payload struct {
	Data     string
	Encoding Encoding
}

// ClassifyPayload normalizes a frame body for storage. Binary frames are
// base64-encoded. Text frames that look like JSON objects or arrays and
// parse cleanly are re-indented with two spaces.
func ClassifyPayload(data []byte, binary bool) Payload {
	if binary {
		return Payload{Data: base64.StdEncoding.EncodeToString(data), Encoding: EncodingBase64}
	}

	text := string(data)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, trimmed, "", "  "); err == nil {
			return Payload{Data: buf.String(), Encoding: EncodingJSON}
		}
	}
	return Payload{Data: text, Encoding: EncodingText}
}

// Headers is a flat header map as reported by the browser.
type Headers map[string]string

// Get looks a header up case-insensitively.
func (h Headers) Get(name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// IsUpgradeRequest reports whether a request is a WebSocket upgrade, judged
// by its resource type, its Upgrade header or a Sec-WebSocket-Key header.
func IsUpgradeRequest(resourceType string, h Headers) bool {
	if strings.EqualFold(resourceType, "websocket") {
		return true
	}
	if strings.EqualFold(h.Get("Upgrade"), "websocket") {
		return true
	}
	return h.Get("Sec-WebSocket-Key") != ""
}

// IsUpgradeResponse applies the request heuristics plus Sec-WebSocket-Accept.
func IsUpgradeResponse(resourceType string, h Headers) bool {
	return IsUpgradeRequest(resourceType, h) || h.Get("Sec-WebSocket-Accept") != ""
}
