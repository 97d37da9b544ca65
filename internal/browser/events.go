package browser

import (
	"encoding/base64"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"chatprobe/internal/capture"
)

// opcodeText is the WebSocket opcode of a text frame; every other data
// frame's payload arrives base64 encoded.
const opcodeText = 1

// streamEvents feeds page's network and WebSocket events into tap until the
// page's context ends. rod delivers them in order on the calling goroutine.
func streamEvents(page *rod.Page, tap *capture.Tap, now func() time.Time) func() {
	return page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request == nil {
				return
			}
			tap.OnRequest(capture.RequestEvent{
				ID:           string(e.RequestID),
				URL:          e.Request.URL,
				Method:       e.Request.Method,
				ResourceType: string(e.Type),
				Headers:      headers(e.Request.Headers),
				Time:         now(),
			})
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil {
				return
			}
			tap.OnResponse(capture.ResponseEvent{
				ID:           string(e.RequestID),
				URL:          e.Response.URL,
				ResourceType: string(e.Type),
				Status:       e.Response.Status,
				StatusText:   e.Response.StatusText,
				Headers:      headers(e.Response.Headers),
				MIMEType:     e.Response.MIMEType,
				Protocol:     e.Response.Protocol,
				Time:         now(),
			})
		},
		func(e *proto.NetworkWebSocketCreated) {
			tap.OnSocketCreated(string(e.RequestID), e.URL, now())
		},
		func(e *proto.NetworkWebSocketWillSendHandshakeRequest) {
			var h capture.Headers
			if e.Request != nil {
				h = headers(e.Request.Headers)
			}
			tap.OnHandshakeRequest(string(e.RequestID), h, now())
		},
		func(e *proto.NetworkWebSocketHandshakeResponseReceived) {
			if e.Response == nil {
				return
			}
			tap.OnHandshakeResponse(string(e.RequestID), e.Response.Status, e.Response.StatusText, headers(e.Response.Headers), now())
		},
		func(e *proto.NetworkWebSocketFrameSent) {
			data, binary := framePayload(e.Response)
			tap.OnFrame(string(e.RequestID), capture.DirectionSend, data, binary, now())
		},
		func(e *proto.NetworkWebSocketFrameReceived) {
			data, binary := framePayload(e.Response)
			tap.OnFrame(string(e.RequestID), capture.DirectionReceive, data, binary, now())
		},
		func(e *proto.NetworkWebSocketClosed) {
			tap.OnSocketClosed(string(e.RequestID), now())
		},
	)
}

func headers(h proto.NetworkHeaders) capture.Headers {
	out := make(capture.Headers, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}

// framePayload returns a frame's bytes and whether the frame was binary.
// Binary payloads that fail to decode are kept as the raw text.
func framePayload(f *proto.NetworkWebSocketFrame) ([]byte, bool) {
	if f == nil {
		return nil, false
	}
	if int(f.Opcode) == opcodeText {
		return []byte(f.PayloadData), false
	}
	data, err := base64.StdEncoding.DecodeString(f.PayloadData)
	if err != nil {
		return []byte(f.PayloadData), false
	}
	return data, true
}
