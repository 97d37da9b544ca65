package browser

import (
	"encoding/base64"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/ysmood/gson"

	"chatprobe/internal/capture"
)

func TestHeaders(t *testing.T) {
	h := headers(proto.NetworkHeaders{
		"Upgrade":                gson.New("websocket"),
		"Sec-WebSocket-Protocol": gson.New("json.v1"),
	})
	assert.Equal(t, capture.Headers{
		"Upgrade":                "websocket",
		"Sec-WebSocket-Protocol": "json.v1",
	}, h)
	assert.Empty(t, headers(nil))
}

func TestFramePayload(t *testing.T) {
	raw := []byte{0x00, 0xff, 0x10}

	tests := []struct {
		name       string
		frame      *proto.NetworkWebSocketFrame
		wantData   []byte
		wantBinary bool
	}{
		{
			name:     "text",
			frame:    &proto.NetworkWebSocketFrame{Opcode: 1, PayloadData: `{"type":1}`},
			wantData: []byte(`{"type":1}`),
		},
		{
			name:       "binary",
			frame:      &proto.NetworkWebSocketFrame{Opcode: 2, PayloadData: base64.StdEncoding.EncodeToString(raw)},
			wantData:   raw,
			wantBinary: true,
		},
		{
			name:     "undecodable binary kept as text",
			frame:    &proto.NetworkWebSocketFrame{Opcode: 2, PayloadData: "not base64!"},
			wantData: []byte("not base64!"),
		},
		{
			name: "nil",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, binary := framePayload(tt.frame)
			assert.Equal(t, tt.wantData, data)
			assert.Equal(t, tt.wantBinary, binary)
		})
	}
}
