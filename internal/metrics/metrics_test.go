package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chatprobe/internal/capture"
	"chatprobe/internal/chat"
	"chatprobe/internal/fleet"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	_ fleet.Observer   = (*Metrics)(nil)
	_ capture.Observer = (*Metrics)(nil)
)

func TestExchangeCounters(t *testing.T) {
	m := New(nil)
	start := time.Now()
	ok := &chat.Exchange{Started: start, Finished: start.Add(3 * time.Second)}

	m.ExchangeFinished("W1", ok, nil)
	m.ExchangeFinished("W2", ok, nil)
	m.ExchangeFinished("W1", &chat.Exchange{}, &chat.ExchangeError{Stage: "response", Err: chat.ErrResponseTimeout})
	m.ExchangeFinished("W2", &chat.Exchange{}, context.Canceled)
	m.ExchangeFinished("W2", &chat.Exchange{}, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.exchanges.WithLabelValues(chat.OutcomeAnswered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues(chat.OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues(chat.OutcomeAborted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues(chat.OutcomeError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestCaptureCounters(t *testing.T) {
	m := New(nil)
	m.ConnectionOpened()
	m.FrameRecorded(capture.DirectionSend, capture.EncodingJSON)
	m.FrameRecorded(capture.DirectionReceive, capture.EncodingJSON)
	m.FrameRecorded(capture.DirectionReceive, capture.EncodingJSON)
	m.FrameRecorded(capture.DirectionReceive, capture.EncodingBase64)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames.WithLabelValues("receive", "json")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("receive", "base64")))
}

func TestServeMetrics(t *testing.T) {
	m := New(nil)
	m.ConnectionOpened()

	addr, err := m.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "chatprobe_ws_connections_total 1"), string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	http.DefaultClient.CloseIdleConnections()
}

func TestShutdownWithoutStart(t *testing.T) {
	assert.NoError(t, New(nil).Shutdown(context.Background()))
}
