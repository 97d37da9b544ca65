package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func fixedClock() time.Time { return time.Date(2025, 6, 1, 14, 3, 9, 0, time.Local) }

func TestStreamWriterPrefixesOncePerLine(t *testing.T) {
	var out, mirror bytes.Buffer
	c := NewConsole(&out, nopCloser{&mirror})
	s := NewStreamWriter(c, "W1")
	s.clock = fixedClock

	for _, d := range []string{"Hel", "lo", " wor", "ld\nsecond", " line\n", "third"} {
		s.WriteDelta(d)
	}
	s.EndLine()

	want := "[14:03:09] [W1] Hello world\n" +
		"[14:03:09] [W1] second line\n" +
		"[14:03:09] [W1] third\n"
	assert.Equal(t, want, mirror.String())
	// Terminal output is a bytes.Buffer, so no colour is applied.
	assert.Equal(t, want, out.String())
}

func TestStreamWriterLine(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, nil)
	s := NewStreamWriter(c, "W3")
	s.clock = fixedClock

	s.WriteDelta("partial")
	s.Line("status done")
	s.EndLine()

	assert.Equal(t, "[14:03:09] [W3] partial\n[14:03:09] [W3] status done\n", out.String())
}

func TestStreamWritersInterleave(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, nil)

	var wg sync.WaitGroup
	for _, w := range []string{"W1", "W2"} {
		s := NewStreamWriter(c, w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.WriteDelta("line\n")
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 100)
	for _, l := range lines {
		assert.Regexp(t, `^\[\d\d:\d\d:\d\d\] \[W[12]\] line$`, l)
	}
}

func TestConsoleMirrorAndClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.log")

	var out bytes.Buffer
	c, err := OpenConsole(&out, path)
	require.NoError(t, err)

	c.Printf("[INFO] starting %d workers", 2)
	require.NoError(t, c.Close())
	c.Printf("after close")
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[INFO] starting 2 workers\n", string(data))
	assert.Contains(t, out.String(), "after close")
}

func TestConsoleRawMode(t *testing.T) {
	var out, mirror bytes.Buffer
	c := NewConsole(&out, nopCloser{&mirror})
	c.SetRaw(true)
	c.Printf("a\nb")

	assert.Equal(t, "a\r\nb\r\n", out.String())
	assert.Equal(t, "a\nb\n", mirror.String())
}

func TestNewLoggerConsoleFormat(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, nil)

	logger, err := NewLogger(c, "info", false)
	require.NoError(t, err)

	Named(logger, CategoryFleet).Info("worker started", zap.Int("worker", 1))
	Named(logger, CategoryFleet).Debug("hidden")
	require.NoError(t, logger.Sync())

	line := strings.TrimSpace(out.String())
	assert.Regexp(t, `^\[\d\d:\d\d:\d\d\] \[INFO\] fleet: worker started \{"worker": 1\}$`, line)
}

func TestNewLoggerJSON(t *testing.T) {
	var out bytes.Buffer
	logger, err := NewLogger(NewConsole(&out, nil), "debug", true)
	require.NoError(t, err)

	Named(logger, CategoryCapture).Debug("frame", zap.String("dir", "send"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "capture", entry["logger"])
	assert.Equal(t, "send", entry["dir"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("chatty"))

	_, err := NewLogger(nil, "info", false)
	assert.Error(t, err)
}
