package terminal

import (
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWatchInterrupt(t *testing.T) {
	r, w := io.Pipe()
	var hits atomic.Int32
	done := WatchInterrupt(r, func() { hits.Add(1) })

	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Zero(t, hits.Load())

	_, err = w.Write([]byte{'x', ctrlC, 'y'})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err = w.Write([]byte{ctrlC, ctrlC})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return hits.Load() == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop at EOF")
	}
}

func TestHijackNonTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()

	g, err := Hijack(f)
	require.NoError(t, err)
	assert.False(t, g.Active())
	assert.NoError(t, g.Restore())
	assert.NoError(t, g.Restore())
}
