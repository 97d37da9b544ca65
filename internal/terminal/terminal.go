// Package terminal puts an interactive stdin into raw mode and turns a
// typed Ctrl-C into an interrupt when the terminal does not raise SIGINT.
package terminal

import (
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// ctrlC is the byte a raw terminal delivers for Ctrl-C.
const ctrlC = 0x03

// Guard owns the terminal state saved by Hijack.
type Guard struct {
	mu    sync.Mutex
	fd    int
	state *term.State
}

// Hijack switches f to raw mode when it is a terminal. When it is not, the
// returned guard is inactive and Restore does nothing.
func Hijack(f *os.File) (*Guard, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return &Guard{fd: -1}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &Guard{fd: fd, state: state}, nil
}

// Active reports whether the terminal is currently in raw mode.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state != nil
}

// Restore puts the terminal back the way Hijack found it. Safe to call more
// than once.
func (g *Guard) Restore() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == nil {
		return nil
	}
	err := term.Restore(g.fd, g.state)
	g.state = nil
	return err
}

// WatchInterrupt reads r until it fails and calls onInterrupt for every
// Ctrl-C byte. The returned channel closes when reading stops.
func WatchInterrupt(r io.Reader, onInterrupt func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		for {
			n, err := r.Read(buf)
			for _, b := range buf[:n] {
				if b == ctrlC {
					onInterrupt()
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return done
}
