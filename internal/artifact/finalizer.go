// Package artifact promotes temporary capture files to permanent, uniquely
// named outputs.
//
// Names never collide: prefix.ext is tried first, then prefix_1.ext,
// prefix_2.ext and so on. Promotion is a rename where possible and a copy
// otherwise. Files still being written by another process are only promoted
// once they exist and their size has settled.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrNotWritten is returned by PromoteStable when the temp file never appeared.
var ErrNotWritten = errors.New("artifact: temp file was never written")

const maxCollisionProbes = 10000

// Finalizer promotes temp files. The zero value is not usable; use NewFinalizer.
type Finalizer struct {
	log *zap.Logger

	// WaitTimeout bounds how long PromoteStable waits for a file to appear.
	WaitTimeout time.Duration
	// PollInterval is the delay between existence/size checks.
	PollInterval time.Duration
	// StablePolls is how many consecutive equal size reads count as settled.
	StablePolls int
}

// NewFinalizer returns a Finalizer with the default wait parameters
// (15s bound, 200ms poll, 3 stable polls).
func NewFinalizer(log *zap.Logger) *Finalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Finalizer{
		log:          log,
		WaitTimeout:  15 * time.Second,
		PollInterval: 200 * time.Millisecond,
		StablePolls:  3,
	}
}

// UniquePath returns the first of prefix+ext, prefix_1+ext, prefix_2+ext...
// that does not exist. ext includes its leading dot.
func UniquePath(prefix, ext string) (string, error) {
	candidate := prefix + ext
	for i := 1; i <= maxCollisionProbes; i++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to probe %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d%s", prefix, i, ext)
	}
	return "", fmt.Errorf("no free name for %s%s after %d attempts", prefix, ext, maxCollisionProbes)
}

// Promote moves tmpPath to a unique name under prefix+ext and returns the
// final path. Rename is attempted first; copy+remove is the fallback (for
// example across filesystems).
func (f *Finalizer) Promote(tmpPath, prefix, ext string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(prefix), 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	dest, err := UniquePath(prefix, ext)
	if err != nil {
		return "", err
	}

	if err = os.Rename(tmpPath, dest); err == nil {
		return dest, nil
	}
	f.log.Debug("rename failed, copying", zap.String("src", tmpPath), zap.Error(err))

	if err := copyFile(tmpPath, dest); err != nil {
		return "", fmt.Errorf("failed to promote %s: %w", tmpPath, err)
	}
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.log.Warn("promoted copy but could not remove temp", zap.String("path", tmpPath), zap.Error(err))
	}
	return dest, nil
}

// PromoteStable waits for tmpPath to exist and stop growing, then promotes it.
func (f *Finalizer) PromoteStable(ctx context.Context, tmpPath, prefix, ext string) (string, error) {
	if err := f.waitExists(ctx, tmpPath); err != nil {
		return "", err
	}
	if err := f.waitStable(ctx, tmpPath); err != nil {
		return "", err
	}
	return f.Promote(tmpPath, prefix, ext)
}

// WriteJSON writes v as indented JSON to a unique name under prefix+ext.
func (f *Finalizer) WriteJSON(prefix, ext string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s%s: %w", prefix, ext, err)
	}
	return f.WriteFile(prefix, ext, data)
}

// WriteFile writes data to a unique name under prefix+ext. The data goes to
// a temp file in the same directory first, so a reader never observes a
// partial file.
func (f *Finalizer) WriteFile(prefix, ext string, data []byte) (string, error) {
	dir := filepath.Dir(prefix)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Promote(tmpPath, prefix, ext)
}

// waitExists blocks until path exists, the wait bound elapses, or ctx ends.
// A directory watcher wakes the wait as soon as the file is created; the
// ticker covers platforms and filesystems where events are not delivered.
func (f *Finalizer) waitExists(ctx context.Context, path string) error {
	if exists(path) {
		return nil
	}

	var events <-chan fsnotify.Event
	if w, err := fsnotify.NewWatcher(); err == nil {
		defer w.Close()
		if err := w.Add(filepath.Dir(path)); err == nil {
			events = w.Events
		}
	}

	deadline := time.NewTimer(f.WaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(f.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if exists(path) {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrNotWritten, path)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(path) && exists(path) {
				return nil
			}
		case <-ticker.C:
			if exists(path) {
				return nil
			}
		}
	}
}

// waitStable polls the file size until it is unchanged for StablePolls
// consecutive reads. It gives up waiting (without error) after WaitTimeout
// so a recorder that never stops writing cannot hold shutdown hostage.
func (f *Finalizer) waitStable(ctx context.Context, path string) error {
	deadline := time.Now().Add(f.WaitTimeout)
	lastSize := int64(-1)
	stable := 0

	for time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if info.Size() == lastSize {
			stable++
			if stable >= f.StablePolls {
				return nil
			}
		} else {
			stable = 0
			lastSize = info.Size()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.PollInterval):
		}
	}
	f.log.Warn("file size never settled, promoting anyway", zap.String("path", path))
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
