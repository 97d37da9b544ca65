package artifact

import (
	"strings"
	"time"
)

const isoLayout = "2006-01-02T15:04:05.000Z"

// ISOStamp formats t as an ISO-8601 UTC timestamp with millisecond precision.
func ISOStamp(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// FileStamp is ISOStamp with the characters that are awkward in file names
// (':' and '.') replaced by '-'.
func FileStamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(ISOStamp(t))
}

// ClockStamp formats t as local HH:MM:SS, used as the line prefix in logs.
func ClockStamp(t time.Time) string {
	return t.Format("15:04:05")
}

// Names holds the output prefixes for a run, all embedding the run's start stamp.
type Names struct {
	Dir   string
	Stamp string
}

// NewNames builds the naming scheme for a run started at start.
func NewNames(dir string, start time.Time) Names {
	return Names{Dir: dir, Stamp: FileStamp(start)}
}

// Prefix returns the path prefix for an artifact kind, e.g. "tmp/chat_ws_<stamp>".
func (n Names) Prefix(kind string) string {
	return joinPath(n.Dir, "chat_"+kind+"_"+n.Stamp)
}
