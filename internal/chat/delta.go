package chat

import "strings"

// DeltaTracker turns successive snapshots of a growing message into the
// increments a reader has not seen yet.
type DeltaTracker struct {
	last string
}

// Next returns what text adds over the previous snapshot. When text does not
// extend the previous snapshot (the node was re-rendered or a different node
// is now newest) the whole text is returned after a newline.
func (d *DeltaTracker) Next(text string) string {
	if text == d.last {
		return ""
	}
	prev := d.last
	d.last = text
	if strings.HasPrefix(text, prev) {
		return text[len(prev):]
	}
	return "\n" + text
}

// Last is the most recent snapshot.
func (d *DeltaTracker) Last() string { return d.last }
