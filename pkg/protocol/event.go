package protocol

import (
	"io"
	"strings"
)

// EventType identifies the kind of SSE event sent to the client runtime.
type EventType string

const (
	// EventPatchElements morphs markup into the DOM.
	EventPatchElements EventType = "datastar-patch-elements"

	// EventPatchSignals merges a JSON object into the client signals.
	EventPatchSignals EventType = "datastar-patch-signals"
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	return string(t)
}

// Valid reports whether t is a type the client runtime understands.
func (t EventType) Valid() bool {
	switch t {
	case EventPatchElements, EventPatchSignals:
		return true
	default:
		return false
	}
}

// Event is one protocol frame.
//
// Lines hold the already-encoded data lines ("selector #x", "elements <p>")
// in the order they must be written.
type Event struct {
	Type  EventType
	Lines []string
}

// WriteTo writes the framed event to w.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, e.String())
	return int64(n), err
}

// String returns the framed event exactly as it appears on the wire.
func (e Event) String() string {
	var b strings.Builder
	b.Grow(frameSize(e))
	b.WriteString("event: ")
	b.WriteString(string(e.Type))
	b.WriteByte('\n')
	for _, line := range e.Lines {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

func frameSize(e Event) int {
	n := len("event: ") + len(e.Type) + 2
	for _, line := range e.Lines {
		n += len("data: ") + len(line) + 1
	}
	return n
}

// lineBreaks maps every SSE line terminator to a newline.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// splitLines splits a payload on CRLF, CR and LF, the terminators an
// event-stream client splits data on.
func splitLines(s string) []string {
	return strings.Split(lineBreaks.Replace(s), "\n")
}
