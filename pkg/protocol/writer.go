package protocol

import (
	"errors"
	"io"
	"net/http"
	"sync"
)

// ErrWriterClosed is returned once a write to the client has failed.
var ErrWriterClosed = errors.New("protocol: event writer closed")

// Writer writes framed events to a response and flushes after every batch.
//
// The first failed write closes the Writer; the client is gone and later
// sends return ErrWriterClosed without touching the connection.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	err     error
	sent    int
}

// NewWriter wraps w. Flushing is skipped when w does not implement
// http.Flusher (for example a plain buffer in tests).
func NewWriter(w io.Writer) *Writer {
	fw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// Send writes events in order and flushes once.
func (w *Writer) Send(events ...Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return ErrWriterClosed
	}
	for _, ev := range events {
		if _, err := ev.WriteTo(w.w); err != nil {
			w.err = err
			return err
		}
		w.sent++
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Err returns the write error that closed the Writer, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Sent returns the number of events written successfully.
func (w *Writer) Sent() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sent
}
