package responder

import (
	"bytes"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	dserrors "github.com/vango-dev/datastar/internal/errors"
	"github.com/vango-dev/datastar/internal/metrics"
	"github.com/vango-dev/datastar/pkg/protocol"
)

// Stream registers fn as the stream callback and switches the response to
// stream mode. Send flushes the events queued so far, then runs fn; every
// event fn produces is written immediately.
func (r *Responder) Stream(fn func(*Responder) error) error {
	if !r.reactive {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.state == stateFlushed:
		return ErrAlreadySent
	case r.state == stateStreaming || r.streamFn != nil:
		return ErrAlreadyStreaming
	}
	r.streamFn = fn
	return nil
}

// IsStreaming reports whether events are written as they are produced.
func (r *Responder) IsStreaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateStreaming
}

func (r *Responder) runStream(fn func(*Responder) error) error {
	_, span := r.cfg.Tracer.Start(r.req.Context(), "datastar.stream",
		trace.WithAttributes(attribute.String("http.target", r.req.URL.Path)))
	defer span.End()
	done := metrics.StreamStarted()
	metrics.RecordResponse("stream")
	r.logger.Debug("stream started", "path", r.req.URL.Path)

	r.mu.Lock()
	queued := r.events
	r.events = nil
	r.state = stateStreaming
	for _, ev := range queued {
		r.writeLocked(ev)
	}
	r.mu.Unlock()

	// The stream may run until the client leaves; locked operations inside
	// it lock the session one at a time.
	r.store.Unpin()

	err := r.invoke(fn)

	r.mu.Lock()
	ended := r.ended
	captured := r.output.String()
	r.output.Reset()
	r.mu.Unlock()

	switch {
	case ended != nil:
		// Redirect, dump or disconnect; nothing more to write.
	case err != nil:
		r.renderError(err)
	case captured != "":
		r.mu.Lock()
		r.writeLocked(replaceDocument(captured))
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.state = stateFlushed
	ended = r.ended
	r.mu.Unlock()

	done()
	span.SetAttributes(
		attribute.Bool("datastar.client_gone", errors.Is(ended, ErrClientGone)),
		attribute.Bool("datastar.failed", err != nil),
	)
	r.logger.Debug("stream ended", "path", r.req.URL.Path, "error", err)
	return nil
}

// invoke runs fn, turning a panic into an error.
func (r *Responder) invoke(fn func(*Responder) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = dserrors.Panic(rec)
		}
	}()
	return fn(r)
}

// renderError replaces the document with an error page and ends the
// stream.
func (r *Responder) renderError(err error) {
	r.logger.Error("stream failed", "path", r.req.URL.Path, "error", dserrors.From(err).FormatCompact())

	page := r.errorPage(err)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLocked(replaceDocument(page))
	r.endLocked()
}

// errorPage renders err with the configured renderer, falling back to the
// minimal page when there is none or it fails.
func (r *Responder) errorPage(err error) string {
	if r.cfg.ErrorRenderer != nil {
		var buf bytes.Buffer
		rerr := r.renderSafely(&buf, err)
		if rerr == nil && buf.Len() > 0 {
			return buf.String()
		}
		r.logger.Error("error renderer failed", "error", rerr)
	}
	return dserrors.MinimalPage(err, r.cfg.Debug)
}

func (r *Responder) renderSafely(buf *bytes.Buffer, err error) (rerr error) {
	defer func() {
		if rec := recover(); rec != nil {
			rerr = fmt.Errorf("error renderer panicked: %v", rec)
		}
	}()
	return r.cfg.ErrorRenderer.RenderError(buf, r.req, err)
}

// Dump replaces the document with a diagnostic page showing values and
// ends the response.
func (r *Responder) Dump(values ...any) error {
	if !r.reactive {
		return nil
	}
	if err := r.emit(replaceDocument(dserrors.DumpHTML(values...))); err != nil {
		return err
	}
	r.mu.Lock()
	r.endLocked()
	r.mu.Unlock()
	return nil
}

// replaceDocument returns the event replacing the whole document with
// page.
func replaceDocument(page string) protocol.Event {
	return scriptEvent(fmt.Sprintf("document.open();document.write(%s);document.close();", jsString(page)), ScriptOptions{})
}
