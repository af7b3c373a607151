// Package responder turns handler calls into Datastar events.
//
// A Responder starts idle. Patch, signal, script and navigation calls queue
// events (accumulate mode) until Send writes them in one response. Calling
// Stream switches to stream mode: Send flushes the queue, runs the stream
// callback and writes every later event as soon as it is produced.
//
//	Idle -> Accumulating -> Flushed
//	                     -> Streaming -> Flushed
//
// Requests without the Datastar-Request header get the fallback handler
// instead, and every event operation is a no-op for them.
//
// # Streams
//
// Inside a stream, Redirect and Dump end the stream after emitting their
// script. A failed write means the client went away: the stream is ended
// silently, later calls are no-ops and Err reports ErrClientGone. Errors
// and panics returned from the callback render an error page that replaces
// the document.
package responder
