// Package protocol implements the Datastar server-sent event wire format.
//
// The server drives a live page by emitting typed events over a
// text/event-stream response. The client runtime applies each event in the
// order it arrives.
//
// # Wire Format
//
// Every event is one SSE frame:
//
//	event: <type>\n
//	data: <line>\n
//	data: <line>\n
//	\n
//
// The recognised types are:
//
//   - datastar-patch-elements: morph markup into the DOM
//   - datastar-patch-signals: merge a JSON object into the client signals
//
// # Patch Elements
//
// Directive lines come first, in this order, all optional:
//
//	data: selector #todo-list
//	data: mode append
//	data: useViewTransition true
//
// followed by one "elements" line per line of markup:
//
//	data: elements <li>first</li>
//
// # Patch Signals
//
//	data: onlyIfMissing true
//	data: signals {"count":1}
//
// A null value in the signals object removes that signal on the client.
//
// # Requests
//
// A Datastar request carries the Datastar-Request header. Its signals arrive
// either in the "datastar" query parameter (GET) or as the JSON request body.
package protocol
