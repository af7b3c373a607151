package protocol

import (
	"net/http"
	"strings"
)

const (
	// RequestHeader marks a request as coming from the Datastar client.
	RequestHeader = "Datastar-Request"

	// ResponseHeader marks a response as a Datastar event stream.
	ResponseHeader = "X-Datastar"

	// SignalsParam is the default query parameter carrying GET signals.
	SignalsParam = "datastar"

	// ContentType is the content type of every Datastar response.
	ContentType = "text/event-stream"
)

// IsDatastarRequest reports whether r was sent by the client runtime.
func IsDatastarRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	v := strings.TrimSpace(r.Header.Get(RequestHeader))
	return v != "" && !strings.EqualFold(v, "false")
}

// SetResponseHeaders writes the headers every event stream needs.
// Connection: keep-alive is only valid on HTTP/1.1; HTTP/2 and later forbid
// connection-specific headers.
func SetResponseHeaders(h http.Header, r *http.Request) {
	h.Set("Cache-Control", "no-cache")
	h.Set("Content-Type", ContentType)
	h.Set("X-Accel-Buffering", "no")
	h.Set(ResponseHeader, "true")
	if r != nil && r.ProtoMajor == 1 && r.ProtoMinor == 1 {
		h.Set("Connection", "keep-alive")
	}
}
