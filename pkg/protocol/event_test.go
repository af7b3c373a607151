package protocol

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchElementsFraming(t *testing.T) {
	g := goldie.New(t)

	ev := PatchElements("<ul id=\"feed\">\n  <li>one</li>\r\n</ul>", ElementsOptions{
		Selector:          "#feed",
		Mode:              ModeOuter,
		UseViewTransition: true,
	})
	g.Assert(t, "patch_elements", []byte(ev.String()))
}

func TestPatchSignalsFraming(t *testing.T) {
	g := goldie.New(t)

	ev := PatchSignals(`{"count":1,"user":null}`, true)
	g.Assert(t, "patch_signals", []byte(ev.String()))
}

func TestPatchElementsRemoveHasNoPayload(t *testing.T) {
	ev := PatchElements("", ElementsOptions{Selector: "#gone", Mode: ModeRemove})

	assert.Equal(t, EventPatchElements, ev.Type)
	assert.Equal(t, []string{"selector #gone", "mode remove"}, ev.Lines)
	assert.Equal(t, "event: datastar-patch-elements\ndata: selector #gone\ndata: mode remove\n\n", ev.String())
}

func TestPatchElementsOmitsDefaults(t *testing.T) {
	ev := PatchElements("<div id=\"a\"></div>", ElementsOptions{})
	assert.Equal(t, []string{`elements <div id="a"></div>`}, ev.Lines)
}

func TestPatchLinesSplitOnEveryTerminator(t *testing.T) {
	ev := PatchElements("<p>a\rb</p>\r\n<p>c</p>\n<p>d</p>", ElementsOptions{})
	assert.Equal(t, []string{
		"elements <p>a",
		"elements b</p>",
		"elements <p>c</p>",
		"elements <p>d</p>",
	}, ev.Lines)
	assert.NotContains(t, ev.String(), "\r")

	sig := PatchSignals("{\"a\":1,\r\"b\":2}", false)
	assert.Equal(t, []string{`signals {"a":1,`, `signals "b":2}`}, sig.Lines)
}

func TestParseMode(t *testing.T) {
	for _, m := range []string{"outer", "inner", "replace", "prepend", "append", "before", "after", "remove"} {
		got, err := ParseMode(m)
		require.NoError(t, err)
		assert.Equal(t, Mode(m), got)
	}

	_, err := ParseMode("morph")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestEventTypeValid(t *testing.T) {
	assert.True(t, EventPatchElements.Valid())
	assert.True(t, EventPatchSignals.Valid())
	assert.False(t, EventType("datastar-execute-script").Valid())
}

func TestSetResponseHeaders(t *testing.T) {
	tests := []struct {
		name      string
		major     int
		minor     int
		keepAlive bool
	}{
		{"http/1.1", 1, 1, true},
		{"http/1.0", 1, 0, false},
		{"http/2", 2, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.ProtoMajor, r.ProtoMinor = tt.major, tt.minor
			h := http.Header{}

			SetResponseHeaders(h, r)

			assert.Equal(t, "no-cache", h.Get("Cache-Control"))
			assert.Equal(t, "text/event-stream", h.Get("Content-Type"))
			assert.Equal(t, "no", h.Get("X-Accel-Buffering"))
			assert.Equal(t, "true", h.Get(ResponseHeader))
			if tt.keepAlive {
				assert.Equal(t, "keep-alive", h.Get("Connection"))
			} else {
				assert.Empty(t, h.Get("Connection"))
			}
		})
	}
}

func TestIsDatastarRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, IsDatastarRequest(r))

	r.Header.Set(RequestHeader, "true")
	assert.True(t, IsDatastarRequest(r))

	r.Header.Set(RequestHeader, "false")
	assert.False(t, IsDatastarRequest(r))

	assert.False(t, IsDatastarRequest(nil))
}

type failingWriter struct{ err error }

func (f failingWriter) Write(p []byte) (int, error) { return 0, f.err }

func TestWriterFlushesInOrder(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	require.NoError(t, w.Send(
		PatchSignals(`{"a":1}`, false),
		PatchElements("", ElementsOptions{Selector: "#x", Mode: ModeRemove}),
	))

	assert.True(t, rec.Flushed)
	assert.Equal(t, 2, w.Sent())
	assert.Equal(t,
		"event: datastar-patch-signals\ndata: signals {\"a\":1}\n\n"+
			"event: datastar-patch-elements\ndata: selector #x\ndata: mode remove\n\n",
		rec.Body.String())
}

func TestWriterClosesAfterFailure(t *testing.T) {
	boom := errors.New("broken pipe")
	w := NewWriter(failingWriter{err: boom})

	err := w.Send(PatchSignals(`{}`, false))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, w.Err(), boom)

	err = w.Send(PatchSignals(`{}`, false))
	assert.ErrorIs(t, err, ErrWriterClosed)
	assert.Equal(t, 0, w.Sent())
}
