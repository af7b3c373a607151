package app

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vango-dev/datastar/internal/config"
	"github.com/vango-dev/datastar/internal/demo"
	"github.com/vango-dev/datastar/pkg/encrypt"
	"github.com/vango-dev/datastar/pkg/protocol"
)

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func start(t *testing.T, cfg *config.Config, opts ...Option) (*App, *client) {
	t.Helper()
	opts = append([]Option{WithDemoOptions(demo.Options{ClockInterval: 5 * time.Millisecond, ClockTicks: 2})}, opts...)
	a, err := New(context.Background(), cfg, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	srv := httptest.NewServer(a.Handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return a, &client{t: t, base: srv.URL, http: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

// do sends a request; headers are name/value pairs.
func (c *client) do(method, path, body string, reactive bool, headers ...string) (int, string) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, strings.NewReader(body))
	require.NoError(c.t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if reactive {
		req.Header.Set(protocol.RequestHeader, "true")
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, string(b)
}

func (c *client) get(path string) (int, string)        { return c.do(http.MethodGet, path, "", false) }
func (c *client) action(path, body string) (int, string) { return c.do(http.MethodPost, path, body, true) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	key, err := encrypt.GenerateKey()
	require.NoError(t, err)
	cfg.Signals.EncryptionKey = key
	return cfg
}

func TestCounterWithLockedSignal(t *testing.T) {
	_, c := start(t, testConfig(t))

	code, page := c.get("/")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, page, `data-signals="{&#34;_open&#34;:false,&#34;count&#34;:0,&#34;errors&#34;:{},&#34;userId_&#34;:42}"`)

	code, body := c.action("/counter/increment", `{"count":0,"userId_":42}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `data: signals {"count":1}`)
	assert.Contains(t, body, "data: selector #count\ndata: mode inner\ndata: elements 1\n")

	code, _ = c.action("/counter/increment", `{"count":1,"userId_":7}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = c.action("/counter/increment", `{"count":1,"admin_":true}`)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestContactValidationAndRedirectFlash(t *testing.T) {
	_, c := start(t, testConfig(t))
	c.get("/contact")

	_, body := c.action("/contact", `{"email":"nope","message":"hi"}`)
	assert.Contains(t, body, `"email":["The email field must be a valid email address."]`)
	assert.Contains(t, body, `"message":["The message field must be at least 5."]`)

	_, body = c.action("/contact", `{"email":"ada@example.com","message":"hello there"}`)
	assert.Contains(t, body, `data: signals {"errors":[]}`)
	assert.Contains(t, body, `window.location.href = "`+c.base+`/"`)

	_, page := c.get("/")
	assert.Contains(t, page, "Thanks for your message")

	_, page = c.get("/")
	assert.NotContains(t, page, "Thanks for your message", "flash lasts one request")
}

func TestSearchNavigateAndLogout(t *testing.T) {
	_, c := start(t, testConfig(t))
	c.get("/")

	signals := url.QueryEscape(`{"q":"gr"}`)
	_, body := c.do(http.MethodGet, "/search?datastar="+signals, "", true, "Referer", c.base+"/search")
	assert.Contains(t, body, "grace")
	assert.NotContains(t, body, "ada")
	assert.Contains(t, body, `window.history.replaceState({}, "", "`+c.base+`/search?q=gr")`)

	_, body = c.action("/users/grace/open", `{}`)
	assert.Contains(t, body, `"url":"`+c.base+`/users/grace"`)
	assert.Contains(t, body, `"merge":false`)

	_, body = c.action("/users/nobody/open", `{}`)
	assert.Contains(t, body, `"merge":true`)

	_, body = c.action("/logout", `{"count":3,"userId_":42}`)
	assert.Contains(t, body, `data: signals {"count":null,"userId_":null}`)
	assert.Contains(t, body, "window.location.href")

	// Home locks a fresh record again.
	c.get("/")
	code, _ := c.action("/counter/increment", `{"count":0,"userId_":7}`)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestClockStreams(t *testing.T) {
	_, c := start(t, testConfig(t))
	_, body := c.do(http.MethodGet, "/clock", "", true)
	assert.Equal(t, 2, strings.Count(body, "data: selector #clock"))
}

func TestNotifyAndDump(t *testing.T) {
	_, c := start(t, testConfig(t))

	_, body := c.action("/notify", `{"count":2}`)
	assert.Contains(t, body, `new CustomEvent("datastar:toast", {detail: {"level":"success","message":"Saved"}`)
	assert.Contains(t, body, `console.info("notified", 2);`)

	_, body = c.do(http.MethodGet, "/debug/signals?datastar="+url.QueryEscape(`{"a":1}`), "", true)
	assert.Contains(t, body, "document.open()")
}

func TestPlainRequestWithoutFallback(t *testing.T) {
	_, c := start(t, testConfig(t))
	code, _ := c.get("/debug/signals")
	assert.Equal(t, http.StatusNotAcceptable, code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, c := start(t, testConfig(t), WithRegistry(reg))
	assert.Same(t, reg, a.Registry)

	c.get("/")
	c.action("/counter/increment", `{"userId_":1}`)

	code, body := c.get("/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `datastar_http_requests_total{kind="plain",method="GET",path="/",status="200"} 1`)
	assert.Contains(t, body, `datastar_signal_tamper_total{kind="tampered"} 1`)
}

func TestTracing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tracing.Enabled = true
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	_, c := start(t, cfg, WithTracerProvider(tp))
	c.get("/healthz")

	require.NotEmpty(t, sr.Ended())
	assert.Equal(t, "GET /healthz", sr.Ended()[0].Name())
}

func TestSessionDrivers(t *testing.T) {
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Session.Driver = config.DriverRedis
		cfg.Session.RedisAddr = mr.Addr()

		_, c := start(t, cfg)
		c.get("/")
		code, _ := c.action("/counter/increment", `{"count":0,"userId_":42}`)
		assert.Equal(t, http.StatusOK, code)
		assert.NotEmpty(t, mr.Keys())
	})

	t.Run("badger in memory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Session.Driver = config.DriverBadger

		_, c := start(t, cfg)
		c.get("/")
		code, _ := c.action("/counter/increment", `{"count":0,"userId_":99}`)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Session.Driver = config.DriverRedis
		cfg.Session.RedisAddr = "127.0.0.1:1"
		_, err := New(context.Background(), cfg, nil)
		assert.Error(t, err)
	})
}

func TestGeneratedKeyWhenUnset(t *testing.T) {
	cfg := config.New()
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.NoError(t, a.Close(context.Background()))
	assert.NoError(t, a.Close(context.Background()), "second close is a no-op")
}
