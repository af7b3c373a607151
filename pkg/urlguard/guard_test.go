package urlguard

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/datastar/pkg/protocol"
	"github.com/vango-dev/datastar/pkg/routes"
)

func appRequest(target string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Host = "app.test"
	return r
}

func TestValidate_SameOrigin(t *testing.T) {
	g := New(appRequest("/page"))

	for _, ok := range []string{
		"https://app.test/x",
		"http://app.test/x?y=1#z",
		"https://APP.test:443/x",
		"/x",
		"x/y",
		"?page=2",
		"#top",
	} {
		assert.NoError(t, g.Validate(ok), ok)
	}

	for _, bad := range []string{
		"https://evil.example/x",
		"//evil.example/x",
		"javascript:alert(1)",
		"JavaScript:alert(1)",
		"data:text/html,hi",
		"/\\evil.example",
		"https://app.test@evil.example/",
		"https://user:pw@app.test/",
		"/x\x00y",
		"/a/%zz",
		"/../../etc/passwd",
		"https://app.test:8443/x",
		"",
	} {
		err := g.Validate(bad)
		assert.ErrorIs(t, err, ErrInvalidNavigation, bad)
	}
}

func TestValidate_CrossOriginCause(t *testing.T) {
	g := New(appRequest("/"))
	err := g.Validate("https://evil.example/x")
	require.ErrorIs(t, err, ErrCrossOrigin)

	var ge *Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "DS010", ge.Code())
}

func TestValidate_BaseURLAndAllowedHosts(t *testing.T) {
	g := New(appRequest("/"), WithBaseURL("https://www.app.test"), WithAllowedHosts("cdn.app.test"))

	assert.NoError(t, g.Validate("https://app.test/a"))
	assert.NoError(t, g.Validate("https://www.app.test/a"))
	assert.NoError(t, g.Validate("https://cdn.app.test/a"))
	assert.Error(t, g.Validate("https://other.test/a"))
}

func TestBuild(t *testing.T) {
	g := New(appRequest("/posts?page=2&sort=new"), WithBaseURL("https://app.test/"))

	tests := []struct {
		name   string
		target any
		want   string
	}{
		{"nil is current", nil, "https://app.test/posts?page=2&sort=new"},
		{"absolute path", "/dashboard", "https://app.test/dashboard"},
		{"relative path", "settings", "https://app.test/settings"},
		{"query only", "?page=3", "https://app.test/posts?page=3"},
		{"absolute", "https://app.test/x", "https://app.test/x"},
		{"values merge", url.Values{"page": {"5"}}, "https://app.test/posts?page=5&sort=new"},
		{"map merge", map[string]string{"q": "go"}, "https://app.test/posts?page=2&q=go&sort=new"},
		{"any map removes nil", map[string]any{"sort": nil, "page": 1}, "https://app.test/posts?page=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Build(tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := g.Build("https://evil.example/")
	assert.ErrorIs(t, err, ErrInvalidNavigation)
	_, err = g.Build(42)
	assert.ErrorIs(t, err, ErrInvalidNavigation)
	_, err = g.Build("//evil.example/")
	assert.ErrorIs(t, err, ErrCrossOrigin)
}

func TestCurrentURL_UsesRefererForDatastarRequests(t *testing.T) {
	r := appRequest("/counter/increment")
	r.Header.Set(protocol.RequestHeader, "true")
	r.Header.Set("Referer", "http://app.test/counter?x=1")
	assert.Equal(t, "http://app.test/counter?x=1", New(r).CurrentURL())

	r.Header.Set("Referer", "https://evil.example/")
	assert.Equal(t, "http://app.test/counter/increment", New(r).CurrentURL())
}

func TestBuildFromRoute(t *testing.T) {
	reg := routes.New(nil)
	require.NoError(t, reg.Name("posts.show", "/posts/{id}"))

	g := New(appRequest("/"), WithRoutes(reg))
	got, err := g.BuildFromRoute("posts.show", map[string]string{"id": "3"})
	require.NoError(t, err)
	assert.Equal(t, "http://app.test/posts/3", got)

	_, err = g.BuildFromRoute("missing", nil)
	require.ErrorIs(t, err, ErrUnknownRoute)
	require.ErrorIs(t, err, ErrInvalidNavigation)
	var ge *Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "DS011", ge.Code())

	_, err = g.BuildFromRoute("posts.show", nil)
	assert.ErrorIs(t, err, routes.ErrMissingParam)

	_, err = New(appRequest("/")).BuildFromRoute("posts.show", nil)
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestEnforceSingleUse(t *testing.T) {
	g := New(appRequest("/"))

	require.NoError(t, g.EnforceSingleUse())
	assert.True(t, g.Mutated())

	err := g.EnforceSingleUse()
	require.ErrorIs(t, err, ErrURLAlreadyMutated)
	require.ErrorIs(t, err, ErrInvalidNavigation)

	g.Reset()
	assert.NoError(t, g.EnforceSingleUse())
}

func TestHistoryScript(t *testing.T) {
	assert.Equal(t,
		`try { window.history.pushState({}, "", "/a?b=1"); } catch (e) { console.warn("history.pushState failed", e); }`,
		HistoryScript("/a?b=1", ModePush))
	assert.Contains(t, HistoryScript("/a", ModeReplace), "window.history.replaceState({}, \"\", \"/a\")")
	// Markup-significant characters stay escaped inside the script.
	assert.Contains(t, HistoryScript("/a?b=1&c=</script>", ModePush), `"/a?b=1\u0026c=\u003c/script\u003e"`)
}
