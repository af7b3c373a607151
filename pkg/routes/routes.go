// Package routes adds route names to a chi router so handlers can build
// URLs without hard-coding paths.
//
//	reg := routes.New(nil)
//	reg.Get("posts.show", "/posts/{id}", showPost)
//	u, _ := reg.URL("posts.show", map[string]string{"id": "7", "tab": "info"})
//	// u == "/posts/7?tab=info"
package routes

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

var (
	// ErrUnknownRoute is returned for a name that was never registered.
	ErrUnknownRoute = errors.New("routes: unknown route")

	// ErrMissingParam is returned when a path parameter has no value.
	ErrMissingParam = errors.New("routes: missing route parameter")

	// ErrDuplicateRoute is returned by Name for a name already in use.
	ErrDuplicateRoute = errors.New("routes: duplicate route name")
)

// Registry pairs a chi router with a name → pattern table.
type Registry struct {
	router chi.Router

	mu       sync.RWMutex
	patterns map[string]string
}

// New wraps r. A nil router gets a fresh chi.NewRouter.
func New(r chi.Router) *Registry {
	if r == nil {
		r = chi.NewRouter()
	}
	return &Registry{router: r, patterns: make(map[string]string)}
}

// Router returns the underlying router.
func (reg *Registry) Router() chi.Router {
	return reg.router
}

// ServeHTTP dispatches to the underlying router.
func (reg *Registry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reg.router.ServeHTTP(w, r)
}

// Name registers a pattern under name without mounting a handler.
func (reg *Registry) Name(name, pattern string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.patterns[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateRoute, name)
	}
	reg.patterns[name] = pattern
	return nil
}

// Handle mounts h for method and pattern and names the route. It panics
// on a duplicate name, like chi does on a bad pattern.
func (reg *Registry) Handle(method, name, pattern string, h http.Handler) {
	if name != "" {
		if err := reg.Name(name, pattern); err != nil {
			panic(err)
		}
	}
	reg.router.Method(method, pattern, h)
}

// Get mounts a GET route.
func (reg *Registry) Get(name, pattern string, h http.HandlerFunc) {
	reg.Handle(http.MethodGet, name, pattern, h)
}

// Post mounts a POST route.
func (reg *Registry) Post(name, pattern string, h http.HandlerFunc) {
	reg.Handle(http.MethodPost, name, pattern, h)
}

// Has reports whether name is registered.
func (reg *Registry) Has(name string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.patterns[name]
	return ok
}

// Pattern returns the pattern registered under name.
func (reg *Registry) Pattern(name string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	p, ok := reg.patterns[name]
	return p, ok
}

// URL builds the path of a named route. Params fill {name} and
// {name:regexp} segments and "*" fills a trailing wildcard; the rest
// become the query string in key order.
func (reg *Registry) URL(name string, params map[string]string) (string, error) {
	pattern, ok := reg.Pattern(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	return Expand(pattern, params)
}

// Expand fills pattern with params. See Registry.URL.
func Expand(pattern string, params map[string]string) (string, error) {
	used := make(map[string]struct{}, len(params))
	var b strings.Builder

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case c == '{':
			end := closingBrace(pattern, i)
			if end < 0 {
				return "", fmt.Errorf("routes: malformed pattern %q", pattern)
			}
			key, _, _ := strings.Cut(pattern[i+1:end], ":")
			v, ok := params[key]
			if !ok || v == "" {
				return "", fmt.Errorf("%w: %q in %q", ErrMissingParam, key, pattern)
			}
			b.WriteString(url.PathEscape(v))
			used[key] = struct{}{}
			i = end + 1
		case c == '*' && i == len(pattern)-1:
			if v, ok := params["*"]; ok {
				b.WriteString(escapeWildcard(v))
				used["*"] = struct{}{}
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}

	var extra []string
	for k := range params {
		if _, ok := used[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return b.String(), nil
	}
	sort.Strings(extra)
	q := url.Values{}
	for _, k := range extra {
		q.Set(k, params[k])
	}
	return b.String() + "?" + q.Encode(), nil
}

// closingBrace finds the brace closing the one at start, allowing nested
// braces inside a regexp such as {id:[0-9]{3}}.
func closingBrace(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func escapeWildcard(v string) string {
	parts := strings.Split(strings.TrimPrefix(v, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
