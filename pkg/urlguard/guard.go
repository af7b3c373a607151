// Package urlguard resolves and validates the target of a navigation or
// History API update, and allows at most one such update per response.
//
// Targets are accepted when they are a relative path or an absolute http(s)
// URL on the request's own host (or the configured base URL's host).
// Protocol-relative URLs, javascript: and other schemes, backslashes and
// control characters are rejected.
package urlguard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/vango-dev/datastar/internal/metrics"
	"github.com/vango-dev/datastar/pkg/protocol"
	"github.com/vango-dev/datastar/pkg/routes"
)

// RouteResolver turns a route name into a URL. routes.Registry implements it.
type RouteResolver interface {
	URL(name string, params map[string]string) (string, error)
}

// Mode selects the History API call.
type Mode string

const (
	ModePush    Mode = "push"
	ModeReplace Mode = "replace"
)

// Guard is the per-response navigation guard.
type Guard struct {
	req     *http.Request
	base    *url.URL
	routes  RouteResolver
	hosts   map[string]struct{}
	logger  *slog.Logger
	mutated bool
}

// Option configures a Guard.
type Option func(*guardConfig)

type guardConfig struct {
	baseURL string
	routes  RouteResolver
	hosts   []string
	logger  *slog.Logger
}

// WithBaseURL sets the application base URL relative targets resolve
// against. Its host is also accepted as same-origin.
func WithBaseURL(raw string) Option {
	return func(c *guardConfig) { c.baseURL = raw }
}

// WithRoutes sets the resolver used by BuildFromRoute.
func WithRoutes(r RouteResolver) Option {
	return func(c *guardConfig) { c.routes = r }
}

// WithAllowedHosts accepts additional hosts as same-origin.
func WithAllowedHosts(hosts ...string) Option {
	return func(c *guardConfig) { c.hosts = append(c.hosts, hosts...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *guardConfig) { c.logger = l }
}

// New creates the guard of one response.
func New(r *http.Request, opts ...Option) *Guard {
	var c guardConfig
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	g := &Guard{
		req:    r,
		routes: c.routes,
		hosts:  make(map[string]struct{}),
		logger: c.logger.With("component", "urlguard"),
	}

	if c.baseURL != "" {
		base, err := url.Parse(c.baseURL)
		if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
			g.logger.Warn("ignoring invalid base url", "base_url", c.baseURL)
		} else {
			g.base = base
			g.hosts[hostKey(base.Scheme, base.Host)] = struct{}{}
		}
	}
	if g.base == nil {
		g.base = &url.URL{Scheme: requestScheme(r), Host: requestHost(r), Path: "/"}
	}
	if h := requestHost(r); h != "" {
		g.hosts[hostKey(g.base.Scheme, h)] = struct{}{}
	}
	for _, h := range c.hosts {
		g.hosts[hostKey(g.base.Scheme, h)] = struct{}{}
	}
	return g
}

// CurrentURL returns the URL of the page being updated. For a Datastar
// request that is the same-origin Referer; otherwise the request URL.
func (g *Guard) CurrentURL() string {
	if g.req == nil {
		return g.base.String()
	}
	if protocol.IsDatastarRequest(g.req) {
		if ref := g.req.Referer(); ref != "" && g.sameOrigin(ref) {
			return ref
		}
	}
	return g.RequestURL()
}

// RequestURL returns the absolute URL of the request itself.
func (g *Guard) RequestURL() string {
	if g.req == nil {
		return g.base.String()
	}
	u := url.URL{Scheme: g.base.Scheme, Host: requestHost(g.req)}
	if u.Host == "" {
		u.Host = g.base.Host
	}
	return u.String() + g.req.URL.RequestURI()
}

// Build resolves target and validates the result.
//
//	nil                         the current URL
//	url.Values, map[string]...  the current URL with the query merged in
//	"?q=1"                      the current path with a new query
//	"/path" or "path"           resolved against the base URL
//	"https://host/path"         passed through
func (g *Guard) Build(target any) (string, error) {
	var (
		out string
		err error
	)
	switch t := target.(type) {
	case nil:
		out = g.CurrentURL()
	case url.Values:
		out, err = g.mergeQuery(t)
	case map[string]string:
		q := make(url.Values, len(t))
		for k, v := range t {
			q.Set(k, v)
		}
		out, err = g.mergeQuery(q)
	case map[string]any:
		q := make(url.Values, len(t))
		for k, v := range t {
			if v == nil {
				q[k] = nil
				continue
			}
			q.Set(k, fmt.Sprint(v))
		}
		out, err = g.mergeQuery(q)
	case *url.URL:
		out, err = g.resolve(t.String())
	case string:
		out, err = g.resolve(t)
	default:
		return "", g.reject(invalid(fmt.Sprintf("%T", target), "unsupported target type", nil))
	}
	if err != nil {
		return "", g.reject(err)
	}
	if err := g.Validate(out); err != nil {
		return "", err
	}
	return out, nil
}

// BuildFromRoute resolves a named route and validates it.
func (g *Guard) BuildFromRoute(name string, params map[string]string) (string, error) {
	if g.routes == nil {
		return "", g.reject(invalid(name, "no route resolver configured", ErrUnknownRoute))
	}
	u, err := g.routes.URL(name, params)
	if err != nil {
		if errors.Is(err, routes.ErrUnknownRoute) {
			return "", g.reject(invalid(name, "unknown route", ErrUnknownRoute))
		}
		return "", g.reject(invalid(name, err.Error(), err))
	}
	return g.Build(u)
}

// Validate accepts a relative path shape or an absolute http(s) URL on an
// allowed host.
func (g *Guard) Validate(raw string) error {
	if err := g.validate(raw); err != nil {
		return g.reject(err)
	}
	return nil
}

func (g *Guard) validate(raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return invalid(raw, "empty url", nil)
	}
	if err := checkRaw(s); err != nil {
		return invalid(raw, err.Error(), err)
	}
	if strings.HasPrefix(s, "//") {
		return invalid(raw, "protocol-relative url", ErrCrossOrigin)
	}

	u, err := url.Parse(s)
	if err != nil {
		return invalid(raw, "malformed url", err)
	}
	if u.Scheme == "" {
		if u.Opaque != "" || u.Host != "" {
			return invalid(raw, "malformed relative url", nil)
		}
		if err := checkPath(u.EscapedPath()); err != nil {
			return invalid(raw, err.Error(), err)
		}
		return nil
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid(raw, "scheme "+u.Scheme+" not allowed", nil)
	}
	if u.Host == "" || u.Opaque != "" {
		return invalid(raw, "absolute url without host", nil)
	}
	if u.User != nil {
		return invalid(raw, "url carries credentials", nil)
	}
	if _, ok := g.hosts[hostKey(u.Scheme, u.Host)]; !ok {
		return invalid(raw, "host "+u.Host+" is not same-origin", ErrCrossOrigin)
	}
	if err := checkPath(u.EscapedPath()); err != nil {
		return invalid(raw, err.Error(), err)
	}
	return nil
}

// EnforceSingleUse claims the response's one URL mutation.
func (g *Guard) EnforceSingleUse() error {
	if g.mutated {
		return &Error{Reason: "only one url update per response", Err: ErrURLAlreadyMutated}
	}
	g.mutated = true
	return nil
}

// Mutated reports whether the mutation was claimed.
func (g *Guard) Mutated() bool {
	return g.mutated
}

// Reset releases the claim.
func (g *Guard) Reset() {
	g.mutated = false
}

// HistoryScript returns a script calling pushState or replaceState. A
// failing History API only logs a console warning.
func HistoryScript(u string, mode Mode) string {
	fn := "pushState"
	if mode == ModeReplace {
		fn = "replaceState"
	}
	target, _ := json.Marshal(u)
	return fmt.Sprintf(`try { window.history.%s({}, "", %s); } catch (e) { console.warn("history.%s failed", e); }`, fn, target, fn)
}

func (g *Guard) resolve(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(s, "empty url", nil)
	}
	if err := checkRaw(s); err != nil {
		return "", invalid(s, err.Error(), err)
	}
	if strings.HasPrefix(s, "//") {
		return "", invalid(s, "protocol-relative url", ErrCrossOrigin)
	}
	if hasScheme(s) {
		return s, nil
	}

	ref, err := url.Parse(s)
	if err != nil {
		return "", invalid(s, "malformed url", err)
	}
	if strings.HasPrefix(s, "?") {
		cur, err := url.Parse(g.CurrentURL())
		if err != nil {
			return "", invalid(s, "malformed current url", err)
		}
		cur.RawQuery = ref.RawQuery
		cur.Fragment = ref.Fragment
		return cur.String(), nil
	}
	return g.base.ResolveReference(ref).String(), nil
}

func (g *Guard) mergeQuery(params url.Values) (string, error) {
	cur, err := url.Parse(g.CurrentURL())
	if err != nil {
		return "", invalid(g.CurrentURL(), "malformed current url", err)
	}
	q := cur.Query()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if params[k] == nil {
			q.Del(k)
			continue
		}
		q[k] = params[k]
	}
	cur.RawQuery = q.Encode()
	return cur.String(), nil
}

func (g *Guard) sameOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	_, ok := g.hosts[hostKey(u.Scheme, u.Host)]
	return ok
}

func (g *Guard) reject(err error) error {
	metrics.RecordNavigationRejected()
	g.logger.Debug("navigation rejected", "error", err)
	return err
}

// hasScheme reports whether s starts with "scheme:" per RFC 3986.
func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' || c == '+' || c == '-' || c == '.':
			if i == 0 {
				return false
			}
		case c == ':':
			return i > 0
		default:
			return false
		}
	}
	return false
}

// hostKey normalises host for comparison: lower case, default port
// stripped.
func hostKey(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

func requestScheme(r *http.Request) string {
	if r == nil {
		return "http"
	}
	if r.TLS != nil {
		return "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "https" || p == "http" {
		return p
	}
	return "http"
}

func requestHost(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.Host
}
