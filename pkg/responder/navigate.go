package responder

import (
	"net/url"
	"strings"
	"time"

	"github.com/vango-dev/datastar/pkg/redirect"
	"github.com/vango-dev/datastar/pkg/urlguard"
)

// DefaultNavigateKey addresses the page's main navigable region.
const DefaultNavigateKey = "default"

// NavigateEvent is the DOM event the client-side navigation plugin listens
// for.
const NavigateEvent = "datastar:navigate"

// Merge says whether a navigation keeps the current query string.
type Merge uint8

const (
	// MergeAuto merges for targets that carry a query and not for plain
	// paths.
	MergeAuto Merge = iota
	MergeOn
	MergeOff
)

// NavigateOptions configures Navigate.
type NavigateOptions struct {
	Merge Merge

	// Only keeps just these query parameters when merging.
	Only []string

	// Except drops these query parameters when merging.
	Except []string

	// Replace updates the history entry instead of pushing one.
	Replace bool
}

// Navigate asks the client to navigate the region named key to target.
// target is anything urlguard.Guard.Build accepts. It counts as the
// response's one URL update.
func (r *Responder) Navigate(target any, key string, opts NavigateOptions) error {
	if !r.reactive {
		return nil
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	u, err := r.guard.Build(target)
	if err != nil {
		return err
	}
	return r.navigate(u, defaultMerge(target), key, opts)
}

// NavigateRoute is Navigate for a named route.
func (r *Responder) NavigateRoute(name string, params map[string]string, key string, opts NavigateOptions) error {
	if !r.reactive {
		return nil
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	u, err := r.guard.BuildFromRoute(name, params)
	if err != nil {
		return err
	}
	return r.navigate(u, false, key, opts)
}

func (r *Responder) navigate(u string, mergeDefault bool, key string, opts NavigateOptions) error {
	if err := r.guard.EnforceSingleUse(); err != nil {
		return err
	}
	if key == "" {
		key = DefaultNavigateKey
	}
	merge := mergeDefault
	switch opts.Merge {
	case MergeOn:
		merge = true
	case MergeOff:
		merge = false
	}

	options := map[string]any{"merge": merge, "replace": opts.Replace}
	if len(opts.Only) > 0 {
		options["only"] = opts.Only
	}
	if len(opts.Except) > 0 {
		options["except"] = opts.Except
	}
	script, err := dispatchScript(NavigateEvent, map[string]any{
		"url":     u,
		"key":     key,
		"options": options,
	}, DispatchOptions{})
	if err != nil {
		return err
	}
	return r.JS(script, ScriptOptions{})
}

// defaultMerge derives MergeAuto from the target's shape: query maps and
// URLs carrying a query merge, plain paths do not.
func defaultMerge(target any) bool {
	switch t := target.(type) {
	case string:
		return strings.Contains(t, "?")
	case *url.URL:
		return t.RawQuery != "" || t.ForceQuery
	case url.Values, map[string]string, map[string]any:
		return true
	default:
		return false
	}
}

// PushURL pushes a history entry for target without navigating.
func (r *Responder) PushURL(target any) error {
	return r.history(target, urlguard.ModePush)
}

// ReplaceURL replaces the current history entry with target.
func (r *Responder) ReplaceURL(target any) error {
	return r.history(target, urlguard.ModeReplace)
}

// PushRoute pushes the URL of a named route.
func (r *Responder) PushRoute(name string, params map[string]string) error {
	return r.historyRoute(name, params, urlguard.ModePush)
}

// ReplaceRoute replaces the history entry with a named route.
func (r *Responder) ReplaceRoute(name string, params map[string]string) error {
	return r.historyRoute(name, params, urlguard.ModeReplace)
}

func (r *Responder) history(target any, mode urlguard.Mode) error {
	if !r.reactive {
		return nil
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	u, err := r.guard.Build(target)
	if err != nil {
		return err
	}
	return r.pushHistory(u, mode)
}

func (r *Responder) historyRoute(name string, params map[string]string, mode urlguard.Mode) error {
	if !r.reactive {
		return nil
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	u, err := r.guard.BuildFromRoute(name, params)
	if err != nil {
		return err
	}
	return r.pushHistory(u, mode)
}

func (r *Responder) pushHistory(u string, mode urlguard.Mode) error {
	if err := r.guard.EnforceSingleUse(); err != nil {
		return err
	}
	return r.JS(urlguard.HistoryScript(u, mode), ScriptOptions{})
}

// Redirect starts a full-page redirect to target. Finish it with Send;
// inside a stream that also ends the stream. Redirects do not count as
// the response's URL update.
//
//	return res.Redirect("/posts").With("status", "Saved").Send(ctx)
func (r *Responder) Redirect(target string) *redirect.Builder {
	return r.newRedirect().To(target)
}

// RedirectRoute starts a redirect to a named route.
func (r *Responder) RedirectRoute(name string, params map[string]string) *redirect.Builder {
	return r.newRedirect().Route(name, params)
}

// Back starts a redirect to the previous page, or fallback.
func (r *Responder) Back(fallback string) *redirect.Builder {
	return r.newRedirect().Back(fallback)
}

func (r *Responder) newRedirect() *redirect.Builder {
	opts := []redirect.Option{
		redirect.WithDelay(r.redirectDelay()),
		redirect.WithEmitter(r.emitRedirect),
		redirect.WithLogger(r.cfg.Logger),
	}
	if sess := r.Session(); sess != nil {
		opts = append(opts, redirect.WithSession(sess))
	}
	return redirect.New(r.req, r.guard, opts...)
}

// emitRedirect delivers a redirect script. Plain requests cannot run it
// and get nothing; in a stream it is the last event.
func (r *Responder) emitRedirect(script string) error {
	if err := r.JS(script, ScriptOptions{}); err != nil {
		return err
	}
	r.mu.Lock()
	if r.state == stateStreaming {
		r.endLocked()
	}
	r.mu.Unlock()
	return nil
}

func (r *Responder) redirectDelay() time.Duration {
	if r.cfg.RedirectDelay >= time.Millisecond {
		return r.cfg.RedirectDelay
	}
	return redirect.DefaultDelay
}
