package demo

import (
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/datastar/pkg/responder"
	"github.com/vango-dev/datastar/pkg/routes"
	"github.com/vango-dev/datastar/pkg/signals"
	"github.com/vango-dev/datastar/pkg/toast"
)

// Route names.
const (
	RouteHome      = "home"
	RouteIncrement = "counter.increment"
	RouteNotify    = "notify"
	RouteClock     = "clock"
	RouteLogout    = "logout"
	RouteContact   = "contact.show"
	RouteSubmit    = "contact.submit"
	RouteSearch    = "search"
	RouteUser      = "users.show"
	RouteUserOpen  = "users.open"
	RouteDump      = "debug.signals"
)

// StatusKey is the flash key carrying the status banner.
const StatusKey = "status"

// Users is the fixed dataset searched by the search page.
var Users = []string{"ada", "alan", "barbara", "edsger", "grace", "ken", "linus", "rob"}

// Options configures the demo.
type Options struct {
	// ClockInterval is the tick of the streamed clock. Default: 1s.
	ClockInterval time.Duration

	// ClockTicks ends the clock stream after this many ticks; zero runs
	// until the client leaves.
	ClockTicks int
}

// Demo serves the demo pages.
type Demo struct {
	cfg    responder.Config
	reg    *routes.Registry
	opts   Options
	logger *slog.Logger
}

// New creates the demo. cfg.Routes is set to reg.
func New(reg *routes.Registry, cfg responder.Config, opts Options) *Demo {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if opts.ClockInterval <= 0 {
		opts.ClockInterval = time.Second
	}
	cfg.Routes = reg
	return &Demo{
		cfg:    cfg,
		reg:    reg,
		opts:   opts,
		logger: cfg.Logger.With("component", "demo"),
	}
}

// Register mounts the demo routes.
func (d *Demo) Register() {
	h := func(fn responder.HandlerFunc) http.Handler { return responder.Handler(d.cfg, fn) }

	d.reg.Handle(http.MethodGet, RouteHome, "/", h(d.home))
	d.reg.Handle(http.MethodPost, RouteIncrement, "/counter/increment", h(d.increment))
	d.reg.Handle(http.MethodPost, RouteNotify, "/notify", h(d.notify))
	d.reg.Handle(http.MethodGet, RouteClock, "/clock", h(d.clock))
	d.reg.Handle(http.MethodPost, RouteLogout, "/logout", h(d.logout))
	d.reg.Handle(http.MethodGet, RouteContact, "/contact", h(d.contact))
	d.reg.Handle(http.MethodPost, RouteSubmit, "/contact", h(d.submit))
	d.reg.Handle(http.MethodGet, RouteSearch, "/search", h(d.search))
	d.reg.Handle(http.MethodGet, RouteUser, "/users/{name}", h(d.user))
	d.reg.Handle(http.MethodPost, RouteUserOpen, "/users/{name}/open", h(d.openUser))
	d.reg.Handle(http.MethodGet, RouteDump, "/debug/signals", h(d.dump))
}

func (d *Demo) url(name string, params map[string]string) string {
	u, err := d.reg.URL(name, params)
	if err != nil {
		panic(err)
	}
	return u
}

func (d *Demo) links() pageRoutes {
	return pageRoutes{
		Increment: d.url(RouteIncrement, nil),
		Notify:    d.url(RouteNotify, nil),
		Clock:     d.url(RouteClock, nil),
		Logout:    d.url(RouteLogout, nil),
		Contact:   d.url(RouteSubmit, nil),
		Search:    d.url(RouteSearch, nil),
	}
}

// render serves page as the fallback of a plain request.
func (d *Demo) render(res *responder.Responder, page pageData) error {
	if sess := res.Session(); sess != nil {
		if v, ok := sess.Get(StatusKey); ok {
			page.Status = fmt.Sprint(v)
		}
	}
	page.Routes = d.links()
	res.FallbackFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pages.Execute(w, page); err != nil {
			d.logger.Error("render page", "page", page.Page, "error", err)
		}
	})
	return nil
}

// home renders the counter. The user id is locked: the client cannot
// change it without the next request being rejected.
func (d *Demo) home(res *responder.Responder) error {
	attr, err := res.DataSignals(map[string]any{
		"count":   0,
		"userId_": 42,
		"errors":  map[string]any{},
		"_open":   false,
	})
	if err != nil {
		return err
	}
	return d.render(res, pageData{Title: "Counter", Page: "home", Signals: template.HTML(attr)})
}

func (d *Demo) increment(res *responder.Responder) error {
	count := res.Store().Int("count", 0) + 1
	if err := res.Signals(map[string]any{"count": count}); err != nil {
		return err
	}
	return res.Inner("#count", strconv.Itoa(count))
}

func (d *Demo) notify(res *responder.Responder) error {
	if err := toast.Success(res, "Saved"); err != nil {
		return err
	}
	return res.Console("info", "notified", res.Store().Int("count", 0))
}

// clock streams the time into #clock until the client leaves.
func (d *Demo) clock(res *responder.Responder) error {
	return res.Stream(func(res *responder.Responder) error {
		ticker := time.NewTicker(d.opts.ClockInterval)
		defer ticker.Stop()

		for n := 0; d.opts.ClockTicks == 0 || n < d.opts.ClockTicks; n++ {
			select {
			case <-res.Done():
				return nil
			case t := <-ticker.C:
				if err := res.Inner("#clock", t.UTC().Format(time.TimeOnly)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// logout clears every signal including the locked ones and reloads home
// with a status message.
func (d *Demo) logout(res *responder.Responder) error {
	if err := res.Forget(nil, true); err != nil {
		return err
	}
	return res.RedirectRoute(RouteHome, nil).With(StatusKey, "Signed out").Send(res.Context())
}

func (d *Demo) contact(res *responder.Responder) error {
	attr, err := res.DataSignals(map[string]any{"email": "", "message": "", "errors": map[string]any{}})
	if err != nil {
		return err
	}
	return d.render(res, pageData{Title: "Contact", Page: "contact", Signals: template.HTML(attr)})
}

// submit validates the form; failures come back as the errors signal.
func (d *Demo) submit(res *responder.Responder) error {
	data, err := res.Store().Validate(signals.Rules{
		"email":   "required,email",
		"message": "required,min=5",
	})
	if err != nil {
		return err
	}
	d.logger.Info("contact message", "email", data["email"])
	if err := res.Forget([]string{responder.ErrorsSignal}, false); err != nil {
		return err
	}
	return res.RedirectRoute(RouteHome, nil).With(StatusKey, "Thanks for your message").Send(res.Context())
}

// search filters Users by the q signal and keeps the query in the URL.
func (d *Demo) search(res *responder.Responder) error {
	q := strings.ToLower(strings.TrimSpace(res.Store().String("q", "")))
	if q == "" {
		q = strings.ToLower(res.Request().URL.Query().Get("q"))
	}
	results := filter(q)

	if !res.IsReactive() {
		attr, err := res.DataSignals(map[string]any{"q": q})
		if err != nil {
			return err
		}
		return d.render(res, pageData{Title: "Search", Page: "search", Signals: template.HTML(attr), Results: results})
	}

	var b strings.Builder
	for _, name := range results {
		fmt.Fprintf(&b, `<li><a data-on-click="@post('%s')">%s</a></li>`,
			html.EscapeString(d.url(RouteUserOpen, map[string]string{"name": name})), html.EscapeString(name))
	}
	if err := res.Inner("#results", b.String()); err != nil {
		return err
	}
	return res.ReplaceURL(url.Values{"q": {q}})
}

func filter(q string) []string {
	out := make([]string, 0, len(Users))
	for _, u := range Users {
		if q == "" || strings.Contains(u, q) {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

func (d *Demo) user(res *responder.Responder) error {
	name := chi.URLParam(res.Request(), "name")
	if !contains(Users, name) {
		return d.render(res, pageData{Title: "Not found", Page: "search", Results: nil})
	}
	return d.render(res, pageData{Title: name, Page: "search", Results: []string{name}})
}

// openUser asks the client to navigate the main region to the user page.
func (d *Demo) openUser(res *responder.Responder) error {
	name := chi.URLParam(res.Request(), "name")
	if !contains(Users, name) {
		return res.Navigate(d.url(RouteSearch, nil), "", responder.NavigateOptions{Merge: responder.MergeOn})
	}
	return res.NavigateRoute(RouteUser, map[string]string{"name": name}, "", responder.NavigateOptions{})
}

func (d *Demo) dump(res *responder.Responder) error {
	all, err := res.Store().All()
	if err != nil {
		return err
	}
	rec, err := res.Store().LockedRecord()
	if err != nil {
		return err
	}
	return res.Dump(all, rec)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
