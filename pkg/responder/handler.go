package responder

import (
	"errors"
	"net/http"

	dserrors "github.com/vango-dev/datastar/internal/errors"
	"github.com/vango-dev/datastar/pkg/protocol"
	"github.com/vango-dev/datastar/pkg/signals"
)

// HandlerFunc handles one request through its Responder.
type HandlerFunc func(res *Responder) error

// Handler adapts fn to an http.Handler.
//
// Submitted locked signals are verified before fn runs; a violation is
// answered with 403. A *signals.ValidationError returned by fn is pushed
// to the client as the errors signal. Other errors become a 500 for plain
// requests and an error page for Datastar requests.
func Handler(cfg Config, fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		res := New(req, cfg)
		defer res.store.Release()

		if err := res.store.Verify(); err != nil {
			res.logger.Warn("rejected request", "path", req.URL.Path, "error", err)
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		if err := fn(res); err != nil {
			var ve *signals.ValidationError
			switch {
			case errors.As(err, &ve):
				if perr := res.ValidationErrors(ve); perr != nil {
					res.logger.Error("push validation errors", "error", perr)
				}
			case isTamper(err):
				res.logger.Warn("rejected request", "path", req.URL.Path, "error", err)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			case !res.reactive:
				res.logger.Error("handler failed", "path", req.URL.Path, "error", dserrors.From(err).FormatCompact())
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			default:
				res.logger.Error("handler failed", "path", req.URL.Path, "error", dserrors.From(err).FormatCompact())
				res.mu.Lock()
				res.events = []protocol.Event{replaceDocument(res.errorPage(err))}
				res.streamFn = nil
				res.endLocked()
				res.mu.Unlock()
			}
		}

		if err := res.Send(w); err != nil {
			res.logger.Error("send failed", "path", req.URL.Path, "error", err)
			if errors.Is(err, ErrNoFallback) {
				http.Error(w, http.StatusText(http.StatusNotAcceptable), http.StatusNotAcceptable)
			}
		}
	})
}

func isTamper(err error) bool {
	return errors.Is(err, signals.ErrTamperedSignal) || errors.Is(err, signals.ErrUnexpectedLockedSignal)
}
