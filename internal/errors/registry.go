package errors

import "sort"

// Template defines a registered error code.
type Template struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

var registry = map[string]Template{
	// Signal security (DS001-DS009)
	"DS001": {
		Category:   CategorySecurity,
		Message:    "Locked signal tampered",
		Detail:     "A locked signal submitted by the client differs from the value the server stored for it, or the stored record failed authentication.",
		Suggestion: "Only change locked signals on the server.",
	},
	"DS002": {
		Category:   CategorySecurity,
		Message:    "Unexpected locked signal",
		Detail:     "The client submitted a locked signal that the server never set in this session.",
		Suggestion: "Patch locked signals from the server before the client can send them.",
	},
	"DS003": {
		Category:   CategoryConfig,
		Message:    "No encryption key configured",
		Detail:     "Locked signals are stored encrypted in the session and need an encryption key.",
		Suggestion: "Run `datastar keygen` and set signals.encryption_key.",
	},
	"DS004": {
		Category:   CategoryConfig,
		Message:    "No session available",
		Detail:     "Locked signals and flash data are kept in the session, but the request carries none.",
		Suggestion: "Wrap the handler with the session manager's middleware.",
	},

	// Navigation (DS010-DS019)
	"DS010": {
		Category:   CategoryNavigation,
		Message:    "Invalid navigation target",
		Detail:     "Navigation targets must be relative paths or http(s) URLs on the application's own host.",
		Suggestion: "Pass a path such as \"/dashboard\" or a named route.",
	},
	"DS011": {
		Category:   CategoryNavigation,
		Message:    "Unknown route",
		Detail:     "No route is registered under the requested name.",
		Suggestion: "Register the route with routes.Registry before building URLs for it.",
	},
	"DS012": {
		Category:   CategoryNavigation,
		Message:    "URL already updated in this response",
		Detail:     "Several History API updates in one response race each other in the browser, so only one is allowed.",
		Suggestion: "Compute the final URL and push or replace it once.",
	},

	// Validation (DS020-DS029)
	"DS020": {
		Category:   CategoryValidation,
		Message:    "Signal validation failed",
		Detail:     "One or more signals do not satisfy their validation rules.",
		Suggestion: "Push the field errors back with Responder.ValidationErrors.",
	},

	// Responses and streams (DS030-DS039)
	"DS030": {
		Category:   CategoryProtocol,
		Message:    "No fallback for a non-Datastar request",
		Detail:     "The endpoint was requested without the Datastar-Request header and no fallback response was configured.",
		Suggestion: "Call Responder.Fallback with a handler for plain requests.",
	},
	"DS031": {
		Category: CategoryProtocol,
		Message:  "Response already sent",
		Detail:   "Events were emitted after the response had been written.",
	},
	"DS032": {
		Category: CategoryStream,
		Message:  "Panic while handling the request",
		Detail:   "The handler panicked. The stream was ended after rendering this page.",
	},
	"DS033": {
		Category: CategoryStream,
		Message:  "Client disconnected",
		Detail:   "A write to the event stream failed or the request was cancelled.",
	},
	"DS034": {
		Category:   CategoryProtocol,
		Message:    "Empty event name",
		Detail:     "Dispatch needs a non-empty DOM event name.",
		Suggestion: "Pass the event name as the first argument.",
	},

	// Configuration (DS040-DS049)
	"DS040": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	"DS041": {
		Category:   CategoryConfig,
		Message:    "Invalid encryption key",
		Detail:     "The key must decode to 32 bytes.",
		Suggestion: "Generate one with `datastar keygen`.",
	},

	"DS099": {
		Category: CategoryStream,
		Message:  "Request failed",
	},
}

// Lookup returns the template registered under code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns every registered code in order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for c := range registry {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
