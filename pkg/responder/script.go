package responder

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/vango-dev/datastar/pkg/protocol"
)

// ScriptOptions configures JS.
type ScriptOptions struct {
	// Keep leaves the script element in the document after it ran.
	Keep bool

	// Attributes are added to the script element, e.g. {"type": "module"}.
	Attributes map[string]string
}

// JS runs code in the browser by appending a script element to the body.
// The element removes itself after running unless opts.Keep is set.
func (r *Responder) JS(code string, opts ScriptOptions) error {
	return r.emit(scriptEvent(code, opts))
}

func scriptEvent(code string, opts ScriptOptions) protocol.Event {
	var b strings.Builder
	b.WriteString("<script")
	if !opts.Keep {
		b.WriteString(` data-effect="el.remove()"`)
	}
	keys := make([]string, 0, len(opts.Attributes))
	for k := range opts.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ` %s="%s"`, html.EscapeString(k), html.EscapeString(opts.Attributes[k]))
	}
	b.WriteString(">")
	b.WriteString(strings.ReplaceAll(code, "</script", `<\/script`))
	b.WriteString("</script>")

	return protocol.PatchElements(b.String(), protocol.ElementsOptions{
		Selector: "body",
		Mode:     protocol.ModeAppend,
	})
}

// DispatchOptions configures Dispatch. Without Selector or Body the event
// is dispatched on window.
type DispatchOptions struct {
	// Selector dispatches on every matching element.
	Selector string

	// Body dispatches on document.body.
	Body bool

	Bubbles    bool
	Cancelable bool
	Composed   bool
}

// Dispatch fires a CustomEvent named event carrying payload as detail.
func (r *Responder) Dispatch(event string, payload any, opts DispatchOptions) error {
	script, err := dispatchScript(event, payload, opts)
	if err != nil {
		return err
	}
	return r.JS(script, ScriptOptions{})
}

func dispatchScript(event string, payload any, opts DispatchOptions) (string, error) {
	if strings.TrimSpace(event) == "" {
		return "", ErrEmptyEventName
	}
	detail, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("responder: encode %q detail: %w", event, err)
	}
	init := fmt.Sprintf("{detail: %s, bubbles: %t, cancelable: %t, composed: %t}", detail, opts.Bubbles, opts.Cancelable, opts.Composed)
	name := jsString(event)

	switch {
	case opts.Selector != "":
		return fmt.Sprintf("document.querySelectorAll(%s).forEach((el) => el.dispatchEvent(new CustomEvent(%s, %s)));",
			jsString(opts.Selector), name, init), nil
	case opts.Body:
		return fmt.Sprintf("document.body.dispatchEvent(new CustomEvent(%s, %s));", name, init), nil
	default:
		return fmt.Sprintf("window.dispatchEvent(new CustomEvent(%s, %s));", name, init), nil
	}
}

// Console logs values in the browser console at level: log, info, warn,
// error or debug. Unknown levels log.
func (r *Responder) Console(level string, values ...any) error {
	switch level {
	case "log", "info", "warn", "error", "debug":
	default:
		level = "log"
	}
	args := make([]string, 0, len(values))
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("responder: encode console value: %w", err)
		}
		args = append(args, string(b))
	}
	return r.JS(fmt.Sprintf("console.%s(%s);", level, strings.Join(args, ", ")), ScriptOptions{})
}

// Reload reloads the page after the redirect delay.
func (r *Responder) Reload() error {
	return r.JS(fmt.Sprintf("setTimeout(() => window.location.reload(), %d)", r.redirectDelay().Milliseconds()), ScriptOptions{})
}

// jsString encodes s as a JavaScript string literal safe inside a script
// element.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
