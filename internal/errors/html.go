package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font:15px/1.5 system-ui,sans-serif;margin:0;background:#fafafa;color:#1f2328}
main{max-width:860px;margin:48px auto;padding:0 24px}
h1{font-size:22px;margin:0 0 8px}
.code{display:inline-block;font:600 12px ui-monospace,monospace;background:#cf222e;color:#fff;border-radius:4px;padding:2px 6px;margin-bottom:12px}
.hint{background:#ddf4ff;border-left:4px solid #0969da;padding:8px 12px}
pre{background:#fff;border:1px solid #d0d7de;border-radius:6px;padding:12px;overflow:auto;font:13px ui-monospace,monospace}
</style>
</head>
<body>
<main>
{{if .Code}}<span class="code">{{.Code}}</span>{{end}}
<h1>{{.Title}}</h1>
{{if .Detail}}<p>{{.Detail}}</p>{{end}}
{{if .Cause}}<pre>{{.Cause}}</pre>{{end}}
{{if .Suggestion}}<p class="hint">{{.Suggestion}}</p>{{end}}
{{range .Blocks}}<pre>{{.}}</pre>
{{end}}{{if .Stack}}<pre>{{range .Stack}}{{.}}
{{end}}</pre>{{end}}
</main>
</body>
</html>`))

type page struct {
	Code       string
	Title      string
	Detail     string
	Cause      string
	Suggestion string
	Blocks     []string
	Stack      []string
}

func render(p page) string {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return "<!DOCTYPE html><title>Error</title><h1>Error</h1>"
	}
	return buf.String()
}

// FormatHTML renders the error as a full HTML page. Without debug only the
// code and the short message are shown.
func (e *Error) FormatHTML(debug bool) string {
	p := page{Code: e.Code, Title: e.Message}
	if debug {
		p.Detail = e.Detail
		p.Suggestion = e.Suggestion
		p.Stack = e.Stack
		if e.Wrapped != nil {
			p.Cause = e.Wrapped.Error()
		}
	}
	return render(p)
}

// MinimalPage renders err as an HTML page. It is the fallback when an
// application error renderer is missing or fails.
func MinimalPage(err error, debug bool) string {
	e := From(err)
	if e == nil {
		e = New("DS099")
	}
	return e.FormatHTML(debug)
}

// DumpHTML renders values as an HTML diagnostic page, one block per value.
func DumpHTML(values ...any) string {
	p := page{Title: "Dump"}
	for _, v := range values {
		p.Blocks = append(p.Blocks, dump(v))
	}
	return render(p)
}

func dump(v any) string {
	if err, ok := v.(error); ok {
		return fmt.Sprintf("%T: %v", v, err)
	}
	if b, err := json.MarshalIndent(v, "", "  "); err == nil {
		return fmt.Sprintf("%T\n%s", v, b)
	}
	return fmt.Sprintf("%#v", v)
}
