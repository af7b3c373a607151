package demo

import "html/template"

var pages = template.Must(template.New("layout").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script type="module" src="https://cdn.jsdelivr.net/gh/starfederation/datastar@v1.0.0-RC.5/bundles/datastar.js"></script>
</head>
<body data-signals="{{.Signals}}">
{{with .Status}}<p id="status" role="status">{{.}}</p>{{end}}
{{if eq .Page "home"}}{{template "home" .}}{{else if eq .Page "contact"}}{{template "contact" .}}{{else}}{{template "search" .}}{{end}}
</body>
</html>
{{define "home"}}
<h1>Counter</h1>
<p>Count: <span id="count" data-text="$count">{{.Count}}</span></p>
<button data-on-click="@post('{{.Routes.Increment}}')">Increment</button>
<button data-on-click="@post('{{.Routes.Notify}}')">Notify</button>
<p id="clock" data-on-load="@get('{{.Routes.Clock}}')"></p>
<form data-on-submit="@post('{{.Routes.Logout}}')"><button>Reset</button></form>
{{end}}
{{define "contact"}}
<h1>Contact</h1>
<input data-bind-email placeholder="Email">
<span data-text="$errors.email"></span>
<textarea data-bind-message></textarea>
<span data-text="$errors.message"></span>
<button data-on-click="@post('{{.Routes.Contact}}')">Send</button>
{{end}}
{{define "search"}}
<h1>Search</h1>
<input data-bind-q data-on-input__debounce.300ms="@get('{{.Routes.Search}}')">
<ul id="results">{{range .Results}}<li>{{.}}</li>{{end}}</ul>
{{end}}
`))

type pageRoutes struct {
	Increment, Notify, Clock, Logout, Contact, Search string
}

type pageData struct {
	Title   string
	Page    string
	// Signals is DataSignals output, already escaped for the attribute.
	Signals template.HTML
	Status  string
	Count   int
	Results []string
	Routes  pageRoutes
}
