package handlers

import (
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

// Renderer implements echo.Renderer over html/template. Each page template
// is compiled against the shared layout at startup, so a bad template fails
// fast instead of at request time.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer compiles all templates.
func NewRenderer() *Renderer {
	pages := map[string]string{
		"login":         loginTemplate,
		"home":          homeTemplate,
		"page_view":     pageViewTemplate,
		"page_password": pagePasswordTemplate,
		"pages_list":    pagesListTemplate,
		"page_form":     pageFormTemplate,
		"admin_links":   adminLinksTemplate,
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, content := range pages {
		t := template.Must(template.New("layout").Parse(layoutTemplate))
		template.Must(t.Parse(content))
		templates[name] = t
	}

	return &Renderer{templates: templates}
}

// Render renders a named template with the given data.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

const layoutTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - {{.SiteName}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 64rem; margin: 0 auto; padding: 1rem; color: #1f2937; }
nav { display: flex; gap: 1rem; align-items: center; border-bottom: 1px solid #e5e7eb; padding-bottom: .75rem; margin-bottom: 1.5rem; }
nav a { text-decoration: none; color: #2563eb; }
nav form { margin-left: auto; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { border: 1px solid #e5e7eb; padding: .4rem .6rem; text-align: left; font-size: .9rem; }
th { background: #f9fafb; }
.flash-success { background: #ecfdf5; border: 1px solid #6ee7b7; padding: .5rem .75rem; margin-bottom: 1rem; }
.flash-error { background: #fef2f2; border: 1px solid #fca5a5; padding: .5rem .75rem; margin-bottom: 1rem; }
.flash-info { background: #eff6ff; border: 1px solid #93c5fd; padding: .5rem .75rem; margin-bottom: 1rem; }
.token-value { font-family: monospace; font-size: .8rem; word-break: break-all; }
.revoked { color: #9ca3af; }
input, select, textarea { font: inherit; padding: .3rem .5rem; margin: .2rem 0; }
button { font: inherit; padding: .3rem .9rem; cursor: pointer; }
.filters { display: flex; flex-wrap: wrap; gap: .5rem; align-items: end; margin: 1rem 0; }
.filters label { display: flex; flex-direction: column; font-size: .8rem; }
</style>
</head>
<body>
<nav>
<a href="/">{{.SiteName}}</a>
{{if .User}}
<a href="/pages">Pages</a>
{{if .User.Role.CanAdmin}}<a href="/admin">Magic Links</a>{{end}}
<form method="POST" action="/logout">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<button type="submit">Logout ({{.User.Username}})</button>
</form>
{{else}}
<a href="/login" style="margin-left: auto;">Login</a>
{{end}}
</nav>
{{range .Flash.Success}}<div class="flash-success">{{.}}</div>{{end}}
{{range .Flash.Error}}<div class="flash-error">{{.}}</div>{{end}}
{{range .Flash.Info}}<div class="flash-info">{{.}}</div>{{end}}
{{template "content" .}}
</body>
</html>`

const loginTemplate = `{{define "content"}}
<h1>Login</h1>
{{if .Error}}<div class="flash-error">{{.Error}}</div>{{end}}
<form method="POST" action="/login">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<input type="hidden" name="next" value="{{.Next}}">
<p><label>Username<br><input type="text" name="username" value="{{.Username}}" required autofocus></label></p>
<p><label>Password<br><input type="password" name="password" required></label></p>
<p><button type="submit">Login</button></p>
</form>
{{end}}`

const homeTemplate = `{{define "content"}}
<h1>{{.SiteName}}</h1>
<ul>
{{range .Pages}}
<li><a href="/p/{{.Slug}}">{{.Title}}</a>{{if .HasPassword}} &#128274;{{end}}</li>
{{else}}
<li>No pages yet.</li>
{{end}}
</ul>
{{end}}`

const pageViewTemplate = `{{define "content"}}
<h1>{{.Page.Title}}</h1>
<div>{{.ContentHTML}}</div>
{{end}}`

const pagePasswordTemplate = `{{define "content"}}
<h1>{{.Page.Title}}</h1>
<p>This content is password protected. To view it please enter the password below:</p>
{{if .Error}}<div class="flash-error">{{.Error}}</div>{{end}}
<form method="POST" action="/p/{{.Page.Slug}}/password">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<p><label>Password<br><input type="password" name="password" required autofocus></label></p>
<p><button type="submit">Enter</button></p>
</form>
{{end}}`

const pagesListTemplate = `{{define "content"}}
<h1>Pages</h1>
<p><a href="/new">New page</a></p>
<table>
<tr><th>ID</th><th>Title</th><th>Slug</th><th>Protected</th><th>Updated</th><th></th></tr>
{{range .Pages}}
<tr>
<td>{{.ID}}</td>
<td><a href="/p/{{.Slug}}">{{.Title}}</a></td>
<td>{{.Slug}}</td>
<td>{{if .HasPassword}}yes{{end}}</td>
<td>{{.UpdatedAt.Format "2006-01-02 15:04"}}</td>
<td><a href="/edit/{{.ID}}">Edit</a></td>
</tr>
{{end}}
</table>
{{end}}`

const pageFormTemplate = `{{define "content"}}
<h1>{{if .Page.ID}}Edit Page{{else}}New Page{{end}}</h1>
<form method="POST" action="{{if .Page.ID}}/pages/{{.Page.ID}}{{else}}/pages{{end}}">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<p><label>Title<br><input type="text" name="title" value="{{.Page.Title}}" required size="60"></label></p>
<p><label>Slug<br><input type="text" name="slug" value="{{.Page.Slug}}" size="60" placeholder="generated from title if empty"></label></p>
<p><label>Password (leave empty for public access)<br><input type="text" name="password" value="{{.Page.Password}}" size="60"></label></p>
<p><label>Content (markdown)<br><textarea name="content" rows="18" cols="80">{{.Page.Content}}</textarea></label></p>
<p><button type="submit">Save</button></p>
</form>
{{if .Page.ID}}
<form method="POST" action="/pages/{{.Page.ID}}/delete" onsubmit="return confirm('Delete this page?');">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<p><button type="submit">Delete page</button></p>
</form>
{{end}}
{{end}}`

const adminLinksTemplate = `{{define "content"}}
<h1>Magic Links</h1>

{{range .Items}}
<h2>{{.Page.Title}} (id {{.Page.ID}})</h2>
<form method="POST" action="/admin/tokens">
<input type="hidden" name="csrf_token" value="{{$.CSRFToken}}">
<input type="hidden" name="page_id" value="{{.Page.ID}}">
<label>Label <input type="text" name="name" placeholder="optional, e.g. newsletter"></label>
<button type="submit">Create link</button>
</form>
{{if .Active}}
<table>
<tr><th>Label</th><th>Link</th><th>Usage</th><th></th></tr>
{{range .Active}}
<tr>
<td>{{.Token.Name}}</td>
<td class="token-value">{{$.SiteURL}}/?magic_token={{.Token.Value}}</td>
<td>
{{if .Usage}}
<details>
<summary>{{len .Usage}} redemption(s)</summary>
<table>
<tr><th>IP</th><th>Location</th><th>Time</th></tr>
{{range .Usage}}
<tr><td>{{.IP}}</td><td>{{.Location}}</td><td>{{.Timestamp}}</td></tr>
{{end}}
</table>
</details>
{{else}}Never used{{end}}
</td>
<td>
<form method="POST" action="/admin/tokens/revoke">
<input type="hidden" name="csrf_token" value="{{$.CSRFToken}}">
<input type="hidden" name="page_id" value="{{.PageID}}">
<input type="hidden" name="token" value="{{.Token.Value}}">
<button type="submit">Revoke</button>
</form>
</td>
</tr>
{{end}}
</table>
{{else}}
<p>No active links.</p>
{{end}}
{{if .Revoked}}
<details>
<summary>{{len .Revoked}} revoked link(s)</summary>
<table>
<tr><th>Label</th><th>Token</th></tr>
{{range .Revoked}}
<tr class="revoked"><td>{{.Token.Name}}</td><td class="token-value">{{.Token.Value}}</td></tr>
{{end}}
</table>
</details>
{{end}}
{{else}}
<p>No password-protected pages. Add a password to a page to create magic links for it.</p>
{{end}}

<h2>Usage Log</h2>
<form method="GET" action="/admin" class="filters">
<label>Page
<select name="page_id">
<option value="">All</option>
{{range .Facets.PageIDs}}<option value="{{.}}" {{if eq . $.Filter.PageID}}selected{{end}}>{{.}}</option>{{end}}
</select>
</label>
<label>Title
<select name="page_title">
<option value="">All</option>
{{range .Facets.PageTitles}}<option value="{{.}}" {{if eq . $.Filter.PageTitle}}selected{{end}}>{{.}}</option>{{end}}
</select>
</label>
<label>Token
<select name="token">
<option value="">All</option>
{{range .Facets.Tokens}}<option value="{{.}}" {{if eq . $.Filter.Token}}selected{{end}}>{{.}}</option>{{end}}
</select>
</label>
<label>Link label
<select name="token_name">
<option value="">All</option>
{{range .Facets.TokenNames}}<option value="{{.}}" {{if eq . $.Filter.TokenName}}selected{{end}}>{{.}}</option>{{end}}
</select>
</label>
<label>IP
<select name="ip">
<option value="">All</option>
{{range .Facets.IPs}}<option value="{{.}}" {{if eq . $.Filter.IP}}selected{{end}}>{{.}}</option>{{end}}
</select>
</label>
<label>Location
<select name="location">
<option value="">All</option>
{{range .Facets.Locations}}<option value="{{.}}" {{if eq . $.Filter.Location}}selected{{end}}>{{.}}</option>{{end}}
</select>
</label>
<label>From <input type="date" name="date_from" value="{{.Filter.DateFrom}}"></label>
<label>To <input type="date" name="date_to" value="{{.Filter.DateTo}}"></label>
<label>Sort
<select name="sort">
<option value="" {{if not .SortByTime}}selected{{end}}>By page</option>
<option value="time" {{if .SortByTime}}selected{{end}}>By time</option>
</select>
</label>
<button type="submit">Filter</button>
<a href="/admin">Reset</a>
</form>
<table>
<tr><th>Page</th><th>Link label</th><th>Token</th><th>IP</th><th>Location</th><th>Time</th></tr>
{{range .Records}}
<tr>
<td>{{.PageTitle}} ({{.PageID}})</td>
<td>{{.TokenName}}</td>
<td class="token-value">{{.Token}}</td>
<td>{{.IP}}</td>
<td>{{.Location}}</td>
<td>{{.Timestamp}}</td>
</tr>
{{else}}
<tr><td colspan="6">No usage recorded.</td></tr>
{{end}}
</table>
{{end}}`
