// Package views renders the server-side pages from embedded templates.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"caminomanager/internal/entity"
	"caminomanager/pkg/email"
	"caminomanager/pkg/requestcontext"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	PageLogin     = "login.html"
	PageDashboard = "dashboard.html"
	PageTable     = "table.html"
	PageError     = "error.html"
)

// Chrome is the data every page layout needs.
type Chrome struct {
	User     *requestcontext.Identity
	Entities []entity.Config
}

type LoginPage struct {
	Chrome
	Error      string
	Email      string
	RedirectTo string
}

type DashboardPage struct {
	Chrome
}

type ErrorPage struct {
	Chrome
	Title   string
	Message string
}

// TablePage is one page of an entity table.
type TablePage struct {
	Chrome
	Config  entity.Config
	Columns []entity.Field
	Page    *entity.Page
	Query   entity.Query
}

// Pages is the page count shown to the user; an empty table has one page.
func (p TablePage) Pages() int {
	if p.Page.TotalPages < 1 {
		return 1
	}
	return p.Page.TotalPages
}

// PageURL links to page n keeping search and sort.
func (p TablePage) PageURL(n int) string {
	return p.url(n, p.Query.Sort)
}

// SortURL links to the first page sorted by field, toggling direction when
// the table is already sorted by it.
func (p TablePage) SortURL(field string) string {
	sort := field
	if p.Query.Sort == field {
		sort = "-" + field
	}
	return p.url(1, sort)
}

func (p TablePage) url(page int, sort string) string {
	q := url.Values{}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	if p.Query.Search != "" {
		q.Set("q", p.Query.Search)
	}
	if sort != "" {
		q.Set("sort", sort)
	}
	if len(q) == 0 {
		return p.Config.Route
	}
	return p.Config.Route + "?" + q.Encode()
}

var funcs = template.FuncMap{
	"cell":        Cell,
	"displayName": email.DisplayName,
	"inc":         func(n int) int { return n + 1 },
	"dec":         func(n int) int { return n - 1 },
}

// Cell formats one record value for display.
func Cell(rec *entity.Record, f entity.Field) string {
	v, ok := rec.Data[f.Name]
	if !ok || v == nil {
		return ""
	}
	switch f.Type {
	case entity.FieldBool:
		if b, _ := v.(bool); b {
			return "Sí"
		}
		return "No"
	case entity.FieldInt:
		if n, ok := v.(float64); ok {
			return strconv.FormatInt(int64(n), 10)
		}
	}
	return fmt.Sprint(v)
}

// Renderer executes the page templates.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses every page together with the shared layout.
func New() (*Renderer, error) {
	base, err := template.New("layout").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, page := range []string{PageLogin, PageDashboard, PageTable, PageError} {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+page); err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

// Render writes page with status. The page is rendered to a buffer first so
// a template error never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Assets serves the embedded stylesheet under /static/.
func Assets() http.Handler {
	return http.FileServerFS(staticFS)
}
