package tasks

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	pageHome    = "home.html"
	pageAddTask = "add_task.html"
)

type homePage struct {
	Tasks []Task
}

type formValues struct {
	Title       string
	Description string
	DueDate     string
	Priority    string
}

func formValuesFrom(v url.Values) formValues {
	return formValues{
		Title:       v.Get("title"),
		Description: v.Get("description"),
		DueDate:     v.Get("due_date"),
		Priority:    v.Get("priority"),
	}
}

type addTaskPage struct {
	Values     formValues
	Errors     FieldErrors
	Priorities []Priority
	CSRFToken  string
}

// views holds one parsed template set per page, each sharing base.html.
type views struct {
	pages map[string]*template.Template
}

func loadViews() (*views, error) {
	v := &views{pages: make(map[string]*template.Template)}
	for _, page := range []string{pageHome, pageAddTask} {
		t, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		v.pages[page] = t
	}
	return v, nil
}

// render executes into a buffer first so a template failure can still become
// a clean 500.
func (v *views) render(w http.ResponseWriter, status int, page string, data any) error {
	t, ok := v.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
