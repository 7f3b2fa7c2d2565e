// Package web embeds the HTML templates and static assets and builds the
// named template set used by gin.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/multitemplate"

	"weblog/internal/models"
	"weblog/internal/utils"
)

//go:embed templates static
var files embed.FS

// Static serves the embedded static directory.
func Static() http.FileSystem {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

// FuncMap is shared by every template.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"dict": func(values ...interface{}) (map[string]interface{}, error) {
			if len(values)%2 != 0 {
				return nil, fmt.Errorf("invalid dict call")
			}
			dict := make(map[string]interface{}, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict keys must be strings")
				}
				dict[key] = values[i+1]
			}
			return dict, nil
		},
		"add": func(a, b int) int {
			return a + b
		},
		"safeHTML": func(s string) template.HTML {
			return template.HTML(s)
		},
		"css": func(s string) template.CSS {
			return template.CSS(s)
		},
		"urlquery": func(s string) string {
			return url.QueryEscape(s)
		},
		"summary":   utils.Summary,
		"pluralize": utils.Pluralize,
		"longDate":  models.LongDate,
		"datePath":  models.DatePath,
		"isoDate": func(t time.Time) string {
			return t.UTC().Format(time.RFC3339)
		},
		"time": func(t time.Time) string {
			return t.UTC().Format("3:04 pm")
		},
		"monthURL": func(t time.Time) string {
			return fmt.Sprintf("/%d/%s/", t.Year(), t.Format("Jan"))
		},
		"monthName": func(t time.Time) string {
			return t.Format("January 2006")
		},
		"join": strings.Join,
	}
}

// assemble lists the files of one page: the layout, every include, then the view.
func assemble(view string) ([]string, error) {
	layouts, err := fs.Glob(files, "templates/layouts/*.html")
	if err != nil {
		return nil, err
	}
	includes, err := fs.Glob(files, "templates/includes/*.html")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(layouts)+len(includes)+1)
	out = append(out, layouts...)
	out = append(out, includes...)
	return append(out, view), nil
}

// Renderer parses every view under templates/views into a template named
// after its file, for example "index.html".
func Renderer() (multitemplate.Render, error) {
	r := multitemplate.New()
	views, err := fs.Glob(files, "templates/views/*.html")
	if err != nil {
		return nil, err
	}
	funcs := FuncMap()
	for _, view := range views {
		set, err := assemble(view)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(path.Base(set[0])).Funcs(funcs).ParseFS(files, set...)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", view, err)
		}
		r.Add(path.Base(view), tmpl)
	}
	return r, nil
}
