package handler

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates renders the embedded HTML pages.
type Templates struct {
	t *template.Template
}

func NewTemplates() *Templates {
	return &Templates{t: template.Must(template.ParseFS(templateFS, "templates/*.html"))}
}

func (t *Templates) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return t.t.ExecuteTemplate(w, name, data)
}
