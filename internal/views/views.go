package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page template names
const (
	IndexPage   = "index.html"
	ProfilePage = "profile.html"
	ErrorPage   = "error.html"
)

// Renderer executes the embedded page templates
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded templates. Templates fail on missing data
// instead of printing "<no value>".
func New() (*Renderer, error) {
	tmpl, err := template.New("").Option("missingkey=error").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the named page into a buffer and writes it with status.
// Execution errors produce the error page with a 500 instead of a
// half-written response.
func (r *Renderer) Render(c *gin.Context, status int, name string, data gin.H) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, map[string]any(data)); err != nil {
		_ = c.Error(fmt.Errorf("render %s: %w", name, err))
		r.Error(c, http.StatusInternalServerError, "Something went wrong rendering this page.")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// Error renders the error page and aborts the handler chain
func (r *Renderer) Error(c *gin.Context, status int, message string) {
	defer c.Abort()

	data := map[string]any{
		"title":           http.StatusText(status),
		"status":          status,
		"message":         message,
		"isAuthenticated": false,
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, ErrorPage, data); err != nil {
		_ = c.Error(fmt.Errorf("render %s: %w", ErrorPage, err))
		c.String(status, "%d %s", status, message)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}
