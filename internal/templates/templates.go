package templates

import (
	"context"
	"html/template"
	"io"
	"io/fs"
	"strings"
)

// Component represents a template component that can be rendered
type Component interface {
	Render(ctx context.Context, w io.Writer) error
}

// TemplateComponent implements Component interface for html/template rendering
type TemplateComponent struct {
	Template *template.Template
	Data     any
}

// Render renders the template component to the writer
func (tc *TemplateComponent) Render(ctx context.Context, w io.Writer) error {
	return tc.Template.Execute(w, tc.Data)
}

// MustParseFS parses the given file from an embedded filesystem, panicking on error.
// Templates are parsed once at init so a broken template fails fast.
func MustParseFS(fsys fs.FS, name string) *template.Template {
	return template.Must(template.New(name[strings.LastIndex(name, "/")+1:]).ParseFS(fsys, name))
}

// ComponentFromString is a helper for creating components from inline templates.
func ComponentFromString(tmplStr string, data any) Component {
	tmpl := template.Must(template.New("inline").Parse(tmplStr))
	return &TemplateComponent{
		Template: tmpl,
		Data:     data,
	}
}

// String renders the component into a string.
func String(ctx context.Context, c Component) (string, error) {
	var buf strings.Builder
	err := c.Render(ctx, &buf)
	return buf.String(), err
}
