package bootstrap

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/TheLab-ms/tipjar/internal/templates"
)

//go:embed templates/*.html
var templateFS embed.FS

var viewTemplate = templates.MustParseFS(templateFS, "templates/view.html")

type ViewData struct {
	Title   string
	Content template.HTML
}

// View wraps content in the bootstrap page layout.
func View(title string, content templates.Component) templates.Component {
	return &layoutComponent{
		title:   title,
		content: content,
	}
}

type layoutComponent struct {
	title   string
	content templates.Component
}

func (lc *layoutComponent) Render(ctx context.Context, w io.Writer) error {
	// First render the content to a buffer
	var contentBuf bytes.Buffer
	if err := lc.content.Render(ctx, &contentBuf); err != nil {
		return err
	}

	data := ViewData{
		Title:   lc.title,
		Content: template.HTML(contentBuf.String()),
	}
	return viewTemplate.Execute(w, data)
}
