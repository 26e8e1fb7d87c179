package bootstrap

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/TheLab-ms/tipjar/internal/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockComponent() templates.Component {
	return templates.ComponentFromString(`<h1>Test Content</h1><p>{{.}}</p>`, "<script>")
}

func TestView(t *testing.T) {
	out, err := templates.String(context.Background(), View("Tip Jar", mockComponent()))
	require.NoError(t, err)

	assert.Contains(t, out, "<title>Tip Jar</title>")
	assert.Contains(t, out, "<h1>Test Content</h1>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, `<link rel="icon" href="/assets/beer.svg">`)
}

type failingComponent struct{}

func (failingComponent) Render(ctx context.Context, w io.Writer) error {
	return errors.New("boom")
}

func TestViewContentError(t *testing.T) {
	_, err := templates.String(context.Background(), View("x", failingComponent{}))
	assert.EqualError(t, err, "boom")
}
