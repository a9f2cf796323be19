package types

import (
	"context"
	"net/http"
)

// Renderer produces the markup for a URL. Implementations are expected to
// be slow and fallible; the engine always drives them through a deadline
// and tolerates a render completing after its caller gave up.
type Renderer interface {
	Render(ctx context.Context, url string, req *http.Request, opts RenderOptions) (string, error)
}

// RendererFunc adapts a plain function to the Renderer interface.
type RendererFunc func(ctx context.Context, url string, req *http.Request, opts RenderOptions) (string, error)

func (f RendererFunc) Render(ctx context.Context, url string, req *http.Request, opts RenderOptions) (string, error) {
	return f(ctx, url, req, opts)
}

type RenderOptions struct {
	BasePath          string `yaml:"base_path" json:"base_path"`
	InlineCriticalCSS bool   `yaml:"inline_critical_css" json:"inline_critical_css"`

	// Bootstrap is an opaque application handle forwarded to the renderer,
	// for renderers that need a reference to the app they are rendering.
	Bootstrap interface{} `yaml:"-" json:"-"`
}

// RenderState is the machine-readable block a rendered page may embed to
// report its revalidate directive and any errors that occurred upstream
// while the page was rendering (a failed API call baked into the markup).
type RenderState struct {
	Revalidate *int     `json:"revalidate"`
	Errors     []string `json:"errors,omitempty"`
}
