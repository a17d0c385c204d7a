// Package renderer adapts external Mermaid renderers (mermaid-cli, Kroki)
// behind a single interface.
package renderer

import (
	"context"
	"fmt"
	"strings"

	"gwi.com/mermaid-studio/internal/store"
)

type Request struct {
	// ElementID is the id given to the root <svg>. A fresh one per render
	// keeps renderer-side caches from colliding.
	ElementID string
	Source    string
	Theme     store.Theme
}

type Renderer interface {
	Render(ctx context.Context, req Request) (string, error)
}

// SyntaxError is reported when the renderer rejects the diagram source.
// Message is the human readable text; Str is the raw parser output some
// renderers provide instead.
type SyntaxError struct {
	Message string
	Str     string
}

func (e *SyntaxError) Error() string {
	return e.Message
}

// New picks a backend by name: "mmdc" (the default) or "kroki".
func New(kind, mmdcPath, krokiURL string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "mmdc":
		return NewMmdcRenderer(mmdcPath), nil
	case "kroki":
		if krokiURL == "" {
			return nil, fmt.Errorf("kroki renderer needs a base URL")
		}
		return NewKrokiRenderer(krokiURL, nil), nil
	}
	return nil, fmt.Errorf("unknown renderer %q", kind)
}
