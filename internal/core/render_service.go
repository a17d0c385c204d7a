package core

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"gwi.com/mermaid-studio/internal/renderer"
	"gwi.com/mermaid-studio/internal/store"
)

const (
	PlaceholderText     = "Your chart will appear here."
	unknownSyntaxError  = "Unknown syntax error."
	elementIDPrefix     = "mermaid-graph-"
	defaultRenderBudget = 30 * time.Second
)

type RenderStatus string

const (
	RenderPlaceholder RenderStatus = "placeholder"
	RenderOK          RenderStatus = "ok"
	RenderError       RenderStatus = "error"
)

// RenderResult is transient. For OK results SVG is set, for Error results
// Error is set, and a placeholder carries neither.
type RenderResult struct {
	Status RenderStatus `json:"status"`
	SVG    string       `json:"svg,omitempty"`
	Error  string       `json:"error,omitempty"`
}

type RenderService struct {
	renderer renderer.Renderer
	timeout  time.Duration
}

func NewRenderService(r renderer.Renderer, timeout time.Duration) *RenderService {
	if timeout <= 0 {
		timeout = defaultRenderBudget
	}
	return &RenderService{renderer: r, timeout: timeout}
}

// Render never returns an error; renderer failures become an Error result.
func (s *RenderService) Render(ctx context.Context, source string, theme store.Theme) RenderResult {
	if strings.TrimSpace(source) == "" {
		return RenderResult{Status: RenderPlaceholder}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	svg, err := s.renderer.Render(ctx, renderer.Request{
		ElementID: elementIDPrefix + uuid.NewString(),
		Source:    source,
		Theme:     theme,
	})
	if err != nil {
		return RenderResult{Status: RenderError, Error: describeRenderError(err)}
	}
	if svg == "" {
		return RenderResult{Status: RenderError, Error: unknownSyntaxError}
	}
	return RenderResult{Status: RenderOK, SVG: svg}
}

func describeRenderError(err error) string {
	if err == nil {
		return unknownSyntaxError
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	var syn *renderer.SyntaxError
	if errors.As(err, &syn) && syn.Str != "" {
		return syn.Str
	}
	return unknownSyntaxError
}

type RenderEventKind string

const (
	RenderStarted  RenderEventKind = "render_started"
	RenderFinished RenderEventKind = "render_finished"
)

type RenderEvent struct {
	Kind   RenderEventKind `json:"kind"`
	Result RenderResult    `json:"result"`
}

// RenderSession debounces renders for one editor. Only the newest scheduled
// render may deliver a result.
type RenderSession struct {
	service  *RenderService
	debounce func(func())
	emit     func(RenderEvent)

	mu     sync.Mutex
	gen    uint64
	closed bool

	renderMu sync.Mutex
}

func NewRenderSession(service *RenderService, quiet time.Duration, emit func(RenderEvent)) *RenderSession {
	return &RenderSession{
		service:  service,
		debounce: debounce.New(quiet),
		emit:     emit,
	}
}

// Schedule reports loading right away and renders once edits go quiet.
func (r *RenderSession) Schedule(source string, theme store.Theme) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	if strings.TrimSpace(source) == "" {
		// Stops any pending timer from rendering stale text.
		r.debounce(func() {})
		r.deliver(gen, RenderEvent{Kind: RenderFinished, Result: RenderResult{Status: RenderPlaceholder}})
		return
	}

	r.deliver(gen, RenderEvent{Kind: RenderStarted})
	r.debounce(func() {
		r.run(gen, source, theme)
	})
}

func (r *RenderSession) run(gen uint64, source string, theme store.Theme) {
	if !r.current(gen) {
		return
	}
	r.renderMu.Lock()
	defer r.renderMu.Unlock()
	if !r.current(gen) {
		return
	}
	res := r.service.Render(context.Background(), source, theme)
	if res.Status == RenderError {
		log.Printf("Render failed: %s", res.Error)
	}
	r.deliver(gen, RenderEvent{Kind: RenderFinished, Result: res})
}

func (r *RenderSession) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && gen == r.gen
}

func (r *RenderSession) deliver(gen uint64, ev RenderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen {
		return
	}
	r.emit(ev)
}

// Close drops pending work. No event is emitted afterwards.
func (r *RenderSession) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.gen++
}
