package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gwi.com/mermaid-studio/internal/catalog"
	"gwi.com/mermaid-studio/internal/export"
	"gwi.com/mermaid-studio/internal/store"
	"gwi.com/mermaid-studio/internal/utils"
	"gwi.com/mermaid-studio/internal/viewport"
)

// MaxFetchedChars caps page text pulled in through FetchURL.
const MaxFetchedChars = 100000

var (
	ErrNothingToExport   = errors.New("nothing to export")
	ErrExampleNotFound   = errors.New("example not found")
	ErrEmptyInstructions = errors.New("update instructions are empty")
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrFetchFailed       = errors.New("failed to fetch URL")
	ErrUnknownViewAction = errors.New("unknown view action")
)

// UnsupportedInputError is returned for attachments the model cannot take.
type UnsupportedInputError struct {
	Name     string
	MIMEType string
}

func (e *UnsupportedInputError) Error() string {
	return fmt.Sprintf("unsupported attachment %q (%s)", e.Name, e.MIMEType)
}

// Generator produces diagram code. LLMService is the production one.
type Generator interface {
	Generate(ctx context.Context, in GenerateInput, cfg store.AIConfig) (string, error)
	ListModels(ctx context.Context, cfg store.AIConfig) []ModelInfo
}

type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
	// FromURL marks page text pulled in by FetchURL; Name is then the URL.
	FromURL bool
}

type AIRequest struct {
	Mode       AIMode
	Prompt     string
	Attachment *Attachment
}

type EventKind string

const (
	EventRenderStarted  EventKind = "render_started"
	EventRenderFinished EventKind = "render_finished"
	EventCodeReplaced   EventKind = "code_replaced"
	EventView           EventKind = "view"
)

type Event struct {
	Type   EventKind           `json:"type"`
	Result *RenderResult       `json:"result,omitempty"`
	Code   string              `json:"code,omitempty"`
	Origin Origin              `json:"origin,omitempty"`
	View   *viewport.Transform `json:"view,omitempty"`
}

// PointerEvent is a pan gesture forwarded from a client.
type PointerEvent struct {
	Type    string           `json:"type"`
	Button  int              `json:"button"`
	X       float64          `json:"x"`
	Y       float64          `json:"y"`
	Touches []viewport.Point `json:"touches,omitempty"`
}

type StudioService struct {
	state      *AppState
	render     *RenderService
	session    *RenderSession
	view       *viewport.Controller
	exporter   *export.Exporter
	llm        Generator
	catalog    *catalog.Catalog
	httpClient *http.Client

	mu   sync.RWMutex
	last RenderResult

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	unsubscribe func()
}

func NewStudioService(state *AppState, render *RenderService, llm Generator, cat *catalog.Catalog, debounce time.Duration) *StudioService {
	s := &StudioService{
		state:      state,
		render:     render,
		view:       viewport.New(),
		exporter:   export.NewExporter(),
		llm:        llm,
		catalog:    cat,
		httpClient: newFetchClient(),
		last:       RenderResult{Status: RenderPlaceholder},
		subs:       make(map[int]func(Event)),
	}
	s.session = NewRenderSession(render, debounce, s.onRenderEvent)
	s.unsubscribe = state.Subscribe(s.onChange)
	return s
}

// Start schedules the first render of the restored source.
func (s *StudioService) Start() {
	s.session.Schedule(s.state.Code(), s.state.Theme())
}

func (s *StudioService) Close() {
	s.unsubscribe()
	s.session.Close()
}

func (s *StudioService) State() *AppState {
	return s.state
}

func (s *StudioService) Catalog() *catalog.Catalog {
	return s.catalog
}

// Subscribe registers fn for studio events. fn must not block.
func (s *StudioService) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *StudioService) publish(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *StudioService) onChange(c Change) {
	switch {
	case c.Origin == OriginExternal:
		// Another process changed the session; editors pick up its source
		// but keep their viewport.
		s.publish(Event{Type: EventCodeReplaced, Code: c.Code, Origin: c.Origin})
	case c.Replaced:
		t := s.view.Reset()
		s.publish(Event{Type: EventCodeReplaced, Code: c.Code, Origin: c.Origin})
		s.publish(Event{Type: EventView, View: &t})
	}
	s.session.Schedule(c.Code, c.Theme)
}

func (s *StudioService) onRenderEvent(ev RenderEvent) {
	switch ev.Kind {
	case RenderStarted:
		s.mu.RLock()
		prevErr := s.last.Error
		s.mu.RUnlock()
		s.state.SetRenderStatus(true, prevErr)
		s.publish(Event{Type: EventRenderStarted})
	case RenderFinished:
		s.setLast(ev.Result)
	}
}

func (s *StudioService) setLast(res RenderResult) {
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	s.state.SetRenderStatus(false, res.Error)
	s.publish(Event{Type: EventRenderFinished, Result: &res})
}

func (s *StudioService) LastRender() RenderResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// RenderNow renders the current source without waiting for the debounce.
func (s *StudioService) RenderNow(ctx context.Context) RenderResult {
	res := s.render.Render(ctx, s.state.Code(), s.state.Theme())
	if res.Status == RenderError {
		log.Printf("Render failed: %s", res.Error)
	}
	s.setLast(res)
	return res
}

// Preview renders arbitrary source without touching the editor state.
func (s *StudioService) Preview(ctx context.Context, code string, theme store.Theme) RenderResult {
	return s.render.Render(ctx, code, theme)
}

func (s *StudioService) Edit(code string) error {
	return s.state.SetCode(code)
}

func (s *StudioService) SetTheme(t store.Theme) error {
	return s.state.SetTheme(t)
}

func (s *StudioService) LoadExample(name string) (catalog.ChartExample, error) {
	ex, ok := s.catalog.Find(name)
	if !ok {
		return ex, fmt.Errorf("%w: %s", ErrExampleNotFound, name)
	}
	if err := s.state.ReplaceCode(ex.Code, OriginExample); err != nil {
		return ex, err
	}
	if s.state.UI().Modal == ModalExamples {
		_ = s.state.CloseModal()
	}
	return ex, nil
}

func (s *StudioService) SaveSnapshot(label string) (*store.HistoryItem, error) {
	return s.state.AddToHistory(label)
}

func (s *StudioService) DeleteSnapshot(id string) error {
	return s.state.DeleteFromHistory(id)
}

func (s *StudioService) LoadHistory(id string) (store.HistoryItem, error) {
	return s.state.LoadFromHistory(id)
}

// Export converts the last successful render. It refuses while an error is
// shown or nothing has rendered yet.
func (s *StudioService) Export(format export.Format, scale int) (*export.Download, error) {
	res := s.LastRender()
	if res.Status != RenderOK || res.SVG == "" || s.state.UI().RenderError != "" {
		return nil, ErrNothingToExport
	}
	d, err := s.exporter.Export(res.SVG, format, scale)
	if err != nil {
		log.Printf("Export to %s failed: %v", format, err)
		return nil, err
	}
	return d, nil
}

func (s *StudioService) ListModels(ctx context.Context) []ModelInfo {
	return s.llm.ListModels(ctx, s.state.AIConfig())
}

// Generate asks the model for new code, or for changes to the current code in
// refine mode, and replaces the source with the answer.
func (s *StudioService) Generate(ctx context.Context, req AIRequest) (string, error) {
	in, err := s.buildInput(req)
	if err != nil {
		return "", err
	}

	if err := s.state.BeginAIRequest(); err != nil {
		return "", err
	}
	defer s.state.EndAIRequest()

	code, err := s.llm.Generate(ctx, in, s.state.AIConfig())
	if err != nil {
		return "", err
	}
	if err := s.state.ReplaceCode(code, OriginAI); err != nil {
		return code, err
	}
	return code, nil
}

func (s *StudioService) buildInput(req AIRequest) (GenerateInput, error) {
	mode := req.Mode
	if mode == "" {
		mode = AIModeGenerate
	}
	var in GenerateInput
	switch mode {
	case AIModeRefine:
		if strings.TrimSpace(req.Prompt) == "" {
			return in, ErrEmptyInstructions
		}
		in.Prompt = req.Prompt
		in.ContextCode = s.state.Code()
	case AIModeGenerate:
		switch {
		case req.Attachment != nil && req.Attachment.FromURL:
			in.Prompt = fmt.Sprintf("Analyze the content from %s.\nInstructions: %s", req.Attachment.Name, req.Prompt)
		case req.Attachment != nil:
			in.Prompt = fmt.Sprintf("Analyze the attached file (%s).\nInstructions: %s", req.Attachment.Name, req.Prompt)
		case strings.TrimSpace(req.Prompt) == "":
			return in, ErrEmptyPrompt
		default:
			in.Prompt = req.Prompt
		}
	default:
		return in, fmt.Errorf("%w: ai mode %q", ErrInvalidMode, mode)
	}

	if a := req.Attachment; a != nil {
		mimeType := utils.ResolveMIMEType(a.Name, a.MIMEType)
		switch utils.ClassifyAttachment(a.Name, mimeType) {
		case utils.AttachmentMedia:
			in.Media = &Media{MIMEType: mimeType, Data: a.Data}
		case utils.AttachmentText:
			in.Prompt = appendSourceContent(in.Prompt, a.Name, string(a.Data))
		default:
			return in, &UnsupportedInputError{Name: a.Name, MIMEType: mimeType}
		}
	}
	return in, nil
}

// FetchURL downloads page text for use as a text attachment.
func (s *StudioService) FetchURL(ctx context.Context, rawURL string) (*Attachment, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if err := s.state.BeginAIRequest(); err != nil {
		return nil, err
	}
	defer s.state.EndAIRequest()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchedChars*utf8.UTFMax))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return &Attachment{
		Name:     u.String(),
		MIMEType: "text/html",
		Data:     []byte(truncateRunes(string(body), MaxFetchedChars)),
		FromURL:  true,
	}, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func (s *StudioService) View() viewport.Transform {
	return s.view.Transform()
}

// ViewAction applies zoom-in, zoom-out or reset.
func (s *StudioService) ViewAction(action string) (viewport.Transform, error) {
	var t viewport.Transform
	switch action {
	case "zoom-in", "zoom_in":
		t = s.view.ZoomIn()
	case "zoom-out", "zoom_out":
		t = s.view.ZoomOut()
	case "reset":
		t = s.view.Reset()
	default:
		return t, fmt.Errorf("%w: %q", ErrUnknownViewAction, action)
	}
	s.publish(Event{Type: EventView, View: &t})
	return t, nil
}

// Pointer feeds a pan gesture to the viewport and reports whether the
// transform changed.
func (s *StudioService) Pointer(ev PointerEvent) (viewport.Transform, bool, error) {
	changed := false
	switch ev.Type {
	case "pointer_down":
		s.view.PointerDown(ev.Button, ev.X, ev.Y)
	case "pointer_move":
		changed = s.view.PointerMove(ev.X, ev.Y)
	case "pointer_up":
		s.view.PointerUp()
	case "pointer_leave":
		s.view.PointerLeave()
	case "touch_start":
		s.view.TouchStart(ev.Touches)
	case "touch_move":
		changed = s.view.TouchMove(ev.Touches)
	case "touch_end":
		s.view.TouchEnd()
	case "touch_cancel":
		s.view.TouchCancel()
	default:
		return s.view.Transform(), false, fmt.Errorf("%w: %q", ErrUnknownViewAction, ev.Type)
	}
	t := s.view.Transform()
	if changed {
		s.publish(Event{Type: EventView, View: &t})
	}
	return t, changed, nil
}
