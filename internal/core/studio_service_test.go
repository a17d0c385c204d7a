package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gwi.com/mermaid-studio/internal/catalog"
	"gwi.com/mermaid-studio/internal/export"
	"gwi.com/mermaid-studio/internal/store"
	"gwi.com/mermaid-studio/internal/viewport"
)

type fakeGenerator struct {
	mu      sync.Mutex
	inputs  []GenerateInput
	reply   string
	err     error
	block   chan struct{}
	started chan struct{}
	models  []ModelInfo
}

func (f *fakeGenerator) Generate(ctx context.Context, in GenerateInput, cfg store.AIConfig) (string, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.reply, f.err
}

func (f *fakeGenerator) ListModels(ctx context.Context, cfg store.AIConfig) []ModelInfo {
	return f.models
}

func newTestStudio(t *testing.T, gen Generator) (*StudioService, *fakeRenderer) {
	t.Helper()
	fr := &fakeRenderer{}
	studio := NewStudioService(newTestState(t, newMemKV()), NewRenderService(fr, time.Second), gen, catalog.MustLoad(), time.Hour)
	t.Cleanup(studio.Close)
	return studio, fr
}

func TestStudioExampleRenderExport(t *testing.T) {
	studio, _ := newTestStudio(t, &fakeGenerator{})

	if _, err := studio.LoadExample("Flowchart"); err != nil {
		t.Fatalf("LoadExample: %v", err)
	}
	if res := studio.RenderNow(context.Background()); res.Status != RenderOK {
		t.Fatalf("RenderNow = %+v", res)
	}
	d, err := studio.Export(export.FormatSVG, 2)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(string(d.Data), "<svg") {
		t.Errorf("export data = %q", d.Data)
	}

	if _, err := studio.LoadExample("Nope"); !errors.Is(err, ErrExampleNotFound) {
		t.Errorf("missing example err = %v", err)
	}
}

func TestStudioExportNoOps(t *testing.T) {
	studio, fr := newTestStudio(t, &fakeGenerator{})
	if _, err := studio.Export(export.FormatPNG, 2); !errors.Is(err, ErrNothingToExport) {
		t.Errorf("export before render err = %v", err)
	}

	fr.err = errors.New("Parse error on line 1")
	studio.RenderNow(context.Background())
	if _, err := studio.Export(export.FormatSVG, 1); !errors.Is(err, ErrNothingToExport) {
		t.Errorf("export with error err = %v", err)
	}
	if got := studio.State().UI().RenderError; got != "Parse error on line 1" {
		t.Errorf("ui render error = %q", got)
	}
}

func TestStudioViewportResetsOnReplaceOnly(t *testing.T) {
	studio, _ := newTestStudio(t, &fakeGenerator{})
	studio.ViewAction("zoom-in")
	studio.Pointer(PointerEvent{Type: "pointer_down", X: 0, Y: 0})
	studio.Pointer(PointerEvent{Type: "pointer_move", X: 15, Y: 5})
	studio.Pointer(PointerEvent{Type: "pointer_up"})

	studio.Edit("graph TD\n A-->B")
	if studio.View() == viewport.Identity {
		t.Error("incremental edit must keep the view")
	}

	var events []Event
	studio.Subscribe(func(ev Event) { events = append(events, ev) })
	studio.LoadExample("Pie Chart")
	if studio.View() != viewport.Identity {
		t.Errorf("view after replace = %+v", studio.View())
	}
	var sawReplace, sawView bool
	for _, ev := range events {
		sawReplace = sawReplace || (ev.Type == EventCodeReplaced && ev.Origin == OriginExample)
		sawView = sawView || (ev.Type == EventView && ev.View != nil && *ev.View == viewport.Identity)
	}
	if !sawReplace || !sawView {
		t.Errorf("events = %+v", events)
	}
}

func TestStudioExternalChangeKeepsView(t *testing.T) {
	kv := newMemKV()
	studio := NewStudioService(newTestState(t, kv), NewRenderService(&fakeRenderer{}, time.Second), &fakeGenerator{}, catalog.MustLoad(), time.Hour)
	t.Cleanup(studio.Close)
	studio.ViewAction("zoom-in")
	zoomed := studio.View()

	var events []Event
	studio.Subscribe(func(ev Event) { events = append(events, ev) })
	cli := newTestState(t, kv)
	cli.SetCode("graph LR\n cli-->studio")
	if err := studio.State().Reload(); err != nil {
		t.Fatal(err)
	}

	if studio.View() != zoomed {
		t.Errorf("view = %+v, want %+v", studio.View(), zoomed)
	}
	if len(events) != 1 || events[0].Type != EventCodeReplaced || events[0].Origin != OriginExternal || events[0].Code != "graph LR\n cli-->studio" {
		t.Errorf("events = %+v", events)
	}
}

func TestStudioViewErrors(t *testing.T) {
	studio, _ := newTestStudio(t, &fakeGenerator{})
	if _, err := studio.ViewAction("spin"); !errors.Is(err, ErrUnknownViewAction) {
		t.Errorf("ViewAction err = %v", err)
	}
	if _, _, err := studio.Pointer(PointerEvent{Type: "wheel"}); !errors.Is(err, ErrUnknownViewAction) {
		t.Errorf("Pointer err = %v", err)
	}
}

func TestStudioGenerateReplacesCode(t *testing.T) {
	gen := &fakeGenerator{reply: "graph LR\n new"}
	studio, _ := newTestStudio(t, gen)

	code, err := studio.Generate(context.Background(), AIRequest{Prompt: "a login flow"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code != "graph LR\n new" || studio.State().Code() != code {
		t.Errorf("code = %q, state = %q", code, studio.State().Code())
	}
	if gen.inputs[0].ContextCode != "" {
		t.Error("generate mode must not send context code")
	}
	if studio.State().UI().AIBusy {
		t.Error("busy flag left set")
	}
}

func TestStudioRefine(t *testing.T) {
	gen := &fakeGenerator{reply: "graph TD\n refined"}
	studio, _ := newTestStudio(t, gen)
	before := studio.State().Code()

	if _, err := studio.Generate(context.Background(), AIRequest{Mode: AIModeRefine, Prompt: "  "}); !errors.Is(err, ErrEmptyInstructions) {
		t.Errorf("blank refine err = %v", err)
	}
	if len(gen.inputs) != 0 {
		t.Fatal("blank refine must not reach the model")
	}

	if _, err := studio.Generate(context.Background(), AIRequest{Mode: AIModeRefine, Prompt: "make it blue"}); err != nil {
		t.Fatal(err)
	}
	if gen.inputs[0].ContextCode != before {
		t.Errorf("context code = %q", gen.inputs[0].ContextCode)
	}
}

func TestStudioAttachments(t *testing.T) {
	tests := []struct {
		name       string
		att        Attachment
		wantMedia  bool
		wantPrompt string
		wantErr    bool
	}{
		{"image", Attachment{Name: "sketch.png", MIMEType: "image/png", Data: []byte{1, 2}}, true, "Analyze the attached file (sketch.png).\nInstructions: draw it", false},
		{"pdf", Attachment{Name: "doc.pdf", MIMEType: "application/pdf", Data: []byte{3}}, true, "", false},
		{"text", Attachment{Name: "notes.md", Data: []byte("# Steps")}, false, "--- Source Content (notes.md) ---\n# Steps\n", false},
		{"url", Attachment{Name: "https://example.com", MIMEType: "text/html", Data: []byte("<p>hi</p>"), FromURL: true}, false, "Analyze the content from https://example.com.", false},
		{"zip", Attachment{Name: "x.zip", MIMEType: "application/zip"}, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{reply: "graph TD"}
			studio, _ := newTestStudio(t, gen)
			att := tt.att
			_, err := studio.Generate(context.Background(), AIRequest{Prompt: "draw it", Attachment: &att})
			if tt.wantErr {
				var unsupported *UnsupportedInputError
				if !errors.As(err, &unsupported) {
					t.Fatalf("err = %v, want UnsupportedInputError", err)
				}
				if len(gen.inputs) != 0 {
					t.Error("unsupported input must not reach the model")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			in := gen.inputs[0]
			if (in.Media != nil) != tt.wantMedia {
				t.Errorf("media = %+v", in.Media)
			}
			if !strings.Contains(in.Prompt, tt.wantPrompt) {
				t.Errorf("prompt = %q, want it to contain %q", in.Prompt, tt.wantPrompt)
			}
		})
	}
}

func TestStudioGenerateBusy(t *testing.T) {
	gen := &fakeGenerator{reply: "graph TD", block: make(chan struct{}), started: make(chan struct{})}
	studio, _ := newTestStudio(t, gen)

	done := make(chan error, 1)
	go func() {
		_, err := studio.Generate(context.Background(), AIRequest{Prompt: "first"})
		done <- err
	}()
	<-gen.started

	if _, err := studio.Generate(context.Background(), AIRequest{Prompt: "second"}); !errors.Is(err, ErrAIBusy) {
		t.Errorf("concurrent Generate err = %v, want ErrAIBusy", err)
	}
	studio.State().OpenModal(ModalAI, AIModeGenerate)
	if err := studio.State().CloseModal(); !errors.Is(err, ErrModalLocked) {
		t.Errorf("CloseModal while busy err = %v", err)
	}

	close(gen.block)
	if err := <-done; err != nil {
		t.Errorf("first Generate: %v", err)
	}
}

func TestStudioGenerateFailureKeepsCode(t *testing.T) {
	gen := &fakeGenerator{err: ErrMissingAPIKey}
	studio, _ := newTestStudio(t, gen)
	before := studio.State().Code()
	if _, err := studio.Generate(context.Background(), AIRequest{Prompt: "x"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v", err)
	}
	if studio.State().Code() != before {
		t.Error("failed generation must not touch the code")
	}
}

func TestStudioFetchURL(t *testing.T) {
	page := strings.Repeat("é", MaxFetchedChars+50)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	studio, _ := newTestStudio(t, &fakeGenerator{})
	// The default client refuses loopback hosts.
	studio.httpClient = srv.Client()
	att, err := studio.FetchURL(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("FetchURL: %v", err)
	}
	if n := len([]rune(string(att.Data))); n != MaxFetchedChars {
		t.Errorf("fetched %d chars, want %d", n, MaxFetchedChars)
	}
	if !att.FromURL || att.MIMEType != "text/html" {
		t.Errorf("attachment = %+v", att)
	}

	if _, err := studio.FetchURL(context.Background(), srv.URL+"/missing"); !errors.Is(err, ErrFetchFailed) {
		t.Errorf("404 err = %v", err)
	}
	if _, err := studio.FetchURL(context.Background(), "ftp://example.com"); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("ftp err = %v", err)
	}
}

func TestStudioDebouncedRenderOnEdit(t *testing.T) {
	fr := &fakeRenderer{}
	studio := NewStudioService(newTestState(t, newMemKV()), NewRenderService(fr, time.Second), &fakeGenerator{}, catalog.MustLoad(), 20*time.Millisecond)
	defer studio.Close()

	finished := make(chan RenderResult, 4)
	studio.Subscribe(func(ev Event) {
		if ev.Type == EventRenderFinished {
			finished <- *ev.Result
		}
	})
	studio.Edit("graph TD\n a")
	studio.SetTheme(store.ThemeCyberpunk)

	select {
	case res := <-finished:
		if res.Status != RenderOK {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no render after edit")
	}
	calls := fr.Calls()
	if len(calls) != 1 || calls[0].Theme != store.ThemeCyberpunk {
		t.Errorf("calls = %+v", calls)
	}
}
