package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"gwi.com/mermaid-studio/internal/catalog"
	"gwi.com/mermaid-studio/internal/core"
	"gwi.com/mermaid-studio/internal/export"
	"gwi.com/mermaid-studio/internal/store"
)

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		flag, output string
		want         export.Format
		wantErr      bool
	}{
		{"", "", export.FormatSVG, false},
		{"", "chart.png", export.FormatPNG, false},
		{"", "chart.JPG", export.FormatJPEG, false},
		{"webp", "chart.png", export.FormatWEBP, false},
		{"", "chart.gif", "", true},
		{"bmp", "", "", true},
	}
	for _, tt := range tests {
		got, err := resolveFormat(tt.flag, tt.output)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("resolveFormat(%q, %q) = %q, %v", tt.flag, tt.output, got, err)
		}
	}
}

func TestExportResult(t *testing.T) {
	if _, err := exportResult(core.RenderResult{Status: core.RenderPlaceholder}, export.FormatSVG, 1); err == nil {
		t.Error("expected error for empty diagram")
	}
	_, err := exportResult(core.RenderResult{Status: core.RenderError, Error: "Parse error"}, export.FormatSVG, 1)
	if err == nil || !strings.Contains(err.Error(), "Parse error") {
		t.Errorf("error = %v", err)
	}
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"></svg>`
	d, err := exportResult(core.RenderResult{Status: core.RenderOK, SVG: svg}, export.FormatSVG, 1)
	if err != nil || string(d.Data) != svg {
		t.Errorf("export = %v, %v", d, err)
	}
}

func TestReadSourceAndWriteOutput(t *testing.T) {
	got, err := readSource(strings.NewReader("graph TD"), "-")
	if err != nil || got != "graph TD" {
		t.Errorf("stdin source = %q, %v", got, err)
	}
	if _, err := readSource(nil, filepath.Join(t.TempDir(), "missing.mmd")); err == nil {
		t.Error("expected error for missing file")
	}

	var stdout bytes.Buffer
	if err := writeOutput(&stdout, "", []byte("<svg/>")); err != nil || stdout.String() != "<svg/>" {
		t.Errorf("stdout = %q, %v", stdout.String(), err)
	}
	path := filepath.Join(t.TempDir(), "out.svg")
	if err := writeOutput(&stdout, path, []byte("<svg/>")); err != nil {
		t.Fatal(err)
	}
	if got, _ := readSource(nil, path); got != "<svg/>" {
		t.Errorf("file = %q", got)
	}
}

func TestPrinters(t *testing.T) {
	cat := catalog.MustLoad()
	var b bytes.Buffer
	printGroups(&b, cat.SearchGrouped("kanban"))
	if !strings.Contains(b.String(), "Kanban") {
		t.Errorf("groups = %q", b.String())
	}
	b.Reset()
	printGroups(&b, nil)
	if b.String() != "No examples match.\n" {
		t.Errorf("empty groups = %q", b.String())
	}

	b.Reset()
	printHistory(&b, []store.HistoryItem{{ID: "abc", Label: "Checkout", Timestamp: 0}})
	if !strings.Contains(b.String(), "abc") || !strings.Contains(b.String(), "Checkout") {
		t.Errorf("history = %q", b.String())
	}
}
