package catalog

import (
	"strings"
	"testing"

	"gwi.com/mermaid-studio/internal/store"
)

func TestLoadEmbedded(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := len(c.All()); n != 27 {
		t.Errorf("len(All) = %d, want 27", n)
	}
	want := []string{"Core Diagrams", "UML & Architecture", "Project Management", "Data Visualization", "Systems & Networking"}
	got := c.Categories()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Categories = %v, want %v", got, want)
	}
	for _, ex := range c.All() {
		if strings.TrimSpace(ex.Code) == "" {
			t.Errorf("example %q has no code", ex.Name)
		}
	}
}

func TestFlowchartMatchesInitialCode(t *testing.T) {
	ex, ok := MustLoad().Find("Flowchart")
	if !ok {
		t.Fatal("Flowchart example missing")
	}
	if ex.Code != store.InitialCode {
		t.Errorf("Flowchart code =\n%s\nwant\n%s", ex.Code, store.InitialCode)
	}
}

func TestGroupedKeepsOrder(t *testing.T) {
	c := MustLoad()
	groups := c.Grouped()
	total := 0
	for _, g := range groups {
		total += len(g.Examples)
		for _, ex := range g.Examples {
			if ex.Category != g.Category {
				t.Errorf("%q listed under %q", ex.Name, g.Category)
			}
		}
	}
	if total != len(c.All()) {
		t.Errorf("grouped %d examples, want %d", total, len(c.All()))
	}
	if groups[0].Examples[0].Name != "Flowchart" {
		t.Errorf("first example = %q", groups[0].Examples[0].Name)
	}
}

func TestSearch(t *testing.T) {
	c := MustLoad()
	tests := []struct {
		term string
		want string
	}{
		{"sankey", "Sankey"},
		{"GITGRAPH", "Git Graph"},
		{"systems & net", "Packet Structure"},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			found := false
			for _, ex := range c.Search(tt.term) {
				if ex.Name == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("Search(%q) did not return %q", tt.term, tt.want)
			}
		})
	}
	if got := len(c.Search("  ")); got != len(c.All()) {
		t.Errorf("blank search returned %d", got)
	}
	if got := c.Search("no-such-diagram-xyz"); len(got) != 0 {
		t.Errorf("unexpected matches: %v", got)
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	data := []byte("- name: A\n  category: X\n  code: graph TD\n- name: A\n  category: Y\n  code: pie\n")
	if _, err := Parse(data); err == nil {
		t.Error("expected duplicate error")
	}
	if _, err := Parse([]byte("- name: ''\n  category: X\n")); err == nil {
		t.Error("expected missing name error")
	}
}
