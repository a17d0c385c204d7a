package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chart.mmd")
	if err := os.WriteFile(path, []byte("graph TD"), 0o644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan string, 10)
	w, err := New(path, 20*time.Millisecond, func(content string) { changes <- content })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	// Sibling files are ignored.
	os.WriteFile(filepath.Join(dir, "other.mmd"), []byte("pie"), 0o644)
	for _, src := range []string{"graph LR", "graph LR\n a-->b"} {
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-changes:
			if got == "graph LR\n a-->b" {
				return
			}
			if got != "graph LR" {
				t.Fatalf("content = %q", got)
			}
		case <-timeout:
			t.Fatal("final content never reported")
		}
	}
}

func TestNewMissingFile(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.mmd"), time.Millisecond, func(string) {}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.mmd")
	os.WriteFile(path, []byte("graph TD"), 0o644)
	w, err := New(path, time.Millisecond, func(string) {})
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := w.Read(); got != "graph TD" {
		t.Errorf("Read = %q", got)
	}
	w.Close()
	w.Close()
}
