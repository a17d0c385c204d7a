// Package watch follows a diagram source file on disk.
package watch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// ChangeHandler receives the file content after each settled change.
type ChangeHandler func(content string)

// FileWatcher reports the content of one file whenever it is written.
// Editors that save by rename are handled by watching the parent directory.
type FileWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange ChangeHandler
	debounce func(func())

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New starts watching path. Bursts of writes inside quiet collapse into a
// single callback.
func New(path string, quiet time.Duration, onChange ChangeHandler) (*FileWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("bad path %q: %w", path, err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("cannot watch %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch dir %q: %w", filepath.Dir(absPath), err)
	}

	w := &FileWatcher{
		path:     absPath,
		watcher:  watcher,
		onChange: onChange,
		debounce: debounce.New(quiet),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *FileWatcher) Path() string {
	return w.path
}

// Read returns the current file content.
func (w *FileWatcher) Read() (string, error) {
	content, err := os.ReadFile(w.path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", w.path, err)
	}
	return string(content), nil
}

func (w *FileWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *FileWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if absPath, _ := filepath.Abs(event.Name); absPath != w.path {
				continue
			}
			w.debounce(w.fire)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch: watcher error: %v", err)
		}
	}
}

func (w *FileWatcher) fire() {
	select {
	case <-w.done:
		return
	default:
	}
	content, err := w.Read()
	if err != nil {
		log.Printf("watch: %v", err)
		return
	}
	w.onChange(content)
}
