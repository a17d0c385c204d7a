// Package app wires the studio together from configuration. Both binaries
// start from here.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"gwi.com/mermaid-studio/internal/catalog"
	"gwi.com/mermaid-studio/internal/config"
	"gwi.com/mermaid-studio/internal/core"
	"gwi.com/mermaid-studio/internal/renderer"
	"gwi.com/mermaid-studio/internal/store"
)

type App struct {
	Config config.Config
	Store  *store.SQLiteStore
	Studio *core.StudioService
}

// New opens the database, restores the persisted session and builds the
// services. The caller owns Close.
func New(cfg config.Config) (*App, error) {
	r, err := renderer.New(cfg.Renderer, cfg.MmdcPath, cfg.KrokiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure renderer: %w", err)
	}

	cat, err := catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load examples: %w", err)
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	state, err := core.NewAppState(dbStore, cfg)
	if err != nil {
		dbStore.Close()
		return nil, fmt.Errorf("failed to restore state: %w", err)
	}

	renderService := core.NewRenderService(r, cfg.RenderTimeout)
	llmService := core.NewLLMService(nil)
	studio := core.NewStudioService(state, renderService, llmService, cat, cfg.RenderDebounce)

	if cfg.Debug() {
		log.Printf("Renderer: %s, debounce %s, timeout %s", cfg.Renderer, cfg.RenderDebounce, cfg.RenderTimeout)
	}
	return &App{Config: cfg, Store: dbStore, Studio: studio}, nil
}

// Follow keeps the session in step with other processes sharing the
// database, such as the CLI, until ctx is done.
func (a *App) Follow(ctx context.Context) {
	interval := a.Config.SessionSync
	if interval <= 0 {
		interval = time.Second
	}
	a.Studio.State().Follow(ctx, a.Store, interval)
}

func (a *App) Close() {
	a.Studio.Close()
	if err := a.Store.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
}
