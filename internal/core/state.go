package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gwi.com/mermaid-studio/internal/config"
	"gwi.com/mermaid-studio/internal/store"
)

var (
	ErrAIBusy          = errors.New("an AI request is already in progress")
	ErrModalLocked     = errors.New("modal cannot be closed while an AI request is running")
	ErrHistoryNotFound = errors.New("history item not found")
	ErrInvalidMode     = errors.New("invalid value")
)

// KV is the persistence the state container needs. store.SQLiteStore
// satisfies it.
type KV interface {
	GetValue(key string) (string, bool, error)
	SetValue(key, value string) error
	// UpdateValue applies fn to the current value atomically, so writers in
	// other processes are not lost.
	UpdateValue(key string, fn func(current string, ok bool) (string, error)) error
}

// Revisioner reports a counter that moves whenever the store is written.
type Revisioner interface {
	Revision() (int64, error)
}

type Modal string

const (
	ModalNone     Modal = ""
	ModalAI       Modal = "ai"
	ModalExamples Modal = "examples"
	ModalExport   Modal = "export"
	ModalSettings Modal = "settings"
	ModalHistory  Modal = "history"
)

type AIMode string

const (
	AIModeGenerate AIMode = "generate"
	AIModeRefine   AIMode = "refine"
)

type MobileTab string

const (
	TabEditor  MobileTab = "editor"
	TabPreview MobileTab = "preview"
)

// Origin records who replaced the diagram source.
type Origin string

const (
	OriginEdit    Origin = "edit"
	OriginExample Origin = "example"
	OriginHistory Origin = "history"
	OriginAI      Origin = "ai"
	// OriginExternal marks values another process wrote to the shared store.
	OriginExternal Origin = "external"
)

// Change is delivered to observers after each source or theme mutation.
type Change struct {
	Code     string
	Theme    store.Theme
	Origin   Origin
	Replaced bool
}

// UIState holds flags that are never persisted.
type UIState struct {
	Modal       Modal     `json:"modal"`
	AIMode      AIMode    `json:"aiMode"`
	MobileTab   MobileTab `json:"mobileTab"`
	Rendering   bool      `json:"rendering"`
	RenderError string    `json:"renderError,omitempty"`
	AIBusy      bool      `json:"aiBusy"`
}

// AIConfigPatch is a partial AIConfig update; nil fields are left alone.
type AIConfigPatch struct {
	APIKey         *string `json:"apiKey,omitempty"`
	UseCustomURL   *bool   `json:"useCustomUrl,omitempty"`
	CustomURL      *string `json:"customUrl,omitempty"`
	Model          *string `json:"model,omitempty"`
	ThinkingBudget *int    `json:"thinkingBudget,omitempty"`
	APIVersion     *string `json:"apiVersion,omitempty"`
}

// AppState is the editor's single source of truth. Every persisted field is
// written through to the KV store on mutation.
type AppState struct {
	// orderMu serializes persisted mutations together with their
	// notifications, so observers see changes in the order they were stored.
	orderMu sync.Mutex

	mu       sync.RWMutex
	kv       KV
	code     string
	theme    store.Theme
	aiConfig store.AIConfig
	history  []store.HistoryItem
	ui       UIState

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObs   int

	now func() time.Time
}

// NewAppState restores saved state from kv. The environment defaults in cfg
// only seed the AI config when none was saved before.
func NewAppState(kv KV, cfg config.Config) (*AppState, error) {
	s := &AppState{
		kv:        kv,
		code:      store.InitialCode,
		theme:     store.ThemeDefault,
		aiConfig:  store.DefaultAIConfig(),
		ui:        UIState{AIMode: AIModeGenerate, MobileTab: TabEditor},
		observers: make(map[int]func(Change)),
		now:       time.Now,
	}

	snap, err := readSnapshot(kv)
	if err != nil {
		return nil, err
	}
	if snap.hasCode {
		s.code = snap.code
	}
	if snap.theme != "" {
		s.theme = snap.theme
	}
	if snap.aiConfig != nil {
		s.aiConfig = *snap.aiConfig
	} else {
		s.aiConfig = applyEnvDefaults(s.aiConfig, cfg)
	}
	s.history = snap.history

	return s, nil
}

// snapshot is what the store holds. Zero fields were absent or unreadable.
type snapshot struct {
	code     string
	hasCode  bool
	theme    store.Theme
	aiConfig *store.AIConfig
	history  []store.HistoryItem
}

func readSnapshot(kv KV) (snapshot, error) {
	var snap snapshot

	if v, ok, err := kv.GetValue(store.KeyCode); err != nil {
		return snap, fmt.Errorf("failed to load code: %w", err)
	} else if ok {
		snap.code, snap.hasCode = v, true
	}

	if v, ok, err := kv.GetValue(store.KeyTheme); err != nil {
		return snap, fmt.Errorf("failed to load theme: %w", err)
	} else if ok {
		if t, err := store.ParseTheme(v); err == nil {
			snap.theme = t
		} else {
			log.Printf("Ignoring saved theme: %v", err)
		}
	}

	if v, ok, err := kv.GetValue(store.KeyAIConfig); err != nil {
		return snap, fmt.Errorf("failed to load AI config: %w", err)
	} else if ok {
		c := store.DefaultAIConfig()
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			log.Printf("Failed to parse AI config, using defaults: %v", err)
		} else {
			snap.aiConfig = &c
		}
	}

	v, ok, err := kv.GetValue(store.KeyHistory)
	if err != nil {
		return snap, fmt.Errorf("failed to load history: %w", err)
	}
	snap.history = decodeHistory(v, ok)
	return snap, nil
}

func decodeHistory(v string, ok bool) []store.HistoryItem {
	if !ok {
		return nil
	}
	var items []store.HistoryItem
	if err := json.Unmarshal([]byte(v), &items); err != nil {
		log.Printf("Failed to parse history: %v", err)
		return nil
	}
	return items
}

// Reload picks up values another process wrote to the store. Observers hear
// about a changed source or theme with OriginExternal.
func (s *AppState) Reload() error {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	snap, err := readSnapshot(s.kv)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := false
	if snap.hasCode && snap.code != s.code {
		s.code = snap.code
		changed = true
	}
	if snap.theme != "" && snap.theme != s.theme {
		s.theme = snap.theme
		changed = true
	}
	if snap.aiConfig != nil {
		s.aiConfig = *snap.aiConfig
	}
	s.history = snap.history
	code, theme := s.code, s.theme
	s.mu.Unlock()

	if changed {
		s.notify(Change{Code: code, Theme: theme, Origin: OriginExternal})
	}
	return nil
}

// Follow reloads whenever rev moves, polling every interval until ctx is done.
func (s *AppState) Follow(ctx context.Context, rev Revisioner, interval time.Duration) {
	last, err := rev.Revision()
	if err != nil {
		log.Printf("Failed to read store revision: %v", err)
	}
	// Catch up on writes made before the baseline was taken.
	if err := s.Reload(); err != nil {
		log.Printf("Failed to reload shared state: %v", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, err := rev.Revision()
			if err != nil {
				log.Printf("Failed to read store revision: %v", err)
				continue
			}
			if cur == last {
				continue
			}
			last = cur
			if err := s.Reload(); err != nil {
				log.Printf("Failed to reload shared state: %v", err)
			}
		}
	}
}

func applyEnvDefaults(c store.AIConfig, cfg config.Config) store.AIConfig {
	if cfg.DefaultAPIKey != "" {
		c.APIKey = cfg.DefaultAPIKey
	}
	if cfg.DefaultCustomURL != "" {
		c.CustomURL = cfg.DefaultCustomURL
		c.UseCustomURL = true
	}
	if cfg.DefaultModel != "" {
		c.Model = cfg.DefaultModel
	}
	if cfg.DefaultAPIVersion != "" {
		c.APIVersion = cfg.DefaultAPIVersion
	}
	return c
}

// Subscribe registers fn for source and theme changes. Observers run on the
// mutating goroutine, in store order, and must not mutate the state
// themselves.
func (s *AppState) Subscribe(fn func(Change)) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

func (s *AppState) notify(c Change) {
	s.obsMu.Lock()
	fns := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (s *AppState) Code() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.code
}

func (s *AppState) Theme() store.Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

func (s *AppState) AIConfig() store.AIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aiConfig
}

func (s *AppState) History() []store.HistoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.HistoryItem, len(s.history))
	copy(out, s.history)
	return out
}

func (s *AppState) UI() UIState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ui
}

// SetCode records an incremental edit.
func (s *AppState) SetCode(code string) error {
	return s.setCode(code, OriginEdit, false)
}

// ReplaceCode swaps the whole source, e.g. when loading an example.
func (s *AppState) ReplaceCode(code string, origin Origin) error {
	return s.setCode(code, origin, true)
}

func (s *AppState) setCode(code string, origin Origin, replaced bool) error {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	s.mu.Lock()
	s.code = code
	theme := s.theme
	err := s.persist(store.KeyCode, code)
	s.mu.Unlock()

	s.notify(Change{Code: code, Theme: theme, Origin: origin, Replaced: replaced})
	return err
}

func (s *AppState) SetTheme(t store.Theme) error {
	if _, err := store.ParseTheme(string(t)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMode, err)
	}
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	s.mu.Lock()
	s.theme = t
	code := s.code
	err := s.persist(store.KeyTheme, string(t))
	s.mu.Unlock()

	s.notify(Change{Code: code, Theme: t, Origin: OriginEdit})
	return err
}

func (s *AppState) UpdateAIConfig(p AIConfigPatch) (store.AIConfig, error) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.aiConfig
	if p.APIKey != nil {
		c.APIKey = *p.APIKey
	}
	if p.UseCustomURL != nil {
		c.UseCustomURL = *p.UseCustomURL
	}
	if p.CustomURL != nil {
		c.CustomURL = *p.CustomURL
	}
	if p.Model != nil {
		c.Model = *p.Model
	}
	if p.ThinkingBudget != nil {
		c.ThinkingBudget = *p.ThinkingBudget
	}
	if p.APIVersion != nil {
		c.APIVersion = *p.APIVersion
	}
	s.aiConfig = c
	return c, s.persistJSON(store.KeyAIConfig, c)
}

// AddToHistory snapshots the current source. It returns nil when the source
// is blank. The item is prepended to the stored list in one transaction, so
// snapshots saved by other processes survive.
func (s *AppState) AddToHistory(label string) (*store.HistoryItem, error) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.code) == "" {
		return nil, nil
	}
	now := s.now()
	if label == "" {
		label = "Snapshot " + now.Format("15:04:05")
	}
	item := store.HistoryItem{
		ID:        uuid.NewString(),
		Timestamp: now.UnixMilli(),
		Code:      s.code,
		Label:     label,
	}

	var merged []store.HistoryItem
	err := s.kv.UpdateValue(store.KeyHistory, func(cur string, ok bool) (string, error) {
		merged = append([]store.HistoryItem{item}, decodeHistory(cur, ok)...)
		b, err := json.Marshal(merged)
		return string(b), err
	})
	if err != nil {
		log.Printf("Failed to persist %s: %v", store.KeyHistory, err)
		s.history = append([]store.HistoryItem{item}, s.history...)
		return &item, fmt.Errorf("failed to persist %s: %w", store.KeyHistory, err)
	}
	s.history = merged
	return &item, nil
}

func (s *AppState) DeleteFromHistory(id string) error {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []store.HistoryItem
	err := s.kv.UpdateValue(store.KeyHistory, func(cur string, ok bool) (string, error) {
		stored := decodeHistory(cur, ok)
		kept = removeHistoryItem(stored, id)
		if len(kept) == len(stored) {
			return "", ErrHistoryNotFound
		}
		b, err := json.Marshal(kept)
		return string(b), err
	})
	switch {
	case err == nil:
		s.history = kept
		return nil
	case errors.Is(err, ErrHistoryNotFound):
		// It may only exist here if an earlier write failed.
		local := removeHistoryItem(s.history, id)
		if len(local) == len(s.history) {
			return ErrHistoryNotFound
		}
		s.history = local
		return nil
	}
	log.Printf("Failed to persist %s: %v", store.KeyHistory, err)
	s.history = removeHistoryItem(s.history, id)
	return fmt.Errorf("failed to persist %s: %w", store.KeyHistory, err)
}

func removeHistoryItem(items []store.HistoryItem, id string) []store.HistoryItem {
	kept := make([]store.HistoryItem, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	return kept
}

// LoadFromHistory replaces the source with a saved snapshot and closes the
// history modal.
func (s *AppState) LoadFromHistory(id string) (store.HistoryItem, error) {
	s.mu.Lock()
	var (
		item  store.HistoryItem
		found bool
	)
	for _, h := range s.history {
		if h.ID == id {
			item, found = h, true
			break
		}
	}
	if found && s.ui.Modal == ModalHistory {
		s.ui.Modal = ModalNone
	}
	s.mu.Unlock()

	if !found {
		return item, ErrHistoryNotFound
	}
	return item, s.ReplaceCode(item.Code, OriginHistory)
}

// SearchHistory matches term case-insensitively against label or code.
func (s *AppState) SearchHistory(term string) []store.HistoryItem {
	term = strings.ToLower(strings.TrimSpace(term))
	all := s.History()
	if term == "" {
		return all
	}
	var out []store.HistoryItem
	for _, item := range all {
		if strings.Contains(strings.ToLower(item.Label), term) || strings.Contains(strings.ToLower(item.Code), term) {
			out = append(out, item)
		}
	}
	return out
}

func (s *AppState) OpenModal(m Modal, mode AIMode) error {
	switch m {
	case ModalAI, ModalExamples, ModalExport, ModalSettings, ModalHistory:
	default:
		return fmt.Errorf("%w: modal %q", ErrInvalidMode, m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == ModalAI {
		switch mode {
		case "":
			mode = AIModeGenerate
		case AIModeGenerate, AIModeRefine:
		default:
			return fmt.Errorf("%w: ai mode %q", ErrInvalidMode, mode)
		}
		s.ui.AIMode = mode
	}
	s.ui.Modal = m
	return nil
}

func (s *AppState) CloseModal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ui.Modal == ModalAI && s.ui.AIBusy {
		return ErrModalLocked
	}
	s.ui.Modal = ModalNone
	return nil
}

func (s *AppState) SetMobileTab(tab MobileTab) error {
	if tab != TabEditor && tab != TabPreview {
		return fmt.Errorf("%w: tab %q", ErrInvalidMode, tab)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ui.MobileTab = tab
	return nil
}

// BeginAIRequest sets the busy flag, failing if it is already set.
func (s *AppState) BeginAIRequest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ui.AIBusy {
		return ErrAIBusy
	}
	s.ui.AIBusy = true
	return nil
}

func (s *AppState) EndAIRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ui.AIBusy = false
}

// SetRenderStatus mirrors the latest render outcome into the UI flags.
func (s *AppState) SetRenderStatus(rendering bool, renderErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ui.Rendering = rendering
	s.ui.RenderError = renderErr
}

// persist must be called with mu held.
func (s *AppState) persist(key, value string) error {
	if err := s.kv.SetValue(key, value); err != nil {
		log.Printf("Failed to persist %s: %v", key, err)
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

func (s *AppState) persistJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.persist(key, string(b))
}
