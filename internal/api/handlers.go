package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"gwi.com/mermaid-studio/internal/core"
	"gwi.com/mermaid-studio/internal/export"
	"gwi.com/mermaid-studio/internal/store"
)

type APIHandler struct {
	studio *core.StudioService
}

func NewAPIHandler(studio *core.StudioService) *APIHandler {
	return &APIHandler{studio: studio}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	var unsupported *core.UnsupportedInputError
	var apiErr *core.APIError
	switch {
	case errors.Is(err, core.ErrMissingAPIKey),
		errors.Is(err, core.ErrEmptyInstructions),
		errors.Is(err, core.ErrEmptyPrompt),
		errors.Is(err, core.ErrInvalidMode),
		errors.Is(err, core.ErrInvalidURL),
		errors.Is(err, core.ErrForbiddenHost),
		errors.Is(err, core.ErrUnknownViewAction),
		errors.Is(err, export.ErrInvalidScale),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.As(err, &unsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrAIBusy), errors.Is(err, core.ErrModalLocked):
		return http.StatusConflict
	case errors.Is(err, core.ErrHistoryNotFound), errors.Is(err, core.ErrExampleNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrRetriesExhausted),
		errors.Is(err, core.ErrMalformedResponse),
		errors.Is(err, core.ErrFetchFailed),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, userMessage(err), status)
}

// userMessage is the wording the editor shows for err.
func userMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyInstructions):
		return "Please enter update instructions."
	case errors.Is(err, core.ErrEmptyPrompt):
		return "Please describe the diagram you want."
	case errors.Is(err, core.ErrMissingAPIKey):
		return "API key is missing. Please configure it in Settings"
	case errors.Is(err, core.ErrForbiddenHost):
		return "Could not fetch URL: only public web addresses are allowed."
	case errors.Is(err, core.ErrFetchFailed):
		return "Could not fetch URL."
	}
	return err.Error()
}

type diagramResponse struct {
	Code   string            `json:"code"`
	Theme  store.Theme       `json:"theme"`
	Render core.RenderResult `json:"render"`
}

func (h *APIHandler) diagram() diagramResponse {
	state := h.studio.State()
	return diagramResponse{Code: state.Code(), Theme: state.Theme(), Render: h.studio.LastRender()}
}

func (h *APIHandler) GetDiagramHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.diagram())
}

type UpdateDiagramRequest struct {
	Code string `json:"code"`
}

func (h *APIHandler) UpdateDiagramHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateDiagramRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.studio.Edit(req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.diagram())
}

type UpdateThemeRequest struct {
	Theme string `json:"theme"`
}

func (h *APIHandler) UpdateThemeHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateThemeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	theme, err := store.ParseTheme(req.Theme)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.studio.SetTheme(theme); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.diagram())
}

func (h *APIHandler) RenderDiagramHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.studio.RenderNow(r.Context()))
}

func (h *APIHandler) ListThemesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"themes": store.Themes})
}

type aiSettingsResponse struct {
	APIKey          string `json:"apiKey"`
	HasAPIKey       bool   `json:"hasApiKey"`
	UseCustomURL    bool   `json:"useCustomUrl"`
	CustomURL       string `json:"customUrl"`
	Model           string `json:"model"`
	ThinkingBudget  int    `json:"thinkingBudget"`
	APIVersion      string `json:"apiVersion"`
	ThinkingBudgets []int  `json:"thinkingBudgets"`
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}

func newAISettingsResponse(c store.AIConfig) aiSettingsResponse {
	return aiSettingsResponse{
		APIKey:          maskKey(c.APIKey),
		HasAPIKey:       c.APIKey != "",
		UseCustomURL:    c.UseCustomURL,
		CustomURL:       c.CustomURL,
		Model:           c.Model,
		ThinkingBudget:  c.ThinkingBudget,
		APIVersion:      c.APIVersion,
		ThinkingBudgets: core.ThinkingBudgets,
	}
}

func (h *APIHandler) GetAISettingsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newAISettingsResponse(h.studio.State().AIConfig()))
}

func (h *APIHandler) UpdateAISettingsHandler(w http.ResponseWriter, r *http.Request) {
	var patch core.AIConfigPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.ThinkingBudget != nil && *patch.ThinkingBudget < 0 {
		http.Error(w, "thinkingBudget must not be negative", http.StatusBadRequest)
		return
	}
	cfg, err := h.studio.State().UpdateAIConfig(patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAISettingsResponse(cfg))
}

func (h *APIHandler) ListModelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": h.studio.ListModels(r.Context())})
}

type AttachmentPayload struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	// Data is base64 encoded.
	Data []byte `json:"data"`
}

type GenerateRequest struct {
	Mode       core.AIMode        `json:"mode"`
	Prompt     string             `json:"prompt"`
	URL        string             `json:"url,omitempty"`
	Attachment *AttachmentPayload `json:"attachment,omitempty"`
}

func (h *APIHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	aiReq := core.AIRequest{Mode: req.Mode, Prompt: req.Prompt}
	switch {
	case req.Attachment != nil:
		aiReq.Attachment = &core.Attachment{Name: req.Attachment.Name, MIMEType: req.Attachment.MIMEType, Data: req.Attachment.Data}
	case req.URL != "":
		att, err := h.studio.FetchURL(r.Context(), req.URL)
		if err != nil {
			writeError(w, err)
			return
		}
		aiReq.Attachment = att
	}

	code, err := h.studio.Generate(r.Context(), aiReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

type FetchURLRequest struct {
	URL string `json:"url"`
}

func (h *APIHandler) FetchURLHandler(w http.ResponseWriter, r *http.Request) {
	var req FetchURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	att, err := h.studio.FetchURL(r.Context(), req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     att.Name,
		"mimeType": att.MIMEType,
		"content":  string(att.Data),
	})
}

func (h *APIHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	items := h.studio.State().SearchHistory(r.URL.Query().Get("q"))
	if items == nil {
		items = []store.HistoryItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type CreateSnapshotRequest struct {
	Label string `json:"label"`
}

func (h *APIHandler) CreateHistoryHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSnapshotRequest
	// The body is optional.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	item, err := h.studio.SaveSnapshot(req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	if item == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *APIHandler) DeleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.studio.DeleteSnapshot(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) LoadHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := h.studio.LoadHistory(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.diagram())
}

func (h *APIHandler) ListExamplesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": h.studio.Catalog().SearchGrouped(r.URL.Query().Get("q")),
	})
}

func (h *APIHandler) LoadExampleHandler(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, "Invalid example name", http.StatusBadRequest)
		return
	}
	if _, err := h.studio.LoadExample(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.diagram())
}

type ExportRequest struct {
	Format string `json:"format"`
	Scale  int    `json:"scale"`
}

// ExportHandler streams the file. Nothing to export, or markup that cannot
// be rasterized, answers 204.
func (h *APIHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	req := ExportRequest{Format: string(export.FormatPNG), Scale: 2}
	if !decodeBody(w, r, &req) {
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		writeError(w, err)
		return
	}

	d, err := h.studio.Export(format, req.Scale)
	if errors.Is(err, core.ErrNothingToExport) || errors.Is(err, export.ErrDecode) || errors.Is(err, export.ErrNoDiagram) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", d.MIMEType)
	w.Header().Set("Content-Disposition", "attachment; filename="+d.Filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(d.Data)
}

func (h *APIHandler) GetViewHandler(w http.ResponseWriter, r *http.Request) {
	t := h.studio.View()
	writeJSON(w, http.StatusOK, map[string]any{"transform": t, "css": t.CSS()})
}

func (h *APIHandler) ViewActionHandler(w http.ResponseWriter, r *http.Request) {
	t, err := h.studio.ViewAction(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transform": t, "css": t.CSS()})
}

func (h *APIHandler) GetUIHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.studio.State().UI())
}

type OpenModalRequest struct {
	Modal core.Modal  `json:"modal"`
	Mode  core.AIMode `json:"mode,omitempty"`
}

func (h *APIHandler) OpenModalHandler(w http.ResponseWriter, r *http.Request) {
	var req OpenModalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.studio.State().OpenModal(req.Modal, req.Mode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.studio.State().UI())
}

func (h *APIHandler) CloseModalHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.studio.State().CloseModal(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.studio.State().UI())
}

type SetTabRequest struct {
	Tab core.MobileTab `json:"tab"`
}

func (h *APIHandler) SetTabHandler(w http.ResponseWriter, r *http.Request) {
	var req SetTabRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.studio.State().SetMobileTab(req.Tab); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.studio.State().UI())
}
