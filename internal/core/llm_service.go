package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"gwi.com/mermaid-studio/internal/store"
)

var (
	ErrMissingAPIKey     = errors.New("API key is missing")
	ErrMalformedResponse = errors.New("AI response did not contain any text")
)

// APIError is a non-2xx answer from the generative API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("AI API returned status %d: %s", e.StatusCode, e.Message)
}

type Media struct {
	MIMEType string
	Data     []byte
}

type GenerateInput struct {
	Prompt      string
	ContextCode string
	Media       *Media
}

type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
}

type LLMService struct {
	httpClient *http.Client
	retry      retryPolicy
}

func NewLLMService(httpClient *http.Client) *LLMService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &LLMService{httpClient: httpClient, retry: newRetryPolicy()}
}

// Generate returns cleaned Mermaid code for the input. Transient failures
// are retried with backoff.
func (s *LLMService) Generate(ctx context.Context, in GenerateInput, cfg store.AIConfig) (string, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return "", ErrMissingAPIKey
	}
	system := buildSystemInstruction(in.ContextCode)

	call := func(ctx context.Context) (string, error) {
		if cfg.UseCustomURL {
			return s.generateHTTP(ctx, in, system, cfg)
		}
		return s.generateSDK(ctx, in, system, cfg)
	}
	raw, err := s.retry.do(ctx, call)
	if err != nil {
		log.Printf("AI generation failed: %v", err)
		return "", err
	}
	return CleanResponse(raw), nil
}

func (s *LLMService) generateSDK(ctx context.Context, in GenerateInput, system string, cfg store.AIConfig) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return "", fmt.Errorf("failed to create GenAI client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	model.SetTemperature(generationTemperature)

	parts := []genai.Part{genai.Text(in.Prompt)}
	if in.Media != nil {
		parts = append(parts, genai.Blob{MIMEType: in.Media.MIMEType, Data: in.Media.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrMalformedResponse
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if text.Len() == 0 {
		return "", ErrMalformedResponse
	}
	return text.String(), nil
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

// Data is base64 encoded by encoding/json.
type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature    float64               `json:"temperature"`
	ThinkingConfig *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content *geminiContent `json:"content"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (s *LLMService) generateHTTP(ctx context.Context, in GenerateInput, system string, cfg store.AIConfig) (string, error) {
	parts := []geminiPart{{Text: in.Prompt}}
	if in.Media != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MIMEType: in.Media.MIMEType, Data: in.Media.Data}})
	}
	apiReq := geminiRequest{
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		GenerationConfig:  &geminiGenerationConfig{Temperature: generationTemperature},
	}
	if supportsThinking(cfg.Model) && cfg.ThinkingBudget > 0 {
		apiReq.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: cfg.ThinkingBudget}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/models/%s:generateContent", baseURL(cfg), cfg.APIVersion, cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", cfg.APIKey)

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}

	var apiResp geminiResponse
	decodeErr := json.Unmarshal(respBody, &apiResp)

	if httpResp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if decodeErr == nil && apiResp.Error != nil && apiResp.Error.Message != "" {
			msg = apiResp.Error.Message
		}
		return "", &APIError{StatusCode: httpResp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	if len(apiResp.Candidates) == 0 || apiResp.Candidates[0].Content == nil ||
		len(apiResp.Candidates[0].Content.Parts) == 0 || apiResp.Candidates[0].Content.Parts[0].Text == "" {
		return "", ErrMalformedResponse
	}
	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}

func baseURL(cfg store.AIConfig) string {
	return strings.TrimRight(cfg.CustomURL, "/")
}

// ListModels never fails; any problem yields an empty list.
func (s *LLMService) ListModels(ctx context.Context, cfg store.AIConfig) []ModelInfo {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return []ModelInfo{}
	}
	var (
		models []ModelInfo
		err    error
	)
	if cfg.UseCustomURL {
		models, err = s.listModelsHTTP(ctx, cfg)
	} else {
		models, err = s.listModelsSDK(ctx, cfg)
	}
	if err != nil {
		log.Printf("Failed to list models: %v", err)
		return []ModelInfo{}
	}
	return models
}

type modelListResponse struct {
	Models []struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"models"`
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (s *LLMService) listModelsHTTP(ctx context.Context, cfg store.AIConfig) ([]ModelInfo, error) {
	endpoint := fmt.Sprintf("%s/%s/models?key=%s", baseURL(cfg), cfg.APIVersion, url.QueryEscape(cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model list request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	var body modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	models := []ModelInfo{}
	switch {
	case len(body.Models) > 0:
		for _, m := range body.Models {
			models = append(models, ModelInfo{ID: strings.TrimPrefix(m.Name, "models/"), DisplayName: m.DisplayName})
		}
	case len(body.Data) > 0:
		for _, m := range body.Data {
			models = append(models, ModelInfo{ID: m.ID})
		}
	}
	return models, nil
}

func (s *LLMService) listModelsSDK(ctx context.Context, cfg store.AIConfig) ([]ModelInfo, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	defer client.Close()

	models := []ModelInfo{}
	it := client.ListModels(ctx)
	for {
		m, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate models: %w", err)
		}
		models = append(models, ModelInfo{ID: strings.TrimPrefix(m.Name, "models/"), DisplayName: m.DisplayName})
	}
	return models, nil
}
