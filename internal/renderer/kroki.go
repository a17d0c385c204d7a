package renderer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// KrokiRenderer renders through a Kroki server's mermaid endpoint.
type KrokiRenderer struct {
	BaseURL string
	client  *http.Client
}

func NewKrokiRenderer(baseURL string, client *http.Client) *KrokiRenderer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &KrokiRenderer{BaseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (r *KrokiRenderer) Render(ctx context.Context, req Request) (string, error) {
	url := r.BaseURL + "/mermaid/svg"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(ApplyTheme(req.Source, req.Theme)))
	if err != nil {
		return "", fmt.Errorf("failed to create kroki request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "text/plain")
	httpReq.Header.Set("Accept", "image/svg+xml")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("kroki request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read kroki response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return string(body), nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		raw := string(body)
		return "", &SyntaxError{Message: strings.TrimSpace(raw), Str: raw}
	default:
		return "", fmt.Errorf("kroki returned status %d: %s", resp.StatusCode, string(body))
	}
}
