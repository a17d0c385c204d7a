package store

import "fmt"

// Keys under which the editor state is persisted.
const (
	KeyCode     = "mermaidCode"
	KeyTheme    = "mermaidTheme"
	KeyAIConfig = "mermaidAiConfig"
	KeyHistory  = "mermaidHistory"
)

type Theme string

const (
	ThemeDefault   Theme = "default"
	ThemeNeutral   Theme = "neutral"
	ThemeDark      Theme = "dark"
	ThemeForest    Theme = "forest"
	ThemeCyberpunk Theme = "cyberpunk"
	ThemeOcean     Theme = "ocean"
	ThemeSunset    Theme = "sunset"
	ThemeMinimal   Theme = "minimal"
)

var Themes = []Theme{
	ThemeDefault, ThemeNeutral, ThemeDark, ThemeForest,
	ThemeCyberpunk, ThemeOcean, ThemeSunset, ThemeMinimal,
}

func ParseTheme(s string) (Theme, error) {
	for _, t := range Themes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

type AIConfig struct {
	APIKey         string `json:"apiKey"`
	UseCustomURL   bool   `json:"useCustomUrl"`
	CustomURL      string `json:"customUrl"`
	Model          string `json:"model"`
	ThinkingBudget int    `json:"thinkingBudget"` // 0 = disabled
	APIVersion     string `json:"apiVersion"`
}

func DefaultAIConfig() AIConfig {
	return AIConfig{
		Model:          "gemini-2.5-flash",
		ThinkingBudget: 0,
		APIVersion:     "v1beta",
	}
}

type HistoryItem struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Code      string `json:"code"`
	Label     string `json:"label,omitempty"`
}

const InitialCode = `graph TD
    A[Start] --> B{Is it responsive?};
    B -- Yes --> C[Looks great on mobile!];
    B -- No --> D[Add Tailwind classes];
    C --> E[Finish Project];
    D -- Refactor --> B;
    E --> F(Celebrate 🎉);`
