package renderer

import (
	"encoding/json"
	"strings"

	"gwi.com/mermaid-studio/internal/store"
)

// Palette is what a Theme resolves to: one of Mermaid's built-in base themes
// plus optional variable overrides.
type Palette struct {
	Base      string            `json:"theme"`
	Variables map[string]string `json:"themeVariables,omitempty"`
}

var palettes = map[store.Theme]Palette{
	store.ThemeDefault: {Base: "default"},
	store.ThemeNeutral: {Base: "neutral"},
	store.ThemeDark:    {Base: "dark"},
	store.ThemeForest:  {Base: "forest"},
	store.ThemeCyberpunk: {Base: "base", Variables: map[string]string{
		"background":         "#0d0221",
		"primaryColor":       "#ff2a6d",
		"primaryTextColor":   "#f8f8f2",
		"primaryBorderColor": "#05d9e8",
		"lineColor":          "#05d9e8",
		"secondaryColor":     "#d1f7ff",
		"tertiaryColor":      "#1a1a2e",
		"fontFamily":         "monospace",
	}},
	store.ThemeOcean: {Base: "base", Variables: map[string]string{
		"primaryColor":       "#e0f2fe",
		"primaryTextColor":   "#0c4a6e",
		"primaryBorderColor": "#0284c7",
		"lineColor":          "#0369a1",
		"secondaryColor":     "#bae6fd",
		"tertiaryColor":      "#f0f9ff",
	}},
	store.ThemeSunset: {Base: "base", Variables: map[string]string{
		"primaryColor":       "#ffedd5",
		"primaryTextColor":   "#7c2d12",
		"primaryBorderColor": "#f97316",
		"lineColor":          "#ea580c",
		"secondaryColor":     "#fecdd3",
		"tertiaryColor":      "#fff7ed",
	}},
	store.ThemeMinimal: {Base: "base", Variables: map[string]string{
		"primaryColor":       "#ffffff",
		"primaryTextColor":   "#111827",
		"primaryBorderColor": "#9ca3af",
		"lineColor":          "#6b7280",
		"secondaryColor":     "#f9fafb",
		"tertiaryColor":      "#ffffff",
	}},
}

// PaletteFor returns the palette for t, falling back to the default theme.
func PaletteFor(t store.Theme) Palette {
	if p, ok := palettes[t]; ok {
		return p
	}
	return palettes[store.ThemeDefault]
}

// ApplyTheme prefixes source with an init directive carrying the palette.
func ApplyTheme(source string, t store.Theme) string {
	directive, err := json.Marshal(PaletteFor(t))
	if err != nil {
		return source
	}
	var b strings.Builder
	b.WriteString("%%{init: ")
	b.Write(directive)
	b.WriteString("}%%\n")
	b.WriteString(source)
	return b.String()
}
