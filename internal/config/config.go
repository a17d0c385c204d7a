package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL    string
	HTTPPort       string
	LogLevel       string
	Renderer       string
	MmdcPath       string
	KrokiURL       string
	RenderDebounce time.Duration
	RenderTimeout  time.Duration
	AllowedOrigins []string
	// SessionSync is how often a running process checks the database for
	// changes made by other processes.
	SessionSync time.Duration

	// First-run AI defaults. They only apply when no AI config was persisted yet.
	DefaultAPIKey     string
	DefaultCustomURL  string
	DefaultModel      string
	DefaultAPIVersion string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = FromEnv()
}

// FromEnv builds a Config from the current process environment.
func FromEnv() Config {
	return Config{
		DatabaseURL:       getEnv("DATABASE_URL", "mermaid_studio.db"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "INFO"),
		Renderer:          getEnv("RENDERER", "mmdc"),
		MmdcPath:          getEnv("MMDC_PATH", "mmdc"),
		KrokiURL:          getEnv("KROKI_URL", "https://kroki.io"),
		RenderDebounce:    time.Duration(getEnvAsInt("RENDER_DEBOUNCE_MS", 400)) * time.Millisecond,
		RenderTimeout:     time.Duration(getEnvAsInt("RENDER_TIMEOUT_SECONDS", 30)) * time.Second,
		AllowedOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "http://127.0.0.1:*"}),
		SessionSync:       time.Duration(getEnvAsInt("SESSION_SYNC_MS", 1000)) * time.Millisecond,
		DefaultAPIKey:     getEnv("API_KEY", ""),
		DefaultCustomURL:  getEnv("CUSTOM_URL", ""),
		DefaultModel:      getEnv("AI_MODEL", ""),
		DefaultAPIVersion: getEnv("AI_API_VERSION", ""),
	}
}

func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "DEBUG")
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
