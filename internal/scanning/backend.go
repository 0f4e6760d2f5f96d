package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Backend names accepted by New
const (
	BackendTesseract = "tesseract"
	BackendGemini    = "gemini"
	BackendOllama    = "ollama"
)

// Config selects and configures a scanning backend
type Config struct {
	Backend     string
	Tesseract   TesseractConfig
	GeminiKey   string // falls back to GEMINI_API_KEY
	GeminiModel string
	OllamaURL   string
	OllamaModel string
}

// New builds the backend cfg names
func New(ctx context.Context, cfg Config) (Scanner, error) {
	switch cfg.Backend {
	case BackendTesseract, "":
		slog.Info("Initializing Tesseract scanner...", "binary", cfg.Tesseract.Binary, "lang", cfg.Tesseract.Lang)
		return NewTesseract(cfg.Tesseract, nil), nil
	case BackendGemini:
		apiKey := cfg.GeminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini api key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.GeminiModel)
		gemini, err := NewGemini(ctx, apiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return gemini, nil
	case BackendOllama:
		slog.Info("Initializing Ollama scanner...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		ollama, err := NewOllama(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			return nil, err
		}
		return ollama, nil
	default:
		return nil, fmt.Errorf("invalid scanner type %q (valid: tesseract, gemini or ollama)", cfg.Backend)
	}
}
