package translator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "google/gemini-2.0-flash-exp:free"
)

// OpenRouterService talks to OpenRouter through its OpenAI-compatible API.
type OpenRouterService struct {
	llm         llms.Model
	model       string
	temperature float32
}

func NewOpenRouterService(apiKey, model, baseURL string, temperature float32) (*OpenRouterService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key required")
	}
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	if model == "" {
		model = DefaultOpenRouterModel
	}

	llm, err := lcopenai.New(
		lcopenai.WithBaseURL(baseURL),
		lcopenai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		lcopenai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenRouter client: %w", err)
	}

	return &OpenRouterService{llm: llm, model: model, temperature: temperature}, nil
}

func (s *OpenRouterService) Name() string {
	return "openrouter"
}

func (s *OpenRouterService) Model() string {
	return s.model
}

func (s *OpenRouterService) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt,
		llms.WithTemperature(float64(s.temperature)),
	)
	if err != nil {
		return "", fmt.Errorf("openrouter: %w: %w", ErrProvider, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("openrouter: %w", ErrEmptyResponse)
	}
	return text, nil
}
