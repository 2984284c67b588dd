package translator

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

type GeminiService struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiService creates a Gemini API client. baseURL is only set in
// tests or behind a proxy.
func NewGeminiService(ctx context.Context, apiKey, model, baseURL string, temperature float32) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiService{client: client, model: model, temperature: temperature}, nil
}

func (s *GeminiService) Name() string {
	return "gemini"
}

func (s *GeminiService) Model() string {
	return s.model
}

func (s *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("gemini: %w: %w", ErrProvider, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return text, nil
}
