package translator

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// StaticService answers every prompt with the same canned response. It is
// used for dry runs and for replaying a saved provider answer offline.
type StaticService struct {
	response string
	prompts  []string
}

func NewStaticService(response string) *StaticService {
	return &StaticService{response: response}
}

// NewStaticServiceFromFile reads the canned response from path.
func NewStaticServiceFromFile(path string) (*StaticService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static response: %w", err)
	}
	return NewStaticService(string(data)), nil
}

func (s *StaticService) Name() string {
	return "static"
}

func (s *StaticService) Model() string {
	return ""
}

func (s *StaticService) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("static: %w: %w", ErrProvider, err)
	}
	s.prompts = append(s.prompts, prompt)
	if strings.TrimSpace(s.response) == "" {
		return "", fmt.Errorf("static: %w", ErrEmptyResponse)
	}
	return s.response, nil
}

// Prompts returns every prompt received so far.
func (s *StaticService) Prompts() []string {
	return s.prompts
}
