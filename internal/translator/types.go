package translator

import (
	"context"
	"errors"
)

var (
	// ErrProvider wraps every failure reported by a provider call.
	ErrProvider = errors.New("provider error")
	// ErrEmptyResponse is returned when a provider answers with blank text.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// Client sends one fully rendered prompt and returns the provider's raw
// text answer. A call is a single attempt; implementations do not retry.
type Client interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}
