package translator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerClient trips after consecutive provider failures and rejects calls
// until the cooldown elapses, so a dead provider fails fast.
type BreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

func WithBreaker(next Client, maxFailures uint32, cooldown time.Duration, logger zerolog.Logger) *BreakerClient {
	if maxFailures == 0 {
		maxFailures = 3
	}
	settings := gobreaker.Settings{
		Name:    next.Name(),
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not the provider's fault.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &BreakerClient{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerClient) Name() string {
	return b.next.Name()
}

func (b *BreakerClient) Model() string {
	return ModelOf(b.next)
}

func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerClient) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%s: %w: %w", b.next.Name(), ErrProvider, err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// ModelOf reports the model a client is bound to, or "" when the client
// does not expose one.
func ModelOf(c Client) string {
	if m, ok := c.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}
