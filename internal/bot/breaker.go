package bot

import (
	"context"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerGenerator stops calling a failing generator for a while so requests
// fall back immediately instead of waiting for a timeout each time.
type BreakerGenerator struct {
	next    Generator
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewBreakerGenerator(next Generator, maxFailures uint32, timeout, openFor time.Duration) *BreakerGenerator {
	if maxFailures == 0 {
		maxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "bot",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &BreakerGenerator{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker(st),
		timeout: timeout,
	}
}

func (b *BreakerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	res, err := b.cb.Execute(func() (interface{}, error) {
		reply, err := b.next.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(reply) == "" {
			return nil, ErrEmptyReply
		}
		return reply, nil
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// State reports the breaker state, e.g. for health output
func (b *BreakerGenerator) State() gobreaker.State {
	return b.cb.State()
}
