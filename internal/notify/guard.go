package notify

import (
	"context"
	"errors"

	"auction-tracker/internal/config"
	apperrors "auction-tracker/internal/errors"
	"auction-tracker/internal/resilience"
)

// guardedChannel fails fast while its channel's breaker is open.
type guardedChannel struct {
	Channel
	breaker *resilience.Breaker
}

// Guard wraps ch in a circuit breaker. A zero failure threshold returns ch
// unchanged.
func Guard(ch Channel, cfg config.BreakerConfig) Channel {
	if cfg.FailureThreshold <= 0 {
		return ch
	}
	return &guardedChannel{
		Channel: ch,
		breaker: resilience.New(ch.Name(), resilience.Config{
			FailureThreshold: cfg.FailureThreshold,
			Cooldown:         cfg.Cooldown,
		}),
	}
}

func (g *guardedChannel) Dispatch(ctx context.Context, msg Message) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.Channel.Dispatch(ctx, msg)
	})
	if errors.Is(err, resilience.ErrOpen) {
		return apperrors.NewDispatchError(g.Name(), msg.To, err)
	}
	return err
}
