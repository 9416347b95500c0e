package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Runner triggers a Sweeper on a fixed interval.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRunner creates a Runner that sweeps every interval.
func NewRunner(sweeper *Sweeper, interval time.Duration, logger zerolog.Logger) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.With().Str("component", "sweep_runner").Logger(),
	}
}

// Start runs a sweep immediately and then once per interval until Stop is
// called or ctx ends. Calling Start on a running Runner does nothing.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)

	r.logger.Info().Dur("interval", r.interval).Msg("Sweep runner started")
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	r.logger.Info().Msg("Sweep runner stopped")
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	if err := r.sweeper.Run(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error().Err(err).Msg("Sweep failed")
	}
}
