// Package resilience provides a circuit breaker for delivery channels.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State string

const (
	StateClosed   State = "CLOSED"    // Normal operation
	StateOpen     State = "OPEN"      // Failing, rejecting calls
	StateHalfOpen State = "HALF_OPEN" // One trial call allowed
)

// ErrOpen is returned while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. Zero disables the breaker.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a trial call is let through.
	Cooldown time.Duration
}

// Breaker stops calling a dependency that keeps failing.
type Breaker struct {
	name   string
	config Config
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	requests int64
	rejected int64
}

// New creates a closed breaker.
func New(name string, config Config) *Breaker {
	return &Breaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn unless the circuit is open. Context cancellation does not
// count as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests++
	if b.config.FailureThreshold <= 0 {
		return nil
	}

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejected++
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			b.rejected++
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.FailureThreshold <= 0 {
		return
	}

	switch {
	case err == nil:
		b.state = StateClosed
		b.failures = 0
		b.probing = false
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		b.probing = false
	default:
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.config.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
		b.probing = false
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Stats returns breaker statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Name:                b.name,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		Requests:            b.requests,
		Rejected:            b.rejected,
		OpenedAt:            b.openedAt,
	}
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// Stats holds breaker statistics.
type Stats struct {
	Name                string    `json:"name"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	Requests            int64     `json:"requests"`
	Rejected            int64     `json:"rejected"`
	OpenedAt            time.Time `json:"openedAt,omitempty"`
}
