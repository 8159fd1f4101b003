package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"memoryd/internal/models"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

var ErrOpen = errors.New("circuit breaker is open")

type Settings struct {
	Name             string
	FailureThreshold int
	ResetTimeout     time.Duration
	// IsFailure decides whether an error counts against the breaker. Defaults to DefaultIsFailure.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

// Breaker trips Open after FailureThreshold consecutive failures, admits a
// single trial call after ResetTimeout (Half-Open) and closes on its success.
type Breaker struct {
	settings Settings

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

func New(settings Settings) *Breaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.ResetTimeout <= 0 {
		settings.ResetTimeout = 10 * time.Second
	}
	if settings.IsFailure == nil {
		settings.IsFailure = DefaultIsFailure
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Breaker{settings: settings}
}

// DefaultIsFailure ignores outcomes that say nothing about dependency health.
func DefaultIsFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrCacheMiss),
		errors.Is(err, models.ErrInvalidData),
		errors.Is(err, models.ErrVersionConflict),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (b *Breaker) Name() string {
	return b.settings.Name
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Allow reserves a call. Every successful Allow must be followed by Done.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.trial {
			return ErrOpen
		}
		b.trial = true
	}
	return nil
}

// Done records the outcome of a call admitted by Allow.
func (b *Breaker) Done(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.settings.IsFailure(err)
	switch b.state {
	case StateHalfOpen:
		b.trial = false
		if failed {
			b.transition(StateOpen)
			return
		}
		b.transition(StateClosed)
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.transition(StateOpen)
		}
	}
}

// Execute runs fn under the breaker.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Done(err)
	return err
}

// advance moves Open to Half-Open once the reset timeout has elapsed. Caller holds mu.
func (b *Breaker) advance() {
	if b.state == StateOpen && b.settings.Now().Sub(b.openedAt) >= b.settings.ResetTimeout {
		b.transition(StateHalfOpen)
	}
}

// RetryAfter is how long until an Open breaker admits a trial call.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	return max(b.settings.ResetTimeout-b.settings.Now().Sub(b.openedAt), time.Second)
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.trial = false
	if to == StateOpen {
		b.openedAt = b.settings.Now()
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}
