// Package breaker implements a per-model circuit breaker. After a run of
// consecutive provider failures the circuit opens and calls fail fast
// without reaching the provider; after a cooling-off period a single
// probe request decides whether to close again.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/minghe/poetry-annotator/internal/util"
)

// ErrOpen is returned by Execute while the circuit is open. The wrapped
// call is not invoked.
var ErrOpen = errors.New("circuit breaker is open")

// State of the circuit
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
	default:
		return "unknown"
	}
}

// Config holds circuit breaker tuning
type Config struct {
	FailMax      int           // consecutive failures before opening
	ResetTimeout time.Duration // open duration before the half-open probe
}

// DefaultConfig matches the provider failure profile of batch runs
func DefaultConfig() Config {
	return Config{
		FailMax:      5,
		ResetTimeout: 60 * time.Second,
	}
}

// Breaker guards one model's provider calls
type Breaker struct {
	name         string
	failMax      int
	resetTimeout time.Duration

	mu                  sync.Mutex
	state               State
	generation          uint64
	consecutiveFailures int
	probeInFlight       bool
	openedAt            time.Time
}

// New creates a breaker named after the model it guards
func New(name string, cfg Config) *Breaker {
	if cfg.FailMax <= 0 {
		cfg.FailMax = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	return &Breaker{
		name:         name,
		failMax:      cfg.FailMax,
		resetTimeout: cfg.ResetTimeout,
	}
}

// Execute runs fn under the breaker. While open it returns ErrOpen
// without invoking fn; in half-open state only one probe is admitted at
// a time and its outcome decides the next state.
func (b *Breaker) Execute(fn func() error) error {
	generation, err := b.beforeRequest()
	if err != nil {
		return err
	}

	err = fn()
	b.afterRequest(generation, err == nil)
	return err
}

func (b *Breaker) beforeRequest() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState(time.Now()) {
	case StateOpen:
		return b.generation, ErrOpen
	case StateHalfOpen:
		if b.probeInFlight {
			return b.generation, ErrOpen
		}
		b.probeInFlight = true
	}
	return b.generation, nil
}

func (b *Breaker) afterRequest(before uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)
	if b.generation != before {
		// The circuit moved on while this call was in flight
		return
	}

	if success {
		b.consecutiveFailures = 0
		if state == StateHalfOpen {
			b.setState(StateClosed, now)
		}
		return
	}

	b.consecutiveFailures++
	if state == StateHalfOpen || (state == StateClosed && b.consecutiveFailures >= b.failMax) {
		b.setState(StateOpen, now)
	}
}

// currentState transitions open -> half-open once the reset timeout has
// elapsed. Callers must hold the mutex.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.resetTimeout {
		b.setState(StateHalfOpen, now)
	}
	return b.state
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.generation++
	b.probeInFlight = false
	if state == StateOpen {
		b.openedAt = now
	}

	util.WarnLog("Breaker %s: %s -> %s (consecutive failures: %d)",
		b.name, prev, state, b.consecutiveFailures)
}

// State returns the current circuit state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}
