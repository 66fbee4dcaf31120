package breaker

import (
	"errors"
	"sync"
	"time"

	"syncengine/internal/metrics"
)

// ErrOpen is returned when the breaker short-circuits a call without
// contacting the provider. The worker treats it as a normal transient
// failure so recovery is automatic once the breaker closes.
var ErrOpen = errors.New("circuit breaker is open")

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

// Breaker isolates one provider. Consecutive failures up to the threshold
// trip it open; after the timeout a single probe call is let through.
// State is process-local.
type Breaker struct {
	provider  string
	threshold int
	timeout   time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time // overridable in tests
}

func New(provider string, threshold int, timeout time.Duration) *Breaker {
	return &Breaker{
		provider:  provider,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Do runs fn behind the breaker. When open it returns ErrOpen without
// invoking fn; when half-open exactly one caller gets the probe.
func (b *Breaker) Do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			// Another caller already holds the probe slot.
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if b.state == StateHalfOpen {
			// Failed probe: reopen and rearm the window.
			b.trip()
			return
		}
		if b.failures >= b.threshold {
			b.trip()
		}
		return
	}

	b.failures = 0
	if b.state != StateClosed {
		b.setState(StateClosed)
	}
	b.probing = false
}

func (b *Breaker) trip() {
	b.setState(StateOpen)
	b.openedAt = b.now()
	b.probing = false
}

func (b *Breaker) setState(s State) {
	b.state = s
	metrics.SetBreakerState(b.provider, float64(s))
}

// State returns the current state, accounting for an elapsed open window.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.timeout {
		return StateHalfOpen
	}
	return b.state
}

// Registry hands out one breaker per provider id within the process.
type Registry struct {
	threshold int
	timeout   time.Duration

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return &Registry{
		threshold: threshold,
		timeout:   timeout,
		breakers:  make(map[string]*Breaker),
	}
}

// For returns the breaker for a provider, creating it on first use.
func (r *Registry) For(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[provider]
	if !ok {
		b = New(provider, r.threshold, r.timeout)
		r.breakers[provider] = b
	}
	return b
}
