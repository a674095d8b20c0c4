// Package breaker implements a consecutive-failure circuit breaker.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker position.
type State string

// Breaker states.
const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	defaultThreshold = 3
	defaultCooldown  = 30 * time.Second
)

// Config contains breaker settings.
type Config struct {
	Threshold uint
	Cooldown  time.Duration

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Breaker opens after Threshold consecutive failures, and after Cooldown lets
// a single trial call through.
type Breaker struct {
	mu        sync.Mutex
	threshold uint
	cooldown  time.Duration
	now       func() time.Time

	state    State
	failures uint
	openedAt time.Time
	trial    bool
	trialSeq uint64
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	b := &Breaker{
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		now:       cfg.Now,
		state:     StateClosed,
	}
	if b.threshold == 0 {
		b.threshold = defaultThreshold
	}
	if b.cooldown <= 0 {
		b.cooldown = defaultCooldown
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Allow reports whether a call may proceed. In half-open state only one
// trial is admitted until it reports back.
func (b *Breaker) Allow() bool {
	_, ok := b.Acquire()
	return ok
}

// Acquire is Allow with a release func. Releasing a half-open trial that
// never reported Success or Failure frees the slot for the next caller; it
// is a no-op once the trial reported back or for calls made while closed.
func (b *Breaker) Acquire() (release func(), ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()

	switch b.state {
	case StateClosed:
		return func() {}, true
	case StateHalfOpen:
		if b.trial {
			return nil, false
		}
		b.trial = true
		b.trialSeq++
		seq := b.trialSeq
		return func() { b.release(seq) }, true
	default:
		return nil, false
	}
}

func (b *Breaker) release(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.trial && b.trialSeq == seq {
		b.trial = false
	}
}

// Success closes the breaker and clears the failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.trial = false
}

// Failure counts a failure and opens the breaker at the threshold. A failed
// half-open trial re-opens it immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()
	b.failures++

	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
		b.trial = false
	}
}

// State returns the current position, moving open to half-open once the cooldown elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset returns the breaker to closed.
func (b *Breaker) Reset() {
	b.Success()
}

// advance must be called with b.mu held.
func (b *Breaker) advance() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		b.trial = false
	}
}
