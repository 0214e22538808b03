package resilience

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen allows probes to determine recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker implements a failure-ratio circuit breaker guarding an upstream
// data source. One breaker instance protects one upstream.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	minRequests  int
	failureRatio float64
	openedAt     time.Time
	openFor      time.Duration
	upstream     string
	logger       *zerolog.Logger
}

// NewBreaker constructs a breaker that opens once the failure ratio exceeds
// the threshold after observing the minimum number of requests.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = 0.5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		state:        Closed,
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
	}
}

// WithUpstream labels the breaker for logs and metrics.
func (b *Breaker) WithUpstream(name string, logger *zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upstream = name
	b.logger = logger
	return b
}

// Allow reports whether a request may proceed, transitioning the breaker to
// half-open once the cool-off period has passed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open {
		if time.Since(b.openedAt) >= b.openFor {
			b.transition(HalfOpen)
			return true
		}
		return false
	}
	return true
}

// Report records the outcome of a request and updates breaker state.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		if success {
			b.reset()
			b.transition(Closed)
		} else {
			b.openedAt = time.Now()
			b.transition(Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.successes + b.failures
	if total < b.minRequests {
		return
	}
	ratio := float64(b.failures) / float64(total)
	if ratio >= b.failureRatio {
		b.openedAt = time.Now()
		b.reset()
		b.transition(Open)
		return
	}
	if total >= b.minRequests*4 {
		// halve the window so old outcomes stop dominating the ratio
		b.successes /= 2
		b.failures /= 2
	}
}

// CurrentState returns the breaker state for observability.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) reset() {
	b.failures = 0
	b.successes = 0
}

func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	observeBreakerState(b.upstream, next)
	if b.logger != nil {
		b.logger.Warn().
			Str("upstream", b.upstream).
			Str("from", prev.String()).
			Str("to", next.String()).
			Msg("circuit breaker state change")
	}
}

// Backoff computes an exponential backoff with optional jitter for the given
// attempt number (1-based).
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base << (attempt - 1)
	if jitter > 0 {
		delta := float64(d) * jitter
		d = time.Duration(float64(d) - delta/2 + rand.Float64()*delta)
	}
	return d
}
