package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shrek82/jmap/core"
	"xorkevin.dev/kerrors"
)

// ErrCircuitOpen is returned for calls the breaker turns away. The call never
// reaches a connection.
var ErrCircuitOpen errCircuitOpen

type errCircuitOpen struct{}

func (e errCircuitOpen) Error() string {
	return "Circuit open"
}

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerMiddleware stops dispatching calls once Threshold calls in a
// row have failed at the database. After ResetTimeout a single trial call is
// let through; its outcome closes or reopens the breaker.
//
// Cancellation, deadlines and materialization errors say nothing about the
// database and are not counted. Neither are results served from a cache.
type CircuitBreakerMiddleware struct {
	Threshold    int
	ResetTimeout time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreakerMiddleware {
	return &CircuitBreakerMiddleware{
		Threshold:    threshold,
		ResetTimeout: resetTimeout,
	}
}

func (m *CircuitBreakerMiddleware) Name() string {
	return "CircuitBreaker"
}

func (m *CircuitBreakerMiddleware) Init(db *core.DB) error {
	return nil
}

func (m *CircuitBreakerMiddleware) Shutdown() error {
	return nil
}

// State returns the breaker's current state. An open breaker whose timeout
// has passed still reports open until the next call.
func (m *CircuitBreakerMiddleware) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *CircuitBreakerMiddleware) Process(ctx context.Context, call *core.Call, next core.CallFunc) (*core.Result, error) {
	trial, err := m.admit(call)
	if err != nil {
		return nil, err
	}

	res, err := next(ctx, call)

	switch {
	case err == nil:
		if res == nil || !res.Cached {
			m.succeeded(trial)
		} else if trial {
			m.release()
		}
	case countsAgainst(err):
		m.failed(trial)
	case trial:
		m.release()
	}
	return res, err
}

// admit decides whether call may run. trial is true for the one call let
// through a half-open breaker.
func (m *CircuitBreakerMiddleware) admit(call *core.Call) (trial bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateOpen:
		if time.Since(m.openedAt) < m.ResetTimeout {
			return false, m.reject(call)
		}
		m.state = StateHalfOpen
	case StateHalfOpen:
		if m.trial {
			return false, m.reject(call)
		}
	default:
		return false, nil
	}
	m.trial = true
	return true, nil
}

func (m *CircuitBreakerMiddleware) reject(call *core.Call) error {
	return kerrors.WithKind(nil, ErrCircuitOpen, fmt.Sprintf("Rejected %s call after %d failures", call.Op, m.failures))
}

func (m *CircuitBreakerMiddleware) succeeded(trial bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = 0
	if trial {
		m.state = StateClosed
		m.trial = false
	}
}

func (m *CircuitBreakerMiddleware) failed(trial bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	if trial || (m.state == StateClosed && m.failures >= m.Threshold) {
		m.state = StateOpen
		m.openedAt = time.Now()
		m.trial = false
	}
}

// release gives up a trial slot without a verdict.
func (m *CircuitBreakerMiddleware) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trial = false
}

func countsAgainst(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, core.ErrMaterialize)
}
