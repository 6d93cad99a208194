package breaker

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCircuitOpen is returned when a call is rejected without execution
	// because the circuit is open. Callers should fall back to cached data.
	ErrCircuitOpen = errors.New("breaker: circuit is open")
	// ErrTimeout is returned when the wrapped operation exceeded the
	// configured timeout. It counts as a failure for trip statistics.
	ErrTimeout = errors.New("breaker: operation timed out")
	// ErrBreakerNotFound is returned by Manager calls referencing a breaker
	// that was never created.
	ErrBreakerNotFound = errors.New("breaker: not found (call GetOrCreate first)")
	// ErrInvalidConfig indicates the provided breaker configuration is invalid.
	ErrInvalidConfig = errors.New("breaker: invalid config")
)

// Error kinds forwarded to the health monitor with each recorded outcome.
const (
	ErrorKindTimeout     = "timeout"
	ErrorKindCircuitOpen = "circuit_open"
	ErrorKindOperation   = "operation"
)

// State represents circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

// Counts represents circuit breaker statistics. Window counts cover the
// rolling window only; totals accumulate until ResetStats.
type Counts struct {
	WindowRequests int
	WindowFailures int
	TotalSuccesses uint64
	TotalFailures  uint64
}

// Operation is the unit of work protected by a breaker. The context is
// cancelled when the breaker's timeout elapses; a result arriving after that
// is discarded.
type Operation func(ctx context.Context) (any, error)

// Recorder receives every terminal call outcome (success, failure, timeout,
// rejection-while-open). Satisfied by health.Monitor.
type Recorder interface {
	RecordEvent(platform string, success bool, latency time.Duration, errorKind string)
}

// Callbacks are optional per-breaker observers. They are invoked outside the
// breaker's lock and a panicking callback never corrupts breaker state.
type Callbacks struct {
	OnOpen     func(name string)
	OnClose    func(name string)
	OnHalfOpen func(name string)
	OnFailure  func(name string, err error)
}

// StateChangeListener is notified when any breaker managed by a Manager
// changes state.
type StateChangeListener interface {
	OnStateChange(name string, from State, to State)
}
