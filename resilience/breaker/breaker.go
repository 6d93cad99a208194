package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/menumetrics/lib-resilience/resilience/log"
	"go.opentelemetry.io/otel/metric"
)

const percent = 100

// transition is a completed state change, reported to callbacks and listeners.
type transition struct {
	from State
	to   State
}

// outcome is one terminal call result inside the rolling window.
type outcome struct {
	at      time.Time
	success bool
}

// Breaker guards one integration ("platform") with the CLOSED / OPEN /
// HALF_OPEN state machine. All state transitions happen under a single mutex;
// callbacks and outcome recording run outside it.
type Breaker struct {
	cfg Config

	mu             sync.Mutex
	state          State
	openedAt       time.Time
	probeInFlight  bool
	window         []outcome
	totalSuccesses uint64
	totalFailures  uint64

	now          func() time.Time
	recorder     Recorder
	callbacks    Callbacks
	onTransition func(name string, from, to State)
	logger       log.Logger
	metrics      breakerMetrics
}

// Option customizes Breaker construction.
type Option func(*Breaker)

// WithClock overrides the breaker's time source (used by deterministic tests).
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithRecorder forwards every terminal outcome to the given recorder,
// typically a health.Monitor.
func WithRecorder(recorder Recorder) Option {
	return func(b *Breaker) {
		b.recorder = recorder
	}
}

// WithCallbacks registers per-breaker observer callbacks.
func WithCallbacks(callbacks Callbacks) Option {
	return func(b *Breaker) {
		b.callbacks = callbacks
	}
}

// WithLogger sets the breaker's logger.
func WithLogger(logger log.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMeterProvider wires OpenTelemetry instruments to the given provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(b *Breaker) {
		b.metrics = newBreakerMetrics(provider)
	}
}

// withTransitionHook is used by the Manager to fan out state changes to its
// registered listeners.
func withTransitionHook(hook func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onTransition = hook
	}
}

// New creates a circuit breaker in the CLOSED state.
func New(cfg Config, opts ...Option) (*Breaker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	b := &Breaker{
		cfg:     cfg.normalize(),
		state:   StateClosed,
		now:     time.Now,
		logger:  log.NewNop(),
		metrics: newBreakerMetrics(nil),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b, nil
}

// Name returns the breaker's platform name.
func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}

	return b.cfg.Name
}

// State returns the current state.
func (b *Breaker) State() State {
	if b == nil {
		return StateUnknown
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Counts returns the current statistics.
func (b *Breaker) Counts() Counts {
	if b == nil {
		return Counts{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked(b.now())

	counts := Counts{
		WindowRequests: len(b.window),
		TotalSuccesses: b.totalSuccesses,
		TotalFailures:  b.totalFailures,
	}

	for _, o := range b.window {
		if !o.success {
			counts.WindowFailures++
		}
	}

	return counts
}

// Do runs op through the breaker. It returns the operation's result unchanged,
// ErrCircuitOpen when the call is rejected without execution, or ErrTimeout
// when the call exceeded the configured timeout. Every terminal outcome is
// forwarded to the recorder.
func (b *Breaker) Do(ctx context.Context, op Operation) (any, error) {
	if b == nil {
		return nil, ErrBreakerNotFound
	}

	admitted, isProbe, trans := b.admit()
	if trans != nil {
		b.fireTransition(*trans)
	}

	if !admitted {
		b.rejectOpen(ctx)

		return nil, ErrCircuitOpen
	}

	start := b.now()
	result, err := b.run(ctx, op)
	elapsed := b.now().Sub(start)

	success := err == nil

	errorKind := ""

	switch {
	case success:
	case errors.Is(err, ErrTimeout):
		errorKind = ErrorKindTimeout
	default:
		errorKind = ErrorKindOperation
	}

	completed := b.complete(isProbe, success)

	// Record before notifying observers: a listener reacting to the open
	// transition must already see the outcome that tripped the circuit.
	b.record(success, elapsed, errorKind)
	b.metrics.callDurationRecord(ctx, elapsed.Seconds(), b.cfg.Name)

	if completed != nil {
		b.fireTransition(*completed)
	}

	if !success && b.callbacks.OnFailure != nil {
		b.safeCallback(func() { b.callbacks.OnFailure(b.cfg.Name, err) })
	}

	return result, err
}

// ForceOpen bypasses the statistical decision and opens the circuit, e.g. for
// operator intervention during a known outage.
func (b *Breaker) ForceOpen() {
	if b == nil {
		return
	}

	b.mu.Lock()
	from := b.state
	b.state = StateOpen
	b.openedAt = b.now()
	b.probeInFlight = false
	b.mu.Unlock()

	if from != StateOpen {
		b.fireTransition(transition{from: from, to: StateOpen})
	}
}

// ForceClose bypasses the statistical decision and closes the circuit.
func (b *Breaker) ForceClose() {
	if b == nil {
		return
	}

	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.openedAt = time.Time{}
	b.probeInFlight = false
	b.mu.Unlock()

	if from != StateClosed {
		b.fireTransition(transition{from: from, to: StateClosed})
	}
}

// ResetStats clears the rolling window and totals without changing state.
func (b *Breaker) ResetStats() {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetStatsLocked()
}

func (b *Breaker) resetStatsLocked() {
	b.window = nil
	b.totalSuccesses = 0
	b.totalFailures = 0
}

// admit decides whether a call may proceed. It returns whether the call is
// admitted, whether it is the half-open probe, and any state transition that
// occurred (OPEN -> HALF_OPEN when the reset timeout elapsed).
func (b *Breaker) admit() (admitted, isProbe bool, trans *transition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, false, nil

	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.state = StateHalfOpen
			b.probeInFlight = true

			return true, true, &transition{from: StateOpen, to: StateHalfOpen}
		}

		return false, false, nil

	case StateHalfOpen:
		// Exactly one in-flight probe is permitted; everyone else is shed.
		if b.probeInFlight {
			return false, false, nil
		}

		b.probeInFlight = true

		return true, true, nil

	default:
		return false, false, nil
	}
}

// complete records the outcome and applies the resulting state transition, if
// any. For the half-open probe: success closes the circuit and resets stats,
// failure reopens it and restarts the reset timer.
func (b *Breaker) complete(isProbe, success bool) *transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	b.pruneLocked(now)
	b.window = append(b.window, outcome{at: now, success: success})

	if success {
		b.totalSuccesses++
	} else {
		b.totalFailures++
	}

	if isProbe {
		b.probeInFlight = false

		// A manual ForceOpen/ForceClose while the probe was in flight wins;
		// the probe outcome then only contributes to statistics.
		if b.state != StateHalfOpen {
			return nil
		}

		if success {
			b.state = StateClosed
			b.openedAt = time.Time{}
			b.resetStatsLocked()

			return &transition{from: StateHalfOpen, to: StateClosed}
		}

		b.state = StateOpen
		b.openedAt = now

		return &transition{from: StateHalfOpen, to: StateOpen}
	}

	if b.state == StateClosed && !success && b.shouldTripLocked() {
		b.state = StateOpen
		b.openedAt = now

		return &transition{from: StateClosed, to: StateOpen}
	}

	return nil
}

// shouldTripLocked evaluates the trip condition over the pruned window.
func (b *Breaker) shouldTripLocked() bool {
	requests := len(b.window)
	if requests < b.cfg.VolumeThreshold {
		return false
	}

	failures := 0

	for _, o := range b.window {
		if !o.success {
			failures++
		}
	}

	failurePct := float64(failures) / float64(requests) * percent

	return failurePct >= b.cfg.ErrorThresholdPct
}

// pruneLocked evicts window entries older than the configured window.
func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)

	firstLive := 0
	for firstLive < len(b.window) && !b.window[firstLive].at.After(cutoff) {
		firstLive++
	}

	if firstLive > 0 {
		b.window = append(b.window[:0], b.window[firstLive:]...)
	}
}

// run executes op racing against the configured timeout. On timeout the
// operation's context is cancelled and a late result, if it ever arrives, is
// dropped on a buffered channel.
func (b *Breaker) run(ctx context.Context, op Operation) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	callCtx := ctx

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	type callResult struct {
		value any
		err   error
	}

	resultCh := make(chan callResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- callResult{err: fmt.Errorf("breaker: operation panicked: %v", r)}
			}
		}()

		value, err := op(callCtx)
		resultCh <- callResult{value: value, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-callCtx.Done():
		// The caller's own cancellation passes through unchanged; only the
		// breaker-imposed deadline becomes ErrTimeout.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, ErrTimeout
	}
}

// rejectOpen accounts for a call rejected while the circuit is open.
func (b *Breaker) rejectOpen(ctx context.Context) {
	b.metrics.rejection(ctx, b.cfg.Name)
	b.record(false, 0, ErrorKindCircuitOpen)

	if b.logger.Enabled(log.LevelDebug) {
		b.logger.Log(ctx, log.LevelDebug, "circuit open, request rejected",
			log.String("breaker", b.cfg.Name))
	}
}

// record forwards one terminal outcome to the health recorder.
func (b *Breaker) record(success bool, latency time.Duration, errorKind string) {
	if b.recorder == nil {
		return
	}

	b.recorder.RecordEvent(b.cfg.Name, success, latency, errorKind)
}

// fireTransition logs, measures, and notifies observers of a state change.
func (b *Breaker) fireTransition(trans transition) {
	ctx := context.Background()

	level := log.LevelInfo
	if trans.to == StateOpen {
		level = log.LevelWarn
	}

	b.logger.Log(ctx, level, "circuit breaker state changed",
		log.String("breaker", b.cfg.Name),
		log.String("from", string(trans.from)),
		log.String("to", string(trans.to)),
	)

	b.metrics.transition(ctx, b.cfg.Name, trans.from, trans.to)

	switch trans.to {
	case StateOpen:
		if b.callbacks.OnOpen != nil {
			b.safeCallback(func() { b.callbacks.OnOpen(b.cfg.Name) })
		}
	case StateClosed:
		if b.callbacks.OnClose != nil {
			b.safeCallback(func() { b.callbacks.OnClose(b.cfg.Name) })
		}
	case StateHalfOpen:
		if b.callbacks.OnHalfOpen != nil {
			b.safeCallback(func() { b.callbacks.OnHalfOpen(b.cfg.Name) })
		}
	}

	if b.onTransition != nil {
		b.onTransition(b.cfg.Name, trans.from, trans.to)
	}
}

// safeCallback invokes a user callback, containing panics so observer bugs
// never corrupt breaker state.
func (b *Breaker) safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Log(context.Background(), log.LevelError, "breaker callback panicked",
				log.String("breaker", b.cfg.Name),
				log.Any("panic", r))
		}
	}()

	fn()
}
