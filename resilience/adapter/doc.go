// Package adapter manages the lifecycle of versioned platform adapters and
// automatically rolls a failing version back to the last stable one.
//
// The Manager owns AdapterVersion and RollbackEvent persistence exclusively.
// It enforces the at-most-one-active-version-per-platform invariant under a
// per-platform lock, evaluates four independent rollback gates against the
// health monitor's rolling metrics, and keeps an immutable audit trail of
// every rollback. A background sweep re-evaluates all platforms on a fixed
// interval; a circuit breaker opening triggers an immediate evaluation.
package adapter
