// Package health tracks per-platform call outcomes and serves rolling-window
// health metrics (1h and 24h success rates, consecutive failures, latency).
//
// The monitor is the single source of truth consumed by the adapter version
// manager's rollback decisions; circuit breakers forward every terminal call
// outcome here so decisions see identical ground truth regardless of which
// breaker instance handled the call.
package health
