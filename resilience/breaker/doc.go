// Package breaker protects outbound integration calls with per-platform
// circuit breakers.
//
// A Breaker wraps one integration's calls in the CLOSED / OPEN / HALF_OPEN
// state machine: failures are tracked over a rolling one-minute window, the
// circuit trips once both the volume threshold and the error-percentage
// threshold are met, and after a cooldown a single probe call decides between
// recovery and another cooldown. Every terminal outcome, including rejections
// while open, is forwarded to the health monitor so rollback decisions see
// the same ground truth regardless of which breaker instance handled a call.
//
// Use NewManager for a process-wide registry of breakers keyed by platform.
package breaker
