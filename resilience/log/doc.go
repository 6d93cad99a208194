// Package log defines the structured logging contract shared by every
// resilience component. Components accept a Logger and never construct one;
// the zap-backed implementation lives in resilience/zap.
package log
