// Package analytics records visitor events and usage aggregates.
//
// Events flow through a two-path strategy chain. The primary path posts a
// wide datapoint (string blobs, numeric doubles, one sampling index) to an
// external analytics engine over HTTP. When that write fails, or no engine
// is configured, the event falls back to an analytics_events table in the
// relational store. Exactly one path records each event, and the result
// labels which one won ("analytics_engine" or "d1").
//
// All writes are best-effort: a total failure of both paths is logged and
// reported to the caller, but callers are expected to swallow it. Losing
// an analytics row must never fail a visitor-facing request.
//
// The stats view is served from the relational store only; the engine has
// its own downstream query surface.
package analytics
