// Package backend talks to the AI provider on behalf of the gateway.
//
// # Strategies
//
// Two adapters implement the Client interface:
//
//   - CompletionAdapter is stateless. Every turn sends the system prompt,
//     a window of recent conversation history, and the new user message in
//     one chat completion call. The provider remembers nothing between
//     turns; context lives entirely in the replayed window.
//
//   - ThreadAdapter is stateful. The conversation maps to a provider-side
//     thread that accumulates messages across turns. Each turn appends the
//     user message, starts a run against a configured assistant, and polls
//     the run until it reaches a terminal status. History replay is not
//     needed because the thread carries it.
//
// The gateway picks the adapter per turn: threaded when the resolved
// assistant carries a provider assistant id, stateless otherwise.
//
// # Polling
//
// The run poll loop is the only blocking wait in the request path. It is
// bounded: a fixed number of attempts at a fixed interval (30 x 1s by
// default), after which the turn fails with ErrRunTimedOut. Runs that
// report failed, expired or cancelled fail with ErrRunFailed. Callers map
// both to a localized fallback reply rather than an HTTP error.
//
// # Errors
//
// Adapters return wrapped provider errors; sentinel errors (ErrNoAPIKey,
// ErrRunFailed, ErrRunTimedOut) are matchable with errors.Is.
package backend
