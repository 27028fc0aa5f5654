// Package gateway is the core of chat-gateway: it accepts chat turns over
// HTTP, orchestrates the conversation store, the assistant resolver and the
// AI backend adapters, and records analytics through the dual-path sink.
//
// # Request Flow
//
// One POST /api/chatbot turn runs through:
//
//  1. Rate limit check (per client IP, when enabled)
//  2. Body validation - message text is required
//  3. Conversation load or create (a supplied unknown id is a 404)
//  4. Assistant resolution - system prompt plus backend strategy
//  5. Recent history load (stateless strategy only)
//  6. Backend reply generation
//  7. Turn persistence - both message rows in one transaction
//  8. Thread id persistence - at most once per conversation
//  9. Analytics event and daily usage aggregate
//  10. JSON response
//
// # Degradation
//
// Only two problems fail the HTTP call: an unknown conversation id (404)
// and a missing message (400). Everything downstream degrades instead:
// a backend failure answers with localized fallback text, a missing API
// key answers with a greeting, and persistence or analytics failures are
// logged while the reply still goes out. The visitor always gets an answer.
//
// # Endpoints
//
//	GET  /api/chatbot           widget config and active assistants
//	POST /api/chatbot           one chat turn
//	POST /api/analytics/events  track one event
//	GET  /api/analytics/events  aggregate stats
//	GET  /health                liveness
//	GET  /health/ready          store reachability
package gateway
