// ABOUTME: Backend client contract shared by the completion and thread adapters
// ABOUTME: Defines the request/reply shapes and the sentinel failure modes

package backend

import (
	"context"
	"errors"
)

// Sentinel errors for backend failures. The gateway maps all of them to a
// localized fallback reply rather than an HTTP error.
var (
	// ErrNoAPIKey means no provider credential was configured.
	ErrNoAPIKey = errors.New("no api key configured")
	// ErrRunFailed means the provider reported a terminal failure status.
	ErrRunFailed = errors.New("assistant run failed")
	// ErrRunTimedOut means the run never reached a terminal status within
	// the polling budget.
	ErrRunTimedOut = errors.New("assistant run timed out")
)

// Turn is one prior message given to the stateless adapter as context.
type Turn struct {
	Role    string
	Content string
}

// Request carries everything an adapter needs to produce one reply.
type Request struct {
	SystemPrompt string
	History      []Turn
	UserMessage  string
	Model        string

	// AssistantID and ThreadID are only meaningful to the thread adapter.
	AssistantID string
	ThreadID    string
}

// Reply is the adapter's answer. ThreadID is set only by the thread adapter,
// and only reflects the thread actually used (new or reused).
type Reply struct {
	Text       string
	TokensUsed int
	ThreadID   string
}

// Client produces an assistant reply for one turn.
type Client interface {
	GenerateReply(ctx context.Context, req *Request) (*Reply, error)
}
