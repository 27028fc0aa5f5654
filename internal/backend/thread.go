// ABOUTME: Stateful assistant thread adapter: ensure thread, queue message, poll run
// ABOUTME: The turn advances through an explicit state machine with a bounded poll loop

package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// threadAPI is the slice of the provider client the thread adapter needs.
type threadAPI interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after, before, runID *string) (openai.MessagesList, error)
}

// turnState tracks where one turn is in the thread lifecycle.
type turnState int

const (
	stateNoThread turnState = iota
	stateThreadEnsured
	stateMessageQueued
	stateRunStarted
	stateRunPolling
	stateCompleted
	stateFailed
	stateTimedOut
)

const (
	defaultPollInterval    = time.Second
	defaultMaxPollAttempts = 30
)

// ThreadAdapter answers turns through a provider-side thread. The thread id
// is created on first use and reused for the rest of the conversation.
type ThreadAdapter struct {
	api          threadAPI
	pollInterval time.Duration
	maxAttempts  int
	logger       *slog.Logger

	// sleep is replaceable in tests so the poll loop runs instantly.
	sleep func(time.Duration)
}

// NewThreadAdapter creates the stateful adapter with the default polling
// budget (30 attempts, one second apart).
func NewThreadAdapter(api threadAPI) *ThreadAdapter {
	return &ThreadAdapter{
		api:          api,
		pollInterval: defaultPollInterval,
		maxAttempts:  defaultMaxPollAttempts,
		logger:       slog.Default().With("component", "backend", "strategy", "assistant_thread"),
		sleep:        time.Sleep,
	}
}

// SetPolling overrides the poll interval and attempt budget.
func (a *ThreadAdapter) SetPolling(interval time.Duration, maxAttempts int) {
	if interval > 0 {
		a.pollInterval = interval
	}
	if maxAttempts > 0 {
		a.maxAttempts = maxAttempts
	}
}

// GenerateReply drives one turn through the thread lifecycle. The reply's
// ThreadID reports the thread actually used so the caller can persist it.
func (a *ThreadAdapter) GenerateReply(ctx context.Context, req *Request) (*Reply, error) {
	if req.AssistantID == "" {
		return nil, fmt.Errorf("thread adapter requires an assistant id")
	}

	state := stateNoThread
	threadID := req.ThreadID
	if threadID != "" {
		state = stateThreadEnsured
	}

	var run openai.Run
	attempts := 0

	for {
		switch state {
		case stateNoThread:
			thread, err := a.api.CreateThread(ctx, openai.ThreadRequest{})
			if err != nil {
				return nil, fmt.Errorf("creating thread: %w", err)
			}
			threadID = thread.ID
			a.logger.Debug("created thread", "thread_id", threadID)
			state = stateThreadEnsured

		case stateThreadEnsured:
			_, err := a.api.CreateMessage(ctx, threadID, openai.MessageRequest{
				Role:    openai.ChatMessageRoleUser,
				Content: req.UserMessage,
			})
			if err != nil {
				return nil, fmt.Errorf("adding message to thread: %w", err)
			}
			state = stateMessageQueued

		case stateMessageQueued:
			started, err := a.api.CreateRun(ctx, threadID, openai.RunRequest{
				AssistantID: req.AssistantID,
			})
			if err != nil {
				return nil, fmt.Errorf("starting run: %w", err)
			}
			run = started
			state = stateRunStarted

		case stateRunStarted, stateRunPolling:
			switch run.Status {
			case openai.RunStatusCompleted:
				state = stateCompleted
				continue
			case openai.RunStatusFailed, openai.RunStatusExpired, openai.RunStatusCancelled:
				state = stateFailed
				continue
			}

			if attempts >= a.maxAttempts {
				state = stateTimedOut
				continue
			}
			attempts++
			a.sleep(a.pollInterval)
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("polling run: %w", err)
			}

			polled, err := a.api.RetrieveRun(ctx, threadID, run.ID)
			if err != nil {
				return nil, fmt.Errorf("polling run: %w", err)
			}
			run = polled
			state = stateRunPolling

		case stateCompleted:
			text, err := a.latestAssistantMessage(ctx, threadID)
			if err != nil {
				return nil, err
			}
			a.logger.Debug("run completed",
				"thread_id", threadID,
				"attempts", attempts,
				"tokens", run.Usage.TotalTokens,
			)
			return &Reply{
				Text:       text,
				TokensUsed: run.Usage.TotalTokens,
				ThreadID:   threadID,
			}, nil

		case stateFailed:
			a.logger.Warn("run ended in failure",
				"thread_id", threadID,
				"status", run.Status,
			)
			return nil, fmt.Errorf("run status %s: %w", run.Status, ErrRunFailed)

		case stateTimedOut:
			a.logger.Warn("run polling exhausted",
				"thread_id", threadID,
				"attempts", attempts,
				"last_status", run.Status,
			)
			return nil, fmt.Errorf("run still %s after %d attempts: %w", run.Status, attempts, ErrRunTimedOut)
		}
	}
}

// latestAssistantMessage returns the newest assistant text in the thread.
func (a *ThreadAdapter) latestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := a.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("listing thread messages: %w", err)
	}

	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		var parts []string
		for _, content := range msg.Content {
			if content.Text != nil && content.Text.Value != "" {
				parts = append(parts, content.Text.Value)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}

	return "", fmt.Errorf("thread %s has no assistant reply", threadID)
}
