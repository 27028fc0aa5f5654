// ABOUTME: HTTP client for the primary analytics engine's datapoint ingestion API
// ABOUTME: Events become wide datapoints: string blobs, numeric doubles, one index

package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fooodis/chat-gateway/internal/store"
)

// Datapoint is the wire shape the engine ingests: positional string blobs,
// positional numeric doubles, and a sampling index.
type Datapoint struct {
	Blobs   []string  `json:"blobs"`
	Doubles []float64 `json:"doubles"`
	Indexes []string  `json:"indexes"`
}

// EngineClient writes datapoints to the analytics engine over HTTP.
type EngineClient struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

// NewEngineClient creates a client for the given ingestion endpoint. An
// empty endpoint yields a nil client, which the sink treats as "primary
// not configured".
func NewEngineClient(endpoint, token string) *EngineClient {
	if endpoint == "" {
		return nil
	}
	return &EngineClient{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   slog.Default().With("component", "analytics-engine"),
	}
}

// WriteDataPoint posts one event as a datapoint. Blob order is fixed:
// event, category, country, user agent, referer, session id, user id.
func (c *EngineClient) WriteDataPoint(ctx context.Context, event *store.AnalyticsEvent) error {
	point := Datapoint{
		Blobs: []string{
			event.Event,
			event.Category,
			event.Country,
			clamp(event.UserAgent, 100),
			clamp(event.Referer, 200),
			event.SessionID,
			event.UserID,
		},
		Doubles: []float64{float64(event.CreatedAt.UnixMilli()), 1},
		Indexes: []string{event.Event},
	}

	body, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("encoding datapoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building datapoint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting datapoint: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("datapoint rejected: status %d", resp.StatusCode)
	}

	c.logger.Debug("datapoint written", "event", event.Event)
	return nil
}

// clamp limits a blob to max bytes; the engine caps blob sizes.
func clamp(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
