// ABOUTME: Tests for the engine datapoint client against a local HTTP server
// ABOUTME: Verifies wire shape, auth header, blob clamping and status handling

package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fooodis/chat-gateway/internal/store"
)

func TestEngineClient_WritesDatapoint(t *testing.T) {
	var received Datapoint
	var auth, contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewEngineClient(server.URL, "secret-token")
	require.NotNil(t, client)

	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := client.WriteDataPoint(context.Background(), &store.AnalyticsEvent{
		Event:     "chat_message",
		Category:  "chatbot",
		Country:   "SE",
		UserAgent: strings.Repeat("u", 150),
		Referer:   strings.Repeat("r", 250),
		SessionID: "sess-1",
		UserID:    "user-1",
		CreatedAt: createdAt,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", auth)
	assert.Equal(t, "application/json", contentType)

	require.Len(t, received.Blobs, 7)
	assert.Equal(t, "chat_message", received.Blobs[0])
	assert.Equal(t, "chatbot", received.Blobs[1])
	assert.Equal(t, "SE", received.Blobs[2])
	assert.Len(t, received.Blobs[3], 100, "user agent clamped")
	assert.Len(t, received.Blobs[4], 200, "referer clamped")
	assert.Equal(t, "sess-1", received.Blobs[5])
	assert.Equal(t, "user-1", received.Blobs[6])

	require.Len(t, received.Doubles, 2)
	assert.Equal(t, float64(createdAt.UnixMilli()), received.Doubles[0])
	assert.Equal(t, float64(1), received.Doubles[1])

	assert.Equal(t, []string{"chat_message"}, received.Indexes)
}

func TestEngineClient_RejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewEngineClient(server.URL, "bad-token")
	err := client.WriteDataPoint(context.Background(), &store.AnalyticsEvent{Event: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestEngineClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // immediately, so the address refuses connections

	client := NewEngineClient(server.URL, "")
	err := client.WriteDataPoint(context.Background(), &store.AnalyticsEvent{Event: "x"})
	require.Error(t, err)
}

func TestNewEngineClient_NoEndpoint(t *testing.T) {
	assert.Nil(t, NewEngineClient("", "token"))
}
