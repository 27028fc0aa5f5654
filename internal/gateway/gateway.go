// ABOUTME: Gateway orchestrator that wires the store, backends, analytics and HTTP server
// ABOUTME: Manages component construction and graceful server lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fooodis/chat-gateway/internal/analytics"
	"github.com/fooodis/chat-gateway/internal/assistant"
	"github.com/fooodis/chat-gateway/internal/backend"
	"github.com/fooodis/chat-gateway/internal/config"
	"github.com/fooodis/chat-gateway/internal/ratelimit"
	"github.com/fooodis/chat-gateway/internal/store"
)

// Gateway orchestrates the chat-gateway server components. It owns the
// store, the backend adapters, the analytics sink and the HTTP server.
type Gateway struct {
	config     *config.Config
	store      store.Store
	resolver   *assistant.Resolver
	completion backend.Client
	thread     backend.Client
	sink       *analytics.Sink
	limiter    *ratelimit.Limiter
	httpServer *http.Server
	logger     *slog.Logger

	// apiKeyConfigured gates the backend call path; without a key the
	// gateway still answers with a greeting fallback.
	apiKeyConfigured bool
}

// initStore creates the store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CHAT_GATEWAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// resolveAPIKey returns the provider API key. The secrets table wins over
// the config value so the key can be rotated without a restart deploy.
func resolveAPIKey(ctx context.Context, s store.SettingsStore, cfg *config.Config) string {
	if secret, err := s.GetSecret(ctx, "OPENAI_API_KEY"); err == nil && secret != "" {
		return secret
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("reading api key secret failed, using config value", "error", err)
	}
	return cfg.OpenAI.APIKey
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:   cfg,
		store:    s,
		resolver: assistant.NewResolver(s),
		logger:   logger.With("component", "gateway"),
	}

	apiKey := resolveAPIKey(context.Background(), s, cfg)
	if apiKey != "" {
		client := backend.NewOpenAIClient(apiKey, cfg.OpenAI.GatewayBaseURL)
		threadAdapter := backend.NewThreadAdapter(client)
		threadAdapter.SetPolling(cfg.OpenAI.PollInterval, cfg.OpenAI.MaxPollAttempts)

		gw.completion = backend.NewCompletionAdapter(client, cfg.OpenAI.Model)
		gw.thread = threadAdapter
		gw.apiKeyConfigured = true
	} else {
		logger.Warn("no OpenAI API key configured - replies degrade to greetings")
	}

	var engine analytics.DatapointWriter
	if ec := analytics.NewEngineClient(cfg.Analytics.EngineEndpoint, cfg.Analytics.EngineToken); ec != nil {
		engine = ec
		logger.Info("analytics engine enabled", "endpoint", cfg.Analytics.EngineEndpoint)
	}
	gw.sink = analytics.NewSink(engine, s)

	if cfg.RateLimit.Enabled {
		gw.limiter = ratelimit.New(cfg.RateLimit.RequestsPerMinute, time.Minute, cfg.RateLimit.BlockDuration)
		logger.Info("rate limiting enabled",
			"requests_per_minute", cfg.RateLimit.RequestsPerMinute,
			"block_duration", cfg.RateLimit.BlockDuration,
		)
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// registerRoutes installs all HTTP routes on the mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	mux.HandleFunc("/api/chatbot", g.handleChatbot)
	mux.HandleFunc("/api/analytics/events", g.handleAnalyticsEvents)
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	if g.limiter != nil {
		g.limiter.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.GetChatbotSettings(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
