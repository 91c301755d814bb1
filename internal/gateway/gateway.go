// ABOUTME: Gateway orchestrator that wires the store, providers, relay and HTTP server
// ABOUTME: Manages component lifecycle, health endpoints and graceful shutdown

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

	"github.com/2389/relay-gateway/internal/config"
	"github.com/2389/relay-gateway/internal/conversation"
	"github.com/2389/relay-gateway/internal/provider"
	"github.com/2389/relay-gateway/internal/relay"
	"github.com/2389/relay-gateway/internal/store"
	"github.com/2389/relay-gateway/internal/webhook"
)

// Gateway orchestrates the relay-gateway server components: the message
// store, the provider registry, the relay dispatcher, the webhook ingestor
// and the HTTP API that fronts them.
type Gateway struct {
	config      *config.Config
	store       store.Store
	registry    *provider.Registry
	dispatcher  *relay.Dispatcher
	ingestor    *webhook.Ingestor
	broadcaster *conversation.Broadcaster
	httpServer  *http.Server
	logger      *slog.Logger
}

// initStore creates the store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("RELAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	if cfg.Retention.MaxMessages > 0 {
		s.SetRetentionLimit(cfg.Retention.MaxMessages)
	}
	return s, nil
}

// buildRegistry registers the configured delivery backends: every device
// bundle from the credentials file, plus the carrier when enabled.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry(logger)

	if cfg.Providers.CredentialsFile != "" {
		creds, err := config.LoadCredentials(cfg.Providers.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("loading device credentials: %w", err)
		}
		for name, bundle := range creds.Devices {
			if bundle.DeviceName == "" {
				bundle.DeviceName = name
			}
			registry.Register(provider.NewDeviceGateway(bundle.DeviceName, bundle, logger))
		}
		if creds.Default != "" {
			bundle := creds.Devices[creds.Default]
			defaultName := bundle.DeviceName
			if defaultName == "" {
				defaultName = creds.Default
			}
			if err := registry.SetDefault(defaultName); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Providers.Carrier.Enabled {
		registry.Register(provider.NewCarrier("carrier", cfg.Providers.Carrier.CarrierConfig, logger))
	}

	if cfg.Providers.Default != "" {
		if err := registry.SetDefault(cfg.Providers.Default); err != nil {
			return nil, fmt.Errorf("setting default provider: %w", err)
		}
	}

	if len(registry.Names()) == 0 {
		logger.Warn("no providers configured, relays require inline credentials")
	}

	return registry, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	broadcaster := conversation.NewBroadcaster(logger)
	dispatcher := relay.NewDispatcher(registry, s, broadcaster, cfg.Relay.SendTimeout, logger)
	ingestor := webhook.NewIngestor(s, broadcaster, logger)

	gw := &Gateway{
		config:      cfg,
		store:       s,
		registry:    registry,
		dispatcher:  dispatcher,
		ingestor:    ingestor,
		broadcaster: broadcaster,
		logger:      logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// Webhook ingestion
	mux.Handle("/webhooks/sms", gw.ingestor)

	// API endpoints
	mux.HandleFunc("/api/relay", gw.handleRelay)
	mux.HandleFunc("/api/conversations", gw.handleConversations)
	mux.HandleFunc("/api/conversations/", gw.handleConversationMessages)
	mux.HandleFunc("/api/campaigns", gw.handleCampaigns)
	mux.HandleFunc("/api/campaigns/", gw.handleCampaignByID)
	mux.HandleFunc("/api/stats", gw.handleStats)
	mux.HandleFunc("/api/stream", gw.handleStream)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown gracefully stops the server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.broadcaster.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
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
	if _, err := g.store.StatsToday(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d providers)", len(g.registry.Names()))
}
