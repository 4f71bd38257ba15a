// Package main is the entry point for the aihub gateway server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueberrycongee/aihub/internal/alert"
	"github.com/blueberrycongee/aihub/internal/api"
	"github.com/blueberrycongee/aihub/internal/config"
	"github.com/blueberrycongee/aihub/internal/health"
	"github.com/blueberrycongee/aihub/internal/mcpadapter"
	"github.com/blueberrycongee/aihub/internal/metrics"
	"github.com/blueberrycongee/aihub/internal/observability"
	"github.com/blueberrycongee/aihub/internal/pipeline"
	provreg "github.com/blueberrycongee/aihub/internal/provider"
	"github.com/blueberrycongee/aihub/internal/provider/anthropic"
	"github.com/blueberrycongee/aihub/internal/provider/githubrest"
	"github.com/blueberrycongee/aihub/internal/provider/localcompat"
	"github.com/blueberrycongee/aihub/internal/provider/openai"
	"github.com/blueberrycongee/aihub/internal/resilience"
	"github.com/blueberrycongee/aihub/internal/retry"
	"github.com/blueberrycongee/aihub/internal/router"
	"github.com/blueberrycongee/aihub/internal/secret"
	"github.com/blueberrycongee/aihub/internal/secret/env"
	"github.com/blueberrycongee/aihub/internal/store"
	"github.com/blueberrycongee/aihub/internal/vault"
	"github.com/blueberrycongee/aihub/pkg/provider"

	_ "modernc.org/sqlite"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional; environment variables are always consulted)")
	mcpStdio := flag.Bool("mcp", false, "serve the chat_complete MCP tool over stdio instead of starting the HTTP server")
	flag.Parse()

	logger := newLogger()
	slog.SetDefault(logger.Logger)
	logger.Info("starting aihub gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgManager, cfg := loadConfig(*configPath, logger)
	if cfgManager != nil {
		if err := cfgManager.Watch(ctx); err != nil {
			logger.Warn("config hot-reload disabled", "error", err)
		}
		defer func() { _ = cfgManager.Close() }()
	}

	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	v, err := vault.LoadOrGenerateKey(cfg.Vault.SecretKeyEnvVar, cfg.Vault.SecretKeyEnvFile, logger.Logger)
	if err != nil {
		logger.Error("failed to materialise credential vault key", "error", err)
		os.Exit(1)
	}

	secrets := secret.NewManager()
	secrets.Register("env", secret.NewCachedProvider(env.New(), 5*time.Minute))
	defer func() { _ = secrets.Close() }()

	if err := seedConnectionsFromEnv(ctx, st, v, secrets, logger.Logger); err != nil {
		logger.Error("failed to seed connections from environment", "error", err)
	}

	registry := provreg.NewRegistry()
	registry.RegisterFactory("openai", openai.New)
	registry.RegisterFactory("anthropic", anthropic.New)
	registry.RegisterFactory("local", localcompat.New)
	registry.RegisterFactory("github", githubrest.New)

	if err := instantiateProviders(registry, st, v, logger.Logger); err != nil {
		logger.Error("failed to instantiate providers from stored connections", "error", err)
	}

	monitor := health.NewMonitor(health.Config{
		Interval: cfg.Health.ProbePeriod,
		Timeout:  cfg.Health.ProbeTimeout,
		Thresholds: health.Thresholds{
			DegradeAfterFailures:  cfg.Alert.ConsecutiveErrorThreshold,
			ErrorAfterFailures:    cfg.Alert.ConsecutiveErrorThreshold * 2,
			RecoverAfterSuccesses: 3,
		},
	}, st, registry, logger.Logger)
	monitor.Start(ctx)

	desktopCh := make(chan store.Alert, 100)
	var notifiers []alert.Notifier
	if cfg.Alert.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewWebhookNotifier(cfg.Alert.WebhookURL))
	}
	if cfg.Alert.DesktopNotify {
		notifiers = append(notifiers, alert.NewDesktopNotifier(desktopCh))
		go drainDesktopAlerts(ctx, desktopCh, logger.Logger)
	}
	if cfg.Alert.Enabled {
		alertMgr := alert.NewManager(alert.Config{
			Interval:                  60 * time.Second,
			ConsecutiveErrorThreshold: cfg.Alert.ConsecutiveErrorThreshold,
			LatencySpikeMultiplier:    cfg.Alert.LatencyMultiplier,
			BudgetThresholdPercent:    cfg.Alert.BudgetThresholdPercent,
		}, st, logger.Logger, notifiers...)
		alertMgr.Start(ctx)
	}

	maxAttempts := cfg.Retry.MaxAttempts
	if !cfg.Retry.Enabled {
		// A single attempt per chain entry disables retry without the
		// executor needing a separate on/off switch: exhaustion after
		// one try is exactly "no retry, try the next fallback".
		maxAttempts = 1
	}
	p := pipeline.New(pipeline.Config{
		FamilyRules:   router.FamilyRules(cfg.Routing.Rules),
		FallbackRules: router.FallbackRules(cfg.Routing.Fallback),
		ModelAliases:  map[string]string{},
		Retry: retry.Config{
			MaxAttempts: maxAttempts,
			Base:        cfg.Retry.Base,
			Growth:      cfg.Retry.Growth,
		},
		HTTPTimeout: cfg.Server.RequestDeadline,
	}, st, registry, monitor, logger.Logger)

	go pollDBStats(ctx, st)

	if *mcpStdio {
		srv := mcpadapter.NewServer(p, version, logger.Logger)
		logger.Info("serving chat_complete over MCP stdio")
		if err := mcpadapter.Serve(ctx, srv); err != nil {
			logger.Error("mcp server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	runHTTPServer(ctx, cfg, p, st, registry, monitor, v, logger)
}

func runHTTPServer(
	ctx context.Context,
	cfg *config.Config,
	p *pipeline.Pipeline,
	st *store.Store,
	registry *provreg.Registry,
	monitor *health.Monitor,
	v *vault.Vault,
	logger *observability.Logger,
) {
	handler := api.NewHandler(p, st, registry, monitor, v, logger.Logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	limiter := resilience.NewRateLimiter(50, 100)
	var httpHandler http.Handler = mux
	httpHandler = rateLimit(limiter, httpHandler)
	httpHandler = api.Middleware(httpHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

// rateLimit rejects inbound HTTP requests with 429 once the per-process
// token bucket is exhausted, guarding the pipeline and upstreams from a
// thundering local client before a single request is ever routed.
func rateLimit(limiter *resilience.RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"too many requests","code":"rate_limited"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newLogger() *observability.Logger {
	level := slog.LevelInfo
	return observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     os.Stdout,
		JSONFormat: true,
	}, observability.NewRedactor())
}

// loadConfig starts a hot-reloading config.Manager when configPath
// names a file on disk, otherwise falls back to environment-derived
// defaults with no file to watch.
func loadConfig(configPath string, logger *observability.Logger) (*config.Manager, *config.Config) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			mgr, err := config.NewManager(configPath, logger.Logger)
			if err == nil {
				return mgr, mgr.Get()
			}
			logger.Warn("failed to load configuration file, falling back to environment", "path", configPath, "error", err)
		}
	}
	return nil, config.LoadFromEnv()
}

// seedConnectionsFromEnv imports a default connection per recognised
// provider environment variable on first startup, mirroring the
// dashboard's manual "add connection" flow. It is a no-op once any
// connection already exists, so user-managed state always wins.
func seedConnectionsFromEnv(ctx context.Context, st *store.Store, v *vault.Vault, secrets *secret.Manager, logger *slog.Logger) error {
	existing, err := st.ListConnections()
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	type seed struct {
		name, family, envVar, baseURL string
		isDefault                     bool
	}
	seeds := []seed{
		{"OpenAI", "openai", "env://OPENAI_API_KEY", "https://api.openai.com/v1", true},
		{"Anthropic", "anthropic", "env://ANTHROPIC_API_KEY", "https://api.anthropic.com/v1", true},
		{"GitHub", "github", "env://GITHUB_TOKEN", "https://api.github.com", false},
	}

	for _, s := range seeds {
		key, err := secrets.Get(ctx, s.envVar)
		if err != nil || key == "" {
			continue
		}
		enc, err := v.Encrypt(key)
		if err != nil {
			logger.Error("failed to encrypt seeded credential", "connection", s.name, "error", err)
			continue
		}
		conn := &store.Connection{
			Name:       s.name,
			ServiceKey: s.family,
			Category:   "llm",
			BaseURL:    s.baseURL,
			APIKeyEnc:  enc,
			Enabled:    true,
			IsDefault:  s.isDefault,
		}
		created, err := st.UpsertConnection(conn)
		if err != nil {
			logger.Error("failed to persist seeded connection", "connection", s.name, "error", err)
			continue
		}
		if _, err := st.UpsertCostConfig(&store.CostConfig{
			ConnectionID:        created.ID,
			ModelPattern:        "*",
			InputUSDPerMillion:  0,
			OutputUSDPerMillion: 0,
		}); err != nil {
			logger.Error("failed to seed zero-cost config", "connection", s.name, "error", err)
		}
		logger.Info("seeded connection from environment", "connection", s.name, "family", s.family)
	}

	// Local inference servers need no credential to be usable.
	if os.Getenv("OLLAMA_BASE_URL") != "" || os.Getenv("HUB_ENABLE_LOCAL") != "" {
		baseURL := os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = localcompat.DefaultBaseURL
		}
		created, err := st.UpsertConnection(&store.Connection{
			Name:       "Local",
			ServiceKey: "local",
			Category:   "llm",
			BaseURL:    baseURL,
			Enabled:    true,
		})
		if err != nil {
			logger.Error("failed to persist seeded local connection", "error", err)
		} else if _, err := st.UpsertCostConfig(&store.CostConfig{
			ConnectionID: created.ID,
			ModelPattern: "*",
		}); err != nil {
			logger.Error("failed to seed zero-cost config for local connection", "error", err)
		}
	}

	return nil
}

// instantiateProviders builds one provider.Provider per enabled,
// decryptable connection and registers it under the connection's id,
// so the router's selected Entry resolves directly via registry.GetProvider.
func instantiateProviders(registry *provreg.Registry, st *store.Store, v *vault.Vault, logger *slog.Logger) error {
	conns, err := st.ListConnections()
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}

	for _, c := range conns {
		if !c.Enabled {
			continue
		}
		cfg := provider.Config{BaseURL: c.BaseURL}
		skip := false
		if c.APIKeyEnc != "" {
			key, err := v.Decrypt(c.APIKeyEnc)
			if err != nil {
				logger.Error("failed to decrypt connection credential, skipping", "connection_id", c.ID, "error", err)
				skip = true
			}
			cfg.APIKey = key
		}
		if !skip && cfg.APIKey == "" && c.TokenEnc != "" {
			token, err := v.Decrypt(c.TokenEnc)
			if err != nil {
				logger.Error("failed to decrypt connection token, skipping", "connection_id", c.ID, "error", err)
				skip = true
			}
			cfg.APIKey = token
		}
		if skip {
			continue
		}
		if _, err := registry.CreateProvider(c.ID, c.ServiceKey, cfg); err != nil {
			logger.Error("failed to construct provider for connection", "connection_id", c.ID, "family", c.ServiceKey, "error", err)
		}
	}
	return nil
}

func pollDBStats(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolStats(st.Stats())
		}
	}
}

func drainDesktopAlerts(ctx context.Context, ch <-chan store.Alert, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-ch:
			logger.Warn("desktop alert", "kind", a.Kind, "connection_id", a.ConnectionID, "message", a.Message)
		}
	}
}
