package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nestora/nestora/db"
	"github.com/nestora/nestora/internal/agent"
	"github.com/nestora/nestora/internal/api"
	"github.com/nestora/nestora/internal/config"
	"github.com/nestora/nestora/internal/inventory"
	"github.com/nestora/nestora/internal/knowledge"
	"github.com/nestora/nestora/internal/lead"
	"github.com/nestora/nestora/internal/log"
	"github.com/nestora/nestora/internal/session"
	"github.com/nestora/nestora/internal/tools"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // SSE streaming needs longer timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the qualification agent HTTP server",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{JSON: true})
	slog.SetDefault(logger)
	logger.Info("starting qualification agent", "version", Version)

	if err := db.RunMigrations(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := newDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return errors.New("initializing genkit")
	}
	model := genkit.LookupModel(g, cfg.FullModelName())
	if model == nil {
		return fmt.Errorf("model %q not found", cfg.FullModelName())
	}
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	knowledgeStore := knowledge.New(knowledge.NewPGQueries(pool), embedder, logger)
	inventoryStore := inventory.New(inventory.NewPGQueries(pool), embedder, logger)
	leadStore := lead.New(lead.NewPGQueries(pool), logger)

	registry, err := tools.BuildRegistry(tools.Config{
		Timeout:        cfg.ToolTimeout,
		ScoreThreshold: cfg.ScoreThreshold,
	}, knowledgeStore, inventoryStore, leadStore, logger)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}
	toolRefs := tools.RegisterWithGenkit(g, registry)

	store, closeStore := newSessionStore(ctx, cfg, logger)
	defer closeStore()

	orchestrator, err := agent.New(g, registry, store, agent.Config{
		Model:               model,
		Tools:               toolRefs,
		RoundCap:            cfg.RoundCap,
		ModelTimeout:        cfg.ModelTimeout,
		LifetimeToolCallCap: cfg.LifetimeToolCallCap,
		DefaultCountryCode:  cfg.DefaultCountryCode,
		RateRPS:             cfg.ModelRateRPS,
		RateBurst:           cfg.ModelRateBurst,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger: logger,
		Store:  store,
		Runner: orchestrator,
		Pool:   pool,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.ListenAddr,
		"api", "/agent/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// newDBPool creates the PostgreSQL connection pool.
func newDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// newSessionStore connects the Redis-backed store with an in-memory
// fallback. An unreachable Redis at startup degrades to memory-only
// rather than refusing to serve; sessions are then ephemeral.
func newSessionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, func()) {
	redisCfg := session.RedisConfig{
		Addr:               cfg.RedisAddr,
		Password:           cfg.RedisPassword,
		DB:                 cfg.RedisDB,
		TTL:                cfg.SessionTTL,
		Sliding:            cfg.SessionTTLSliding,
		DefaultCountryCode: cfg.DefaultCountryCode,
	}

	client, err := session.Dial(ctx, redisCfg)
	if err != nil {
		logger.Warn("redis unreachable, serving sessions from memory only", "error", err)
		return session.NewMemoryStore(cfg.SessionTTL, cfg.DefaultCountryCode, logger), func() {}
	}

	primary := session.NewRedisStore(client, redisCfg, logger)
	fallback := session.NewFallback(primary, cfg.SessionTTL, cfg.DefaultCountryCode, logger)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing redis client", "error", err)
		}
	}
	return fallback, closeFn
}
