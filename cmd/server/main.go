package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/counsel/common/id"
	"basegraph.app/counsel/common/llm"
	"basegraph.app/counsel/common/logger"
	"basegraph.app/counsel/common/otel"
	"basegraph.app/counsel/common/typesense"
	"basegraph.app/counsel/core/config"
	"basegraph.app/counsel/core/db"
	"basegraph.app/counsel/internal/brain"
	"basegraph.app/counsel/internal/http/middleware"
	httprouter "basegraph.app/counsel/internal/http/router"
	"basegraph.app/counsel/internal/legal"
	"basegraph.app/counsel/internal/notify"
	"basegraph.app/counsel/internal/service"
	"basegraph.app/counsel/internal/session"
	"basegraph.app/counsel/internal/store"
)

const legalSearchLimit = 5

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "counsel starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	var database *db.DB
	if cfg.DB.Enabled() {
		database, err = db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		slog.InfoContext(ctx, "database connected")
	}

	files, err := newCaseFileStore(ctx, cfg, database)
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up case file store", "error", err)
		os.Exit(1)
	}
	if closer, ok := files.(io.Closer); ok {
		defer closer.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}

		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.InfoContext(ctx, "redis connected", "status_prefix", cfg.Redis.StatusPrefix)
	}

	var (
		locker    session.Locker
		snapshots session.SnapshotStore
		notifier  notify.Notifier
	)
	if redisClient != nil {
		locker = session.NewRedisLocker(redisClient, cfg.Redis.LockPrefix, cfg.Orchestration.SessionLockTTL, cfg.Orchestration.SessionLockWait)
		snapshots = session.NewRedisSnapshotStore(redisClient, cfg.Redis.SnapshotPrefix, cfg.Orchestration.SessionSnapshotTTL)
		notifier = notify.NewRedisNotifier(redisClient, cfg.Redis.StatusPrefix)
	} else {
		slog.WarnContext(ctx, "redis not configured; sessions are process-local and status updates go to the log")
		locker = session.NewLocalLocker()
		notifier = notify.NewLogNotifier(slog.Default())
	}

	sessions := session.NewRegistry(locker, files, cfg.Orchestration.SessionLockWait)
	if snapshots != nil {
		sessions.WithSnapshots(snapshots)
	}

	searcher := legal.NewNoopSearcher()
	if cfg.Typesense.Enabled() {
		tsClient, err := typesense.New(typesense.Config{
			URL:        cfg.Typesense.URL,
			APIKey:     cfg.Typesense.APIKey,
			Collection: cfg.Typesense.Collection,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create typesense client", "error", err)
			os.Exit(1)
		}
		if !tsClient.Healthy(ctx) {
			slog.WarnContext(ctx, "typesense not healthy yet; legal searches will degrade until it is")
		}
		searcher = legal.NewTypesenseSearcher(tsClient, legalSearchLimit)
		slog.InfoContext(ctx, "legal search enabled", "collection", cfg.Typesense.Collection)
	} else {
		slog.WarnContext(ctx, "typesense not configured; drafts will carry no citations")
	}

	clients, err := newLLMClients(cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm clients", "error", err)
		os.Exit(1)
	}

	orchestrator := brain.NewOrchestrator(
		brain.OrchestratorConfig{
			Disclaimer:            cfg.Orchestration.Disclaimer,
			WorksheetWriteTimeout: cfg.Orchestration.WorksheetWriteTimeout,
		},
		clients,
		sessions,
		files,
		notifier,
		searcher,
	)

	services := service.NewServices(orchestrator)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, redisClient)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Turns chain several model calls and the status stream is long-lived, so no
		// write timeout; each model call has its own deadline.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	// Let in-flight worksheet writes and status updates land before closing stores.
	orchestrator.Wait()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// newCaseFileStore picks the worksheet backend: Postgres when configured, then an
// embedded SQLite file, then a local directory, then memory.
func newCaseFileStore(ctx context.Context, cfg config.Config, database *db.DB) (store.CaseFileStore, error) {
	switch {
	case database != nil:
		return store.NewStores(database.Querier()).CaseFiles(), nil
	case cfg.Orchestration.CaseFileSQLitePath != "":
		s, err := store.NewSQLiteCaseFileStore(ctx, cfg.Orchestration.CaseFileSQLitePath)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "case files stored in sqlite", "path", cfg.Orchestration.CaseFileSQLitePath)
		return s, nil
	case cfg.Orchestration.CaseFileDir != "":
		s, err := store.NewLocalCaseFileStore(cfg.Orchestration.CaseFileDir)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "case files stored locally", "dir", cfg.Orchestration.CaseFileDir)
		return s, nil
	default:
		slog.WarnContext(ctx, "no database or case file directory configured; case files live in memory only")
		return store.NewMemoryCaseFileStore(), nil
	}
}

// newLLMClients builds one guarded gateway per stage. Router and interrogation fall back
// to the drafting model when not configured separately.
func newLLMClients(cfg config.Config) (brain.Clients, error) {
	build := func(name string, c config.LLMConfig) (llm.Client, error) {
		inner, err := llm.New(llm.Config{
			Provider:  c.Provider,
			APIKey:    c.APIKey,
			BaseURL:   c.BaseURL,
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("%s llm: %w", name, err)
		}
		return llm.NewGuarded(inner, llm.GuardConfig{
			Name:              name,
			Timeout:           cfg.Orchestration.LLMCallTimeout,
			RequestsPerSecond: c.RequestsPerSecond,
		}), nil
	}

	routerCfg := cfg.RouterLLM
	if !routerCfg.Enabled() {
		routerCfg = cfg.DraftLLM
	}
	interrogationCfg := cfg.InterrogationLLM
	if !interrogationCfg.Enabled() {
		interrogationCfg = cfg.DraftLLM
	}

	var clients brain.Clients
	var err error
	if clients.Router, err = build("router", routerCfg); err != nil {
		return brain.Clients{}, err
	}
	if clients.Interrogation, err = build("interrogation", interrogationCfg); err != nil {
		return brain.Clients{}, err
	}
	if clients.Draft, err = build("draft", cfg.DraftLLM); err != nil {
		return brain.Clients{}, err
	}
	if clients.Review, err = build("review", cfg.ReviewLLM); err != nil {
		return brain.Clients{}, err
	}
	return clients, nil
}

func setupRouter(cfg config.Config, services *service.Services, redisClient *redis.Client) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, redisClient, httprouter.RouterConfig{
		StatusStreamPrefix: cfg.Redis.StatusPrefix,
	})

	return router
}

const banner = `
  ___ ___  _   _ _  _ ___ ___ _
 / __/ _ \| | | | \| / __| __| |
| (_| (_) | |_| | .` + "`" + ` \__ \ _|| |__
 \___\___/ \___/|_|\_|___/___|____|
`
