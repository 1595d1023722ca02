// Package app wires configuration to the running services and owns their
// lifecycle.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"ContentDigest/internal/agent"
	"ContentDigest/internal/agent/contentproc"
	"ContentDigest/internal/agent/digestagent"
	"ContentDigest/internal/agent/researcher"
	"ContentDigest/internal/api"
	"ContentDigest/internal/config"
	"ContentDigest/internal/digest"
	"ContentDigest/internal/dispatch"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/infrastructure/clustering"
	"ContentDigest/internal/infrastructure/delivery"
	"ContentDigest/internal/infrastructure/llm"
	"ContentDigest/internal/infrastructure/storage"
	"ContentDigest/internal/logging"
	"ContentDigest/internal/ports"
	"ContentDigest/internal/router"
	"ContentDigest/internal/scheduler"
	"ContentDigest/internal/usecase"
)

// Application holds the wired services and their shared resources.
type Application struct {
	cfg   config.Config
	log   *slog.Logger
	sched *scheduler.Scheduler
	srv   *http.Server
	db    *sql.DB
}

// New builds a runnable application. An empty database DSN selects the
// in-memory stores; an empty LLM API key selects deterministic fallbacks.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	var (
		knowledge ports.KnowledgeStore
		schedules ports.ScheduleStore
		db        *sql.DB
	)
	if cfg.Database.DSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := storage.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		store := storage.NewPostgresStore(db)
		knowledge, schedules = store, store
	} else {
		store := storage.NewMemoryStore()
		knowledge, schedules = store, store
	}

	var chat ports.ChatClient
	if cfg.LLM.APIKey != "" {
		chat = llm.NewClient(cfg.LLM)
	}

	overlap := clustering.NewOverlapClusterer(cfg.Digest.OverlapThreshold)
	var clusterer ports.Clusterer = overlap
	if chat != nil {
		clusterer = clustering.NewLLMClusterer(chat, overlap)
	}

	channels := delivery.Channels{domain.DeliverView: delivery.ViewChannel{}}
	if cfg.Delivery.EmailGatewayURL != "" {
		channels[domain.DeliverEmail] = delivery.NewEmailChannel(cfg.Delivery.EmailGatewayURL)
	}
	if cfg.Delivery.MessagingWebhookURL != "" {
		channels[domain.DeliverMessaging] = delivery.NewMessagingChannel(cfg.Delivery.MessagingWebhookURL)
	}

	agg := digest.NewAggregator(knowledge, schedules, clusterer, channels,
		cfg.Digest, logging.Component(baseLogger, "digest"))

	registry := agent.NewRegistry()
	registry.Register(contentproc.New(contentproc.NewExtractor(nil), chat,
		logging.Component(baseLogger, "agent.content-processor")))
	registry.Register(researcher.New(chat, logging.Component(baseLogger, "agent.researcher")))
	registry.Register(digestagent.New(agg, logging.Component(baseLogger, "agent.digest")))

	rtr := router.New(knowledge, logging.Component(baseLogger, "router"))
	disp := dispatch.New(registry, knowledge, cfg.Dispatch.Timeout(),
		logging.Component(baseLogger, "dispatch"))
	intake := usecase.NewIntake(knowledge, rtr, disp, logging.Component(baseLogger, "intake"))

	sched := scheduler.New(schedules, agg, cfg.Scheduler, logging.Component(baseLogger, "scheduler"))

	server := api.NewServer(intake, knowledge, schedules, registry, agg, sched,
		cfg.Scheduler.Location(), logging.Component(baseLogger, "api"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{cfg: cfg, log: baseLogger, sched: sched, srv: srv, db: db}, nil
}

// Run starts the digest scheduler and serves HTTP until the context is
// canceled, then shuts both down.
func (a *Application) Run(ctx context.Context) error {
	a.sched.Start(ctx)
	defer a.sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("database close failed", "error", err)
		}
	}
	return nil
}
