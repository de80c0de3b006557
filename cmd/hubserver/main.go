// Command hubserver is the process entrypoint: it wires configuration,
// logging, the repository, the hub, the delivery engine, the event
// dispatcher, and the alert dispatcher, then owns the HTTP server's
// lifecycle. Grounded on cloud/cmd/pilot-cloud/main.go's wiring order and
// graceful-shutdown sequence.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sanderm5/Sky-planner-sub006/internal/alerts"
	"github.com/sanderm5/Sky-planner-sub006/internal/api"
	"github.com/sanderm5/Sky-planner-sub006/internal/authn"
	"github.com/sanderm5/Sky-planner-sub006/internal/config"
	"github.com/sanderm5/Sky-planner-sub006/internal/logging"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime/presence"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime/registry"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/delivery"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/dispatch"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/repo/pgxrepo"
)

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Production: cfg.Production})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logging.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	var blacklist authn.Blacklist = authn.NoopBlacklist{}
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logging.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logging.Error("redis ping failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		blacklist = authn.NewRedisBlacklist(redisClient)
	}

	alertDispatcher := alerts.New(alerts.Config{
		SlackWebhookURL:   cfg.SlackWebhookURL,
		DiscordWebhookURL: cfg.DiscordWebhookURL,
		GenericURL:        cfg.GenericAlertURL,
	})

	webhookRepo := pgxrepo.New(pool)
	engine := delivery.New(webhookRepo).WithAlerter(alertDispatcher)
	dispatcher := dispatch.New(webhookRepo, engine)

	tokenService := authn.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionCookie, blacklist)
	reg := registry.New()
	pres := presence.New(reg)
	hub := realtime.NewHub(reg, pres, tokenService, nil)
	hub.Start()

	router := api.NewRouter(api.Deps{
		Repo:       webhookRepo,
		Engine:     engine,
		Dispatcher: dispatcher,
		Auth:       tokenService,
		Hub:        hub,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepInterval := time.Duration(cfg.RetrySweepInterval) * time.Second
	sweepDone := make(chan struct{})
	go runRetrySweep(ctx, engine, sweepInterval, sweepDone)

	go func() {
		logging.Info("hub server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	logging.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	hub.Shutdown(shutdownCtx)
	<-sweepDone

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("graceful shutdown failed", "error", err)
	}
}

// runRetrySweep kicks the delivery engine on a fixed interval to pick up
// retries that have come due without a fresh triggering event.
func runRetrySweep(ctx context.Context, engine *delivery.Engine, interval time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.Kick(ctx)
		}
	}
}
