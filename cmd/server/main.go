package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fornalha-pos/api/internal/config"
	"github.com/fornalha-pos/api/internal/database"
	"github.com/fornalha-pos/api/internal/queue"
	"github.com/fornalha-pos/api/internal/router"
	"github.com/fornalha-pos/api/internal/service"
	"github.com/fornalha-pos/api/internal/worker"
	"github.com/fornalha-pos/api/internal/ws"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("connect to database", "err", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalw("ping database", "err", err)
	}
	queries := database.New(pool)

	broker, err := queue.NewRabbitMQBroker(queue.Config{URL: cfg.RabbitMQURL, PrefetchCount: 10})
	if err != nil {
		log.Fatalw("connect to RabbitMQ", "err", err)
	}
	defer broker.Close()

	hub := ws.NewHub()
	go hub.Run()

	svc := service.New(pool, service.DefaultComponents(log), hub, broker, log)

	notifier := worker.NewNotifier(queries, log)
	if err := notifier.Start(ctx, broker); err != nil {
		log.Fatalw("start notification consumer", "err", err)
	}

	sync := worker.NewSyncWorker(queries, svc, cfg.SyncInterval, log)
	go sync.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.New(cfg, queries, svc, hub),
	}
	go func() {
		log.Infow("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("serve", "err", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("shutdown", "err", err)
	}
}
