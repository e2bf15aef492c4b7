package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"

	"github.com/founderskick/realtime/pkg/dispatch"
	"github.com/founderskick/realtime/pkg/events"
	"github.com/founderskick/realtime/pkg/presence"
	"github.com/founderskick/realtime/pkg/registry"
	"github.com/founderskick/realtime/pkg/snowflake"
	"github.com/founderskick/realtime/pkg/store"
)

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("read config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.InstanceID == "" {
		cfg.InstanceID = "gateway-" + uuid.NewString()[:8]
	}

	db, err := store.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
	if err != nil {
		logger.Error("connect to ScyllaDB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ids, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Error("init snowflake node", "error", err)
		os.Exit(1)
	}
	gateway := store.NewGateway(db, ids, logger)

	presenceStore := presence.NewRedisStore(cfg.RedisAddr)
	defer presenceStore.Close()

	// The registry raises transitions into the publisher, which broadcasts
	// over the registry; break the cycle with a late-bound hook.
	var publisher *presence.Publisher
	reg := registry.New(func(userID string, online bool) {
		publisher.OnTransition(userID, online)
	})
	publisher = presence.NewPublisher(logger, presenceStore, reg)

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.InstanceID)
	defer producer.Close()

	srv := &server{
		log:        logger,
		instanceID: cfg.InstanceID,
		registry:   reg,
		dispatcher: dispatch.New(logger, reg),
		store:      gateway,
		bus:        producer,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Every gateway instance reads the whole stream: each has to check
	// whether it holds the recipient's sessions. Hence a per-instance group.
	consumer := events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, "gateway-"+cfg.InstanceID, logger)
	defer consumer.Close()
	go func() {
		if err := consumer.Run(ctx, srv.handleBusEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("bus consumer stopped", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.serveWs)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening", "addr", cfg.Addr, "instance_id", cfg.InstanceID)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("gateway server", "error", err)
		os.Exit(1)
	}
}
