package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"

	"github.com/founderskick/realtime/pkg/events"
	"github.com/founderskick/realtime/pkg/snowflake"
	"github.com/founderskick/realtime/pkg/store"
)

type Config struct {
	ScyllaHosts   []string   `envconfig:"SCYLLA_HOSTS" default:"localhost:9042"`
	Keyspace      string     `envconfig:"SCYLLA_KEYSPACE" default:"chat"`
	KafkaBrokers  []string   `envconfig:"KAFKA_BROKERS" default:"localhost:19092"`
	KafkaTopic    string     `envconfig:"KAFKA_TOPIC" default:"realtime-events"`
	GroupID       string     `envconfig:"KAFKA_GROUP_ID" default:"messaging-service"`
	SnowflakeNode int64      `envconfig:"SNOWFLAKE_NODE" default:"3"`
	LogLevel      slog.Level `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("read config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

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

	p := &projector{
		log:   logger,
		store: store.NewGateway(db, ids, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.GroupID, logger)
	defer consumer.Close()

	logger.Info("messaging projector started", "topic", cfg.KafkaTopic, "group", cfg.GroupID)
	if err := consumer.Run(ctx, p.handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
}
