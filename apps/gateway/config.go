package main

import "log/slog"

type Config struct {
	Addr          string     `envconfig:"ADDR" default:":8080"`
	ScyllaHosts   []string   `envconfig:"SCYLLA_HOSTS" default:"localhost:9042"`
	Keyspace      string     `envconfig:"SCYLLA_KEYSPACE" default:"chat"`
	RedisAddr     string     `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	KafkaBrokers  []string   `envconfig:"KAFKA_BROKERS" default:"localhost:19092"`
	KafkaTopic    string     `envconfig:"KAFKA_TOPIC" default:"realtime-events"`
	InstanceID    string     `envconfig:"INSTANCE_ID"`
	SnowflakeNode int64      `envconfig:"SNOWFLAKE_NODE" default:"1"`
	LogLevel      slog.Level `envconfig:"LOG_LEVEL" default:"info"`
}
