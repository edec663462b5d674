// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration knobs for the HTTP server, backing services, and event dispatch.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	DatabaseURL      string
	DBConnectTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	AMQPURL      string
	AMQPExchange string

	DispatchWorkers int
	DispatchBuffer  int

	OtelEndpoint   string
	OtelAuthHeader string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

func csvenv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout:  durenvs("SHUTDOWN_TIMEOUT", 15),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBConnectTimeout: durenvs("DB_CONNECT_TIMEOUT", 10),
		RedisAddr:        strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          atoienv("REDIS_DB", 0),
		CacheTTL:         durenvms("CACHE_TTL_MS", 30000),
		KafkaBrokers:     csvenv("KAFKA_BROKERS"),
		KafkaTopic:       getenv("KAFKA_TOPIC", "estoque.events"),
		AMQPURL:          strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange:     getenv("AMQP_EXCHANGE", "estoque"),
		DispatchWorkers:  atoienv("DISPATCH_WORKERS", 2),
		DispatchBuffer:   atoienv("DISPATCH_BUFFER", 128),
		OtelEndpoint:     strings.TrimSpace(os.Getenv("OTEL_ENDPOINT")),
		OtelAuthHeader:   os.Getenv("OTEL_AUTH_HEADER"),
	}
}

// EventsDriver names the broker events are published to: "kafka", "rabbitmq" or "none".
func (c Config) EventsDriver() string {
	switch {
	case len(c.KafkaBrokers) > 0:
		return "kafka"
	case c.AMQPURL != "":
		return "rabbitmq"
	default:
		return "none"
	}
}
