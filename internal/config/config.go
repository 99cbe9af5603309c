// Package config reads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

type Config struct {
	ServiceName     string
	ServiceVersion  string
	Env             string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFile         string

	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	PostgresURL   string

	OrderTxTimeout     time.Duration
	OrderTxMaxAttempts int
	PublishTimeout     time.Duration
	BusQueueSize       int
	BusConcurrency     int

	KafkaBrokers      []string
	KafkaStockTopic   string
	RedisAddr         string
	RedisStockChannel string

	OTLPEndpoint string
	OTLPInsecure bool

	WSAllowedOrigins []string
	WSBroadcastGroup string
}

type loader struct {
	errs []error
}

func (l *loader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (l *loader) integer(key string, def int) int {
	v := l.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (l *loader) flag(key string, def bool) bool {
	v := l.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (l *loader) millis(key string, defMs int) time.Duration {
	return time.Duration(l.integer(key, defMs)) * time.Millisecond
}

func (l *loader) seconds(key string, defSec int) time.Duration {
	return time.Duration(l.integer(key, defSec)) * time.Second
}

func (l *loader) list(key, def string) []string {
	var out []string
	for _, part := range strings.Split(l.str(key, def), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads the environment, applying defaults for unset keys. Malformed numbers and
// booleans are reported; ranges are checked by Validate.
func Load() (Config, error) {
	l := &loader{}
	cfg := Config{
		ServiceName:     l.str("SERVICE_NAME", "minishop-inventory"),
		ServiceVersion:  l.str("SERVICE_VERSION", "dev"),
		Env:             l.str("ENV", "dev"),
		HTTPAddr:        l.str("HTTP_ADDR", ":8080"),
		ShutdownTimeout: l.seconds("SHUTDOWN_TIMEOUT", 10),
		LogLevel:        l.str("LOG_LEVEL", "info"),
		LogFile:         l.str("LOG_FILE", ""),

		StoreDriver:   strings.ToLower(l.str("STORE_DRIVER", DriverMemory)),
		MongoURI:      l.str("MONGO_URI", "mongodb://127.0.0.1:27017/?replicaSet=rs0"),
		MongoDatabase: l.str("MONGO_DATABASE", "inventory_system"),
		PostgresURL:   l.str("PG_URL", ""),

		OrderTxTimeout:     l.millis("ORDER_TX_TIMEOUT_MS", 5000),
		OrderTxMaxAttempts: l.integer("ORDER_TX_MAX_ATTEMPTS", 3),
		PublishTimeout:     l.millis("NOTIFY_PUBLISH_TIMEOUT_MS", 300),
		BusQueueSize:       l.integer("BUS_QUEUE_SIZE", 1024),
		BusConcurrency:     l.integer("BUS_CONCURRENCY", 8),

		KafkaBrokers:      l.list("KAFKA_BROKERS", ""),
		KafkaStockTopic:   l.str("KAFKA_STOCK_TOPIC", "inventory.stock"),
		RedisAddr:         l.str("REDIS_ADDR", ""),
		RedisStockChannel: l.str("REDIS_STOCK_CHANNEL", "stock:update"),

		OTLPEndpoint: l.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure: l.flag("OTEL_EXPORTER_OTLP_INSECURE", true),

		WSAllowedOrigins: l.list("WS_ALLOWED_ORIGINS", "*"),
		WSBroadcastGroup: l.str("WS_BROADCAST_GROUP", ""),
	}
	return cfg, errors.Join(l.errs...)
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory:
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("mongo driver needs MONGO_URI and MONGO_DATABASE"))
		}
	case DriverPostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("postgres driver needs PG_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	positive := []struct {
		name string
		ok   bool
	}{
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout > 0},
		{"ORDER_TX_TIMEOUT_MS", c.OrderTxTimeout > 0},
		{"ORDER_TX_MAX_ATTEMPTS", c.OrderTxMaxAttempts > 0},
		{"NOTIFY_PUBLISH_TIMEOUT_MS", c.PublishTimeout > 0},
		{"BUS_QUEUE_SIZE", c.BusQueueSize > 0},
		{"BUS_CONCURRENCY", c.BusConcurrency > 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = append(errs, fmt.Errorf("%s must be greater than zero", p.name))
		}
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaStockTopic == "" {
		errs = append(errs, errors.New("KAFKA_STOCK_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.RedisAddr != "" && c.RedisStockChannel == "" {
		errs = append(errs, errors.New("REDIS_STOCK_CHANNEL is required when REDIS_ADDR is set"))
	}
	return errors.Join(errs...)
}
