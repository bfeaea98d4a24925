// Package config loads process configuration from the environment, after an
// optional .env file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string `env:"PORT" envDefault:"3000"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"memory"`
	DB             DBConfig
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	ConnectRetries int    `env:"CONNECT_RETRIES" envDefault:"5"`

	Kafka KafkaConfig

	RedisDecisionStream string   `env:"REDIS_DECISION_STREAM" envDefault:"leave:decisions"`
	DecisionSinks       []string `env:"DECISION_SINKS" envSeparator:"," envDefault:"kafka"`

	Locker   string        `env:"LOCKER" envDefault:"memory"`
	LockTTL  time.Duration `env:"LOCK_TTL" envDefault:"10s"`
	LockWait time.Duration `env:"LOCK_WAIT" envDefault:"5s"`

	StorageTimeout    time.Duration `env:"STORAGE_TIMEOUT" envDefault:"2s"`
	StorageMaxRetries int           `env:"STORAGE_MAX_RETRIES" envDefault:"3"`
	ConflictRetries   int           `env:"CONFLICT_RETRIES" envDefault:"5"`

	Leave LeaveConfig

	RateLimitRPS       float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
	IdempotencyEnabled bool    `env:"IDEMPOTENCY_ENABLED" envDefault:"false"`
	RBACModelPath      string  `env:"RBAC_MODEL_PATH"`
}

type DBConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"postgres"`
	Host       string `env:"DB_HOST" envDefault:"localhost"`
	User       string `env:"DB_USER"`
	Password   string `env:"DB_PASSWORD"`
	Name       string `env:"DB_NAME" envDefault:"leave_ledger"`
	Port       string `env:"DB_PORT" envDefault:"5432"`
	SSLMode    string `env:"DB_SSLMODE" envDefault:"disable"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"leave_ledger.db"`
}

type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKER" envSeparator:"," envDefault:"localhost:9092"`
	Topic         string   `env:"KAFKA_TOPIC" envDefault:"leave-events"`
	GroupID       string   `env:"KAFKA_GROUP_ID" envDefault:"leave-ledger-consumer"`
	DecisionTopic string   `env:"KAFKA_DECISION_TOPIC" envDefault:"leave-decisions"`
}

type LeaveConfig struct {
	TotalEngineers    int  `env:"LEAVE_TOTAL_ENGINEERS" envDefault:"30"`
	AvailabilityFloor int  `env:"LEAVE_AVAILABILITY_FLOOR" envDefault:"20"`
	RejectSelfOverlap bool `env:"LEAVE_REJECT_SELF_OVERLAP" envDefault:"true"`
}

// Load reads .env when present and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StorageBackend {
	case "memory", "gorm", "redis":
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DB.Driver)
	}
	switch c.Locker {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown LOCKER %q", c.Locker)
	}
	// gorm and redis stores are shared by the api and consumer processes; an
	// in-process lock would not serialize them.
	if c.StorageBackend != "memory" && c.Locker != "redis" {
		return fmt.Errorf("config: STORAGE_BACKEND %q is shared across processes and needs LOCKER=redis", c.StorageBackend)
	}
	if c.Locker == "redis" && c.LockTTL <= 0 {
		return fmt.Errorf("config: LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	for _, sink := range c.DecisionSinks {
		switch sink {
		case "kafka", "redis":
		default:
			return fmt.Errorf("config: unknown DECISION_SINKS entry %q", sink)
		}
	}
	if c.Leave.AvailabilityFloor < 0 || c.Leave.AvailabilityFloor > c.Leave.TotalEngineers {
		return fmt.Errorf("config: LEAVE_AVAILABILITY_FLOOR %d outside [0, %d]", c.Leave.AvailabilityFloor, c.Leave.TotalEngineers)
	}
	return nil
}

// NeedsRedis reports whether any configured component talks to redis.
func (c Config) NeedsRedis() bool {
	if c.StorageBackend == "redis" || c.Locker == "redis" || c.IdempotencyEnabled {
		return true
	}
	return c.HasSink("redis")
}

func (c Config) HasSink(name string) bool {
	for _, s := range c.DecisionSinks {
		if s == name {
			return true
		}
	}
	return false
}
