package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Push transports accepted by PUSH_TRANSPORT.
const (
	TransportRedis = "redis"
	TransportKafka = "kafka"
)

type Config struct {
	Port            string `env:"PORT,       default=8080"`
	OpsPort         string `env:"OPS_PORT,   default=9090"`
	Env             string `env:"ENV,        default=development"`
	JWTSecret       string `env:"JWT_SECRET"`
	LogLevel        string `env:"LOG_LEVEL,  default=info"`
	DispatchWorkers int    `env:"DISPATCH_WORKERS, default=8"`
	PushTransport   string `env:"PUSH_TRANSPORT,   default=redis"`

	Mongo    MongoConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Tracking TrackingConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=job_tracking"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS,  default=localhost:9092"`
	Topic   string   `env:"KAFKA_TOPIC,    default=job.positions"`
	GroupID string   `env:"KAFKA_GROUP_ID, default=job-tracking"`
}

// TrackingConfig holds the per-entity tunables of the tracking core.
type TrackingConfig struct {
	PollInterval          time.Duration `env:"TRACKING_POLL_INTERVAL,           default=5s"`
	MaxDeviationMeters    float64       `env:"TRACKING_MAX_DEVIATION_METERS,    default=50"`
	MinDwell              time.Duration `env:"TRACKING_MIN_DWELL,               default=3s"`
	Cooldown              time.Duration `env:"TRACKING_COOLDOWN,                default=10s"`
	UnreliableFixMeters   float64       `env:"TRACKING_UNRELIABLE_FIX_METERS,   default=200"`
	DistanceEpsilonMeters float64       `env:"TRACKING_DISTANCE_EPSILON_METERS, default=20"`
	TimeEpsilon           time.Duration `env:"TRACKING_TIME_EPSILON,            default=10s"`
	MaxClockSkew          time.Duration `env:"TRACKING_MAX_CLOCK_SKEW,          default=30s"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadWith reads configuration from lookuper and validates it.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.PushTransport {
	case TransportRedis, TransportKafka:
	default:
		return fmt.Errorf("PUSH_TRANSPORT must be %q or %q, got %q", TransportRedis, TransportKafka, c.PushTransport)
	}
	if c.PushTransport == TransportKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required with the kafka transport")
	}
	if c.Tracking.PollInterval <= 0 {
		return fmt.Errorf("TRACKING_POLL_INTERVAL must be positive")
	}
	if c.Tracking.MinDwell < 0 || c.Tracking.Cooldown < 0 {
		return fmt.Errorf("TRACKING_MIN_DWELL and TRACKING_COOLDOWN must not be negative")
	}
	return nil
}

// IsDevelopment reports whether the service runs with human-friendly defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
