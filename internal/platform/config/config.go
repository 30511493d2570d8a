package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MaxDownloadURLTTL caps signed download links; PHI links must stay short-lived.
const MaxDownloadURLTTL = 15 * time.Minute

// Config is the full process configuration. Both binaries load the same struct and
// use the sections they need.
type Config struct {
	Server       Server
	Database     DatabaseConfig
	Redis        RedisConfig
	Queue        QueueConfig
	Kafka        KafkaConfig
	Blob         BlobConfig
	Auth         AuthConfig
	Worker       WorkerConfig
	Verification VerificationConfig
	Reconcile    ReconcileConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// PublicBaseURL prefixes signed download links handed to callers.
	PublicBaseURL string
	Environment   string
	LogLevel      string
	// TrustProxy honours X-Forwarded-For when recording client IPs.
	TrustProxy bool
}

// DatabaseConfig configures the tenant-scoped relational store. An empty URL selects
// the in-memory stores (development only).
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the Redis client backing the verification queue.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// QueueConfig holds verification queue semantics.
type QueueConfig struct {
	Name              string
	VisibilityTimeout time.Duration
	BatchSize         int
	WaitTime          time.Duration
	PollInterval      time.Duration
}

// KafkaConfig configures the domain event bus. No brokers selects the log publisher.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	AutoCreateTopic   bool
	Partitions        int32
	ReplicationFactor int16
}

// BlobConfig configures binary document storage and signed retrieval handles.
type BlobConfig struct {
	Backend    string // "fs" or "memory"
	RootDir    string
	SigningKey string
	URLTTL     time.Duration
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// WorkerConfig configures the verification worker process.
type WorkerConfig struct {
	MetricsAddr   string
	ShutdownGrace time.Duration
	// SweepInterval enables the in-process reconciliation sweep when non-zero.
	SweepInterval time.Duration
}

// VerificationConfig configures the verification engine.
type VerificationConfig struct {
	// RulesFile optionally overrides the built-in rule table (YAML).
	RulesFile string
}

// ReconcileConfig configures the stale-pending sweep.
type ReconcileConfig struct {
	StaleAfter time.Duration
	BatchSize  int
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	e := &envReader{}
	cfg := Config{
		Server: Server{
			Addr:          e.str("CAREPAY_ADDR", ":8080"),
			PublicBaseURL: strings.TrimRight(e.str("CAREPAY_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			Environment:   e.str("CAREPAY_ENV", "development"),
			LogLevel:      e.str("LOG_LEVEL", "info"),
			TrustProxy:    e.bool("CAREPAY_TRUST_PROXY", false),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    e.int("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    e.int("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Queue: QueueConfig{
			Name:              e.str("VERIFICATION_QUEUE_NAME", "identity-verification"),
			VisibilityTimeout: e.duration("VERIFICATION_QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
			BatchSize:         e.int("VERIFICATION_QUEUE_BATCH_SIZE", 10),
			WaitTime:          e.duration("VERIFICATION_QUEUE_WAIT", 20*time.Second),
			PollInterval:      e.duration("VERIFICATION_QUEUE_POLL_INTERVAL", 500*time.Millisecond),
		},
		Kafka: KafkaConfig{
			Brokers:           e.list("KAFKA_BROKERS"),
			Topic:             e.str("KAFKA_IDENTITY_TOPIC", "identity-documents"),
			AutoCreateTopic:   e.bool("KAFKA_AUTO_CREATE_TOPIC", true),
			Partitions:        int32(e.int("KAFKA_TOPIC_PARTITIONS", 6)),
			ReplicationFactor: int16(e.int("KAFKA_TOPIC_REPLICATION", 1)),
		},
		Blob: BlobConfig{
			Backend:    e.str("BLOB_BACKEND", "fs"),
			RootDir:    e.str("BLOB_ROOT_DIR", "./data/blobs"),
			SigningKey: e.str("BLOB_SIGNING_KEY", "dev-blob-signing-key-change-in-production"),
			URLTTL:     e.duration("BLOB_URL_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			// Development default; production deployments must override it.
			JWTSigningKey: e.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        e.str("JWT_ISSUER", "carepay"),
			Audience:      e.str("JWT_AUDIENCE", "carepay-api"),
		},
		Worker: WorkerConfig{
			MetricsAddr:   e.str("WORKER_METRICS_ADDR", ":9091"),
			ShutdownGrace: e.duration("WORKER_SHUTDOWN_GRACE", 30*time.Second),
			SweepInterval: e.duration("WORKER_SWEEP_INTERVAL", 0),
		},
		Verification: VerificationConfig{
			RulesFile: os.Getenv("VERIFICATION_RULES_FILE"),
		},
		Reconcile: ReconcileConfig{
			StaleAfter: e.duration("RECONCILE_STALE_AFTER", 15*time.Minute),
			BatchSize:  e.int("RECONCILE_BATCH_SIZE", 500),
		},
	}
	if e.err != nil {
		return Config{}, e.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Blob.URLTTL <= 0 || c.Blob.URLTTL > MaxDownloadURLTTL {
		return fmt.Errorf("BLOB_URL_TTL must be between 1s and %s", MaxDownloadURLTTL)
	}
	if c.Queue.VisibilityTimeout <= 0 {
		return fmt.Errorf("VERIFICATION_QUEUE_VISIBILITY_TIMEOUT must be positive")
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("VERIFICATION_QUEUE_BATCH_SIZE must be positive")
	}
	switch c.Blob.Backend {
	case "fs", "memory":
	default:
		return fmt.Errorf("BLOB_BACKEND must be fs or memory, got %q", c.Blob.Backend)
	}
	return nil
}

// IsProduction reports whether the process runs with production settings.
func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// envReader accumulates the first parse error so FromEnv reads linearly.
type envReader struct {
	err error
}

func (e *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
	return n
}

func (e *envReader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
	return d
}

func (e *envReader) list(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
