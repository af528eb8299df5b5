package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// PendingCancelPolicy decides what cancelling a PENDING instrument does.
type PendingCancelPolicy string

const (
	// PendingCancelMark keeps the record and sets it CANCELLED.
	PendingCancelMark PendingCancelPolicy = "mark"
	// PendingCancelDelete removes the record entirely.
	PendingCancelDelete PendingCancelPolicy = "delete"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTTTL        time.Duration
	JWTIssuer     string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Documents   DocumentConfig

	QuoteCacheTTL       time.Duration
	PendingCancelPolicy PendingCancelPolicy
	TxTimeout           time.Duration
	RateLimit           RateLimitConfig
	BootstrapAdmin      BootstrapAdmin
}

// BootstrapAdmin seeds the first active admin at startup. Self-registered
// admins start inactive, so a fresh deployment needs one. Empty email skips it.
type BootstrapAdmin struct {
	Name     string
	Email    string
	Password string
}

// RateLimitConfig bounds requests per client IP on the public auth routes.
// Counters live in Redis when it is configured.
type RateLimitConfig struct {
	AuthRequests int
	AuthWindow   time.Duration
	Disabled     bool
}

// RedisConfig configures the quote cache connection. Empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit and notification topics. No brokers disables Kafka.
type KafkaConfig struct {
	Brokers           []string
	AuditTopic        string
	NotificationTopic string
}

// DocumentConfig configures claim document storage. Empty bucket selects in-memory storage.
type DocumentConfig struct {
	Region     string
	Bucket     string
	Endpoint   string
	PresignTTL time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default, override in any shared environment
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          getEnv("COVERLINE_ADDR", ":8080"),
		JWTSigningKey: jwtSigningKey,
		JWTTTL:        getDuration("JWT_TTL", 24*time.Hour),
		JWTIssuer:     getEnv("JWT_ISSUER", "coverline"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:        getEnv("KAFKA_AUDIT_TOPIC", "coverline.audit"),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "coverline.notifications"),
		},
		Documents: DocumentConfig{
			Region:     getEnv("AWS_REGION", "us-east-1"),
			Bucket:     os.Getenv("DOCUMENT_BUCKET"),
			Endpoint:   os.Getenv("AWS_ENDPOINT_URL"),
			PresignTTL: time.Duration(getInt("PRESIGN_TTL_SECONDS", 900)) * time.Second,
		},
		QuoteCacheTTL:       getDuration("QUOTE_CACHE_TTL", 10*time.Minute),
		PendingCancelPolicy: parsePendingCancel(os.Getenv("INSTRUMENT_PENDING_CANCEL")),
		TxTimeout:           getDuration("TX_TIMEOUT", 5*time.Second),
		RateLimit: RateLimitConfig{
			AuthRequests: getInt("RATE_LIMIT_AUTH_REQUESTS", 10),
			AuthWindow:   getDuration("RATE_LIMIT_AUTH_WINDOW", time.Minute),
			Disabled:     getBool("RATE_LIMIT_DISABLED", false),
		},
		BootstrapAdmin: BootstrapAdmin{
			Name:     getEnv("ADMIN_BOOTSTRAP_NAME", "Administrator"),
			Email:    os.Getenv("ADMIN_BOOTSTRAP_EMAIL"),
			Password: os.Getenv("ADMIN_BOOTSTRAP_PASSWORD"),
		},
	}
}

func parsePendingCancel(v string) PendingCancelPolicy {
	if PendingCancelPolicy(strings.ToLower(strings.TrimSpace(v))) == PendingCancelDelete {
		return PendingCancelDelete
	}
	return PendingCancelMark
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
