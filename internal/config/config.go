package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port      string
	JWTSecret string
	CacheTTL  time.Duration
	DB        DB
	Redis     Redis
	Broker    Broker
	RateLimit RateLimit
	Telemetry Telemetry
}

type DB struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

// URL renders the connection parameters as a postgres:// URL usable by both
// lib/pq and golang-migrate.
func (d DB) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}

type Redis struct {
	URL string
}

type Broker struct {
	Brokers           []string
	Topic             string
	ConnectAttempts   uint
	RetryDelay        time.Duration
	ConnectTimeout    time.Duration
	ReplicationFactor int
}

type RateLimit struct {
	Max    int
	Window time.Duration
}

type Telemetry struct {
	OTLPEndpoint string
}

// Load reads the process environment once. Missing required variables are
// reported together.
func Load() (*Config, error) {
	l := &loader{}

	cfg := &Config{
		Port:      l.optional("PORT", "3002"),
		JWTSecret: l.required("JWT_SECRET"),
		CacheTTL:  l.duration("CACHE_TTL", time.Hour),
		DB:        l.db(),
		Redis: Redis{
			URL: l.optional("REDIS_URL", "redis://localhost:6379/0"),
		},
		Broker: Broker{
			Brokers:           splitAndTrim(l.optional("KAFKA_BROKERS", "localhost:9092")),
			Topic:             l.optional("ORDER_TOPIC", "order_created"),
			ConnectAttempts:   uint(l.integer("BROKER_CONNECT_ATTEMPTS", 10)),
			RetryDelay:        l.duration("BROKER_RETRY_DELAY", 5*time.Second),
			ConnectTimeout:    l.duration("BROKER_CONNECT_TIMEOUT", 10*time.Second),
			ReplicationFactor: l.integer("KAFKA_REPLICATION_FACTOR", 1),
		},
		RateLimit: RateLimit{
			Max:    l.integer("RATE_LIMIT_MAX", 100),
			Window: l.duration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
		Telemetry: Telemetry{
			OTLPEndpoint: l.optional("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
	}

	if len(cfg.Broker.Brokers) == 0 {
		l.errs = append(l.errs, errors.New("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.Broker.ConnectAttempts == 0 {
		l.errs = append(l.errs, errors.New("BROKER_CONNECT_ATTEMPTS must be at least 1"))
	}
	if cfg.CacheTTL <= 0 {
		l.errs = append(l.errs, errors.New("CACHE_TTL must be positive"))
	}
	if cfg.Broker.ConnectTimeout <= 0 {
		l.errs = append(l.errs, errors.New("BROKER_CONNECT_TIMEOUT must be positive"))
	}
	if cfg.Broker.RetryDelay < 0 {
		l.errs = append(l.errs, errors.New("BROKER_RETRY_DELAY must not be negative"))
	}
	if cfg.RateLimit.Window <= 0 {
		l.errs = append(l.errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDB reads only the DB_* variables, for tools that need nothing else.
func LoadDB() (DB, error) {
	l := &loader{}
	db := l.db()
	return db, errors.Join(l.errs...)
}

type loader struct {
	errs []error
}

func (l *loader) db() DB {
	return DB{
		User:     l.required("DB_USER"),
		Password: l.optional("DB_PASSWORD", ""),
		Host:     l.required("DB_HOST"),
		Port:     l.optional("DB_PORT", "5432"),
		Name:     l.required("DB_NAME"),
		SSLMode:  l.optional("DB_SSLMODE", "disable"),
	}
}

func (l *loader) required(key string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		l.errs = append(l.errs, fmt.Errorf("%s environment variable is required", key))
	}
	return val
}

func (l *loader) optional(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func (l *loader) integer(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		l.errs = append(l.errs, fmt.Errorf("%s must be a non-negative integer, got %q", key, val))
		return def
	}
	return n
}

// duration accepts Go duration strings ("90s", "1h") and bare integers as
// seconds, so CACHE_TTL=3600 keeps working.
func (l *loader) duration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s must be a duration, got %q", key, val))
		return def
	}
	return d
}

func splitAndTrim(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
