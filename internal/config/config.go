// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the database path, rate limiting, session
// lifecycle thresholds, background job cadence, authentication and
// observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-survey-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SessionConfig defines respondent session lifecycle thresholds.
type SessionConfig struct {
	IdleAfter    time.Duration // SESSION_IDLE_AFTER
	AbandonAfter time.Duration // SESSION_ABANDON_AFTER
}

// JobsConfig defines background job cadence. A zero interval disables the
// job (only ANALYTICS_REPAIR_INTERVAL may be zero).
type JobsConfig struct {
	IdleSweepInterval       time.Duration // IDLE_SWEEP_INTERVAL
	AbandonSweepInterval    time.Duration // ABANDON_SWEEP_INTERVAL
	OutboxFlushInterval     time.Duration // OUTBOX_FLUSH_INTERVAL
	AnalyticsRepairInterval time.Duration // ANALYTICS_REPAIR_INTERVAL
	SweepBatchSize          int           // SWEEP_BATCH_SIZE
	RebuildQueueSize        int           // REBUILD_QUEUE_SIZE
}

// OutboxConfig defines analytics outbox delivery settings.
type OutboxConfig struct {
	BatchSize    int           // OUTBOX_BATCH_SIZE
	MaxAttempts  int           // OUTBOX_MAX_ATTEMPTS
	MaxBackoff   time.Duration // OUTBOX_MAX_BACKOFF
	RedisURL     string        // REDIS_URL (empty -> log sink)
	RedisChannel string        // OUTBOX_REDIS_CHANNEL
}

// AnalyticsConfig bounds admin analytics reads.
type AnalyticsConfig struct {
	MaxWindowDays int // ANALYTICS_MAX_WINDOW_DAYS
	ExportMaxRows int // ANALYTICS_EXPORT_MAX_ROWS
}

// AuthConfig defines bearer token verification and admin promotion.
type AuthConfig struct {
	JWTSecret          string   // AUTH_JWT_SECRET (HS256)
	JWTIssuer          string   // AUTH_JWT_ISSUER (optional)
	AdminEmails        []string // ADMIN_EMAILS
	BootstrapFirstUser bool     // ADMIN_BOOTSTRAP_FIRST_USER
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath        string // SQLite path
	PublicBaseURL string // prefix for /s/<token> invite links

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Domain
	Session   SessionConfig
	Jobs      JobsConfig
	Outbox    OutboxConfig
	Analytics AnalyticsConfig
	Auth      AuthConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad is Load for main: it panics on any error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, falling back to defaults for unset keys. A key
// that is set but unparsable is an error rather than a silent default, and
// every problem found is reported together.
func Load() (Config, error) {
	var env envReader
	cfg := Config{
		Port:              env.str("PORT", "8080"),
		ReadTimeout:       env.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: env.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      env.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       env.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    env.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(env.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(env.str("LOG_LEVEL", "info")),
		LogPretty:      env.bool("LOG_PRETTY", false),
		SwaggerEnabled: env.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(env.str("API_BASE_PATH", "/api/v1")),

		DBPath:        env.str("DB_PATH", "survey.db"),
		PublicBaseURL: strings.TrimRight(env.str("PUBLIC_BASE_URL", ""), "/"),

		RateRPS:   env.float("RATE_RPS", 5),
		RateBurst: env.int("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: env.list("CORS_ALLOWED_ORIGINS"),
		},
		Security: SecurityConfig{
			EnableHSTS: env.bool("ENABLE_HSTS", false),
			HSTSMaxAge: env.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: env.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		Session: SessionConfig{
			IdleAfter:    env.dur("SESSION_IDLE_AFTER", 15*time.Minute),
			AbandonAfter: env.dur("SESSION_ABANDON_AFTER", 24*time.Hour),
		},
		Jobs: JobsConfig{
			IdleSweepInterval:       env.dur("IDLE_SWEEP_INTERVAL", 5*time.Minute),
			AbandonSweepInterval:    env.dur("ABANDON_SWEEP_INTERVAL", 10*time.Minute),
			OutboxFlushInterval:     env.dur("OUTBOX_FLUSH_INTERVAL", time.Minute),
			AnalyticsRepairInterval: env.dur("ANALYTICS_REPAIR_INTERVAL", time.Hour),
			SweepBatchSize:          env.int("SWEEP_BATCH_SIZE", 200),
			RebuildQueueSize:        env.int("REBUILD_QUEUE_SIZE", 1024),
		},
		Outbox: OutboxConfig{
			BatchSize:    env.int("OUTBOX_BATCH_SIZE", 100),
			MaxAttempts:  env.int("OUTBOX_MAX_ATTEMPTS", 8),
			MaxBackoff:   env.dur("OUTBOX_MAX_BACKOFF", 30*time.Minute),
			RedisURL:     env.str("REDIS_URL", ""),
			RedisChannel: env.str("OUTBOX_REDIS_CHANNEL", "survey-analytics"),
		},
		Analytics: AnalyticsConfig{
			MaxWindowDays: env.int("ANALYTICS_MAX_WINDOW_DAYS", 366),
			ExportMaxRows: env.int("ANALYTICS_EXPORT_MAX_ROWS", 50000),
		},
		Auth: AuthConfig{
			JWTSecret:          env.str("AUTH_JWT_SECRET", ""),
			JWTIssuer:          env.str("AUTH_JWT_ISSUER", ""),
			AdminEmails:        env.list("ADMIN_EMAILS"),
			BootstrapFirstUser: env.bool("ADMIN_BOOTSTRAP_FIRST_USER", true),
		},

		OTEL: OTELConfig{
			Enabled:     env.bool("OTEL_ENABLED", false),
			Endpoint:    env.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    env.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: env.str("OTEL_SERVICE_NAME", "go-survey-backend"),
			SampleRatio: env.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(errors.Join(env.errs...), cfg.Validate())
}

// Validate checks cross-field constraints. All violations are joined into
// the returned error.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error, fatal, panic", c.LogLevel))
	}
	check(c.Port != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"server timeouts must be positive")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(c.DBPath != "", "DB_PATH must not be empty")
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	check(c.Session.IdleAfter > 0, "SESSION_IDLE_AFTER must be > 0")
	check(c.Session.AbandonAfter > c.Session.IdleAfter, "SESSION_ABANDON_AFTER must exceed SESSION_IDLE_AFTER")
	check(c.Jobs.IdleSweepInterval > 0 && c.Jobs.AbandonSweepInterval > 0 && c.Jobs.OutboxFlushInterval > 0,
		"sweep and flush intervals must be positive")
	check(c.Jobs.AnalyticsRepairInterval >= 0, "ANALYTICS_REPAIR_INTERVAL must be >= 0")
	check(c.Jobs.SweepBatchSize >= 1, "SWEEP_BATCH_SIZE must be >= 1")
	check(c.Jobs.RebuildQueueSize >= 1, "REBUILD_QUEUE_SIZE must be >= 1")
	check(c.Outbox.BatchSize >= 1, "OUTBOX_BATCH_SIZE must be >= 1")
	check(c.Outbox.MaxAttempts >= 1, "OUTBOX_MAX_ATTEMPTS must be >= 1")
	check(c.Outbox.MaxBackoff > 0, "OUTBOX_MAX_BACKOFF must be > 0")
	check(c.Analytics.MaxWindowDays >= 1, "ANALYTICS_MAX_WINDOW_DAYS must be >= 1")
	check(c.Analytics.ExportMaxRows >= 1, "ANALYTICS_EXPORT_MAX_ROWS must be >= 1")
	check(c.GinMode != "release" || c.Auth.JWTSecret != "", "AUTH_JWT_SECRET is required in release mode")

	return errors.Join(errs...)
}

// envReader reads typed values and remembers every malformed one.
type envReader struct {
	errs []error
}

// raw returns the trimmed value; blank counts as unset.
func (r *envReader) raw(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (r *envReader) fail(key, v, want string) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: want %s", key, v, want))
}

func (r *envReader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "an integer")
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, "a number")
		return def
	}
	return f
}

func (r *envReader) bool(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	r.fail(key, v, "a boolean")
	return def
}

func (r *envReader) dur(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, "a duration such as 90s or 15m")
		return def
	}
	return d
}

// list splits a comma-separated value, dropping blanks.
func (r *envReader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// blank becomes "/".
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
