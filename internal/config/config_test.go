package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// validEnv is the minimum for Load to succeed under the release default.
func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
}

func TestLoad_Defaults(t *testing.T) {
	validEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.Session.IdleAfter != 15*time.Minute || cfg.Session.AbandonAfter != 24*time.Hour {
		t.Fatalf("session defaults: %+v", cfg.Session)
	}
	if cfg.Jobs.AnalyticsRepairInterval != time.Hour || cfg.Jobs.RebuildQueueSize != 1024 {
		t.Fatalf("jobs defaults: %+v", cfg.Jobs)
	}
	if cfg.Outbox.RedisURL != "" || cfg.Outbox.RedisChannel != "survey-analytics" || cfg.Outbox.MaxAttempts != 8 {
		t.Fatalf("outbox defaults: %+v", cfg.Outbox)
	}
	if cfg.Analytics.MaxWindowDays != 366 || cfg.Analytics.ExportMaxRows != 50000 {
		t.Fatalf("analytics defaults: %+v", cfg.Analytics)
	}
	if !cfg.Auth.BootstrapFirstUser || cfg.Auth.AdminEmails != nil {
		t.Fatalf("auth defaults: %+v", cfg.Auth)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 1 {
		t.Fatalf("otel defaults: %+v", cfg.OTEL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	env := map[string]string{
		"PORT":                        "9090",
		"READ_TIMEOUT":                "2s",
		"GIN_MODE":                    "Debug",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               " api/v2/ ",
		"PUBLIC_BASE_URL":             "https://surveys.example.com/",
		"RATE_RPS":                    "0.5",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"SESSION_IDLE_AFTER":          "10m",
		"SESSION_ABANDON_AFTER":       "2h",
		"ANALYTICS_REPAIR_INTERVAL":   "0s",
		"REDIS_URL":                   " redis://cache:6379/0 ",
		"ADMIN_EMAILS":                "Ops@Example.com,lead@example.com",
		"ADMIN_BOOTSTRAP_FIRST_USER":  "off",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_TRACES_SAMPLER_ARG":     "0.25",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.ReadTimeout != 2*time.Second || cfg.GinMode != "debug" {
		t.Fatalf("server: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs: %+v", cfg)
	}
	if cfg.PublicBaseURL != "https://surveys.example.com" || cfg.RateRPS != 0.5 {
		t.Fatalf("app: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) || !cfg.Security.EnableHSTS {
		t.Fatalf("web: %+v %+v", cfg.CORS, cfg.Security)
	}
	if cfg.Session.IdleAfter != 10*time.Minute || cfg.Jobs.AnalyticsRepairInterval != 0 {
		t.Fatalf("domain: %+v %+v", cfg.Session, cfg.Jobs)
	}
	if cfg.Outbox.RedisURL != "redis://cache:6379/0" {
		t.Fatalf("redis url not trimmed: %q", cfg.Outbox.RedisURL)
	}
	if cfg.Auth.BootstrapFirstUser || !reflect.DeepEqual(cfg.Auth.AdminEmails, []string{"Ops@Example.com", "lead@example.com"}) {
		t.Fatalf("auth: %+v", cfg.Auth)
	}
	if cfg.OTEL.Insecure || cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("otel: %+v", cfg.OTEL)
	}
}

func TestLoad_MalformedValuesAreErrors(t *testing.T) {
	validEnv(t)
	t.Setenv("RATE_BURST", "lots")
	t.Setenv("LOG_PRETTY", "sometimes")
	t.Setenv("IDLE_SWEEP_INTERVAL", "5")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "half")

	_, err := Load()
	if err == nil {
		t.Fatal("expected parse errors")
	}
	for _, want := range []string{
		`RATE_BURST="lots": want an integer`,
		`LOG_PRETTY="sometimes": want a boolean`,
		`IDLE_SWEEP_INTERVAL="5": want a duration`,
		`OTEL_TRACES_SAMPLER_ARG="half": want a number`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error lacks %q:\n%v", want, err)
		}
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, `LOG_LEVEL "verbose"`},
		{"timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "server timeouts must be positive"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"rate rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
		{"idle after", map[string]string{"SESSION_IDLE_AFTER": "0s"}, "SESSION_IDLE_AFTER must be > 0"},
		{"abandon before idle", map[string]string{"SESSION_IDLE_AFTER": "1h", "SESSION_ABANDON_AFTER": "30m"}, "must exceed SESSION_IDLE_AFTER"},
		{"flush interval", map[string]string{"OUTBOX_FLUSH_INTERVAL": "0s"}, "intervals must be positive"},
		{"repair interval", map[string]string{"ANALYTICS_REPAIR_INTERVAL": "-1m"}, "ANALYTICS_REPAIR_INTERVAL"},
		{"sweep batch", map[string]string{"SWEEP_BATCH_SIZE": "0"}, "SWEEP_BATCH_SIZE"},
		{"rebuild queue", map[string]string{"REBUILD_QUEUE_SIZE": "0"}, "REBUILD_QUEUE_SIZE"},
		{"outbox batch", map[string]string{"OUTBOX_BATCH_SIZE": "0"}, "OUTBOX_BATCH_SIZE"},
		{"outbox attempts", map[string]string{"OUTBOX_MAX_ATTEMPTS": "0"}, "OUTBOX_MAX_ATTEMPTS"},
		{"outbox backoff", map[string]string{"OUTBOX_MAX_BACKOFF": "0s"}, "OUTBOX_MAX_BACKOFF"},
		{"window days", map[string]string{"ANALYTICS_MAX_WINDOW_DAYS": "0"}, "ANALYTICS_MAX_WINDOW_DAYS"},
		{"export rows", map[string]string{"ANALYTICS_EXPORT_MAX_ROWS": "0"}, "ANALYTICS_EXPORT_MAX_ROWS"},
		{"release without secret", map[string]string{"AUTH_JWT_SECRET": ""}, "AUTH_JWT_SECRET is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad_DebugModeNeedsNoSecret(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("AUTH_JWT_SECRET", "")
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	validEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Port = ""
	cfg.DBPath = ""
	cfg.Outbox.MaxAttempts = 0

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"PORT", "DB_PATH", "OUTBOX_MAX_ATTEMPTS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %s in %v", want, err)
		}
	}
}

func TestMustLoad(t *testing.T) {
	t.Run("panics", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		defer func() {
			if recover() == nil {
				t.Fatal("MustLoad did not panic")
			}
		}()
		MustLoad()
	})
	t.Run("returns", func(t *testing.T) {
		validEnv(t)
		if cfg := MustLoad(); cfg.DBPath != "survey.db" {
			t.Fatalf("DBPath = %q", cfg.DBPath)
		}
	})
}

func TestEnvReader_List(t *testing.T) {
	var env envReader
	t.Setenv("L_EMPTY", "  ")
	t.Setenv("L_SET", " a, ,b ,c,")
	if got := env.list("L_EMPTY"); got != nil {
		t.Fatalf("blank list = %#v", got)
	}
	if got := env.list("L_SET"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("list = %#v", got)
	}
	if len(env.errs) != 0 {
		t.Fatalf("list recorded errors: %v", env.errs)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":           "/",
		" / ":        "/",
		"v1":         "/v1",
		"/v1/":       "/v1",
		"//api/v1//": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
