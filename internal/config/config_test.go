package config

import (
	"strings"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	t.Setenv("SHELF_TEST_VAR", "test_value")
	if got := requireEnv("SHELF_TEST_VAR"); got != "test_value" {
		t.Errorf("requireEnv() = %v, want test_value", got)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("requireEnv() should have panicked")
		}
	}()
	requireEnv("SHELF_TEST_VAR_MISSING")
}

func TestRequireEnvInt(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		expected  int
		wantPanic bool
	}{
		{name: "valid integer", value: "42", expected: 42},
		{name: "invalid integer", value: "not_a_number", wantPanic: true},
		{name: "missing variable", value: "", wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SHELF_TEST_INT", tt.value)

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnvInt() should have panicked")
					}
				}()
			}

			result := requireEnvInt("SHELF_TEST_INT")
			if !tt.wantPanic && result != tt.expected {
				t.Errorf("requireEnvInt() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{"valid duration", "5s", time.Second, 5 * time.Second},
		{"invalid duration uses default", "invalid", 10 * time.Second, 10 * time.Second},
		{"missing variable uses default", "", 15 * time.Second, 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SHELF_TEST_DURATION", tt.value)
			if got := mustDuration("SHELF_TEST_DURATION", tt.def); got != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{"true value", "true", false, true},
		{"false value", "false", true, false},
		{"invalid value uses default", "invalid", true, true},
		{"missing variable uses default", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SHELF_TEST_BOOL", tt.value)
			if got := mustBool("SHELF_TEST_BOOL", tt.def); got != tt.expected {
				t.Errorf("mustBool() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(` a , "b",, 'c' `)
	want := []string{"a", "b", "c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("splitAndTrim() = %v, want %v", got, want)
	}
	if splitAndTrim("") != nil {
		t.Error("splitAndTrim(\"\") should be nil")
	}
}

func TestLoadBackend(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    string
		wantErr bool
	}{
		{
			name: "memory",
			env:  map[string]string{"SHELF_BACKEND": "memory"},
			want: BackendMemory,
		},
		{
			name: "redis",
			env: map[string]string{
				"SHELF_BACKEND":        "Redis",
				"SHELF_REDIS_ADDR":     "localhost:6379",
				"SHELF_REDIS_DB":       "0",
				"SHELF_REDIS_PASSWORD": "secret",
			},
			want: BackendRedis,
		},
		{
			name:    "redis without password",
			env:     map[string]string{"SHELF_BACKEND": "redis", "SHELF_REDIS_ADDR": "localhost:6379", "SHELF_REDIS_DB": "0"},
			wantErr: true,
		},
		{
			name: "postgres",
			env:  map[string]string{"SHELF_BACKEND": "postgres", "SHELF_POSTGRES_DSN": "postgres://shelf@db/shelf"},
			want: BackendPostgres,
		},
		{
			name:    "postgres without dsn",
			env:     map[string]string{"SHELF_BACKEND": "postgres"},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"SHELF_BACKEND": "sqlite"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"SHELF_BACKEND", "SHELF_REDIS_ADDR", "SHELF_REDIS_DB", "SHELF_REDIS_PASSWORD", "SHELF_POSTGRES_DSN"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			b, err := LoadBackend()
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadBackend() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && b.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", b.Kind, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("SHELF_BACKEND", "memory")
	t.Setenv("SHELF_JWT_SECRET", "s3cr3t")
	t.Setenv("SHELF_SIGN_IN_URL", "https://id.example.com/authorize")
	t.Setenv("SHELF_ALLOWED_CIDRS", "10.0.0.0/8, 127.0.0.1")
	t.Setenv("SHELF_RESYNC_INTERVAL", "1m")

	cfg := Load()
	if cfg.Kind != BackendMemory {
		t.Errorf("Kind = %q", cfg.Kind)
	}
	if cfg.ResyncInterval != time.Minute {
		t.Errorf("ResyncInterval = %v, want 1m", cfg.ResyncInterval)
	}
	if len(cfg.AllowedCIDRS) != 2 {
		t.Errorf("AllowedCIDRS = %v", cfg.AllowedCIDRS)
	}
	if cfg.CookieName != "shelf_session" || !cfg.CookieSecure {
		t.Errorf("cookie defaults = %q secure=%v", cfg.CookieName, cfg.CookieSecure)
	}
}

func TestLoadPanicsWithoutSecret(t *testing.T) {
	t.Setenv("SHELF_BACKEND", "memory")
	t.Setenv("SHELF_JWT_SECRET", "")
	t.Setenv("SHELF_SIGN_IN_URL", "https://id.example.com")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Load() should panic without SHELF_JWT_SECRET")
		}
	}()
	Load()
}

func TestRedacted(t *testing.T) {
	cfg := Config{
		JWTSecret: "s3cr3t",
		Backend: Backend{
			RedisPassword: "pw",
			RedisUser:     "default",
			PostgresDSN:   "postgres://shelf:hunter2@db:5432/shelf",
		},
	}

	r := cfg.Redacted()
	dump := r.JWTSecret + r.RedisPassword + r.PostgresDSN
	for _, secret := range []string{"s3cr3t", "pw", "hunter2"} {
		if strings.Contains(dump, secret) {
			t.Errorf("redacted config leaks %q: %s", secret, dump)
		}
	}
	if r.PostgresDSN != "postgres://shelf:***@db:5432/shelf" {
		t.Errorf("PostgresDSN = %q", r.PostgresDSN)
	}
	if cfg.JWTSecret != "s3cr3t" {
		t.Error("Redacted() modified the original")
	}
}
