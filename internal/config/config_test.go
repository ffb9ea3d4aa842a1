package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unset %s: %v", k, err)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t,
		"PORT", "FRONTEND_URL", "DB_PATH", "SESSION_TTL", "REAPER_INTERVAL", "USER_RETENTION",
		"MAX_TOKENS", "DEFAULT_BACKEND", "OPENAI_MODEL", "RATE_LIMIT_REQUESTS",
		"RATE_LIMIT_WINDOW", "MAX_REQUEST_BODY_SIZE", "LOG_LEVEL", "SECURE_COOKIES",
	)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tutor.DefaultBackend != domain.BackendClaude {
		t.Errorf("DefaultBackend = %q", cfg.Tutor.DefaultBackend)
	}
	if cfg.Tutor.MaxTokens != 500 || cfg.Tutor.OpenAIModel != "gpt-4" {
		t.Errorf("Tutor = %+v", cfg.Tutor)
	}
	if cfg.SessionTTL != time.Hour || cfg.UserRetention != 720*time.Hour {
		t.Errorf("SessionTTL = %v, UserRetention = %v", cfg.SessionTTL, cfg.UserRetention)
	}
	if cfg.Port != "8080" || cfg.DBPath != "./data/tutor.db" || cfg.MaxRequestBodySize != 1<<20 {
		t.Errorf("Port = %q, DBPath = %q, MaxRequestBodySize = %d", cfg.Port, cfg.DBPath, cfg.MaxRequestBodySize)
	}
	if cfg.RateLimit.Requests != 10 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if !cfg.IsDevelopment() || cfg.SecureCookies {
		t.Errorf("empty FRONTEND_URL should be development without secure cookies")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("DEFAULT_BACKEND", "gemini")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	t.Setenv("DEFAULT_BACKEND", "chatgpt")
	t.Setenv("LOG_LEVEL", "verbose")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad LOG_LEVEL")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port: "8080", DBPath: "x.db",
		SessionTTL: time.Hour, ReaperInterval: time.Minute, UserRetention: 24 * time.Hour,
		Tutor:              TutorConfig{MaxTokens: 500},
		RateLimit:          RateLimitConfig{Requests: 10, Window: time.Minute},
		MaxRequestBodySize: 1 << 20,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }},
		{"retention below ttl", func(c *Config) { c.UserRetention = time.Minute }},
		{"zero max tokens", func(c *Config) { c.Tutor.MaxTokens = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimit.Requests = 0 }},
		{"zero body size", func(c *Config) { c.MaxRequestBodySize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if d := getEnvDuration("TEST_DURATION", time.Minute); d != 90*time.Second {
		t.Errorf("got %v, want 90s", d)
	}
	t.Setenv("TEST_DURATION", "30")
	if d := getEnvDuration("TEST_DURATION", time.Minute); d != 30*time.Second {
		t.Errorf("got %v, want 30s", d)
	}
	t.Setenv("TEST_DURATION", "soon")
	if d := getEnvDuration("TEST_DURATION", time.Minute); d != time.Minute {
		t.Errorf("got %v, want fallback", d)
	}
}

func TestAllowedOrigins(t *testing.T) {
	c := Config{FrontendURL: "https://tutor.example.com/, http://localhost:5173"}
	got := c.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://tutor.example.com" || got[1] != "http://localhost:5173" {
		t.Errorf("AllowedOrigins = %v", got)
	}
	if got := (&Config{}).AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Errorf("AllowedOrigins(empty) = %v", got)
	}
}
