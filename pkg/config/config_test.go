package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigOptional_EmptyPath(t *testing.T) {
	t.Setenv("PORT", "9999")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional with empty path should not error: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Expected Port=9999 from env, got %d", cfg.Port)
	}
}

func TestLoadConfigOptional_FileNotExist(t *testing.T) {
	nonExistentPath := filepath.Join(t.TempDir(), "config-does-not-exist.yaml")

	cfg, err := LoadConfigOptional(nonExistentPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional with non-existent file should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
}

func TestLoadConfigOptional_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")

	invalidYAML := `
port: 8080
redisAddr: "localhost:6379"
  invalid indentation here
  more bad yaml
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := LoadConfigOptional(configPath); err == nil {
		t.Fatal("Expected error when loading invalid YAML, got nil")
	}
}

func TestLoadConfigValidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "valid.yaml")

	validYAML := `
port: 8081
redisAddr: "localhost:6379"
redisPassword: "secret"
flowHuntBaseUrl: "https://flows.example.com"
flowHuntApiKey: "k-123"
logLevel: "debug"
env: "test"
pollIntervalSeconds: 3
pollMaxIterations: 100
`
	if err := os.WriteFile(configPath, []byte(validYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig should not error: %v", err)
	}
	if cfg.Port != 8081 {
		t.Errorf("Expected Port=8081, got %d", cfg.Port)
	}
	if cfg.RedisPassword != "secret" {
		t.Errorf("Expected RedisPassword='secret', got %q", cfg.RedisPassword)
	}
	if cfg.FlowHuntBaseURL != "https://flows.example.com" {
		t.Errorf("Expected FlowHuntBaseURL='https://flows.example.com', got %q", cfg.FlowHuntBaseURL)
	}
	if cfg.PollIntervalSeconds != 3 || cfg.PollMaxIterations != 100 {
		t.Errorf("poll settings not loaded: %d / %d", cfg.PollIntervalSeconds, cfg.PollMaxIterations)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.DefaultParallelism != 5 {
		t.Errorf("Expected DefaultParallelism=5, got %d", cfg.DefaultParallelism)
	}
	if cfg.PollIntervalSeconds != 2 {
		t.Errorf("Expected PollIntervalSeconds=2, got %d", cfg.PollIntervalSeconds)
	}
	if cfg.PollMaxIterations != 1800 {
		t.Errorf("Expected PollMaxIterations=1800, got %d", cfg.PollMaxIterations)
	}
	if cfg.PollBackoffPolicy != "fixed" {
		t.Errorf("Expected PollBackoffPolicy='fixed', got %q", cfg.PollBackoffPolicy)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	configYAML := `
port: 8080
redisAddr: "localhost:6379"
flowHuntApiKey: "file-key"
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "env-redis:6380")
	t.Setenv("FLOWHUNT_API_KEY", "env-key")
	t.Setenv("POLL_BACKOFF_POLICY", "exp_full_jitter")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig should not error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Expected Port=9090 from env, got %d", cfg.Port)
	}
	if cfg.RedisAddr != "env-redis:6380" {
		t.Errorf("Expected RedisAddr='env-redis:6380' from env, got %q", cfg.RedisAddr)
	}
	if cfg.FlowHuntAPIKey != "env-key" {
		t.Errorf("Expected FlowHuntAPIKey='env-key' from env, got %q", cfg.FlowHuntAPIKey)
	}
	if cfg.PollBackoffPolicy != "exp_full_jitter" {
		t.Errorf("Expected PollBackoffPolicy='exp_full_jitter' from env, got %q", cfg.PollBackoffPolicy)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	// Dev defaults must pass validation.
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on dev defaults = %v", err)
	}

	cfg.Env = "prod"
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure for prod without auth or api key")
	}
	if !strings.Contains(err.Error(), "flowHuntApiKey") {
		t.Errorf("expected api key complaint, got %v", err)
	}

	cfg.FlowHuntAPIKey = "k"
	cfg.AuthProvider = "static"
	cfg.AuthStaticToken = "token-1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on prod static config = %v", err)
	}

	cfg.AuthProvider = "jwks"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure for jwks without url/issuer/audience")
	}
	cfg.AuthJwksURL = "https://issuer.example.com/jwks.json"
	cfg.AuthIssuer = "issuer"
	cfg.AuthAudience = "flowbatch"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on jwks config = %v", err)
	}

	cfg.PollBackoffPolicy = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure for unknown backoff policy")
	}
}
