package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("expected max_conns 15, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
	if cfg.LLM.Backend != "anthropic" {
		t.Errorf("expected default llm backend anthropic, got %s", cfg.LLM.Backend)
	}
	if cfg.AgentsFile != "agents.yaml" || cfg.PermissionsFile != "permissions.yaml" {
		t.Errorf("unexpected default config file paths: %+v", cfg)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
postgres:
  max_conns: 20
logging:
  level: "debug"
llm:
  backend: "openai"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Postgres.MaxConns != 20 {
		t.Errorf("expected max_conns 20, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.LLM.Backend != "openai" {
		t.Errorf("expected llm backend openai, got %s", cfg.LLM.Backend)
	}
	// Unchanged fields keep defaults
	if cfg.Scheduler.ChairmanID != "chairman" {
		t.Errorf("expected default chairman id, got %s", cfg.Scheduler.ChairmanID)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("ORGRUN_PG_MAX_CONNS", "25")
	t.Setenv("ORGRUN_LOG_LEVEL", "warn")
	t.Setenv("ORGRUN_BREAKER_TIMEOUT", "1m")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	loadEnv(&cfg)

	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Postgres.MaxConns != 25 {
		t.Errorf("expected max_conns 25, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Breaker.Timeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Breaker.Timeout)
	}
	if cfg.LLM.Anthropic.APIKey != "sk-test" {
		t.Errorf("expected anthropic api key override, got %s", cfg.LLM.Anthropic.APIKey)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty DSN",
			modify: func(c *Config) { c.Postgres.DSN = "" },
			errMsg: "postgres.dsn is required",
		},
		{
			name:   "zero max_conns",
			modify: func(c *Config) { c.Postgres.MaxConns = 0 },
			errMsg: "postgres.max_conns must be >= 1",
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
		{
			name:   "empty agents file",
			modify: func(c *Config) { c.AgentsFile = "" },
			errMsg: "agents_file is required",
		},
		{
			name:   "empty permissions file",
			modify: func(c *Config) { c.PermissionsFile = "" },
			errMsg: "permissions_file is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateBackendMustBeKnown(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Backend = "bogus"
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for unknown llm backend, got nil")
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}
