package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "orgrun.yaml"

// CLIFlags holds command-line flag values. Nil pointers indicate unset flags
// that should not override the config. Use ParseFlags to populate this
// struct.
type CLIFlags struct {
	ConfigPath *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
}

// ParseFlags parses command-line arguments into CLIFlags.
// Call this before Load/LoadWithCLI. Passing nil args parses os.Args[1:].
func ParseFlags(args []string) (CLIFlags, error) {
	var flags CLIFlags
	if args == nil {
		args = os.Args[1:]
	}

	fs := flag.NewFlagSet("orgrun", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")
	logLevel := fs.String("log-level", "", "logging level (debug, info, warn, error)")
	dsn := fs.String("dsn", "", "PostgreSQL connection string")
	natsURL := fs.String("nats-url", "", "NATS server URL")

	if err := fs.Parse(args); err != nil {
		return flags, fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = configPath
		case "log-level":
			flags.LogLevel = logLevel
		case "dsn":
			flags.DSN = dsn
		case "nats-url":
			flags.NatsURL = natsURL
		}
	})

	return flags, nil
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadWithCLI returns a Config using the full hierarchy:
// defaults < YAML < ENV < CLI flags. The YAML path can be overridden via
// CLIFlags.ConfigPath.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}

	return &cfg, yamlPath, nil
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overlays CLI flag values onto cfg. Only non-nil flags override.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ORGRUN_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ORGRUN_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ORGRUN_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ORGRUN_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ORGRUN_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.LLM.Backend, "ORGRUN_LLM_BACKEND")
	setDuration(&cfg.LLM.Timeout, "ORGRUN_LLM_TIMEOUT")
	setString(&cfg.LLM.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.LLM.Anthropic.BaseURL, "ORGRUN_ANTHROPIC_BASE_URL")
	setString(&cfg.LLM.Anthropic.Model, "ORGRUN_ANTHROPIC_MODEL")
	setInt64(&cfg.LLM.Anthropic.MaxTokens, "ORGRUN_ANTHROPIC_MAX_TOKENS")
	setString(&cfg.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.OpenAI.BaseURL, "ORGRUN_OPENAI_BASE_URL")
	setString(&cfg.LLM.OpenAI.ChatModel, "ORGRUN_OPENAI_CHAT_MODEL")
	setString(&cfg.LLM.OpenAI.EmbedModel, "ORGRUN_OPENAI_EMBED_MODEL")
	setString(&cfg.LLM.LiteLLM.BaseURL, "ORGRUN_LITELLM_BASE_URL")
	setString(&cfg.LLM.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LLM.LiteLLM.ChatModel, "ORGRUN_LITELLM_CHAT_MODEL")
	setString(&cfg.LLM.LiteLLM.EmbedModel, "ORGRUN_LITELLM_EMBED_MODEL")

	setString(&cfg.Logging.Level, "ORGRUN_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ORGRUN_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "ORGRUN_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "ORGRUN_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "ORGRUN_BREAKER_TIMEOUT")

	setInt64(&cfg.Cache.L1MaxSizeMB, "ORGRUN_CACHE_L1_SIZE_MB")

	setBool(&cfg.OTEL.Enabled, "ORGRUN_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "ORGRUN_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "ORGRUN_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "ORGRUN_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "ORGRUN_OTEL_SAMPLE_RATE")

	setString(&cfg.Scheduler.ChairmanID, "ORGRUN_CHAIRMAN_ID")
	setDuration(&cfg.Scheduler.TickInterval, "ORGRUN_TICK_INTERVAL")
	setDuration(&cfg.Scheduler.ApprovalSweep, "ORGRUN_APPROVAL_SWEEP")
	setDuration(&cfg.Scheduler.DefaultApprovalTTL, "ORGRUN_DEFAULT_APPROVAL_TTL")

	setString(&cfg.AgentsFile, "ORGRUN_AGENTS_FILE")
	setString(&cfg.PermissionsFile, "ORGRUN_PERMISSIONS_FILE")
	setString(&cfg.KeywordsFile, "ORGRUN_KEYWORDS_FILE")
}

// validate checks that required fields are set and security constraints are
// met.
func validate(cfg *Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.LLM.Backend != "anthropic" && cfg.LLM.Backend != "openai" && cfg.LLM.Backend != "litellm" {
		return fmt.Errorf("llm.backend must be anthropic, openai, or litellm, got %q", cfg.LLM.Backend)
	}
	if cfg.AgentsFile == "" {
		return errors.New("agents_file is required")
	}
	if cfg.PermissionsFile == "" {
		return errors.New("permissions_file is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
