package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"topwr_rag/internal/core"
	"topwr_rag/internal/graphdb"
	"topwr_rag/internal/llm"
	"topwr_rag/internal/logger"
	"topwr_rag/internal/storage"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration
type Config struct {
	Log      logger.Config  `yaml:"log"`
	LLM      llm.Config     `yaml:"llm"`
	Neo4j    graphdb.Config `yaml:"neo4j"`
	Session  storage.Config `yaml:"session"`
	Pipeline core.Config    `yaml:"pipeline"`
	Journal  JournalConfig  `yaml:"journal"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// JournalConfig enables the exchange journal when Dir is set
type JournalConfig struct {
	Dir string `yaml:"dir" envconfig:"JOURNAL_DIR"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr" envconfig:"METRICS_ADDR"`
}

// Default returns the configuration used when no file overrides a value
func Default() Config {
	return Config{
		Log:      logger.DefaultConfig(),
		LLM:      llm.DefaultConfig(),
		Neo4j:    graphdb.DefaultConfig(),
		Session:  storage.DefaultConfig(),
		Pipeline: core.DefaultConfig(),
	}
}

// LoadConfig reads path over the defaults and applies environment overrides.
// A missing file is only an error when path was given explicitly.
func LoadConfig(path string, required bool) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing YAML: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	if err := ApplyEnv(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyEnv overlays environment variables onto config. Unset variables leave
// the current value untouched.
func ApplyEnv(config *Config) error {
	if err := envconfig.Process("", config); err != nil {
		return fmt.Errorf("error processing environment configuration: %w", err)
	}
	if _, ok := os.LookupEnv("NEO4J_USERNAME"); !ok {
		if user, ok := os.LookupEnv("NEO4J_USER"); ok {
			config.Neo4j.Username = user
		}
	}
	return nil
}

// Validate reports every missing or invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderOpenAI, llm.ProviderOpenRouter, llm.ProviderDeepSeek, llm.ProviderOllama, llm.ProviderArk:
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required (LLM_MODEL)"))
	}
	if c.LLM.NeedsAPIKey() && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is required (LLM_API_KEY)"))
	}

	if c.Neo4j.URI == "" {
		errs = append(errs, errors.New("neo4j.uri is required (NEO4J_URI)"))
	}
	if c.Neo4j.Username == "" {
		errs = append(errs, errors.New("neo4j.username is required (NEO4J_USERNAME)"))
	}
	if c.Neo4j.Password == "" {
		errs = append(errs, errors.New("neo4j.password is required (NEO4J_PASSWORD)"))
	}

	switch c.Session.Backend {
	case storage.BackendMemory:
	case storage.BackendRedis:
		if c.Session.RedisURL == "" {
			errs = append(errs, errors.New("session.redis_url is required for the redis backend (REDIS_URL)"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend %q is not supported", c.Session.Backend))
	}

	if c.Pipeline.MaxCorrectionAttempts < 0 {
		errs = append(errs, errors.New("pipeline.max_correction_attempts cannot be negative"))
	}
	if c.Pipeline.MaxRows < 0 {
		errs = append(errs, errors.New("pipeline.max_rows cannot be negative"))
	}

	return errors.Join(errs...)
}
