// Package config loads lingua's settings from an optional lingua.yaml and
// LINGUA_* environment variables. Environment variables win over the file;
// the file wins over the defaults set here.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/abhisek/lingua/internal/contentgen"
	"github.com/abhisek/lingua/internal/llm"
	"github.com/abhisek/lingua/internal/session"
)

// EnvPrefix is prepended to every environment key, e.g.
// LINGUA_DATABASE_DRIVER for database.driver.
const EnvPrefix = "LINGUA"

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	LLM      llm.Config     `mapstructure:"llm"`
	Engine   EngineConfig   `mapstructure:"engine" validate:"required"`
}

// ServerConfig holds HTTP server and logging settings.
type ServerConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	LogMode  string `mapstructure:"log_mode" validate:"oneof=dev development prod production"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// DatabaseConfig selects the SQL driver. An empty DSN with the sqlite
// driver means the default data file.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
}

// EngineConfig tunes the session engine.
type EngineConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0,lte=5"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"gte=0"`
	BufferTTL      time.Duration `mapstructure:"buffer_ttl" validate:"gte=0"`
	MaxQuestions   int           `mapstructure:"max_questions" validate:"gte=0"`
	PickerStrategy string        `mapstructure:"picker_strategy" validate:"oneof=random adaptive"`

	// CatalogDir, when set, replaces the embedded catalog with the *.json
	// documents in that directory.
	CatalogDir string `mapstructure:"catalog_dir"`

	// SessionIdleTimeout ends and forgets sessions idle for longer. Zero
	// keeps idle sessions until they are ended.
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" validate:"gte=0"`
}

// ContentGen returns the structured-generation settings.
func (e EngineConfig) ContentGen(l llm.Config) contentgen.Config {
	cfg := contentgen.DefaultConfig()
	cfg.MaxRetries = e.MaxRetries
	cfg.AttemptTimeout = e.AttemptTimeout
	if l.MaxTokens > 0 {
		cfg.MaxTokens = l.MaxTokens
	}
	cfg.Temperature = l.Temperature
	return cfg
}

// Session returns the orchestrator settings.
func (e EngineConfig) Session() session.Config {
	return session.Config{BufferTTL: e.BufferTTL, MaxQuestions: e.MaxQuestions}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration. An explicit path must exist; otherwise
// lingua.yaml is looked up in the working directory and in
// $XDG_CONFIG_HOME/lingua and skipped when absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("lingua")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "lingua"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Fall back to the well-known provider key variables when the
	// configured provider has no credentials.
	if !cfg.LLM.HasKey() {
		if found, ok := llm.DiscoverConfig(cfg.LLM); ok {
			cfg.LLM = found
		}
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_mode", "dev")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")

	l := llm.DefaultConfig()
	v.SetDefault("llm.provider", l.Provider)
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", l.Anthropic.Model)
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", l.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", l.Gemini.Model)
	v.SetDefault("llm.openrouter.api_key", "")
	v.SetDefault("llm.openrouter.model", l.OpenRouter.Model)
	v.SetDefault("llm.openrouter.base_url", "")
	v.SetDefault("llm.retry.max_attempts", l.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", l.Retry.InitialWait)
	v.SetDefault("llm.retry.max_wait", l.Retry.MaxWait)
	v.SetDefault("llm.retry.multiplier", l.Retry.Multiplier)
	v.SetDefault("llm.max_tokens", l.MaxTokens)
	v.SetDefault("llm.temperature", l.Temperature)

	cg := contentgen.DefaultConfig()
	sc := session.DefaultConfig()
	v.SetDefault("engine.max_retries", cg.MaxRetries)
	v.SetDefault("engine.attempt_timeout", cg.AttemptTimeout)
	v.SetDefault("engine.buffer_ttl", sc.BufferTTL)
	v.SetDefault("engine.max_questions", sc.MaxQuestions)
	v.SetDefault("engine.picker_strategy", "random")
	v.SetDefault("engine.catalog_dir", "")
	v.SetDefault("engine.session_idle_timeout", 30*time.Minute)
}
