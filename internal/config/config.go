// Package config loads the companion's YAML configuration with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// #region types

// Config is the companion configuration file.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	LLM        LLMConfig        `yaml:"llm"`
	Memory     MemoryConfig     `yaml:"memory"`
	Navigation NavigationConfig `yaml:"navigation"`
	Redis      RedisConfig      `yaml:"redis"`
	Idle       IdleConfig       `yaml:"idle"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Mode string `yaml:"mode"` // prod, dev
}

type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// LLMConfig selects the language model backend. Provider "none" keeps the council
// rule-based.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // genai, grpc, none
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Addr        string  `yaml:"addr"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

type MemoryConfig struct {
	RecentContextSize int `yaml:"recent_context_size"`
	RetrievedLimit    int `yaml:"retrieved_limit"`
}

type NavigationConfig struct {
	MovementSpeed    float64 `yaml:"movement_speed"` // px/s
	StepInterval     string  `yaml:"step_interval"`
	ClampPadding     float64 `yaml:"clamp_padding"`
	DoorwayProximity float64 `yaml:"doorway_proximity"`
	FootprintWidth   float64 `yaml:"footprint_width"`
	FootprintHeight  float64 `yaml:"footprint_height"`
}

// RedisConfig enables event publishing when Addr is set.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type IdleConfig struct {
	Timeout string `yaml:"timeout"`
	Tick    string `yaml:"tick"`
}

// TracingConfig exports OpenTelemetry spans. Exporter "stdout" pretty-prints spans,
// "otlp" sends them to Endpoint over HTTP.
type TracingConfig struct {
	Exporter    string  `yaml:"exporter"` // none, stdout, otlp
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// #endregion types

// #region defaults

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "companion.db"},
		Log:      LogConfig{Mode: "dev"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		LLM: LLMConfig{
			Provider:    "none",
			Model:       "gemini-2.5-flash",
			Addr:        "localhost:50051",
			Temperature: 0.7,
			MaxTokens:   1024,
			Timeout:     "30s",
		},
		Memory: MemoryConfig{RecentContextSize: 10, RetrievedLimit: 5},
		Navigation: NavigationConfig{
			MovementSpeed:    100,
			StepInterval:     "50ms",
			ClampPadding:     20,
			DoorwayProximity: 30,
			FootprintWidth:   40,
			FootprintHeight:  40,
		},
		Redis:   RedisConfig{Channel: "companion:events"},
		Idle:    IdleConfig{Timeout: "2m", Tick: "10s"},
		Tracing: TracingConfig{Exporter: "none", SampleRatio: 1},
	}
}

// #endregion defaults

// #region load-save

// Load reads a YAML file over the defaults. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COMPANION_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("LOG_MODE"); v != "" {
		c.Log.Mode = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" || c.LLM.Provider == "none" {
			c.LLM.Provider = "genai"
		}
	}
	if v := os.Getenv("LLM_ADDR"); v != "" {
		c.LLM.Addr = v
		c.LLM.Provider = "grpc"
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_CHANNEL"); v != "" {
		c.Redis.Channel = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
		c.Tracing.Exporter = "otlp"
	}
}

// #endregion load-save

// #region validate

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.LLM.Provider {
	case "none", "":
	case "genai":
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("llm.api_key is required for provider genai"))
		}
	case "grpc":
		if c.LLM.Addr == "" {
			errs = append(errs, errors.New("llm.addr is required for provider grpc"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, errors.New("llm.max_tokens must not be negative"))
	}
	if c.Navigation.MovementSpeed <= 0 {
		errs = append(errs, errors.New("navigation.movement_speed must be positive"))
	}
	if c.Memory.RecentContextSize <= 0 {
		errs = append(errs, errors.New("memory.recent_context_size must be positive"))
	}
	switch c.Tracing.Exporter {
	case "none", "", "stdout":
	case "otlp":
		if c.Tracing.Endpoint == "" {
			errs = append(errs, errors.New("tracing.endpoint is required for exporter otlp"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tracing.exporter %q", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be within [0,1]"))
	}
	for name, v := range map[string]string{
		"llm.timeout":              c.LLM.Timeout,
		"navigation.step_interval": c.Navigation.StepInterval,
		"idle.timeout":             c.Idle.Timeout,
		"idle.tick":                c.Idle.Tick,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// UsesLLM reports whether a language model backend is configured.
func (c *Config) UsesLLM() bool {
	return c.LLM.Provider == "genai" || c.LLM.Provider == "grpc"
}

// Duration parses s, returning fallback when s is empty or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// #endregion validate
