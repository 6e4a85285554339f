// Package config loads filesearch settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Embedder providers.
const (
	ProviderHash   = "hash"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FILESEARCH_"

// AllExtensions in Extensions admits every file regardless of extension.
const AllExtensions = "*"

// EmbedderConfig selects and configures the text embedder.
type EmbedderConfig struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model,omitempty"`
	BaseURL       string  `yaml:"base_url,omitempty"`
	APIKeyEnv     string  `yaml:"api_key_env,omitempty"`
	Dimension     int     `yaml:"dimension,omitempty"` // hash provider only
	MaxChars      int     `yaml:"max_chars,omitempty"`
	TimeoutSecs   int     `yaml:"timeout_secs,omitempty"`
	RatePerSecond float64 `yaml:"rate_per_second,omitempty"`
	Burst         int     `yaml:"burst,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Config is the root configuration.
type Config struct {
	Database   string         `yaml:"database"`
	TopK       int            `yaml:"top_k"`
	Dimension  int            `yaml:"dimension"` // 0 = learned from the first embedding
	Workers    int            `yaml:"workers"`
	Extensions []string       `yaml:"extensions,omitempty"`
	Metric     string         `yaml:"metric"`
	Embedder   EmbedderConfig `yaml:"embedder"`
	Server     ServerConfig   `yaml:"server"`
	Log        LogConfig      `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: "cortex.db",
		TopK:     5,
		Workers:  1,
		Metric:   "cosine",
		Embedder: EmbedderConfig{Provider: ProviderHash, Dimension: 256},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the config at path. A missing file yields defaults. Environment
// overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := cfg.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write encodes cfg as YAML.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("database must not be empty"))
	}
	if c.TopK < 1 {
		errs = append(errs, fmt.Errorf("top_k must be >= 1, got %d", c.TopK))
	}
	if c.Dimension < 0 {
		errs = append(errs, fmt.Errorf("dimension must be >= 0, got %d", c.Dimension))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	switch c.Metric {
	case "cosine", "euclidean":
	default:
		errs = append(errs, fmt.Errorf("unknown metric %q", c.Metric))
	}
	switch c.Embedder.Provider {
	case ProviderHash:
		if c.Embedder.Dimension < 1 {
			errs = append(errs, errors.New("embedder.dimension must be >= 1 for the hash provider"))
		}
		if c.Dimension > 0 && c.Embedder.Dimension != c.Dimension {
			errs = append(errs, fmt.Errorf("embedder.dimension %d conflicts with dimension %d", c.Embedder.Dimension, c.Dimension))
		}
	case ProviderOllama:
		if c.Embedder.Model == "" {
			errs = append(errs, errors.New("embedder.model is required for ollama"))
		}
	case ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown embedder provider %q", c.Embedder.Provider))
	}
	if c.Embedder.RatePerSecond < 0 {
		errs = append(errs, errors.New("embedder.rate_per_second must be >= 0"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// AllFiles reports whether Extensions admits every file.
func (c *Config) AllFiles() bool {
	for _, e := range c.Extensions {
		if e == AllExtensions {
			return true
		}
	}
	return false
}

// APIKey resolves the embedder API key from the configured environment
// variable.
func (c *Config) APIKey() string {
	if c.Embedder.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Embedder.APIKeyEnv)
}

// SlogLevel maps Level to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", l.Level)
	}
	return level, nil
}

func (c *Config) applyDefaults() {
	c.Embedder.Provider = strings.ToLower(strings.TrimSpace(c.Embedder.Provider))
	c.Metric = strings.ToLower(strings.TrimSpace(c.Metric))
	switch c.Embedder.Provider {
	case ProviderOllama:
		if c.Embedder.BaseURL == "" {
			c.Embedder.BaseURL = "http://localhost:11434"
		}
		if c.Embedder.Model == "" {
			c.Embedder.Model = "bge-m3"
		}
		if c.Embedder.TimeoutSecs == 0 {
			c.Embedder.TimeoutSecs = 60
		}
	case ProviderOpenAI:
		if c.Embedder.APIKeyEnv == "" {
			c.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
		if c.Embedder.Model == "" {
			c.Embedder.Model = "text-embedding-3-small"
		}
	}
	if c.Embedder.RatePerSecond > 0 && c.Embedder.Burst == 0 {
		c.Embedder.Burst = 1
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("DATABASE", &c.Database)
	str("METRIC", &c.Metric)
	str("EMBEDDER", &c.Embedder.Provider)
	str("EMBED_MODEL", &c.Embedder.Model)
	str("EMBED_URL", &c.Embedder.BaseURL)
	str("ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup(EnvPrefix + "EXTENSIONS"); ok && v != "" {
		c.Extensions = strings.Split(v, ",")
	}
	for key, dst := range map[string]*int{
		"TOP_K":     &c.TopK,
		"DIMENSION": &c.Dimension,
		"WORKERS":   &c.Workers,
		"EMBED_DIM": &c.Embedder.Dimension,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}
