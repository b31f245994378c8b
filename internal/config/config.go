// Package config loads, validates and watches the engramd configuration.
// Files are JSON5 or YAML depending on extension, parsed on top of the
// defaults so partial files work. The backend sections carry a stable
// fingerprint so the serving layer can tell when a reload actually
// requires a new memory backend.
package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for engramd.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	// DataDir holds the memory store and, for the embedded vector index,
	// its persistence directory. Empty means ~/.engramd.
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`

	Embedder EmbedderConfig `json:"embedder,omitempty" yaml:"embedder,omitempty"`
	Vector   VectorConfig   `json:"vector,omitempty" yaml:"vector,omitempty"`
	Bridge   BridgeConfig   `json:"bridge,omitempty" yaml:"bridge,omitempty"`
	Tracing  TracingConfig  `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// EmbedderConfig selects and parameterizes the embedding provider.
type EmbedderConfig struct {
	// Provider is "openai" or "hash".
	Provider  string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Dimension int    `json:"dimension,omitempty" yaml:"dimension,omitempty"`
	CacheSize int    `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	// Raw optionally carries this whole section as a JSON block, with or
	// without markdown fences, as pasted from a provider console. Fields
	// set there win over the structured ones.
	Raw string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// VectorConfig selects and parameterizes the vector index.
type VectorConfig struct {
	// Provider is "chromem" or "pgvector".
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Path overrides where the embedded index persists. Empty keeps it
	// under DataDir; "memory" holds it purely in RAM.
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN        string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
	Raw        string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// BridgeConfig tunes the background loop lifecycle.
type BridgeConfig struct {
	// ShutdownTimeoutSeconds bounds the drain on exit. Zero keeps the
	// built-in default.
	ShutdownTimeoutSeconds float64 `json:"shutdown_timeout_seconds,omitempty" yaml:"shutdown_timeout_seconds,omitempty"`
}

// TracingConfig enables OTLP span export.
type TracingConfig struct {
	Enabled     bool              `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Insecure    bool              `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Embedder: EmbedderConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Vector: VectorConfig{
			Provider:   "chromem",
			Collection: "memories",
		},
		Tracing: TracingConfig{
			Protocol:    "grpc",
			ServiceName: "engramd",
		},
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	if homeDir == "" {
		return "engramd.json"
	}
	return filepath.Join(homeDir, ".engramd", "config.json")
}

// Load reads and parses path on top of the defaults, then applies
// environment overrides and normalization. It does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnvOverrides()
	cfg.Normalize()
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to the defaults when path
// is empty or the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		cfg.Normalize()
		return cfg, nil
	}
	return Load(path)
}

// Save writes cfg to path as indented JSON, creating parent directories.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnvOverrides folds process environment into the config. ENGRAMD_*
// variables always win; provider credentials only fill gaps so an explicit
// config beats ambient shell exports.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ENGRAMD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ENGRAMD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("ENGRAMD_PG_DSN"); v != "" {
		c.Vector.DSN = v
	}
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Embedder.BaseURL == "" {
		c.Embedder.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
}

// Validate reports the first problem that would keep the daemon from
// serving with this configuration.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch c.Embedder.Provider {
	case "openai":
		if c.Embedder.APIKey == "" {
			return fmt.Errorf("embedder provider %q requires an api_key (or OPENAI_API_KEY)", c.Embedder.Provider)
		}
	case "hash":
	default:
		return fmt.Errorf("unknown embedder provider %q", c.Embedder.Provider)
	}
	if c.Embedder.Dimension < 0 {
		return fmt.Errorf("embedder dimension must not be negative")
	}
	switch c.Vector.Provider {
	case "chromem":
	case "pgvector":
		if c.Vector.DSN == "" {
			return fmt.Errorf("vector provider %q requires a dsn (or ENGRAMD_PG_DSN)", c.Vector.Provider)
		}
		if c.Embedder.Dimension <= 0 {
			return fmt.Errorf("vector provider %q requires an explicit embedder dimension", c.Vector.Provider)
		}
	default:
		return fmt.Errorf("unknown vector provider %q", c.Vector.Provider)
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Protocol {
		case "grpc", "http":
		default:
			return fmt.Errorf("unknown tracing protocol %q", c.Tracing.Protocol)
		}
	}
	return nil
}

// ResolvedDataDir returns the effective data directory.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	homeDir, _ := os.UserHomeDir()
	if homeDir == "" {
		return "."
	}
	return filepath.Join(homeDir, ".engramd")
}

// ShutdownTimeout returns the configured drain bound, or def when unset.
func (c *Config) ShutdownTimeout(def time.Duration) time.Duration {
	if c.Bridge.ShutdownTimeoutSeconds <= 0 {
		return def
	}
	return time.Duration(c.Bridge.ShutdownTimeoutSeconds * float64(time.Second))
}

// fingerprinted is the slice of the config that identifies a backend. Log
// level, tracing and bridge tuning deliberately stay out so changing them
// never rebuilds the memory backend.
type fingerprinted struct {
	DataDir  string         `json:"data_dir"`
	Embedder EmbedderConfig `json:"embedder"`
	Vector   VectorConfig   `json:"vector"`
}

// Fingerprint returns a stable digest of the backend-identifying sections,
// or "" when the config cannot be serialized. Key order is canonical, so
// equal configurations always produce equal fingerprints.
func (c *Config) Fingerprint() string {
	raw, err := json.Marshal(fingerprinted{
		DataDir:  c.ResolvedDataDir(),
		Embedder: c.Embedder,
		Vector:   c.Vector,
	})
	if err != nil {
		return ""
	}
	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return ""
	}
	canonical, err := json.Marshal(loose)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%x", sum)
}

var dsnPassword = regexp.MustCompile(`(://[^:/@]+:)([^@]+)@`)

// MaskedCopy returns a deep copy safe to print or send over the wire:
// credentials are reduced to a recognizable stub.
func (c *Config) MaskedCopy() *Config {
	raw, err := json.Marshal(c)
	if err != nil {
		return Default()
	}
	out := &Config{}
	if err := json.Unmarshal(raw, out); err != nil {
		return Default()
	}
	out.Embedder.APIKey = maskSecret(out.Embedder.APIKey)
	out.Embedder.Raw = maskSecret(out.Embedder.Raw)
	out.Vector.DSN = dsnPassword.ReplaceAllString(out.Vector.DSN, "${1}***@")
	return out
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:3] + "***" + s[len(s)-4:]
}
