// Package config loads the moments server and CLI configuration from YAML.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/pipeline"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvEncryptionKey overrides storage.encryption.key when set.
const EnvEncryptionKey = "MOMENTS_ENCRYPTION_KEY"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the root configuration document.
type Config struct {
	Storage  StorageConfig   `yaml:"storage"`
	Autosave AutosaveConfig  `yaml:"autosave"`
	Recovery RecoveryConfig  `yaml:"recovery"`
	Engine   EngineConfig    `yaml:"engine"`
	Pipeline pipeline.Config `yaml:"pipeline"`
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`

	// Theme is decoded into domain.Theme; unknown keys are kept as tokens.
	Theme map[string]any `yaml:"theme"`
}

type StorageConfig struct {
	Backend     string            `yaml:"backend"`
	Path        string            `yaml:"path"`
	Redis       RedisConfig       `yaml:"redis"`
	Compression CompressionConfig `yaml:"compression"`
	Encryption  EncryptionConfig  `yaml:"encryption"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`

	// Lock serializes draft writes across instances sharing the database.
	Lock bool `yaml:"lock"`
}

type CompressionConfig struct {
	Enabled bool `yaml:"enabled"`
	// Threshold is the value size in bytes from which values are compressed.
	Threshold int `yaml:"threshold"`
}

type EncryptionConfig struct {
	// Key is a 32 byte AES key, hex or base64 encoded.
	Key          string   `yaml:"key"`
	FallbackKeys []string `yaml:"fallback_keys"`
}

type AutosaveConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type RecoveryConfig struct {
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
}

type EngineConfig struct {
	License string `yaml:"license"`
	BaseURL string `yaml:"base_url"`
	// Video reports whether the engine build can edit video.
	Video bool `yaml:"video"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	Metrics     bool   `yaml:"metrics"`
	MetricsPath string `yaml:"metrics_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend:     BackendMemory,
			Redis:       RedisConfig{Addr: "localhost:6379", Prefix: "moments:"},
			Compression: CompressionConfig{Threshold: 4096},
		},
		Autosave: AutosaveConfig{Debounce: domain.DefaultAutosaveDebounce},
		Recovery: RecoveryConfig{StalenessThreshold: domain.DefaultStalenessThreshold},
		Engine:   EngineConfig{Video: true},
		Pipeline: pipeline.DefaultConfig(),
		Server:   ServerConfig{Addr: ":8080", Metrics: true, MetricsPath: "/metrics"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if key := os.Getenv(EnvEncryptionKey); key != "" {
		cfg.Storage.Encryption.Key = key
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendFile, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.Path == "" {
		return errors.New("storage.path is required for the sqlite backend")
	}
	if c.Autosave.Debounce <= 0 {
		return errors.New("autosave.debounce must be positive")
	}
	if c.Recovery.StalenessThreshold <= 0 {
		return errors.New("recovery.staleness_threshold must be positive")
	}
	if _, _, err := c.Storage.Encryption.Keys(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Keys decodes the active and fallback keys. A nil active key means encryption is off.
func (e EncryptionConfig) Keys() ([]byte, [][]byte, error) {
	if e.Key == "" {
		if len(e.FallbackKeys) > 0 {
			return nil, nil, errors.New("storage.encryption.fallback_keys needs an active key")
		}
		return nil, nil, nil
	}
	active, err := decodeKey(e.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("storage.encryption.key: %w", err)
	}
	fallback := make([][]byte, 0, len(e.FallbackKeys))
	for i, k := range e.FallbackKeys {
		b, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("storage.encryption.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, b)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, errors.New("must be 32 bytes, hex or base64 encoded")
}

// ThemeConfig decodes the free form theme section.
// Keys that are not Theme fields end up in Theme.Tokens.
func (c Config) ThemeConfig() (domain.Theme, error) {
	var theme domain.Theme
	if len(c.Theme) == 0 {
		return theme, nil
	}
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &theme,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return theme, err
	}
	if err := dec.Decode(c.Theme); err != nil {
		return theme, fmt.Errorf("invalid theme: %w", err)
	}
	for _, k := range md.Unused {
		if theme.Tokens == nil {
			theme.Tokens = make(map[string]string)
		}
		theme.Tokens[k] = fmt.Sprint(c.Theme[k])
	}
	return theme, nil
}
