// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Configuration loading. File values override defaults, CHUNKMUX_* environment
// variables override both.

package control

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/momentics/chunkmux/core/chunk"
)

// EnvPrefix prefixes every environment override, e.g. CHUNKMUX_LOG_LEVEL=debug.
const EnvPrefix = "CHUNKMUX"

// Config is the root chunkmux configuration.
type Config struct {
	PoolConfig `mapstructure:",squash"`

	// FlushInterval paces the flush/poll loop of Peer.Run.
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// PoolConfig sizes the shared chunk pool and the per-channel grants.
type PoolConfig struct {
	ChunkSize     int  `mapstructure:"chunk_size"`
	PoolChunks    int  `mapstructure:"pool_chunks"`
	TxPoolChunks  int  `mapstructure:"tx_pool_chunks"`
	MessageChunks int  `mapstructure:"message_chunks"`
	DataChunks    int  `mapstructure:"data_chunks"`
	OffHeap       bool `mapstructure:"off_heap"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// MetricsConfig controls Prometheus export.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// DefaultConfig returns a Config populated with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		PoolConfig: PoolConfig{
			ChunkSize:     chunk.DefaultChunkSize,
			PoolChunks:    1024,
			TxPoolChunks:  64,
			MessageChunks: 4,
			DataChunks:    16,
		},
		FlushInterval: 10 * time.Millisecond,
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{Namespace: "chunkmux"},
	}
}

// LoadConfig reads configuration from path when non-empty, otherwise from
// $CHUNKMUX_CONFIG or chunkmux.yaml in the working directory. A missing
// file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// every key needs a default for env-only configs to bind
	v.SetDefault("chunk_size", cfg.ChunkSize)
	v.SetDefault("pool_chunks", cfg.PoolChunks)
	v.SetDefault("tx_pool_chunks", cfg.TxPoolChunks)
	v.SetDefault("message_chunks", cfg.MessageChunks)
	v.SetDefault("data_chunks", cfg.DataChunks)
	v.SetDefault("off_heap", cfg.OffHeap)
	v.SetDefault("flush_interval", cfg.FlushInterval)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chunkmux")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent sizes and normalises optional log fields.
func (c *Config) Validate() error {
	if err := c.PoolConfig.Validate(); err != nil {
		return err
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("invalid flush_interval: %s", c.FlushInterval)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "chunkmux"
	}
	return nil
}

// Validate checks chunk geometry against the arena limits.
func (p PoolConfig) Validate() error {
	switch {
	case p.ChunkSize <= 0 || p.ChunkSize > chunk.MaxChunkSize:
		return fmt.Errorf("invalid chunk_size: %d (1..%d)", p.ChunkSize, chunk.MaxChunkSize)
	case p.PoolChunks <= 0:
		return fmt.Errorf("invalid pool_chunks: %d", p.PoolChunks)
	case p.TxPoolChunks <= 0:
		return fmt.Errorf("invalid tx_pool_chunks: %d", p.TxPoolChunks)
	case p.MessageChunks <= 0 || p.DataChunks <= 0:
		return fmt.Errorf("invalid channel grant: message_chunks=%d data_chunks=%d", p.MessageChunks, p.DataChunks)
	case p.PoolChunks+p.TxPoolChunks > chunk.MaxChunks:
		return fmt.Errorf("pool_chunks+tx_pool_chunks exceeds %d", chunk.MaxChunks)
	case p.TxPoolChunks < max(p.MessageChunks, p.DataChunks):
		return fmt.Errorf("tx_pool_chunks %d cannot hold a full channel buffer", p.TxPoolChunks)
	case p.MessageChunks+p.DataChunks > p.PoolChunks:
		return fmt.Errorf("channel grant %d exceeds pool_chunks %d", p.MessageChunks+p.DataChunks, p.PoolChunks)
	}
	return nil
}
