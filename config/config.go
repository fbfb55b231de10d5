// Package config loads sink configuration from YAML.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// TableConfig locates the target table.
type TableConfig struct {
	Dir string `yaml:"dir"`
}

// WriteConfig holds the write-path configurations.
type WriteConfig struct {
	Parallelism         int    `yaml:"parallelism"`
	DistributionMode    string `yaml:"distribution_mode"` // "none", "hash"; empty inherits the table property
	Format              string `yaml:"format"`            // "plain", "snappy", "zstd", "lz4"; empty inherits the table property
	TargetFileSizeBytes int64  `yaml:"target_file_size_bytes"`
	BlockSizeBytes      int    `yaml:"block_size_bytes"`
}

// CompactionConfig holds compaction-specific configurations.
type CompactionConfig struct {
	Auto        bool  `yaml:"auto"`
	Concurrency int64 `yaml:"concurrency"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // "stdout", "stderr" or "none"
}

// Config is the top-level configuration struct.
type Config struct {
	Table      TableConfig      `yaml:"table"`
	Write      WriteConfig      `yaml:"write"`
	Compaction CompactionConfig `yaml:"compaction"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads configuration from an io.Reader. A nil or empty reader yields
// the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := &Config{
		Table: TableConfig{
			Dir: "./table",
		},
		Write: WriteConfig{
			Parallelism: 1,
		},
		Compaction: CompactionConfig{
			Auto:        false,
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}

	if r == nil {
		return cfg, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path. A missing file
// yields the defaults.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	file, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Validate rejects settings the sink cannot start with. Mode and format
// values are validated later against the table, since empty means inherit.
func (c *Config) Validate() error {
	if c.Table.Dir == "" {
		return fmt.Errorf("table.dir must not be empty")
	}
	if c.Write.Parallelism < 1 {
		return fmt.Errorf("write.parallelism must be at least 1, got %d", c.Write.Parallelism)
	}
	if c.Write.TargetFileSizeBytes < 0 {
		return fmt.Errorf("write.target_file_size_bytes must not be negative")
	}
	if c.Compaction.Concurrency < 0 {
		return fmt.Errorf("compaction.concurrency must not be negative")
	}
	return nil
}

// BuildLogger constructs a slog.Logger per the logging section.
func (c *Config) BuildLogger() *slog.Logger {
	var level slog.Level
	switch c.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer
	switch c.Logging.Output {
	case "none":
		out = io.Discard
	case "stderr":
		out = os.Stderr
	default:
		out = os.Stdout
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
