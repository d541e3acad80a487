package config

import (
	"fmt"
	"time"

	"github.com/justapithecus/sluice/types"
)

// Config represents a sluice.yaml configuration file.
// All values are optional and act as defaults for sluice run flags.
// CLI flags always override config values.
type Config struct {
	Source  string        `yaml:"source"`
	Keep    []string      `yaml:"keep"`
	Batch   BatchConfig   `yaml:"batch"`
	Storage StorageConfig `yaml:"storage"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// BatchConfig holds sink batching defaults from the config file.
type BatchConfig struct {
	FlushCount    int      `yaml:"flush_count"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// StorageConfig holds storage defaults from the config file.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// KeepKinds converts the keep list into record kinds, rejecting unknown
// kind names. An empty list means keep everything.
func (c *Config) KeepKinds() ([]types.RecordKind, error) {
	if len(c.Keep) == 0 {
		return nil, nil
	}

	kinds := make([]types.RecordKind, 0, len(c.Keep))
	for _, name := range c.Keep {
		kind := types.RecordKind(name)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown record kind %q (must be item, checkpoint, or log)", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
