package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the bulk pipeline settings.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Batch      BatchConfig      `yaml:"batch"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
}

// StoreConfig locates the prompt store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// BatchConfig bounds one invocation.
type BatchConfig struct {
	// InterRecordDelayMS spaces enrichment calls. Keep it above the
	// enrichment base delay so the steady-state rate holds.
	InterRecordDelayMS int `yaml:"inter_record_delay_ms"`
}

// EnrichmentConfig configures the image-generation client.
type EnrichmentConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	BaseDelayMS     int    `yaml:"base_delay_ms"`
	MaxRetries      int    `yaml:"max_retries"`
	PromptPrefixLen int    `yaml:"prompt_prefix_len"`
}

// InterRecordDelay returns the pacing interval as a duration.
func (b BatchConfig) InterRecordDelay() time.Duration {
	return time.Duration(b.InterRecordDelayMS) * time.Millisecond
}

// BaseDelay returns the retry backoff unit as a duration.
func (e EnrichmentConfig) BaseDelay() time.Duration {
	return time.Duration(e.BaseDelayMS) * time.Millisecond
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Store: StoreConfig{Path: "promptdeck.db"},
		Batch: BatchConfig{InterRecordDelayMS: 5000},
		Enrichment: EnrichmentConfig{
			BaseDelayMS:     3000,
			MaxRetries:      3,
			PromptPrefixLen: 400,
		},
	}
}

// Load reads a YAML config file, layering it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: read")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: parse")
	}
	return cfg, nil
}
