package kvvs

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/viant/kvvs/digest"
	"github.com/viant/kvvs/index"
	"github.com/viant/kvvs/store"
	"gopkg.in/yaml.v3"
)

// Config defines store settings loaded from YAML.
type Config struct {
	Dir       string  `yaml:"dir"`
	Optimize  string  `yaml:"optimize"`
	CacheMax  int     `yaml:"cacheMax"`
	CacheStep float64 `yaml:"cacheStep"`
	Hash      *bool   `yaml:"hash"`
	Digest    string  `yaml:"digest"`
	LogLevel  string  `yaml:"logLevel"`
}

// LoadConfig reads a YAML config file. A leading ~ is expanded in both the
// file path and dir.
func LoadConfig(path string) (*Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config %v: %w", path, err)
	}
	if cfg.Dir, err = ExpandPath(cfg.Dir); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// Validate checks enumerated and numeric fields.
func (c *Config) Validate() error {
	if _, err := index.ParseMode(c.Optimize); err != nil {
		return err
	}
	if c.CacheMax < 0 {
		return fmt.Errorf("config: cacheMax must not be negative: %d", c.CacheMax)
	}
	if c.CacheStep < 0 {
		return fmt.Errorf("config: cacheStep must not be negative: %v", c.CacheStep)
	}
	if c.Digest != "" {
		if _, err := digest.ByName(c.Digest); err != nil {
			return err
		}
	}
	return nil
}

// Options converts the config into store options; zero values keep defaults.
func (c *Config) Options(logger zerolog.Logger) ([]store.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	mode, _ := index.ParseMode(c.Optimize)
	opts := []store.Option{store.WithOptimize(mode), store.WithLogger(logger)}
	if c.CacheMax > 0 {
		opts = append(opts, store.WithCacheMax(c.CacheMax))
	}
	if c.CacheStep > 0 {
		opts = append(opts, store.WithCacheStep(c.CacheStep))
	}
	if c.Hash != nil {
		opts = append(opts, store.WithHash(*c.Hash))
	}
	if name := strings.TrimSpace(c.Digest); name != "" {
		fn, _ := digest.ByName(name)
		opts = append(opts, store.WithDigest(fn))
	}
	return opts, nil
}
