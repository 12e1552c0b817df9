// Package config loads engine settings from a .arbor.yaml file. Every field
// has a default; a config file only needs the keys it changes. Durations are
// written as Go duration strings ("500ms", "2s").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jward/arbor/internal/aggregate"
	"github.com/jward/arbor/internal/pipeline"
	"github.com/jward/arbor/internal/search"
)

// FileName is what Discover looks for while walking up from a directory.
const FileName = ".arbor.yaml"

// Duration wraps time.Duration so yaml files can say "500ms" instead of a
// raw nanosecond count.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// WeightsConfig tunes the hybrid search score components.
type WeightsConfig struct {
	TextSimilarity    float64 `yaml:"text_similarity"`
	GraphRelationship float64 `yaml:"graph_relationship"`
	RecencyBoost      float64 `yaml:"recency_boost"`
	FrequencyBoost    float64 `yaml:"frequency_boost"`
	PatternBoost      float64 `yaml:"pattern_boost"`
}

// Config is the engine's tunable surface. Zero values mean "use the
// default"; MemoryThreshold is the one exception, where an explicit 0
// disables the memory gate.
type Config struct {
	// SnapshotPath persists the graph across runs. Empty disables
	// persistence.
	SnapshotPath string `yaml:"snapshot_path"`
	// AutoSave writes the snapshot on Close when SnapshotPath is set.
	AutoSave bool `yaml:"auto_save"`

	MaxFileSize     int64    `yaml:"max_file_size"`
	DebounceDelay   Duration `yaml:"debounce_delay"`
	BatchSize       int      `yaml:"batch_size"`
	MaxRetries      int      `yaml:"max_retries"`
	RetryBaseDelay  Duration `yaml:"retry_base_delay"`
	RetryMaxDelay   Duration `yaml:"retry_max_delay"`
	MemoryThreshold float64  `yaml:"memory_threshold"`
	PauseCooldown   Duration `yaml:"pause_cooldown"`
	ExcludeDirs     []string `yaml:"exclude_dirs"`

	// CacheTTL bounds how long search results stay cached.
	CacheTTL Duration `yaml:"cache_ttl"`
	// TokenBudget caps aggregated context size.
	TokenBudget int `yaml:"token_budget"`

	Search WeightsConfig `yaml:"search"`
}

// Default returns the standard configuration, sourced from the component
// defaults so the two never drift.
func Default() *Config {
	p := pipeline.DefaultOptions()
	w := search.DefaultWeights()
	return &Config{
		AutoSave:        true,
		MaxFileSize:     p.MaxFileSize,
		DebounceDelay:   Duration(p.DebounceDelay),
		BatchSize:       p.BatchSize,
		MaxRetries:      p.MaxRetries,
		RetryBaseDelay:  Duration(p.RetryBaseDelay),
		RetryMaxDelay:   Duration(p.RetryMaxDelay),
		MemoryThreshold: p.MemoryThreshold,
		PauseCooldown:   Duration(p.PauseCooldown),
		ExcludeDirs:     p.ExcludeDirs,
		CacheTTL:        Duration(search.DefaultTTL),
		TokenBudget:     aggregate.DefaultTokenBudget,
		Search: WeightsConfig{
			TextSimilarity:    w.TextSimilarity,
			GraphRelationship: w.GraphRelationship,
			RecencyBoost:      w.RecencyBoost,
			FrequencyBoost:    w.FrequencyBoost,
			PatternBoost:      w.PatternBoost,
		},
	}
}

// Load reads path and merges it over the defaults. Keys absent from the
// file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// Discover walks up from startDir looking for a .arbor.yaml. It returns the
// loaded config and the path it came from, or the defaults and an empty path
// when no file exists anywhere up the tree.
func Discover(startDir string) (*Config, string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", startDir, err)
	}
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			cfg, err := Load(path)
			return cfg, path, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), "", nil
		}
		dir = parent
	}
}

// normalize refills nonsense values with defaults. An explicit zero for a
// size, count, or delay cannot mean anything useful; MemoryThreshold 0 is
// kept as "gate off".
func (c *Config) normalize() {
	def := Default()
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = def.MaxFileSize
	}
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = def.DebounceDelay
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = def.RetryMaxDelay
	}
	if c.MemoryThreshold < 0 {
		c.MemoryThreshold = def.MemoryThreshold
	}
	if c.PauseCooldown <= 0 {
		c.PauseCooldown = def.PauseCooldown
	}
	if len(c.ExcludeDirs) == 0 {
		c.ExcludeDirs = def.ExcludeDirs
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = def.TokenBudget
	}
	if c.Search == (WeightsConfig{}) {
		c.Search = def.Search
	}
}

// PipelineOptions maps the config onto pipeline tuning.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		MaxFileSize:     c.MaxFileSize,
		DebounceDelay:   c.DebounceDelay.Std(),
		BatchSize:       c.BatchSize,
		MaxRetries:      c.MaxRetries,
		RetryBaseDelay:  c.RetryBaseDelay.Std(),
		RetryMaxDelay:   c.RetryMaxDelay.Std(),
		MemoryThreshold: c.MemoryThreshold,
		PauseCooldown:   c.PauseCooldown.Std(),
		ExcludeDirs:     c.ExcludeDirs,
		SnapshotPath:    c.SnapshotPath,
	}
}

// SearchWeights maps the config onto search score weights.
func (c *Config) SearchWeights() search.Weights {
	return search.Weights{
		TextSimilarity:    c.Search.TextSimilarity,
		GraphRelationship: c.Search.GraphRelationship,
		RecencyBoost:      c.Search.RecencyBoost,
		FrequencyBoost:    c.Search.FrequencyBoost,
		PatternBoost:      c.Search.PatternBoost,
	}
}
