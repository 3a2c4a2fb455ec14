package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all retain configuration. Loaded once at process start and
// immutable afterward; a restart is required to pick up changes.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Decay       DecayConfig       `yaml:"decay"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Classify    ClassifyConfig    `yaml:"classify"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// Duration wraps time.Duration so YAML values like "5s" or "24h" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DecayConfig controls the scoring formula. RelevanceDecay,
// RelevanceImportance and RelevanceRecency must sum to 1.
type DecayConfig struct {
	BaseHalfLifeDays    float64 `yaml:"base_half_life_days"`
	StabilityWeight     float64 `yaml:"stability_weight"`
	MaxStability        float64 `yaml:"max_stability"`
	ImportanceWeight    float64 `yaml:"importance_weight"`
	RelevanceDecay      float64 `yaml:"relevance_decay_weight"`
	RelevanceImportance float64 `yaml:"relevance_importance_weight"`
	RelevanceRecency    float64 `yaml:"relevance_recency_weight"`
}

type LifecycleConfig struct {
	ActiveMinScore        float64 `yaml:"active_min_score"`
	StableMinScore        float64 `yaml:"stable_min_score"`
	DormantMinScore       float64 `yaml:"dormant_min_score"`
	ArchivePurgeAfterDays float64 `yaml:"archive_purge_after_days"`
}

type ClassifyConfig struct {
	OracleURL         string   `yaml:"oracle_url"`
	Model             string   `yaml:"model"`
	Timeout           Duration `yaml:"timeout"`
	DefaultImportance float64  `yaml:"default_importance"`
	MaxConcurrent     int      `yaml:"max_concurrent"`
}

type MaintenanceConfig struct {
	Interval     Duration `yaml:"interval"`
	PageSize     int      `yaml:"page_size"`
	Workers      int      `yaml:"workers"`
	RunBudget    Duration `yaml:"run_budget"`
	WriteRetries int      `yaml:"write_retries"`
}

// Default returns a Config with the embedded defaults. These are also the
// values used when the config file is missing or malformed.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Decay: DecayConfig{
			BaseHalfLifeDays:    30,
			StabilityWeight:     0.3,
			MaxStability:        10,
			ImportanceWeight:    0.8,
			RelevanceDecay:      0.5,
			RelevanceImportance: 0.3,
			RelevanceRecency:    0.2,
		},
		Lifecycle: LifecycleConfig{
			ActiveMinScore:        0.7,
			StableMinScore:        0.4,
			DormantMinScore:       0.15,
			ArchivePurgeAfterDays: 90,
		},
		Classify: ClassifyConfig{
			Model:             "importance-v1",
			Timeout:           Duration(5 * time.Second),
			DefaultImportance: 0.5,
			MaxConcurrent:     8,
		},
		Maintenance: MaintenanceConfig{
			Interval:     Duration(24 * time.Hour),
			PageSize:     200,
			Workers:      4,
			RunBudget:    Duration(10 * time.Minute),
			WriteRetries: 3,
		},
	}
}

// Load reads the YAML config at path. A missing or malformed file is not
// fatal: the embedded defaults are returned and a warning is logged.
func Load(path string) Config {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("config: read %s: %v (using defaults)", path, err)
		}
		return cfg
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Printf("config: parse %s: %v (using defaults)", path, err)
		return Default()
	}

	if err := cfg.validate(); err != nil {
		log.Printf("config: %s: %v (using defaults)", path, err)
		return Default()
	}
	return cfg
}

// validate rejects values that would break the scoring math.
func (c *Config) validate() error {
	if c.Decay.BaseHalfLifeDays <= 0 {
		return fmt.Errorf("base_half_life_days must be > 0, got %v", c.Decay.BaseHalfLifeDays)
	}
	if c.Decay.MaxStability < 0 {
		return fmt.Errorf("max_stability must be >= 0, got %v", c.Decay.MaxStability)
	}
	sum := c.Decay.RelevanceDecay + c.Decay.RelevanceImportance + c.Decay.RelevanceRecency
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("relevance weights must sum to 1, got %v", sum)
	}
	if c.Lifecycle.ActiveMinScore < c.Lifecycle.StableMinScore ||
		c.Lifecycle.StableMinScore < c.Lifecycle.DormantMinScore {
		return fmt.Errorf("lifecycle thresholds must be descending")
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
