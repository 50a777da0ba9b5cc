package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"smalidiff/internal/diff"
	"smalidiff/internal/project"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "smalidiff.yaml"

type Config struct {
	Filter struct {
		Package           string   `yaml:"package"`
		IncludeUnpackaged bool     `yaml:"include_unpackaged"`
		ExcludeRules      []string `yaml:"exclude_rules"` // rule files, one substring per line
		IncludeRules      []string `yaml:"include_rules"`
	} `yaml:"filter"`
	Diff struct {
		NormalizeResourceRefs bool `yaml:"normalize_resource_refs"`
		CollapseAnonymousRefs bool `yaml:"collapse_anonymous_refs"`
		ProcessInnerClasses   bool `yaml:"process_inner_classes"`
		Workers               int  `yaml:"workers"` // 0 = GOMAXPROCS
	} `yaml:"diff"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	opts := diff.DefaultOptions()
	cfg.Diff.NormalizeResourceRefs = opts.NormalizeResourceRefs
	cfg.Diff.CollapseAnonymousRefs = opts.CollapseAnonymousRefs
	cfg.Diff.ProcessInnerClasses = opts.ProcessInnerClasses
	cfg.Storage.DBPath = "smalidiff.db"
	cfg.Log.Level = "info"
	return &cfg
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config over the defaults
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// 3. Override with Environment Variables if present
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigOrDefault behaves like LoadConfig but falls back to the defaults
// when the file does not exist.
func LoadConfigOrDefault(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		if err := applyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SMALIDIFF_PACKAGE"); v != "" {
		cfg.Filter.Package = v
	}
	if v := os.Getenv("SMALIDIFF_INCLUDE_UNPACKAGED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SMALIDIFF_INCLUDE_UNPACKAGED: %w", err)
		}
		cfg.Filter.IncludeUnpackaged = b
	}
	if v := os.Getenv("SMALIDIFF_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SMALIDIFF_WORKERS: %w", err)
		}
		cfg.Diff.Workers = n
	}
	if v := os.Getenv("SMALIDIFF_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("SMALIDIFF_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// ProjectFilter builds the loader filter, reading the configured rule files.
func (c *Config) ProjectFilter() (project.Filter, error) {
	f := project.Filter{
		Package:           c.Filter.Package,
		IncludeUnpackaged: c.Filter.IncludeUnpackaged,
	}
	if len(c.Filter.ExcludeRules) > 0 {
		rules, err := project.LoadRules(c.Filter.ExcludeRules...)
		if err != nil {
			return project.Filter{}, err
		}
		f.Exclude = rules
	}
	if len(c.Filter.IncludeRules) > 0 {
		rules, err := project.LoadRules(c.Filter.IncludeRules...)
		if err != nil {
			return project.Filter{}, err
		}
		f.Include = rules
	}
	return f, nil
}

// DiffOptions builds the differencer options.
func (c *Config) DiffOptions() diff.Options {
	opts := diff.DefaultOptions()
	opts.NormalizeResourceRefs = c.Diff.NormalizeResourceRefs
	opts.CollapseAnonymousRefs = c.Diff.CollapseAnonymousRefs
	opts.ProcessInnerClasses = c.Diff.ProcessInnerClasses
	opts.Workers = c.Diff.Workers
	return opts
}
