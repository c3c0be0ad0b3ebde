// Package config loads pipeline configuration from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config controls pipeline behavior. Load overlays a YAML file on top
// of Default, so a file only needs the keys it changes.
type Config struct {
	// OutputDir receives generated syntax files, recoded data and
	// exported results.
	OutputDir string `yaml:"output_dir"`

	// MaxIterations bounds regeneration attempts per artifact loop.
	MaxIterations int `yaml:"max_iterations"`

	// CardinalityThreshold excludes categorical variables with more
	// distinct values than this from analysis.
	CardinalityThreshold int `yaml:"cardinality_threshold"`

	// FilterBinary excludes two-valued flag variables from recoding
	// candidates.
	FilterBinary bool `yaml:"filter_binary"`

	// FilterOtherText excludes the free-text companions of "Other,
	// please specify" options.
	FilterOtherText bool `yaml:"filter_other_text"`

	// AutoApprove* skip the review gate for one artifact and approve
	// it as soon as validation passes.
	AutoApproveRecoding   bool `yaml:"auto_approve_recoding"`
	AutoApproveIndicators bool `yaml:"auto_approve_indicators"`
	AutoApproveTableSpecs bool `yaml:"auto_approve_table_specs"`

	// PSPPPath is the pspp executable invoked for recoding and
	// tabulation.
	PSPPPath string `yaml:"pspp_path"`

	// ModelTimeoutSeconds bounds each generative-model call. Zero
	// means no limit; an expired call surfaces as a transient model
	// failure and goes through the normal retry policy.
	ModelTimeoutSeconds int `yaml:"model_timeout_seconds"`

	// StatsTimeoutSeconds bounds each stats-tool invocation. Zero
	// means no limit.
	StatsTimeoutSeconds int `yaml:"stats_timeout_seconds"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		OutputDir:            "output",
		MaxIterations:        3,
		CardinalityThreshold: 30,
		FilterBinary:         true,
		FilterOtherText:      true,
		PSPPPath:             "pspp",
	}
}

// Load reads a YAML file and overlays it on the defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks for values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.CardinalityThreshold < 2 {
		return fmt.Errorf("cardinality_threshold must be at least 2, got %d", c.CardinalityThreshold)
	}
	if c.PSPPPath == "" {
		return fmt.Errorf("pspp_path must not be empty")
	}
	if c.ModelTimeoutSeconds < 0 {
		return fmt.Errorf("model_timeout_seconds must not be negative, got %d", c.ModelTimeoutSeconds)
	}
	if c.StatsTimeoutSeconds < 0 {
		return fmt.Errorf("stats_timeout_seconds must not be negative, got %d", c.StatsTimeoutSeconds)
	}
	return nil
}

// AutoApprove reports whether the named artifact's review gate is
// skipped.
func (c Config) AutoApprove(artifact string) bool {
	switch artifact {
	case "recoding":
		return c.AutoApproveRecoding
	case "indicators":
		return c.AutoApproveIndicators
	case "table_specs":
		return c.AutoApproveTableSpecs
	}
	return false
}
