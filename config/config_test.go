package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.OutputDir != "output" {
		t.Errorf("OutputDir = %q, want output", cfg.OutputDir)
	}
	if cfg.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want 3", cfg.MaxIterations)
	}
	if cfg.CardinalityThreshold != 30 {
		t.Errorf("CardinalityThreshold = %d, want 30", cfg.CardinalityThreshold)
	}
	if !cfg.FilterBinary || !cfg.FilterOtherText {
		t.Error("filters default off, want on")
	}
	if cfg.AutoApproveRecoding || cfg.AutoApproveIndicators || cfg.AutoApproveTableSpecs {
		t.Error("auto-approve defaults on, want off")
	}
	if cfg.ModelTimeoutSeconds != 0 || cfg.StatsTimeoutSeconds != 0 {
		t.Errorf("timeouts default to %d/%d, want no limit",
			cfg.ModelTimeoutSeconds, cfg.StatsTimeoutSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "max_iterations: 5\nfilter_binary: false\nauto_approve_recoding: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.MaxIterations)
	}
	if cfg.FilterBinary {
		t.Error("FilterBinary = true, want overridden to false")
	}
	if !cfg.AutoApproveRecoding {
		t.Error("AutoApproveRecoding = false, want true")
	}
	// Untouched keys keep their defaults.
	if cfg.OutputDir != "output" || cfg.CardinalityThreshold != 30 {
		t.Errorf("defaults lost: OutputDir=%q CardinalityThreshold=%d",
			cfg.OutputDir, cfg.CardinalityThreshold)
	}
	if !cfg.FilterOtherText {
		t.Error("FilterOtherText default lost")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded, want error")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_iterations: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() accepted max_iterations 0, want error")
	}
	if !strings.Contains(err.Error(), "max_iterations") {
		t.Errorf("error %q does not name the bad key", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty output dir", func(c *Config) { c.OutputDir = "" }},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"cardinality below two", func(c *Config) { c.CardinalityThreshold = 1 }},
		{"empty pspp path", func(c *Config) { c.PSPPPath = "" }},
		{"negative model timeout", func(c *Config) { c.ModelTimeoutSeconds = -1 }},
		{"negative stats timeout", func(c *Config) { c.StatsTimeoutSeconds = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestAutoApprove(t *testing.T) {
	cfg := Default()
	cfg.AutoApproveIndicators = true
	if cfg.AutoApprove("recoding") {
		t.Error("recoding auto-approved, want gated")
	}
	if !cfg.AutoApprove("indicators") {
		t.Error("indicators gated, want auto-approved")
	}
	if cfg.AutoApprove("unknown") {
		t.Error("unknown artifact auto-approved, want gated")
	}
}
