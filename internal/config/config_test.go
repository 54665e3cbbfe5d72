package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if cfg.KataGo.BinaryPath != "katago" {
		t.Errorf("Expected default binary path 'katago', got %s", cfg.KataGo.BinaryPath)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.Logging.Level)
	}
	if !cfg.RateLimit.Enabled {
		t.Error("Expected rate limiting to be enabled by default")
	}
	if cfg.Retro.MistakeThreshold != 0.05 || cfg.Retro.BlunderThreshold != 0.15 {
		t.Errorf("Unexpected default thresholds %v/%v", cfg.Retro.MistakeThreshold, cfg.Retro.BlunderThreshold)
	}
	if cfg.Retro.MinDepth != 8 || cfg.Retro.MaxDepth != 18 {
		t.Errorf("Unexpected default depth bounds %d/%d", cfg.Retro.MinDepth, cfg.Retro.MaxDepth)
	}
	if cfg.Retro.JudgeDepth != cfg.Retro.MinDepth {
		t.Errorf("Expected judge depth to default to min depth, got %d", cfg.Retro.JudgeDepth)
	}
	if !strings.HasSuffix(cfg.Store.Path, "reviews.db") {
		t.Errorf("Unexpected default store path %s", cfg.Store.Path)
	}
}

func TestLoadConfigFromJSONFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")

	testConfig := Default()
	testConfig.KataGo.NumThreads = 8
	testConfig.Logging.Level = "debug"
	testConfig.RateLimit.Enabled = false
	testConfig.Retro.MaxDepth = 24

	data, err := json.MarshalIndent(testConfig, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config from file: %v", err)
	}

	if cfg.KataGo.NumThreads != 8 {
		t.Errorf("Expected threads 8, got %d", cfg.KataGo.NumThreads)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.RateLimit.Enabled {
		t.Error("Expected rate limiting disabled from file")
	}
	if cfg.Retro.MaxDepth != 24 {
		t.Errorf("Expected max depth 24, got %d", cfg.Retro.MaxDepth)
	}
}

func TestLoadConfigFromYAMLFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
logging:
  level: warn
  format: text
retro:
  mistakeThreshold: 0.08
  judgeDepth: 12
store:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(yamlDoc), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load YAML config: %v", err)
	}

	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "text" {
		t.Errorf("Unexpected logging section %+v", cfg.Logging)
	}
	if cfg.Retro.MistakeThreshold != 0.08 {
		t.Errorf("Expected mistake threshold 0.08, got %v", cfg.Retro.MistakeThreshold)
	}
	if cfg.Retro.JudgeDepth != 12 {
		t.Errorf("Expected judge depth 12, got %d", cfg.Retro.JudgeDepth)
	}
	// Untouched keys keep their defaults.
	if cfg.Retro.MinDepth != 8 {
		t.Errorf("Expected default min depth, got %d", cfg.Retro.MinDepth)
	}
	if cfg.Store.Enabled {
		t.Error("Expected store disabled from YAML")
	}
}

func TestLoadConfigParseError(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte("retro: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := Load(configPath); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("Expected parse error, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KATAGO_BINARY_PATH", "custom-katago")
	t.Setenv("KATAGO_MODEL_PATH", "models/custom.bin.gz")
	t.Setenv("KATAGO_RETRO_LOG_LEVEL", "debug")
	t.Setenv("KATAGO_RETRO_RATE_LIMIT_ENABLED", "false")
	t.Setenv("KATAGO_RETRO_MISTAKE_THRESHOLD", "0.1")
	t.Setenv("KATAGO_RETRO_JUDGE_DEPTH", "18")
	t.Setenv("KATAGO_RETRO_STORE_PATH", "/tmp/reviews.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config with env overrides: %v", err)
	}

	if cfg.KataGo.BinaryPath != "custom-katago" {
		t.Errorf("Expected env override for binary path, got %s", cfg.KataGo.BinaryPath)
	}
	if cfg.KataGo.ModelPath != "models/custom.bin.gz" {
		t.Errorf("Expected env override for model path, got %s", cfg.KataGo.ModelPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected env override for log level, got %s", cfg.Logging.Level)
	}
	if cfg.RateLimit.Enabled {
		t.Error("Expected rate limiting to be disabled by env override")
	}
	if cfg.Retro.MistakeThreshold != 0.1 {
		t.Errorf("Expected mistake threshold 0.1, got %v", cfg.Retro.MistakeThreshold)
	}
	if cfg.Retro.JudgeDepth != 18 {
		t.Errorf("Expected judge depth 18, got %d", cfg.Retro.JudgeDepth)
	}
	if cfg.Store.Path != "/tmp/reviews.db" {
		t.Errorf("Expected store path override, got %s", cfg.Store.Path)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantError bool
		check     func(*testing.T, *Config)
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:   "negative threads",
			modify: func(c *Config) { c.KataGo.NumThreads = -1 },
			check: func(t *testing.T, c *Config) {
				if c.KataGo.NumThreads != 1 {
					t.Errorf("NumThreads = %d, want 1", c.KataGo.NumThreads)
				}
			},
		},
		{
			name:   "negative time",
			modify: func(c *Config) { c.KataGo.MaxTime = -1 },
			check: func(t *testing.T, c *Config) {
				if c.KataGo.MaxTime != 0.1 {
					t.Errorf("MaxTime = %v, want 0.1", c.KataGo.MaxTime)
				}
			},
		},
		{
			name:   "judge depth clamped to max",
			modify: func(c *Config) { c.Retro.JudgeDepth = 40 },
			check: func(t *testing.T, c *Config) {
				if c.Retro.JudgeDepth != c.Retro.MaxDepth {
					t.Errorf("JudgeDepth = %d, want %d", c.Retro.JudgeDepth, c.Retro.MaxDepth)
				}
			},
		},
		{
			name:   "max depth below min depth",
			modify: func(c *Config) { c.Retro.MaxDepth = 3 },
			check: func(t *testing.T, c *Config) {
				if c.Retro.MaxDepth != c.Retro.MinDepth {
					t.Errorf("MaxDepth = %d, want %d", c.Retro.MaxDepth, c.Retro.MinDepth)
				}
			},
		},
		{
			name:   "blunder below mistake",
			modify: func(c *Config) { c.Retro.BlunderThreshold = 0.01 },
			check: func(t *testing.T, c *Config) {
				if c.Retro.BlunderThreshold != c.Retro.MistakeThreshold {
					t.Errorf("BlunderThreshold = %v, want %v", c.Retro.BlunderThreshold, c.Retro.MistakeThreshold)
				}
			},
		},
		{
			name:      "zero mistake threshold",
			modify:    func(c *Config) { c.Retro.MistakeThreshold = 0 },
			wantError: true,
		},
		{
			name:      "unknown log format",
			modify:    func(c *Config) { c.Logging.Format = "xml" },
			wantError: true,
		},
		{
			name:      "store without path",
			modify:    func(c *Config) { c.Store.Path = "" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.validate()

			if (err != nil) != tt.wantError {
				t.Errorf("validate() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestGetKataGoHomeDir(t *testing.T) {
	cfg := &Config{}

	t.Setenv("KATAGO_HOME", "/custom/katago/home")
	if homeDir := cfg.GetKataGoHomeDir(); homeDir != "/custom/katago/home" {
		t.Errorf("Expected KATAGO_HOME env var, got %s", homeDir)
	}

	os.Unsetenv("KATAGO_HOME")
	if homeDir := cfg.GetKataGoHomeDir(); !strings.HasSuffix(homeDir, ".katago") {
		t.Errorf("Expected path ending with .katago, got %s", homeDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("KATAGO_RETRO_CONFIG", "/custom/config.yaml")

	if path := GetConfigPath(); path != "/custom/config.yaml" {
		t.Errorf("Expected env var path, got %s", path)
	}
}
