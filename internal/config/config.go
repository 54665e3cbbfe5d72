package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	KataGo    KataGoConfig    `json:"katago" yaml:"katago"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Retro     RetroConfig     `json:"retro" yaml:"retro"`
	Store     StoreConfig     `json:"store" yaml:"store"`
}

type KataGoConfig struct {
	BinaryPath string  `json:"binaryPath" yaml:"binaryPath"`
	ModelPath  string  `json:"modelPath" yaml:"modelPath"`
	ConfigPath string  `json:"configPath" yaml:"configPath"`
	NumThreads int     `json:"numThreads" yaml:"numThreads"`
	MaxVisits  int     `json:"maxVisits" yaml:"maxVisits"`
	MaxTime    float64 `json:"maxTime" yaml:"maxTime"`
}

type ServerConfig struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
	// HTTPAddr serves /health, /ready and /metrics. Empty disables it.
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

type RateLimitConfig struct {
	Enabled        bool           `json:"enabled" yaml:"enabled"`
	RequestsPerMin int            `json:"requestsPerMin" yaml:"requestsPerMin"`
	BurstSize      int            `json:"burstSize" yaml:"burstSize"`
	PerToolLimits  map[string]int `json:"perToolLimits" yaml:"perToolLimits"`
}

type CacheConfig struct {
	Enabled      bool  `json:"enabled" yaml:"enabled"`
	MaxItems     int   `json:"maxItems" yaml:"maxItems"`
	MaxSizeBytes int64 `json:"maxSizeBytes" yaml:"maxSizeBytes"`
	TTLSeconds   int   `json:"ttlSeconds" yaml:"ttlSeconds"`
}

// RetroConfig tunes mistake detection and attempt judging.
type RetroConfig struct {
	MistakeThreshold float64 `json:"mistakeThreshold" yaml:"mistakeThreshold"`
	BlunderThreshold float64 `json:"blunderThreshold" yaml:"blunderThreshold"`
	MinDepth         int     `json:"minDepth" yaml:"minDepth"`
	MaxDepth         int     `json:"maxDepth" yaml:"maxDepth"`
	// JudgeDepth defaults to MinDepth when zero.
	JudgeDepth     int `json:"judgeDepth" yaml:"judgeDepth"`
	VisitsPerDepth int `json:"visitsPerDepth" yaml:"visitsPerDepth"`
	AnalysisVisits int `json:"analysisVisits" yaml:"analysisVisits"`
	MaxSessions    int `json:"maxSessions" yaml:"maxSessions"`
}

type StoreConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		KataGo: KataGoConfig{
			BinaryPath: "katago",
			NumThreads: 4,
			MaxVisits:  1000,
			MaxTime:    10.0,
		},
		Server: ServerConfig{
			Name:        "katago-retro",
			Version:     "0.1.0",
			Description: "Learn from your mistakes: KataGo-backed game retrospectives over MCP",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Prefix: "[katago-retro] ",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
			BurstSize:      20,
			PerToolLimits: map[string]int{
				"startReview": 10,
			},
		},
		Cache: CacheConfig{
			Enabled:      true,
			MaxItems:     1000,
			MaxSizeBytes: 100 * 1024 * 1024,
			TTLSeconds:   3600,
		},
		Retro: RetroConfig{
			MistakeThreshold: 0.05,
			BlunderThreshold: 0.15,
			MinDepth:         8,
			MaxDepth:         18,
			VisitsPerDepth:   25,
			AnalysisVisits:   200,
			MaxSessions:      64,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    filepath.Join(defaultDataDir(), "reviews.db"),
		},
	}
}

// Load reads the defaults, overlays the file at configPath (JSON, or YAML
// for .yaml/.yml), then applies environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		switch strings.ToLower(filepath.Ext(configPath)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, cfg)
		default:
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KATAGO_BINARY_PATH"); v != "" {
		c.KataGo.BinaryPath = v
	}
	if v := os.Getenv("KATAGO_MODEL_PATH"); v != "" {
		c.KataGo.ModelPath = v
	}
	if v := os.Getenv("KATAGO_CONFIG_PATH"); v != "" {
		c.KataGo.ConfigPath = v
	}

	if v := os.Getenv("KATAGO_RETRO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KATAGO_RETRO_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("KATAGO_RETRO_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}

	if v := os.Getenv("KATAGO_RETRO_RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("KATAGO_RETRO_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("KATAGO_RETRO_MISTAKE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retro.MistakeThreshold = f
		}
	}
	if v := os.Getenv("KATAGO_RETRO_JUDGE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retro.JudgeDepth = n
		}
	}

	if v := os.Getenv("KATAGO_RETRO_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("KATAGO_RETRO_STORE_ENABLED"); v != "" {
		c.Store.Enabled = strings.ToLower(v) == "true"
	}
}

func (c *Config) validate() error {
	if filepath.IsAbs(c.KataGo.BinaryPath) {
		if _, err := os.Stat(c.KataGo.BinaryPath); err != nil {
			return fmt.Errorf("katago binary not found at %s", c.KataGo.BinaryPath)
		}
	}

	if c.KataGo.ModelPath != "" && filepath.IsAbs(c.KataGo.ModelPath) {
		if _, err := os.Stat(c.KataGo.ModelPath); err != nil {
			return fmt.Errorf("katago model not found at %s", c.KataGo.ModelPath)
		}
	}

	if c.KataGo.NumThreads < 1 {
		c.KataGo.NumThreads = 1
	}
	if c.KataGo.MaxVisits < 1 {
		c.KataGo.MaxVisits = 1
	}
	if c.KataGo.MaxTime < 0.1 {
		c.KataGo.MaxTime = 0.1
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMin < 1 {
			c.RateLimit.RequestsPerMin = 1
		}
		if c.RateLimit.BurstSize < 1 {
			c.RateLimit.BurstSize = 1
		}
	}

	if c.Cache.Enabled {
		if c.Cache.MaxItems < 1 {
			c.Cache.MaxItems = 1
		}
		if c.Cache.TTLSeconds < 0 {
			c.Cache.TTLSeconds = 0
		}
	}

	r := &c.Retro
	if r.MistakeThreshold <= 0 || r.MistakeThreshold >= 1 {
		return fmt.Errorf("retro.mistakeThreshold must be in (0, 1), got %v", r.MistakeThreshold)
	}
	if r.BlunderThreshold < r.MistakeThreshold {
		r.BlunderThreshold = r.MistakeThreshold
	}
	if r.MinDepth < 1 {
		r.MinDepth = 1
	}
	if r.MaxDepth < r.MinDepth {
		r.MaxDepth = r.MinDepth
	}
	if r.JudgeDepth == 0 || r.JudgeDepth < r.MinDepth {
		r.JudgeDepth = r.MinDepth
	}
	if r.JudgeDepth > r.MaxDepth {
		r.JudgeDepth = r.MaxDepth
	}
	if r.VisitsPerDepth < 1 {
		r.VisitsPerDepth = 1
	}
	if r.AnalysisVisits < 1 {
		r.AnalysisVisits = 1
	}
	if r.MaxSessions < 1 {
		r.MaxSessions = 1
	}

	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store.path is required when the store is enabled")
	}

	return nil
}

// GetKataGoHomeDir returns KATAGO_HOME or ~/.katago.
func (c *Config) GetKataGoHomeDir() string {
	if home := os.Getenv("KATAGO_HOME"); home != "" {
		return home
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(userHome, ".katago")
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".katago-retro")
	}
	return ".katago-retro"
}

// GetConfigPath finds the config file to load, or returns "".
func GetConfigPath() string {
	if path := os.Getenv("KATAGO_RETRO_CONFIG"); path != "" {
		return path
	}

	candidates := []string{"config.json", "config.yaml", "config.yml"}
	for _, name := range candidates {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range candidates {
			configPath := filepath.Join(home, ".katago-retro", name)
			if _, err := os.Stat(configPath); err == nil {
				return configPath
			}
		}
	}

	return ""
}
