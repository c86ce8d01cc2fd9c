// Package config handles Sightline configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sightline/sightline/internal/core"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`

	// Server
	Server ServerConfig `json:"server"`

	// Engine
	Engine EngineConfig `json:"engine"`

	// Anomaly detection
	Anomaly AnomalyConfig `json:"anomaly"`

	// Completion service
	Completion CompletionConfig `json:"completion"`

	// Per-camera overrides, keyed by camera id
	Devices map[string]DeviceConfig `json:"devices,omitempty"`

	mu sync.RWMutex
}

// ServerConfig for HTTP server
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// EngineConfig tunes the cognitive cycle
type EngineConfig struct {
	CleanupInterval          Duration `json:"cleanup_interval"`
	ReflectionInterval       Duration `json:"reflection_interval"`
	KnowledgeRetention       Duration `json:"knowledge_retention"`
	GoalRetention            Duration `json:"goal_retention"`
	SubjectIdleTimeout       Duration `json:"subject_idle_timeout"`
	IncidentStaleTimeout     Duration `json:"incident_stale_timeout"`
	PlanRetention            Duration `json:"plan_retention"`
	UnknownVisitorThreshold  Duration `json:"unknown_visitor_threshold"`
	DefaultFrameWidth        int      `json:"default_frame_width"`
	DefaultFrameHeight       int      `json:"default_frame_height"`
}

// AnomalyConfig tunes the statistical baseline
type AnomalyConfig struct {
	Enabled        bool    `json:"enabled"`
	Threshold      float64 `json:"threshold"`
	EnableLearning bool    `json:"enable_learning"`
	TrainingSize   int     `json:"training_size"`
}

// CompletionConfig for the external reasoning service
type CompletionConfig struct {
	Enabled bool     `json:"enabled"`
	APIKey  string   `json:"api_key"`
	BaseURL string   `json:"base_url"`
	Model   string   `json:"model"`
	Timeout Duration `json:"timeout"`
}

// DeviceConfig overrides anomaly settings for one camera
type DeviceConfig struct {
	Enabled        bool    `json:"enabled"`
	Threshold      float64 `json:"threshold"`
	EnableLearning bool    `json:"enable_learning"`
}

// Duration wraps time.Duration with JSON string encoding ("30m", "24h")
type Duration time.Duration

// MarshalJSON encodes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string or nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration: %s", data)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".sightline"),
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Engine: EngineConfig{
			CleanupInterval:         Duration(60 * time.Second),
			ReflectionInterval:      Duration(5 * time.Minute),
			KnowledgeRetention:      Duration(24 * time.Hour),
			GoalRetention:           Duration(24 * time.Hour),
			SubjectIdleTimeout:      Duration(10 * time.Minute),
			IncidentStaleTimeout:    Duration(30 * time.Minute),
			PlanRetention:           Duration(24 * time.Hour),
			UnknownVisitorThreshold: Duration(30 * time.Second),
			DefaultFrameWidth:       1920,
			DefaultFrameHeight:      1080,
		},
		Anomaly: AnomalyConfig{
			Enabled:        true,
			Threshold:      0.7,
			EnableLearning: true,
			TrainingSize:   100,
		},
		Completion: CompletionConfig{
			Enabled: true,
			APIKey:  os.Getenv("SIGHTLINE_API_KEY"),
			BaseURL: "https://api.anthropic.com",
			Model:   "claude-sonnet-4-20250514",
			Timeout: Duration(30 * time.Second),
		},
		Devices: make(map[string]DeviceConfig),
	}
}

// Load loads config from file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Devices == nil {
		cfg.Devices = make(map[string]DeviceConfig)
	}

	// Environment overrides
	if apiKey := os.Getenv("SIGHTLINE_API_KEY"); apiKey != "" {
		cfg.Completion.APIKey = apiKey
	}
	if dataDir := os.Getenv("SIGHTLINE_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	// Don't save API key to file
	c.mu.RLock()
	safeCfg := Config{
		DataDir:    c.DataDir,
		Server:     c.Server,
		Engine:     c.Engine,
		Anomaly:    c.Anomaly,
		Completion: c.Completion,
		Devices:    make(map[string]DeviceConfig, len(c.Devices)),
	}
	for id, dev := range c.Devices {
		safeCfg.Devices[id] = dev
	}
	c.mu.RUnlock()
	safeCfg.Completion.APIKey = ""

	data, err := json.MarshalIndent(&safeCfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Anomaly.Threshold < 0 || c.Anomaly.Threshold > 1 {
		return fmt.Errorf("%w: anomaly threshold %.2f", core.ErrInvalidInput, c.Anomaly.Threshold)
	}
	if c.Anomaly.TrainingSize <= 0 {
		return fmt.Errorf("%w: anomaly training size %d", core.ErrInvalidInput, c.Anomaly.TrainingSize)
	}
	if c.Engine.DefaultFrameWidth <= 0 || c.Engine.DefaultFrameHeight <= 0 {
		return fmt.Errorf("%w: frame dimensions %dx%d", core.ErrInvalidInput,
			c.Engine.DefaultFrameWidth, c.Engine.DefaultFrameHeight)
	}
	return nil
}

// Device returns the effective anomaly settings for a camera, falling
// back to the global anomaly section when the camera has no override.
func (c *Config) Device(id core.CameraID) DeviceConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if dev, ok := c.Devices[string(id)]; ok {
		return dev
	}
	return DeviceConfig{
		Enabled:        c.Anomaly.Enabled,
		Threshold:      c.Anomaly.Threshold,
		EnableLearning: c.Anomaly.EnableLearning,
	}
}

// SetDevice stores a per-camera override
func (c *Config) SetDevice(id core.CameraID, dev DeviceConfig) error {
	if dev.Threshold < 0 || dev.Threshold > 1 {
		return fmt.Errorf("%w: device threshold %.2f", core.ErrInvalidInput, dev.Threshold)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Devices == nil {
		c.Devices = make(map[string]DeviceConfig)
	}
	c.Devices[string(id)] = dev
	return nil
}
