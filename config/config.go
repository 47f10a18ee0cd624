package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Defaults for a fresh install.
const (
	DefaultBaseURL     = "http://localhost:11434"
	DefaultModel       = "llama3.2-vision:latest"
	DefaultTemperature = 0.7
)

// Config represents the persisted application configuration.
type Config struct {
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks a configuration for obviously broken values.
func Validate(cfg Config) error {
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: "base_url", Reason: fmt.Sprintf("%q is not an absolute URL", cfg.BaseURL)}
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return &ValidationError{Field: "temperature", Reason: "must be between 0 and 1"}
	}
	if cfg.Model == "" {
		return &ValidationError{Field: "model", Reason: "must not be empty"}
	}
	return nil
}

// Manager handles configuration persistence.
type Manager struct {
	configPath string
	config     *Config
}

// NewManager creates a config manager backed by ~/.visionchat/config.json.
func NewManager() (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".visionchat")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return newManagerAt(filepath.Join(configDir, "config.json"))
}

func newManagerAt(path string) (*Manager, error) {
	m := &Manager{
		configPath: path,
		config: &Config{
			BaseURL:     DefaultBaseURL,
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
		},
	}

	if err := m.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return m, nil
}

// Load reads the configuration from disk.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, m.config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	// Absent keys keep the pre-seeded defaults; an explicit zero
	// temperature is a deliberate setting and survives the load.
	if m.config.BaseURL == "" {
		m.config.BaseURL = DefaultBaseURL
	}
	if m.config.Model == "" {
		m.config.Model = DefaultModel
	}
	return nil
}

// Save writes the configuration to disk.
func (m *Manager) Save() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	return *m.config
}

// SetDefaults updates and persists the base URL, model and temperature.
func (m *Manager) SetDefaults(cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	*m.config = cfg
	return m.Save()
}

// SetModel persists a new default model.
func (m *Manager) SetModel(model string) error {
	m.config.Model = model
	return m.Save()
}
