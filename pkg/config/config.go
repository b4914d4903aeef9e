package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.aigree/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8090
// database:
//   path: ~/.aigree/aigree.db
// ai:
//   provider: gemini
//   model: gemini-2.5-flash
//   api_key: ...
// workflow:
//   min_messages: 3
//   flight_ttl_seconds: 60
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Workflow WorkflowConfig `yaml:"workflow"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path *string `yaml:"path"`
}

// AIConfig selects the chat model used for issue extraction, proposal
// generation, agreement drafting, sentiment analysis and conversational
// replies. Provider "mock" runs without any external call.
type AIConfig struct {
	Provider *string `yaml:"provider"` // openai, gemini, mock
	Model    *string `yaml:"model"`
	APIKey   *string `yaml:"api_key"`
	BaseURL  *string `yaml:"base_url"`
}

type WorkflowConfig struct {
	MinMessages      *int `yaml:"min_messages"`
	FlightTTLSeconds *int `yaml:"flight_ttl_seconds"`
}

const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 8090
	DefaultProvider    = "mock"
	DefaultModel       = "gemini-2.5-flash"
	DefaultMinMessages = 3
	DefaultFlightTTL   = 60
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".aigree")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.aigree/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	if mm := cfg.MinMessages(); mm < 1 {
		return nil, "", fmt.Errorf("invalid workflow.min_messages %d in %s", mm, configFile)
	}

	switch cfg.Provider() {
	case "openai", "gemini", "mock":
	default:
		return nil, "", fmt.Errorf("invalid ai.provider %q in %s", cfg.Provider(), configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		AI:     AIConfig{Provider: ptr(DefaultProvider)},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions; the file may hold an API key later.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// DatabasePath returns the SQLite file path, defaulting to ~/.aigree/aigree.db.
func (c *AppConfig) DatabasePath() string {
	if c != nil && c.Database.Path != nil && strings.TrimSpace(*c.Database.Path) != "" {
		return *c.Database.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "aigree.db"
	}
	return filepath.Join(home, ".aigree", "aigree.db")
}

func (c *AppConfig) Provider() string {
	if c == nil || c.AI.Provider == nil || strings.TrimSpace(*c.AI.Provider) == "" {
		return DefaultProvider
	}
	return strings.ToLower(strings.TrimSpace(*c.AI.Provider))
}

func (c *AppConfig) Model() string {
	if c == nil || c.AI.Model == nil || strings.TrimSpace(*c.AI.Model) == "" {
		return DefaultModel
	}
	return *c.AI.Model
}

func (c *AppConfig) APIKey() string {
	if c == nil || c.AI.APIKey == nil {
		return ""
	}
	return *c.AI.APIKey
}

func (c *AppConfig) BaseURL() string {
	if c == nil || c.AI.BaseURL == nil {
		return ""
	}
	return *c.AI.BaseURL
}

func (c *AppConfig) MinMessages() int {
	if c == nil || c.Workflow.MinMessages == nil {
		return DefaultMinMessages
	}
	return *c.Workflow.MinMessages
}

func (c *AppConfig) FlightTTLSeconds() int {
	if c == nil || c.Workflow.FlightTTLSeconds == nil || *c.Workflow.FlightTTLSeconds < 1 {
		return DefaultFlightTTL
	}
	return *c.Workflow.FlightTTLSeconds
}

func ptr[T any](v T) *T { return &v }
