// Package config holds operator-level configuration for a deployment of the
// reply qualification service.
//
// This is infrastructure config set by whoever deploys the service, NOT
// caller or tenant configuration. Upstream AI credentials are never part of
// this config: they are resolved per request from the external key service
// (internal/keyvault). The only secrets here are the service's own inbound
// API keys and its credentials for the key service and run tracker.
//
// Every key maps to an env var with the RQS_ prefix (e.g. "port" → RQS_PORT)
// and to a YAML field in rqs.config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServiceName identifies this service to collaborators: run-tracker run rows,
// key-service audit headers, and the default app scope for key resolution.
const ServiceName = "reply-qualification-service"

// Viper keys.
const (
	KeyPort              = "port"
	KeyDataDir           = "data_dir"
	KeyAPIKeys           = "api_keys"
	KeyKeyServiceURL     = "key_service_url"
	KeyKeyServiceAPIKey  = "key_service_api_key"
	KeyRunsServiceURL    = "runs_service_url"
	KeyRunsServiceAPIKey = "runs_service_api_key"
	KeyModel             = "model"
	KeyMaxOutputTokens   = "max_output_tokens"
)

// Defaults.
const (
	DefaultPort            = 3000
	DefaultKeyServiceURL   = "https://keys.mcpfactory.org"
	DefaultRunsServiceURL  = "https://runs.mcpfactory.org"
	DefaultModel           = "claude-3-haiku-20240307"
	DefaultMaxOutputTokens = 1024
)

// Config holds resolved operator-level configuration for one process.
type Config struct {
	Port              int
	DataDir           string // base directory for the SQLite database
	APIKeys           string // comma-separated inbound service keys (key or key:source)
	KeyServiceURL     string
	KeyServiceAPIKey  string
	RunsServiceURL    string
	RunsServiceAPIKey string
	Model             string
	MaxOutputTokens   int
}

// DBPath returns the full path to the qualification SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "qualifications.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("RQS")
	viper.AutomaticEnv()
	viper.SetDefault(KeyPort, DefaultPort)
	viper.SetDefault(KeyKeyServiceURL, DefaultKeyServiceURL)
	viper.SetDefault(KeyRunsServiceURL, DefaultRunsServiceURL)
	viper.SetDefault(KeyModel, DefaultModel)
	viper.SetDefault(KeyMaxOutputTokens, DefaultMaxOutputTokens)
}

// Load reads configuration from Viper (merging env vars, config file, and
// defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              viper.GetInt(KeyPort),
		DataDir:           resolveDataDir(),
		APIKeys:           viper.GetString(KeyAPIKeys),
		KeyServiceURL:     viper.GetString(KeyKeyServiceURL),
		KeyServiceAPIKey:  viper.GetString(KeyKeyServiceAPIKey),
		RunsServiceURL:    viper.GetString(KeyRunsServiceURL),
		RunsServiceAPIKey: viper.GetString(KeyRunsServiceAPIKey),
		Model:             viper.GetString(KeyModel),
		MaxOutputTokens:   viper.GetInt(KeyMaxOutputTokens),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be 1-65535 (got %d)", c.Port)
	}
	if c.KeyServiceURL == "" {
		return fmt.Errorf("key_service_url must not be empty")
	}
	if c.RunsServiceURL == "" {
		return fmt.Errorf("runs_service_url must not be empty")
	}
	if c.MaxOutputTokens < 1 {
		return fmt.Errorf("max_output_tokens must be positive (got %d)", c.MaxOutputTokens)
	}
	return nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".replyqual"
	}
	return filepath.Join(home, ".replyqual")
}
