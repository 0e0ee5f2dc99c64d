// Package config loads and validates the process-level configuration for
// nudged: listen addresses, persistence paths, the A* node budget, and
// the optional MQTT/Maps/auth settings. Configuration is a plain JSON
// file with flag overrides, validated once at startup via Load.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the full process configuration for nudged.
type Config struct {
	// HTTP API
	APIHost string `json:"api_host"`
	APIPort int    `json:"api_port"`
	APIKey  string `json:"api_key,omitempty"` // if set, required via X-API-Key or ?auth=

	// Metrics
	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsHost    string `json:"metrics_host"`
	MetricsPort    int    `json:"metrics_port"`

	// Persistence
	SQLitePath string `json:"sqlite_path"`
	BoltPath   string `json:"bolt_path"`

	// Schedule optimizer
	SearchNodeBudget int `json:"search_node_budget"`

	// MQTT fan-out (disabled unless MQTTEnabled is true)
	MQTTEnabled     bool   `json:"mqtt_enabled"`
	MQTTBroker      string `json:"mqtt_broker"`
	MQTTPort        int    `json:"mqtt_port"`
	MQTTClientID    string `json:"mqtt_client_id"`
	MQTTTopicPrefix string `json:"mqtt_topic_prefix"`

	// Calendar ingestion travel-time backfill
	MapsAPIKey  string `json:"maps_api_key,omitempty"`
	HomeAddress string `json:"home_address,omitempty"`

	LogLevel string `json:"log_level"`
}

// Default configuration values.
const (
	DefaultAPIHost          = "0.0.0.0"
	DefaultAPIPort          = 8090
	DefaultMetricsHost      = "0.0.0.0"
	DefaultMetricsPort      = 9090
	DefaultSQLitePath       = "/var/lib/nudge/nudge.db"
	DefaultBoltPath         = "/var/lib/nudge/audit.db"
	DefaultSearchNodeBudget = 10000
	DefaultMQTTPort         = 1883
	DefaultMQTTClientID     = "nudged"
	DefaultMQTTTopicPrefix  = "nudge"
	DefaultLogLevel         = "info"
)

// Default returns a Config populated with the defaults above.
func Default() *Config {
	return &Config{
		APIHost:          DefaultAPIHost,
		APIPort:          DefaultAPIPort,
		MetricsEnabled:   true,
		MetricsHost:      DefaultMetricsHost,
		MetricsPort:      DefaultMetricsPort,
		SQLitePath:       DefaultSQLitePath,
		BoltPath:         DefaultBoltPath,
		SearchNodeBudget: DefaultSearchNodeBudget,
		MQTTPort:         DefaultMQTTPort,
		MQTTClientID:     DefaultMQTTClientID,
		MQTTTopicPrefix:  DefaultMQTTTopicPrefix,
		LogLevel:         DefaultLogLevel,
	}
}

// Load reads a JSON config file at path, falling back to defaults for
// any field the file omits. A missing file is not an error: Load
// simply returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("api_port out of range: %d", c.APIPort)
	}
	if c.MetricsEnabled && (c.MetricsPort < 1 || c.MetricsPort > 65535) {
		return fmt.Errorf("metrics_port out of range: %d", c.MetricsPort)
	}
	if c.SearchNodeBudget < 1 {
		return fmt.Errorf("search_node_budget must be positive: %d", c.SearchNodeBudget)
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite_path must not be empty")
	}
	if c.BoltPath == "" {
		return fmt.Errorf("bolt_path must not be empty")
	}
	return nil
}
