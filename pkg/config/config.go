package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the full server configuration
type Config struct {
	// DatabasePath is the SQLite database file
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH"`

	// ImageDir holds the master image files served to targets
	ImageDir string `yaml:"image_dir" envconfig:"IMAGE_DIR"`

	// LogDir receives the daily deployment status logs
	LogDir string `yaml:"log_dir" envconfig:"LOG_DIR"`

	// DeploymentBind is the listen address on the deployment network
	DeploymentBind string `yaml:"deployment_bind" envconfig:"DEPLOYMENT_BIND"`

	// ManagementBind is the listen address on the management network
	ManagementBind string `yaml:"management_bind" envconfig:"MANAGEMENT_BIND"`

	// ServerIP is the deployment-network address advertised in image URLs
	ServerIP string `yaml:"server_ip" envconfig:"SERVER_IP"`

	// MonitoredServices are the systemd units the health sampler probes
	MonitoredServices []string `yaml:"monitored_services" envconfig:"MONITORED_SERVICES"`

	// DiskPath is the filesystem path the health sampler reports usage for
	DiskPath string `yaml:"disk_path" envconfig:"DISK_PATH"`

	// SecretKey signs management sessions. Environment only, never a file.
	SecretKey string `yaml:"-" envconfig:"SECRET_KEY"`

	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogJSON  bool   `yaml:"log_json" envconfig:"LOG_JSON"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DatabasePath:      "/var/lib/paddock/paddock.db",
		ImageDir:          "/var/lib/paddock/images",
		LogDir:            "/var/lib/paddock/logs",
		DeploymentBind:    "0.0.0.0:5001",
		ManagementBind:    "0.0.0.0:5000",
		ServerIP:          "192.168.151.1",
		MonitoredServices: []string{"dnsmasq", "nginx", "paddock-deploy", "paddock-mgmt"},
		DiskPath:          "/var/lib/paddock",
		LogLevel:          "info",
	}
}

// Load builds configuration from defaults, an optional YAML file, and the
// environment, in that order. PADDOCK_* variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("paddock", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the servers cannot boot with
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if c.ImageDir == "" {
		return fmt.Errorf("image_dir must not be empty")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir must not be empty")
	}
	if c.DeploymentBind == "" {
		return fmt.Errorf("deployment_bind must not be empty")
	}
	if c.ManagementBind == "" {
		return fmt.Errorf("management_bind must not be empty")
	}
	if c.ServerIP == "" {
		return fmt.Errorf("server_ip must not be empty")
	}
	return nil
}
