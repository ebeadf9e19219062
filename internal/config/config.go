// Package config provides configuration management for mgapphost.
//
// This package handles loading configuration from multiple sources:
//   - YAML configuration files
//   - Environment variables (with MG_ prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./config.yaml, ./configs/config.yaml, ~/.mgapphost/config.yaml, /etc/mgapphost/config.yaml)
//  3. .env files
//  4. Environment variables (MG_ prefix)
//
// # Usage Example
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Memgraph: %s (lab: %v)\n", cfg.Memgraph.Name, cfg.Lab.Enabled)
//
// # Environment Variables
//
// Use MG_ prefix and underscores for nested keys:
//   - MG_MEMGRAPH_PORT=7687
//   - MG_LAB_HOST_PORT=3000
//   - MG_DOCKER_HOST=unix:///var/run/docker.sock
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for mgapphost.
type Config struct {
	// Docker contains container runtime settings
	Docker DockerConfig `mapstructure:"docker"`

	// Memgraph describes the database resource
	Memgraph MemgraphConfig `mapstructure:"memgraph"`

	// Lab describes the optional Memgraph Lab resource
	Lab LabConfig `mapstructure:"lab"`

	// Server contains the status API settings
	Server ServerConfig `mapstructure:"server"`

	// Startup controls readiness waiting after containers start
	Startup StartupConfig `mapstructure:"startup"`

	// Logging contains logging settings
	Logging LoggingConfig `mapstructure:"logging"`
}

// DockerConfig contains container runtime settings.
type DockerConfig struct {
	// Host is the Docker daemon address (unix:///var/run/docker.sock, tcp://host:2375)
	Host string `mapstructure:"host"`

	// Network is the network created for a run; empty derives one from the run id
	Network string `mapstructure:"network"`

	// ContainerHost is how containers reach ports published on the host
	ContainerHost string `mapstructure:"container_host"`

	// PullImages pulls images before creating containers
	PullImages bool `mapstructure:"pull_images"`

	// RemoveVolumes deletes named volumes on shutdown
	RemoveVolumes bool `mapstructure:"remove_volumes"`

	// StopTimeout is how long containers get to stop gracefully
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// MemgraphConfig describes the database resource.
type MemgraphConfig struct {
	// Name is the resource name (also the connection string name)
	Name string `mapstructure:"name"`

	// Port is the bolt host port; 0 assigns one
	Port int `mapstructure:"port"`

	// LogPort is the log stream host port; 0 assigns one
	LogPort int `mapstructure:"log_port"`

	// DataVolume mounts a named volume at the data directory
	DataVolume bool `mapstructure:"data_volume"`

	// DataVolumeName overrides the default volume-<name>-data
	DataVolumeName string `mapstructure:"data_volume_name"`

	// DataBindMount mounts this host path at the data directory; it takes
	// precedence over DataVolume
	DataBindMount string `mapstructure:"data_bind_mount"`

	// ReadOnly mounts the data directory read-only
	ReadOnly bool `mapstructure:"read_only"`

	// MAGE selects the image bundling the MAGE algorithm library
	MAGE bool `mapstructure:"mage"`
}

// LabConfig describes the Memgraph Lab resource.
type LabConfig struct {
	// Enabled adds Memgraph Lab to the model
	Enabled bool `mapstructure:"enabled"`

	// Name overrides the default <memgraph>-lab
	Name string `mapstructure:"name"`

	// HostPort pins the Lab HTTP port; 0 assigns one
	HostPort int `mapstructure:"host_port"`
}

// ServerConfig contains status API settings.
type ServerConfig struct {
	// Enabled starts the status API during `run`
	Enabled bool `mapstructure:"enabled"`

	// Host is the server bind address (default: localhost)
	Host string `mapstructure:"host"`

	// Port is the server listen port (default: 18888)
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug exposes internal error details
	Debug bool `mapstructure:"debug"`
}

// StartupConfig controls waiting for the database after start.
type StartupConfig struct {
	// WaitReady polls bolt until Memgraph accepts connections
	WaitReady bool `mapstructure:"wait_ready"`

	// Timeout bounds the whole start sequence
	Timeout time.Duration `mapstructure:"timeout"`

	// PollInterval is the delay between readiness probes
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`

	// Output is the log destination (stdout, stderr or a file path)
	Output string `mapstructure:"output"`
}

var cfg *Config

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
func Load(cfgFile string) (*Config, error) {
	return LoadWith(viper.New(), cfgFile)
}

// LoadWith is Load on a caller-provided viper instance, so command-line
// flags bound to v take part in the precedence chain.
func LoadWith(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mgapphost")
		v.AddConfigPath("/etc/mgapphost")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			// A missing explicit file falls back to defaults
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("MG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.network", "")
	v.SetDefault("docker.container_host", "host.docker.internal")
	v.SetDefault("docker.pull_images", true)
	v.SetDefault("docker.remove_volumes", false)
	v.SetDefault("docker.stop_timeout", "10s")

	v.SetDefault("memgraph.name", "memgraph")
	v.SetDefault("memgraph.port", 0)
	v.SetDefault("memgraph.log_port", 0)
	v.SetDefault("memgraph.data_volume", true)
	v.SetDefault("memgraph.data_volume_name", "")
	v.SetDefault("memgraph.data_bind_mount", "")
	v.SetDefault("memgraph.read_only", false)
	v.SetDefault("memgraph.mage", false)

	v.SetDefault("lab.enabled", true)
	v.SetDefault("lab.name", "")
	v.SetDefault("lab.host_port", 0)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 18888)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)

	v.SetDefault("startup.wait_ready", true)
	v.SetDefault("startup.timeout", "2m")
	v.SetDefault("startup.poll_interval", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func validate(cfg *Config) error {
	if cfg.Docker.Host == "" {
		return fmt.Errorf("docker host is required")
	}

	if cfg.Memgraph.Name == "" {
		return fmt.Errorf("memgraph name is required")
	}

	for name, port := range map[string]int{
		"memgraph port":     cfg.Memgraph.Port,
		"memgraph log port": cfg.Memgraph.LogPort,
		"lab host port":     cfg.Lab.HostPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %d", name, port)
		}
	}

	if cfg.Server.Enabled && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Logging.Format)
	}

	return nil
}

// Get returns the configuration produced by the last successful Load.
func Get() *Config {
	return cfg
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
