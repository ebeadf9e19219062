package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaults tests that default configuration values are set correctly.
func TestDefaults(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load config with defaults: %v", err)
	}

	// Test Docker defaults
	if cfg.Docker.Host != "unix:///var/run/docker.sock" {
		t.Errorf("Expected default docker host, got '%s'", cfg.Docker.Host)
	}
	if cfg.Docker.ContainerHost != "host.docker.internal" {
		t.Errorf("Expected default container host 'host.docker.internal', got '%s'", cfg.Docker.ContainerHost)
	}
	if !cfg.Docker.PullImages {
		t.Error("Expected pull_images true by default")
	}
	if cfg.Docker.StopTimeout != 10*time.Second {
		t.Errorf("Expected default stop timeout 10s, got %v", cfg.Docker.StopTimeout)
	}

	// Test Memgraph defaults
	if cfg.Memgraph.Name != "memgraph" {
		t.Errorf("Expected default memgraph name 'memgraph', got '%s'", cfg.Memgraph.Name)
	}
	if cfg.Memgraph.Port != 0 || cfg.Memgraph.LogPort != 0 {
		t.Errorf("Expected ephemeral ports by default, got %d/%d", cfg.Memgraph.Port, cfg.Memgraph.LogPort)
	}
	if !cfg.Memgraph.DataVolume {
		t.Error("Expected data_volume true by default")
	}
	if cfg.Memgraph.MAGE {
		t.Error("Expected mage false by default")
	}

	// Test Lab defaults
	if !cfg.Lab.Enabled {
		t.Error("Expected lab enabled by default")
	}
	if cfg.Lab.HostPort != 0 {
		t.Errorf("Expected lab host port 0, got %d", cfg.Lab.HostPort)
	}

	// Test Server defaults
	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got '%s'", cfg.Server.Host)
	}
	if cfg.Server.Port != 18888 {
		t.Errorf("Expected default port 18888, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Expected default read timeout 30s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}

	// Test Startup defaults
	if !cfg.Startup.WaitReady {
		t.Error("Expected wait_ready true by default")
	}
	if cfg.Startup.Timeout != 2*time.Minute {
		t.Errorf("Expected default startup timeout 2m, got %v", cfg.Startup.Timeout)
	}
	if cfg.Startup.PollInterval != time.Second {
		t.Errorf("Expected default poll interval 1s, got %v", cfg.Startup.PollInterval)
	}

	// Test Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level 'info', got '%s'", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected default log format 'json', got '%s'", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default logging output 'stdout', got '%s'", cfg.Logging.Output)
	}
}

// TestLoadFile tests that values from a YAML file override defaults.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
memgraph:
  name: graph
  port: 17687
  data_bind_mount: /srv/memgraph
  mage: true
lab:
  host_port: 3100
logging:
  level: debug
  format: text
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Memgraph.Name != "graph" {
		t.Errorf("Expected memgraph name 'graph', got '%s'", cfg.Memgraph.Name)
	}
	if cfg.Memgraph.Port != 17687 {
		t.Errorf("Expected memgraph port 17687, got %d", cfg.Memgraph.Port)
	}
	if cfg.Memgraph.DataBindMount != "/srv/memgraph" {
		t.Errorf("Expected bind mount '/srv/memgraph', got '%s'", cfg.Memgraph.DataBindMount)
	}
	if !cfg.Memgraph.MAGE {
		t.Error("Expected mage true from file")
	}
	if cfg.Lab.HostPort != 3100 {
		t.Errorf("Expected lab host port 3100, got %d", cfg.Lab.HostPort)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected log format 'text', got '%s'", cfg.Logging.Format)
	}
	// Untouched keys keep their defaults
	if cfg.Server.Port != 18888 {
		t.Errorf("Expected default port 18888, got %d", cfg.Server.Port)
	}
}

// TestValidation tests the configuration validation logic.
func TestValidation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Docker:   DockerConfig{Host: "unix:///var/run/docker.sock"},
			Memgraph: MemgraphConfig{Name: "memgraph"},
			Server:   ServerConfig{Enabled: true, Port: 18888},
			Logging:  LoggingConfig{Format: "json"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
		errMsg    string
	}{
		{
			name:   "valid configuration",
			mutate: func(*Config) {},
		},
		{
			name:      "missing docker host",
			mutate:    func(c *Config) { c.Docker.Host = "" },
			expectErr: true,
			errMsg:    "docker host is required",
		},
		{
			name:      "missing memgraph name",
			mutate:    func(c *Config) { c.Memgraph.Name = "" },
			expectErr: true,
			errMsg:    "memgraph name is required",
		},
		{
			name:      "negative memgraph port",
			mutate:    func(c *Config) { c.Memgraph.Port = -1 },
			expectErr: true,
			errMsg:    "invalid memgraph port",
		},
		{
			name:      "lab host port too high",
			mutate:    func(c *Config) { c.Lab.HostPort = 70000 },
			expectErr: true,
			errMsg:    "invalid lab host port",
		},
		{
			name:      "invalid server port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			expectErr: true,
			errMsg:    "invalid server port",
		},
		{
			name: "server port ignored when disabled",
			mutate: func(c *Config) {
				c.Server.Enabled = false
				c.Server.Port = 0
			},
		},
		{
			name:      "invalid log format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			expectErr: true,
			errMsg:    "invalid log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.expectErr {
				if err == nil {
					t.Errorf("Expected error containing '%s', got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

// TestEnvironmentVariableOverride tests that environment variables override config values.
func TestEnvironmentVariableOverride(t *testing.T) {
	t.Setenv("MG_MEMGRAPH_PORT", "7687")
	t.Setenv("MG_LAB_ENABLED", "false")
	t.Setenv("MG_SERVER_HOST", "127.0.0.1")

	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Memgraph.Port != 7687 {
		t.Errorf("Expected memgraph port 7687 from environment, got %d", cfg.Memgraph.Port)
	}
	if cfg.Lab.Enabled {
		t.Error("Expected lab disabled from environment")
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host '127.0.0.1' from environment, got '%s'", cfg.Server.Host)
	}
}

// TestInvalidEnvironmentRejected tests that validation runs after env overrides.
func TestInvalidEnvironmentRejected(t *testing.T) {
	t.Setenv("MG_LOGGING_FORMAT", "xml")

	if _, err := Load("nonexistent.yaml"); err == nil {
		t.Error("Expected error for invalid log format from environment")
	}
}

// TestGet tests the global config getter.
func TestGet(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	retrieved := Get()
	if retrieved == nil {
		t.Error("Get() returned nil")
		return
	}

	if retrieved.Server.Port != 18888 {
		t.Errorf("Expected port 18888 from Get(), got %d", retrieved.Server.Port)
	}
}
