package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
gateway:
  id: "test-gateway"
api:
  host: "0.0.0.0"
  port: 5050
plugins:
  tcp:
    - "10.0.0.5:5001"
    - "10.0.0.6:5001"
  unix:
    enabled: true
    dir: "/run/plugins"
  timeout: 2s
cache:
  meta_ttl: 30s
  transaction_ttl: 10m
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.ID != "test-gateway" {
		t.Errorf("Gateway.ID = %q, want %q", cfg.Gateway.ID, "test-gateway")
	}
	if cfg.API.Port != 5050 {
		t.Errorf("API.Port = %d, want 5050", cfg.API.Port)
	}
	if len(cfg.Plugins.TCP) != 2 || cfg.Plugins.TCP[1] != "10.0.0.6:5001" {
		t.Errorf("Plugins.TCP = %v, want two addresses", cfg.Plugins.TCP)
	}
	if !cfg.Plugins.Unix.Enabled || cfg.Plugins.Unix.Dir != "/run/plugins" {
		t.Errorf("Plugins.Unix = %+v, want enabled /run/plugins", cfg.Plugins.Unix)
	}
	if cfg.Plugins.Timeout != 2*time.Second {
		t.Errorf("Plugins.Timeout = %v, want 2s", cfg.Plugins.Timeout)
	}
	if cfg.Cache.MetaTTL != 30*time.Second {
		t.Errorf("Cache.MetaTTL = %v, want 30s", cfg.Cache.MetaTTL)
	}
	if cfg.Cache.TransactionTTL != 10*time.Minute {
		t.Errorf("Cache.TransactionTTL = %v, want 10m", cfg.Cache.TransactionTTL)
	}
	// Unset values keep their defaults
	if cfg.Cache.TransactionSweep != time.Minute {
		t.Errorf("Cache.TransactionSweep = %v, want default 1m", cfg.Cache.TransactionSweep)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
gateway:
  id: ""
api:
  port: 5000
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty gateway.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing gateway ID",
			mutate:  func(c *Config) { c.Gateway.ID = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
		{
			name:    "JWT secret long enough",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "test-secret-key-at-least-32-chars!" },
			wantErr: false,
		},
		{
			name:    "zero plugin timeout",
			mutate:  func(c *Config) { c.Plugins.Timeout = 0 },
			wantErr: true,
		},
		{
			name: "cluster discovery without endpoint",
			mutate: func(c *Config) {
				c.Plugins.Cluster.Enabled = true
			},
			wantErr: true,
		},
		{
			name:    "announcements without mqtt",
			mutate:  func(c *Config) { c.Plugins.Announcements = true },
			wantErr: true,
		},
		{
			name: "announcements with mqtt",
			mutate: func(c *Config) {
				c.Plugins.Announcements = true
				c.MQTT.Enabled = true
			},
			wantErr: false,
		},
		{
			name: "managed plugin without binary",
			mutate: func(c *Config) {
				c.Plugins.Managed = []ManagedPluginConfig{{Name: "emulator"}}
			},
			wantErr: true,
		},
		{
			name:    "zero meta ttl",
			mutate:  func(c *Config) { c.Cache.MetaTTL = 0 },
			wantErr: true,
		},
		{
			name:    "negative transaction capacity",
			mutate:  func(c *Config) { c.Cache.TransactionCapacity = -1 },
			wantErr: true,
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()
	cfg.Plugins.TCP = []string{"10.0.0.1:5001"}

	t.Setenv("GATEWAY_API_HOST", "192.168.1.1")
	t.Setenv("GATEWAY_API_PORT", "5555")
	t.Setenv("GATEWAY_LOG_LEVEL", "debug")
	t.Setenv("GATEWAY_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GATEWAY_MQTT_USERNAME", "testuser")
	t.Setenv("GATEWAY_MQTT_PASSWORD", "testpass")
	t.Setenv("GATEWAY_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GATEWAY_JWT_SECRET", "jwt-secret")
	t.Setenv("GATEWAY_PLUGIN_TCP", "10.0.0.2:5001, 10.0.0.3:5001,")
	t.Setenv("GATEWAY_PLUGIN_UNIX_DIR", "/var/run/plugins")

	applyEnvOverrides(cfg)

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 5555 {
		t.Errorf("API.Port = %d, want 5555", cfg.API.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}

	wantTCP := []string{"10.0.0.1:5001", "10.0.0.2:5001", "10.0.0.3:5001"}
	if len(cfg.Plugins.TCP) != len(wantTCP) {
		t.Fatalf("Plugins.TCP = %v, want %v", cfg.Plugins.TCP, wantTCP)
	}
	for i := range wantTCP {
		if cfg.Plugins.TCP[i] != wantTCP[i] {
			t.Errorf("Plugins.TCP[%d] = %q, want %q", i, cfg.Plugins.TCP[i], wantTCP[i])
		}
	}

	if !cfg.Plugins.Unix.Enabled || cfg.Plugins.Unix.Dir != "/var/run/plugins" {
		t.Errorf("Plugins.Unix = %+v, want enabled /var/run/plugins", cfg.Plugins.Unix)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Gateway.ID == "" {
		t.Error("defaultConfig should have non-empty Gateway.ID")
	}
	if cfg.API.Port != 5000 {
		t.Errorf("defaultConfig API.Port = %d, want 5000", cfg.API.Port)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Plugins.Timeout != 5*time.Second {
		t.Errorf("defaultConfig Plugins.Timeout = %v, want 5s", cfg.Plugins.Timeout)
	}
	if cfg.Cache.TransactionTTL != 5*time.Minute {
		t.Errorf("defaultConfig Cache.TransactionTTL = %v, want 5m", cfg.Cache.TransactionTTL)
	}
}
