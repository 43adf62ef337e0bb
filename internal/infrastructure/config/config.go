package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	Security  SecurityConfig  `yaml:"security"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Cache     CacheConfig     `yaml:"cache"`
}

// GatewayConfig identifies this gateway instance.
type GatewayConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker connection settings.
// MQTT is optional; when disabled, events are only delivered over WebSocket
// and announcement discovery is unavailable.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for reading telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite settings for the write audit trail.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer-token settings.
// An empty secret leaves the API unauthenticated.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// PluginsConfig describes how plugins are found and reached.
type PluginsConfig struct {
	// TCP lists static plugin addresses ("host:port").
	TCP []string `yaml:"tcp"`

	// Unix configures the unix-socket directory scan.
	Unix UnixDiscoveryConfig `yaml:"unix"`

	// Cluster configures discovery through a cluster service-discovery API.
	Cluster ClusterDiscoveryConfig `yaml:"cluster"`

	// Announcements enables discovery from retained MQTT announcements.
	// Requires mqtt.enabled.
	Announcements bool `yaml:"announcements"`

	// Managed lists plugin binaries the gateway starts and supervises.
	Managed []ManagedPluginConfig `yaml:"managed"`

	// Timeout bounds every plugin RPC.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// DiscoveryInterval re-runs discovery in the background. 0 disables it;
	// discovery then only happens when the device directory is rebuilt
	// after a reset.
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`
}

// UnixDiscoveryConfig configures the unix socket directory scan.
type UnixDiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// ClusterDiscoveryConfig configures the service-discovery endpoint.
type ClusterDiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the URL returning the endpoint list.
	Endpoint string `yaml:"endpoint"`

	// LabelSelector filters the endpoint list (e.g. "app=plugin").
	LabelSelector string `yaml:"label_selector"`

	// PortName selects which named port to use. Empty uses the first port.
	PortName string `yaml:"port_name"`

	// Token is sent as a bearer token when set.
	Token string `yaml:"token"`
}

// ManagedPluginConfig describes a plugin process supervised by the gateway.
type ManagedPluginConfig struct {
	Name               string   `yaml:"name"`
	Binary             string   `yaml:"binary"`
	Args               []string `yaml:"args"`
	Env                []string `yaml:"env"`
	RestartOnFailure   bool     `yaml:"restart_on_failure"`
	RestartDelay       int      `yaml:"restart_delay_seconds"`
	MaxRestartAttempts int      `yaml:"max_restart_attempts"`
}

// CacheConfig contains cache lifetimes.
type CacheConfig struct {
	// MetaTTL bounds the staleness of the device directory and scan tree.
	// Default: 20s
	MetaTTL time.Duration `yaml:"meta_ttl"`

	// TransactionTTL is how long a write transaction can be status-checked.
	// Default: 5m
	TransactionTTL time.Duration `yaml:"transaction_ttl"`

	// TransactionCapacity bounds the number of cached transactions. 0 means unbounded.
	TransactionCapacity int `yaml:"transaction_capacity"`

	// TransactionSweep is how often expired transactions are evicted.
	// Default: 1m
	TransactionSweep time.Duration `yaml:"transaction_sweep"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GATEWAY_SECTION_KEY
// For example: GATEWAY_API_PORT, GATEWAY_PLUGIN_TCP
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// Used when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ID:   "gateway-001",
			Name: "Gray Logic Gateway",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-gateway",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/gateway.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Plugins: PluginsConfig{
			Unix: UnixDiscoveryConfig{
				Dir: "/tmp/graylogic/plugin",
			},
			Timeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			MetaTTL:          20 * time.Second,
			TransactionTTL:   5 * time.Minute,
			TransactionSweep: time.Minute,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GATEWAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("GATEWAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GATEWAY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Logging
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// MQTT
	if v := os.Getenv("GATEWAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GATEWAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GATEWAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GATEWAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("GATEWAY_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Plugins - comma separated list appended to the file's static addresses
	if v := os.Getenv("GATEWAY_PLUGIN_TCP"); v != "" {
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.Plugins.TCP = append(cfg.Plugins.TCP, addr)
			}
		}
	}
	if v := os.Getenv("GATEWAY_PLUGIN_UNIX_DIR"); v != "" {
		cfg.Plugins.Unix.Enabled = true
		cfg.Plugins.Unix.Dir = v
	}
}

// minJWTSecretLength is the shortest accepted HS256 secret.
const minJWTSecretLength = 32

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.ID == "" {
		errs = append(errs, "gateway.id is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Plugins.Timeout <= 0 {
		errs = append(errs, "plugins.timeout must be positive")
	}
	if c.Plugins.Unix.Enabled && c.Plugins.Unix.Dir == "" {
		errs = append(errs, "plugins.unix.dir is required when unix discovery is enabled")
	}
	if c.Plugins.Cluster.Enabled && c.Plugins.Cluster.Endpoint == "" {
		errs = append(errs, "plugins.cluster.endpoint is required when cluster discovery is enabled")
	}
	if c.Plugins.Announcements && !c.MQTT.Enabled {
		errs = append(errs, "plugins.announcements requires mqtt.enabled")
	}
	for i, m := range c.Plugins.Managed {
		if m.Name == "" || m.Binary == "" {
			errs = append(errs, fmt.Sprintf("plugins.managed[%d] requires name and binary", i))
		}
	}

	if c.Cache.MetaTTL <= 0 {
		errs = append(errs, "cache.meta_ttl must be positive")
	}
	if c.Cache.TransactionTTL <= 0 {
		errs = append(errs, "cache.transaction_ttl must be positive")
	}
	if c.Cache.TransactionCapacity < 0 {
		errs = append(errs, "cache.transaction_capacity cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
