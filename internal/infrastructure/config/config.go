package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the subsystem service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Subsystems SubsystemsConfig `yaml:"subsystems"`
}

// SiteConfig identifies the deployment.
type SiteConfig struct {
	ID   string `yaml:"id"   env:"GRAYLOGIC_SITE_ID"`
	Name string `yaml:"name" env:"GRAYLOGIC_SITE_NAME"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"         env:"GRAYLOGIC_DATABASE_PATH"`
	WALMode     bool   `yaml:"wal_mode"     env:"GRAYLOGIC_DATABASE_WAL_MODE"`
	BusyTimeout int    `yaml:"busy_timeout" env:"GRAYLOGIC_DATABASE_BUSY_TIMEOUT"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos" env:"GRAYLOGIC_MQTT_QOS"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"      env:"GRAYLOGIC_MQTT_HOST"`
	Port     int    `yaml:"port"      env:"GRAYLOGIC_MQTT_PORT"`
	TLS      bool   `yaml:"tls"       env:"GRAYLOGIC_MQTT_TLS"`
	ClientID string `yaml:"client_id" env:"GRAYLOGIC_MQTT_CLIENT_ID"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"GRAYLOGIC_MQTT_USERNAME"`
	Password string `yaml:"password" env:"GRAYLOGIC_MQTT_PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains the operations HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host" env:"GRAYLOGIC_API_HOST"`
	Port     int              `yaml:"port" env:"GRAYLOGIC_API_PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"        env:"GRAYLOGIC_INFLUXDB_ENABLED"`
	URL           string `yaml:"url"            env:"GRAYLOGIC_INFLUXDB_URL"`
	Token         string `yaml:"token"          env:"GRAYLOGIC_INFLUXDB_TOKEN"`
	Org           string `yaml:"org"            env:"GRAYLOGIC_INFLUXDB_ORG"`
	Bucket        string `yaml:"bucket"         env:"GRAYLOGIC_INFLUXDB_BUCKET"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"GRAYLOGIC_LOGGING_LEVEL"`
	Format string `yaml:"format" env:"GRAYLOGIC_LOGGING_FORMAT"`
	Output string `yaml:"output" env:"GRAYLOGIC_LOGGING_OUTPUT"`
}

// TelemetryConfig contains OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"      env:"GRAYLOGIC_TELEMETRY_ENABLED"`
	Endpoint    string  `yaml:"endpoint"     env:"GRAYLOGIC_TELEMETRY_ENDPOINT"`
	Insecure    bool    `yaml:"insecure"     env:"GRAYLOGIC_TELEMETRY_INSECURE"`
	ServiceName string  `yaml:"service_name" env:"GRAYLOGIC_TELEMETRY_SERVICE_NAME"`
	SampleRatio float64 `yaml:"sample_ratio" env:"GRAYLOGIC_TELEMETRY_SAMPLE_RATIO"`
}

// SubsystemsConfig tunes the per-place subsystem runtime.
type SubsystemsConfig struct {
	// QueueDepth is the maximum number of events queued per place.
	QueueDepth int `yaml:"queue_depth" env:"GRAYLOGIC_SUBSYSTEMS_QUEUE_DEPTH"`

	// CacheConcurrency is the expected number of concurrent loaders.
	CacheConcurrency int `yaml:"cache_concurrency" env:"GRAYLOGIC_SUBSYSTEMS_CACHE_CONCURRENCY"`

	// CacheExpireAfterAccess evicts executors idle for this long.
	CacheExpireAfterAccess time.Duration `yaml:"cache_expire_after_access" env:"GRAYLOGIC_SUBSYSTEMS_CACHE_EXPIRE_AFTER_ACCESS"`

	CacheInitialCapacity int `yaml:"cache_initial_capacity" env:"GRAYLOGIC_SUBSYSTEMS_CACHE_INITIAL_CAPACITY"`
	CacheMaxSize         int `yaml:"cache_max_size"         env:"GRAYLOGIC_SUBSYSTEMS_CACHE_MAX_SIZE"`

	// CacheSoftValues enables eviction under memory pressure once the heap
	// exceeds CacheSoftHeapLimitMB.
	CacheSoftValues      bool `yaml:"cache_soft_values"        env:"GRAYLOGIC_SUBSYSTEMS_CACHE_SOFT_VALUES"`
	CacheSoftHeapLimitMB int  `yaml:"cache_soft_heap_limit_mb" env:"GRAYLOGIC_SUBSYSTEMS_CACHE_SOFT_HEAP_LIMIT_MB"`

	// PersistTimeout bounds each persistence call made while committing.
	PersistTimeout time.Duration `yaml:"persist_timeout" env:"GRAYLOGIC_SUBSYSTEMS_PERSIST_TIMEOUT"`

	// RedeliveryAttempts and RedeliveryDelay control how bus messages
	// rejected by a full queue are retried.
	RedeliveryAttempts int           `yaml:"redelivery_attempts" env:"GRAYLOGIC_SUBSYSTEMS_REDELIVERY_ATTEMPTS"`
	RedeliveryDelay    time.Duration `yaml:"redelivery_delay"    env:"GRAYLOGIC_SUBSYSTEMS_REDELIVERY_DELAY"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern GRAYLOGIC_SECTION_KEY, for
// example GRAYLOGIC_DATABASE_PATH or GRAYLOGIC_SUBSYSTEMS_QUEUE_DEPTH.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/subsystems.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-subsystems",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "graylogic-subsystems",
			SampleRatio: 1,
		},
		Subsystems: SubsystemsConfig{
			QueueDepth:             1000,
			CacheConcurrency:       16,
			CacheExpireAfterAccess: 30 * time.Minute,
			CacheInitialCapacity:   100,
			CacheMaxSize:           10000,
			CacheSoftHeapLimitMB:   1024,
			PersistTimeout:         5 * time.Second,
			RedeliveryAttempts:     5,
			RedeliveryDelay:        100 * time.Millisecond,
		},
	}
}

// applyEnvOverrides applies environment variable overrides declared in the
// env struct tags. Only variables that are set replace file values.
func applyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, "telemetry.endpoint is required when telemetry is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, "telemetry.sample_ratio must be between 0 and 1")
	}

	s := c.Subsystems
	if s.QueueDepth < 1 {
		errs = append(errs, "subsystems.queue_depth must be positive")
	}
	if s.CacheMaxSize < 1 {
		errs = append(errs, "subsystems.cache_max_size must be positive")
	}
	if s.CacheExpireAfterAccess <= 0 {
		errs = append(errs, "subsystems.cache_expire_after_access must be positive")
	}
	if s.CacheSoftValues && s.CacheSoftHeapLimitMB < 1 {
		errs = append(errs, "subsystems.cache_soft_heap_limit_mb must be positive when cache_soft_values is set")
	}
	if s.RedeliveryAttempts < 0 {
		errs = append(errs, "subsystems.redelivery_attempts must not be negative")
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

// SoftHeapLimitBytes returns the memory-pressure threshold in bytes.
func (s SubsystemsConfig) SoftHeapLimitBytes() uint64 {
	if s.CacheSoftHeapLimitMB <= 0 {
		return 0
	}
	return uint64(s.CacheSoftHeapLimitMB) << 20
}
