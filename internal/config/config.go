package config

import (
	"fmt"
	"os"
	"time"

	"github.com/clusterkit/clusterkit/internal/tls"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for a clusterkit client: the
// bootstrap aggregator, credentials, pool/queue/lock defaults, and the
// ambient logging/metrics/Redis-distribution concerns.
type Config struct {
	Primary    PrimaryConfig    `yaml:"primary"`
	Pool       PoolConfig       `yaml:"pool"`
	Queue      QueueConfig      `yaml:"queue"`
	Lock       LockConfig       `yaml:"lock"`
	TLS        TLSConfig        `yaml:"tls"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PrimaryConfig is the bootstrap contact point used to discover the
// aggregator list, plus the credentials used against every aggregator.
type PrimaryConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`     // default "root"
	Password string `yaml:"password"` // default ""
	Database string `yaml:"database"` // default "information_schema"
}

// PoolConfig configures the connection handle's idle-reconnect behavior
// and driver options forwarded verbatim.
type PoolConfig struct {
	MaxIdleTime time.Duration     `yaml:"max_idle_time"` // default 25200s (7h)
	Options     map[string]string `yaml:"options"`
}

// QueueConfig names the step-queue tables this process manages and their
// reclamation TTL.
type QueueConfig struct {
	Names         []string      `yaml:"names"`
	TTL           time.Duration `yaml:"ttl"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// LockConfig names the lock namespaces this process manages and their
// default expiry.
type LockConfig struct {
	Names         []string      `yaml:"names"`
	Expiry        time.Duration `yaml:"expiry"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// TLSConfig configures TLS for backend connections to the cluster.
type TLSConfig struct {
	Backend tls.Config `yaml:"backend"`
}

// RedisConfig configures the optional hot-reload config distribution
// channel.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	PoolSize int    `yaml:"pool_size"`
}

// APIConfig configures the management HTTP surface (stats, health,
// config distribution, queue bulk-finish).
type APIConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// MonitoringConfig configures the Prometheus metrics endpoint.
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPort    int    `yaml:"prometheus_port"`
	MetricsPath       string `yaml:"metrics_path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses a YAML configuration file, applying defaults and
// validating the result.
func Load(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Primary.User == "" {
		c.Primary.User = "root"
	}
	if c.Primary.Database == "" {
		c.Primary.Database = "information_schema"
	}
	if c.Pool.MaxIdleTime == 0 {
		c.Pool.MaxIdleTime = 25200 * time.Second
	}
	if c.Queue.TTL == 0 {
		c.Queue.TTL = 60 * time.Second
	}
	if c.Queue.RetryInterval == 0 {
		c.Queue.RetryInterval = time.Second
	}
	if c.Lock.Expiry == 0 {
		c.Lock.Expiry = 60 * time.Second
	}
	if c.Lock.RetryInterval == 0 {
		c.Lock.RetryInterval = time.Second
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Primary.Host == "" {
		return fmt.Errorf("primary host is required")
	}
	if c.Primary.Port == 0 {
		return fmt.Errorf("primary port is required")
	}
	if c.Queue.TTL <= 0 {
		return fmt.Errorf("queue ttl must be positive")
	}
	if c.Lock.Expiry <= 0 {
		return fmt.Errorf("lock expiry must be positive")
	}
	if c.TLS.Backend.Enabled && c.TLS.Backend.CAFile == "" && !c.TLS.Backend.SkipVerify {
		return fmt.Errorf("backend TLS requires a CA file unless skip_verify is set")
	}
	return nil
}
