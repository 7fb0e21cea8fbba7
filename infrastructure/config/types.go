package config

import (
	"fmt"
	"strconv"
	"time"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `env:"TIMELINE_HOST" yaml:"host"`
	Port         int           `env:"TIMELINE_PORT" yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Debug        bool          `env:"APP_DEBUG" yaml:"debug"`
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// SetDefaults applies default values for ServerConfig.
func (c *ServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8070
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
}

// DatabaseConfig holds relational store configuration. Path is only used by
// the sqlite3 driver.
type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER" yaml:"driver"`
	Host            string        `env:"DB_HOST" yaml:"host"`
	Port            int           `env:"DB_PORT" yaml:"port"`
	User            string        `env:"DB_USER" yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	Database        string        `env:"DB_NAME" yaml:"database"`
	SSLMode         string        `env:"DB_SSLMODE" yaml:"sslmode"`
	Path            string        `env:"DB_PATH" yaml:"path"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", c.Path)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// SetDefaults applies default values for DatabaseConfig.
func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Path == "" {
		c.Path = "timeline.db"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// ElasticsearchConfig holds Elasticsearch configuration.
type ElasticsearchConfig struct {
	URL      string        `env:"ELASTICSEARCH_URL" yaml:"url"`
	Username string        `env:"ELASTICSEARCH_USERNAME" yaml:"username"`
	Password string        `env:"ELASTICSEARCH_PASSWORD" yaml:"password"`
	APIKey   string        `env:"ELASTICSEARCH_API_KEY" yaml:"api_key"`
	Index    string        `env:"ELASTICSEARCH_INDEX" yaml:"index"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SetDefaults applies default values for ElasticsearchConfig.
func (c *ElasticsearchConfig) SetDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:9200"
	}
	if c.Index == "" {
		c.Index = "archive_documents"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED" yaml:"enabled"`
	Address  string `env:"REDIS_ADDRESS" yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB" yaml:"db"`
	PoolSize int    `env:"REDIS_POOL_SIZE" yaml:"pool_size"`

	// ConnectAttempts bounds the startup ping.
	ConnectAttempts int `env:"REDIS_CONNECT_ATTEMPTS" yaml:"connect_attempts"`
}

// SetDefaults applies default values for RedisConfig.
func (c *RedisConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = "localhost:6379"
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = 3
	}
}
