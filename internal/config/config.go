// Package config loads the configuration of the registry service and its tools. Values come from
// an optional YAML file, in which ${VAR_NAME} references are expanded, and are then overridden by
// the environment variables the service has always used (PORT, DBUSER, DBPWD, ...).
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Admin    AdminConfig    `yaml:"admin"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Public   PublicConfig   `yaml:"public"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	GinLogging bool   `yaml:"gin_logging"`
}

// DatabaseConfig holds the connection parameters of the SQL database behind the REST API.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	// URL takes precedence over the individual fields if set.
	URL string `yaml:"url"`
}

// AdminConfig holds the shared admin secret.
type AdminConfig struct {
	Password string `yaml:"password"`
}

// StorageConfig selects the record store backend of clients.
type StorageConfig struct {
	Backend   string `yaml:"backend"`
	LocalPath string `yaml:"local_path"`
	Namespace string `yaml:"namespace"`
	RemoteURL string `yaml:"remote_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PublicConfig holds the external address under which the view pages are reachable.
type PublicConfig struct {
	BaseURL string `yaml:"base_url"`
}

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Default returns the configuration used when neither file nor environment say otherwise.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", GinLogging: true},
		Database: DatabaseConfig{
			Driver:  DriverPostgres,
			Host:    "localhost",
			User:    "postgres",
			Name:    "postgres",
			SSLMode: "disable",
		},
		Storage: StorageConfig{
			Backend:   BackendRemote,
			LocalPath: "qrinfo.db",
			Namespace: "personal_info_data",
			RemoteURL: "http://localhost:8080",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Public:  PublicConfig{BaseURL: "http://localhost:8080"},
	}
}

// Load reads the YAML file at path on top of the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expandedData := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// FromEnv is Load without a config file.
func FromEnv() (*Config, error) {
	return Load("")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// applyEnv overrides the configuration with the environment variables that are set.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(name string, target *string) {
		if v, ok := lookup(name); ok && v != "" {
			*target = v
		}
	}
	if port, ok := lookup("PORT"); ok && port != "" {
		c.Server.Addr = ":" + port
	}
	if v, ok := lookup("GIN_LOGGING"); ok && v != "" {
		c.Server.GinLogging = !strings.EqualFold(v, "off")
	}
	set("DBDRIVER", &c.Database.Driver)
	set("DBHOST", &c.Database.Host)
	set("DBPORT", &c.Database.Port)
	set("DBUSER", &c.Database.User)
	set("DBPWD", &c.Database.Password)
	set("DBNAME", &c.Database.Name)
	set("DATABASE_URL", &c.Database.URL)
	set("ADMIN_PASSWORD", &c.Admin.Password)
	set("STORAGE_BACKEND", &c.Storage.Backend)
	set("STORAGE_PATH", &c.Storage.LocalPath)
	set("REMOTE_URL", &c.Storage.RemoteURL)
	set("LOG_LEVEL", &c.Logging.Level)
	set("LOG_FORMAT", &c.Logging.Format)
	set("PUBLIC_BASE_URL", &c.Public.BaseURL)
}

// Validate checks the values that every binary depends on. Returns an error describing the first
// validation failure encountered.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMySQL, c.Database.Driver)
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("storage.local_path is required for the local backend")
		}
	case BackendRemote:
		if c.Storage.RemoteURL == "" {
			return fmt.Errorf("storage.remote_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendLocal, BackendRemote, c.Storage.Backend)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// RequireAdminPassword fails if no admin secret is configured. Binaries that gate access call it
// in addition to Validate.
func (c *Config) RequireAdminPassword() error {
	if c.Admin.Password == "" {
		return fmt.Errorf("admin.password is required (or set ADMIN_PASSWORD)")
	}
	return nil
}

// DSN returns the data source name for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	switch d.Driver {
	case DriverMySQL:
		port := d.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", d.User, d.Password, d.Host, port, d.Name)
	default:
		port := d.Port
		if port == "" {
			port = "5432"
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   d.Host + ":" + port,
			Path:   "/" + d.Name,
		}
		if d.SSLMode != "" {
			u.RawQuery = "sslmode=" + url.QueryEscape(d.SSLMode)
		}
		return u.String()
	}
}
