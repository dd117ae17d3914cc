package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version     int               `yaml:"version"`
	Mode        string            `yaml:"mode,omitempty"` // empty = follow probe recommendation
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Layers      LayersConfig      `yaml:"layers"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Export      ExportConfig      `yaml:"export"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	Debug    bool   `yaml:"debug"`
	AppLabel string `yaml:"app_label"` // permission prefix, e.g. strata.view_layer
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"sslmode"`
	PoolSize int    `yaml:"pool_size"`
}

// DSN returns a keyword/value connection string for the configured
// database, suitable for single connections.
func (d DatabaseConfig) DSN() string {
	return d.DSNFor(d.Name)
}

// DSNFor returns a connection string for another database on the same
// server, used when administering freshly created databases.
func (d DatabaseConfig) DSNFor(dbname string) string {
	parts := []string{
		"host=" + d.Host,
		fmt.Sprintf("port=%d", d.Port),
		"dbname=" + dbname,
		"user=" + d.User,
	}
	if d.Password != "" {
		parts = append(parts, "password="+d.Password)
	}
	if d.SSLMode != "" {
		parts = append(parts, "sslmode="+d.SSLMode)
	}
	return strings.Join(parts, " ")
}

// PoolDSN returns the connection string with pool settings attached.
// Only pgxpool understands pool_max_conns, so this variant never feeds
// a single connection.
func (d DatabaseConfig) PoolDSN() string {
	dsn := d.DSN()
	if d.PoolSize > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", d.PoolSize)
	}
	return dsn
}

// LayersConfig points at the layer definition file
type LayersConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"` // reload layer definitions on file change
}

// AttachmentsConfig holds attachment file settings. The sweep removes
// files under BasePath that no row in SweepTable references anymore.
type AttachmentsConfig struct {
	BasePath      string   `yaml:"base_path,omitempty"`
	SweepTable    string   `yaml:"sweep_table,omitempty"` // schema.table holding file references
	SweepColumn   string   `yaml:"sweep_column,omitempty"`
	SweepInterval Duration `yaml:"sweep_interval,omitempty"`
	SweepAge      Duration `yaml:"sweep_age,omitempty"` // leave young files alone
}

// SweepEnabled reports whether the orphan file sweep should run
func (a AttachmentsConfig) SweepEnabled() bool {
	return a.SweepTable != "" && a.SweepColumn != "" && a.BasePath != ""
}

// ExportConfig holds GeoPackage export settings
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// AuthConfig holds API key authentication settings
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []APIKey `yaml:"keys,omitempty"`
	// Groups maps a group name to the permissions it grants,
	// e.g. editors: [strata.add_record, strata.change_record].
	// The permission "*" grants everything.
	Groups map[string][]string `yaml:"groups,omitempty"`
}

// APIKey is one authorized client. KeyHash is a bcrypt hash of the key;
// plaintext keys never land in the config file.
type APIKey struct {
	Name    string   `yaml:"name"`
	KeyHash string   `yaml:"key_hash"`
	Groups  []string `yaml:"groups,omitempty"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Queries bool `yaml:"queries"` // log every SQL statement with bound values
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
