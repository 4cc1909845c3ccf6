package types

import (
	"errors"
	"time"
)

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Mode is "production" (default) or "local". Local mode skips the
	// expiry sweep.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty" mapstructure:"mode"`

	// DataDir holds the SQLite database file.
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty" mapstructure:"data_dir"`

	Region   string `json:"region,omitempty" yaml:"region,omitempty" mapstructure:"region"`
	Database string `json:"database,omitempty" yaml:"database,omitempty" mapstructure:"database"`

	// SecretTagKey and SecretTagValue select the single credential secret.
	SecretTagKey   string `json:"secret_tag_key,omitempty" yaml:"secret_tag_key,omitempty" mapstructure:"secret_tag_key"`
	SecretTagValue string `json:"secret_tag_value,omitempty" yaml:"secret_tag_value,omitempty" mapstructure:"secret_tag_value"`

	// StaticSecret replaces the secret store lookup when its ID is set.
	StaticSecret StaticSecret `json:"static_secret,omitempty" yaml:"static_secret,omitempty" mapstructure:"static_secret"`

	PurgeInterval time.Duration `json:"purge_interval,omitempty" yaml:"purge_interval,omitempty" mapstructure:"purge_interval"`
	ListLimit     int           `json:"list_limit,omitempty" yaml:"list_limit,omitempty" mapstructure:"list_limit"`
	OperationTTL  time.Duration `json:"operation_ttl,omitempty" yaml:"operation_ttl,omitempty" mapstructure:"operation_ttl"`

	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" mapstructure:"log_level"`
	LogJSON  bool   `json:"log_json,omitempty" yaml:"log_json,omitempty" mapstructure:"log_json"`
}

// StaticSecret is a credential supplied directly by configuration.
type StaticSecret struct {
	ID         string `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	ResourceID string `json:"resource_id,omitempty" yaml:"resource_id,omitempty" mapstructure:"resource_id"`
	Database   string `json:"database,omitempty" yaml:"database,omitempty" mapstructure:"database"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty" mapstructure:"username"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	Host       string `json:"host,omitempty" yaml:"host,omitempty" mapstructure:"host"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty" mapstructure:"port"`
}

// Supported backend names.
const (
	BackendRDSData  = "rdsdata"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Execution modes.
const (
	ModeProduction = "production"
	ModeLocal      = "local"
)

// Configuration defaults.
const (
	DefaultPurgeInterval = 10 * time.Minute
	DefaultOperationTTL  = 10 * time.Hour
	DefaultSecretTagKey  = "entitystore-deployment"
	DefaultDatabase      = "entitystore"
)

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrModeUnknown          = errors.New("unknown mode")
	ErrSecretTagEmpty       = errors.New("secret tag value must not be empty")
	ErrPurgeIntervalInvalid = errors.New("purge interval must not be negative")
	ErrListLimitInvalid     = errors.New("list limit must not be negative")
	ErrOperationTTLInvalid  = errors.New("operation ttl must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendRDSData:  true,
	BackendPostgres: true,
	BackendSQLite:   true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Mode != "" && c.Mode != ModeProduction && c.Mode != ModeLocal {
		return ErrModeUnknown
	}
	if c.Backend != BackendSQLite && c.StaticSecret.ID == "" && c.SecretTagValue == "" {
		return ErrSecretTagEmpty
	}
	if c.PurgeInterval < 0 {
		return ErrPurgeIntervalInvalid
	}
	if c.ListLimit < 0 {
		return ErrListLimitInvalid
	}
	if c.OperationTTL < 0 {
		return ErrOperationTTLInvalid
	}
	return nil
}

// WithDefaults returns a copy of c with zero fields set to their defaults.
func (c Config) WithDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeProduction
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.SecretTagKey == "" {
		c.SecretTagKey = DefaultSecretTagKey
	}
	if c.PurgeInterval == 0 {
		c.PurgeInterval = DefaultPurgeInterval
	}
	if c.ListLimit == 0 {
		c.ListLimit = DefaultListLimit
	}
	if c.OperationTTL == 0 {
		c.OperationTTL = DefaultOperationTTL
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// IsLocal reports whether the store runs in local/dev mode.
func (c Config) IsLocal() bool {
	return c.Mode == ModeLocal
}
