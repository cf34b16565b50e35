package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Verification modes for plain authentication.
const (
	// AuthModeLogin drives the user-login statement and compares the returned
	// identity column against the canonicalized input.
	AuthModeLogin = "login"

	// AuthModePassword drives the get-password statement and compares the
	// stored password locally, honoring PasswordEncoding.
	AuthModePassword = "password"
)

// Password encodings understood by the password verification mode.
const (
	EncodingPlain  = "plain"
	EncodingMD5    = "md5"
	EncodingBcrypt = "bcrypt"
)

// envPrefix is stripped from environment variables before they override file
// values, e.g. SQLAUTH_DB_URI -> db-uri.
const envPrefix = "SQLAUTH_"

// Config carries everything the authentication backend needs at construction
// time. Query overrides live in Params and are resolved into a QuerySet.
type Config struct {
	// DBURI is the database/sql DSN for the backing store.
	DBURI string `koanf:"db-uri"`

	// ConnValidInterval is how long a liveness probe result stays fresh.
	ConnValidInterval time.Duration `koanf:"conn-valid-interval"`

	// InitDB runs the init-db statement once after the first connect.
	InitDB bool `koanf:"init-db"`

	AuthMode         string `koanf:"auth-mode"`
	PasswordEncoding string `koanf:"password-encoding"`

	LogLevel      string `koanf:"log-level"`
	TelemetryAddr string `koanf:"telemetry-addr"`

	// Params holds raw operator overrides for query and mechanism keys.
	Params map[string]string `koanf:"-"`
}

// DefaultConfig creates a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ConnValidInterval: 60 * time.Second,
		AuthMode:          AuthModeLogin,
		PasswordEncoding:  EncodingPlain,
		LogLevel:          "info",
		Params:            make(map[string]string),
	}
}

// queryParamKeys are the flat configuration keys collected into Params.
var queryParamKeys = []string{
	KeyConnValid,
	KeyInitDB,
	KeyAddUser,
	KeyDelUser,
	KeyGetPassword,
	KeyUpdatePassword,
	KeyUserLogin,
	KeyUserLogout,
	KeyNonSASLMechs,
	KeySASLMechs,
}

// Load reads configuration from an optional YAML file and SQLAUTH_* environment
// variables, environment taking precedence, on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load configuration file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "_", "-")
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	for _, key := range queryParamKeys {
		if k.Exists(key) {
			cfg.Params[key] = k.String(key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Queries resolves the effective query set from the raw parameters.
func (c *Config) Queries() QuerySet {
	return ResolveQuerySet(c.Params)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DBURI == "" {
		return fmt.Errorf("db-uri cannot be empty")
	}

	if c.ConnValidInterval <= 0 {
		return fmt.Errorf("conn-valid-interval must be positive: %v", c.ConnValidInterval)
	}

	switch c.AuthMode {
	case AuthModeLogin, AuthModePassword:
	default:
		return fmt.Errorf("invalid auth-mode: %s", c.AuthMode)
	}

	switch c.PasswordEncoding {
	case EncodingPlain, EncodingMD5, EncodingBcrypt:
	default:
		return fmt.Errorf("invalid password-encoding: %s", c.PasswordEncoding)
	}

	return nil
}
