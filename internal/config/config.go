// Package config loads and validates the homefs configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"homefs/internal/sizefmt"
)

// Config represents the homefs server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (HOMEFS_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// The user list is loaded once at startup and is immutable for the process
// lifetime; there is no hot reload.
type Config struct {
	// Server contains HTTP listener settings.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Users is the list of accounts allowed to access the server. Each user
	// is confined to their own home directory.
	Users []UserConfig `mapstructure:"users" validate:"required,min=1,dive" yaml:"users"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080" or "0.0.0.0:8080".
	Addr string `mapstructure:"addr" validate:"required" yaml:"addr"`

	// Realm is the Basic auth realm presented in 401 challenges.
	Realm string `mapstructure:"realm" validate:"required" yaml:"realm"`

	// MaxBodySize limits request bodies, uploads included.
	// Supports human-readable values: "10Gi", "500MB", or plain bytes.
	MaxBodySize sizefmt.ByteSize `mapstructure:"max_body_size" validate:"gt=0" yaml:"max_body_size"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// UserConfig is a single account entry.
//
// Exactly one of Password and PasswordBcrypt must be set. Plaintext
// passwords are supported as an explicit configuration choice for trusted
// networks; password_bcrypt is the hardened alternative (generate hashes
// with `homefs passwd`).
type UserConfig struct {
	// Username identifies the account. Unique within the list.
	Username string `mapstructure:"username" validate:"required" yaml:"username"`

	// Password is the plaintext credential, compared byte-exactly
	// (constant-time) against the Basic auth password.
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// PasswordBcrypt is a bcrypt hash of the credential.
	PasswordBcrypt string `mapstructure:"password_bcrypt" yaml:"password_bcrypt,omitempty"`

	// Home is the absolute path of the directory this user is confined to.
	Home string `mapstructure:"home" validate:"required" yaml:"home"`

	// WriteAccess allows uploads, directory creation, and moves.
	WriteAccess bool `mapstructure:"write_access" yaml:"write_access"`

	// DeleteAccess allows deletes and moves.
	DeleteAccess bool `mapstructure:"delete_access" yaml:"delete_access"`
}

// Load reads the configuration from the given file (or the default search
// path when empty), applies environment overrides and defaults, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		return nil, fmt.Errorf("no configuration file found (looked for %q); run `homefs init` to create one", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to path in YAML form, creating parent
// directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// HOMEFS_LOGGING_LEVEL=DEBUG overrides logging.level, and so on.
	v.SetEnvPrefix("HOMEFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/homefs")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(byteSizeDecodeHook())
}

// byteSizeDecodeHook converts strings and integers in the config file to
// sizefmt.ByteSize, so limits can be written as "10Gi" or "500MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(sizefmt.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return sizefmt.Parse(v)
		case int:
			return sizefmt.ByteSize(v), nil
		case int64:
			return sizefmt.ByteSize(v), nil
		case uint64:
			return sizefmt.ByteSize(v), nil
		case float64:
			return sizefmt.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
