package config

import "homefs/internal/sizefmt"

// Default values applied when the configuration omits them.
const (
	DefaultAddr   = ":8080"
	DefaultRealm  = "homefs"
	DefaultLevel  = "INFO"
	DefaultFormat = "text"
	DefaultOutput = "stdout"
)

// DefaultMaxBodySize caps request bodies at 10 GiB.
const DefaultMaxBodySize = sizefmt.ByteSize(10 << 30)

// ApplyDefaults fills in zero-valued fields. Validation still runs
// afterwards, so required fields that have no default (the user list) stay
// mandatory.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.Realm == "" {
		cfg.Server.Realm = DefaultRealm
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultFormat
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = DefaultOutput
	}
}

// SampleConfig returns a configuration suitable for `homefs init`.
func SampleConfig() *Config {
	cfg := &Config{
		Users: []UserConfig{
			{
				Username:     "alice",
				Password:     "change-me",
				Home:         "/srv/homefs/alice",
				WriteAccess:  true,
				DeleteAccess: true,
			},
			{
				Username:     "guest",
				Password:     "guest",
				Home:         "/srv/homefs/guest",
				WriteAccess:  false,
				DeleteAccess: false,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
