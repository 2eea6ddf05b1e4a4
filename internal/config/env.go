package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "ALIPAN_GO_CONFIG"
	EnvClientID     = "ALIPAN_GO_CLIENT_ID"
	EnvClientSecret = "ALIPAN_GO_CLIENT_SECRET"
	EnvStateDB      = "ALIPAN_GO_STATE_DB"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // ALIPAN_GO_CONFIG: override config file path
	ClientID     string // ALIPAN_GO_CLIENT_ID
	ClientSecret string // ALIPAN_GO_CLIENT_SECRET
	StateDB      string // ALIPAN_GO_STATE_DB: state database path
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify any Config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		StateDB:      os.Getenv(EnvStateDB),
	}
}

// apply copies the non-empty overrides into cfg.
func (e EnvOverrides) apply(cfg *Config) {
	if e.ClientID != "" {
		cfg.API.ClientID = e.ClientID
	}

	if e.ClientSecret != "" {
		cfg.API.ClientSecret = e.ClientSecret
	}

	if e.StateDB != "" {
		cfg.State.DBPath = e.StateDB
	}
}
