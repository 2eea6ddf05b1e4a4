// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for alipan-go. Values are layered:
// defaults -> config file -> environment -> CLI flags.
package config

// Config is the top-level configuration parsed from the TOML file. Every
// section is optional; missing keys keep their defaults.
type Config struct {
	API       APIConfig       `toml:"api"`
	Listing   ListingConfig   `toml:"listing"`
	Transfers TransfersConfig `toml:"transfers"`
	Network   NetworkConfig   `toml:"network"`
	Logging   LoggingConfig   `toml:"logging"`
	State     StateConfig     `toml:"state"`
	Server    ServerConfig    `toml:"server"`
}

// APIConfig describes the open API endpoint and the OAuth application the
// refresh credential was issued to.
type APIConfig struct {
	BaseURL           string  `toml:"base_url"`
	TokenURL          string  `toml:"token_url"`
	ClientID          string  `toml:"client_id"`
	ClientSecret      string  `toml:"client_secret"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	UserAgent         string  `toml:"user_agent"`
	CheckNameMode     string  `toml:"check_name_mode"`
}

// ListingConfig controls directory pagination.
type ListingConfig struct {
	PageSize int `toml:"page_size"`
	MaxPages int `toml:"max_pages"`
}

// TransfersConfig controls background workers and uploads.
type TransfersConfig struct {
	Workers            int    `toml:"workers"`
	UploadBufferChunks int    `toml:"upload_buffer_chunks"`
	MaxUploadSize      string `toml:"max_upload_size"`
	UploadSessionTTL   string `toml:"upload_session_ttl"`
}

// NetworkConfig controls HTTP client timeouts. Content transfers have no
// overall timeout; only connection setup is bounded for them.
type NetworkConfig struct {
	ConnectTimeout  string `toml:"connect_timeout"`
	MetadataTimeout string `toml:"metadata_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// StateConfig locates local state. Empty values mean the platform
// defaults from DefaultStatePath and DefaultThumbnailDir.
type StateConfig struct {
	DBPath       string `toml:"db_path"`
	ThumbnailDir string `toml:"thumbnail_dir"`
}

// ServerConfig configures the HTTP host binding started by "serve".
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Listen     *string // serve --listen
}
