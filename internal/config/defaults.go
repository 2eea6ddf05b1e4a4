package config

import "time"

// Default values for configuration options, the bottom layer of the
// override chain.
const (
	DefaultBaseURL            = "https://openapi.alipan.com"
	DefaultTokenURL           = "https://openapi.alipan.com/oauth/access_token"
	defaultRequestsPerSecond  = 10
	defaultCheckNameMode      = "overwrite"
	defaultPageSize           = 100
	defaultMaxPages           = 1000
	defaultWorkers            = 4
	defaultUploadBufferChunks = 16
	defaultMaxUploadSize      = "4GiB"
	defaultUploadSessionTTL   = "1h"
	defaultConnectTimeout     = "10s"
	defaultMetadataTimeout    = "30s"
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultListen             = "127.0.0.1:8787"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           DefaultBaseURL,
			TokenURL:          DefaultTokenURL,
			RequestsPerSecond: defaultRequestsPerSecond,
			CheckNameMode:     defaultCheckNameMode,
		},
		Listing: ListingConfig{
			PageSize: defaultPageSize,
			MaxPages: defaultMaxPages,
		},
		Transfers: TransfersConfig{
			Workers:            defaultWorkers,
			UploadBufferChunks: defaultUploadBufferChunks,
			MaxUploadSize:      defaultMaxUploadSize,
			UploadSessionTTL:   defaultUploadSessionTTL,
		},
		Network: NetworkConfig{
			ConnectTimeout:  defaultConnectTimeout,
			MetadataTimeout: defaultMetadataTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Server: ServerConfig{
			Listen: defaultListen,
		},
	}
}

// MaxUploadBytes returns max_upload_size in bytes. Only valid on a
// validated Config.
func (c *Config) MaxUploadBytes() int64 {
	n, _ := ParseSize(c.Transfers.MaxUploadSize)

	return n
}

// UploadSessionTTL returns upload_session_ttl as a duration.
func (c *Config) UploadSessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Transfers.UploadSessionTTL)

	return d
}

// ConnectTimeout returns connect_timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Network.ConnectTimeout)

	return d
}

// MetadataTimeout returns metadata_timeout as a duration.
func (c *Config) MetadataTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Network.MetadataTimeout)

	return d
}

// StatePath returns the state database path, falling back to the platform
// default.
func (c *Config) StatePath() string {
	if c.State.DBPath != "" {
		return expandTilde(c.State.DBPath)
	}

	return DefaultStatePath()
}

// ThumbnailDir returns the thumbnail cache directory, falling back to the
// platform default.
func (c *Config) ThumbnailDir() string {
	if c.State.ThumbnailDir != "" {
		return expandTilde(c.State.ThumbnailDir)
	}

	return DefaultThumbnailDir()
}
