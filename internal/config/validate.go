package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Validation range constants.
const (
	minWorkers         = 1
	maxWorkers         = 64
	minPageSize        = 1
	maxPageSize        = 100
	minMaxPages        = 1
	minBufferChunks    = 1
	maxBufferChunks    = 1024
	minConnectTimeout  = 1 * time.Second
	minMetadataTimeout = 5 * time.Second
	minUploadSession   = 1 * time.Minute
	maxRequestsPerSec  = 1000
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validLogFormats    = []string{"auto", "text", "json"}
	validCheckNameMode = []string{"overwrite", "auto_rename", "refuse"}
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateListing(&cfg.Listing)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateServer(&cfg.Server)...)

	return errors.Join(errs...)
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	errs = append(errs, validateURL("base_url", a.BaseURL)...)
	errs = append(errs, validateURL("token_url", a.TokenURL)...)

	if a.RequestsPerSecond < 0 || a.RequestsPerSecond > maxRequestsPerSec {
		errs = append(errs, fmt.Errorf("requests_per_second: must be between 0 and %d, got %g",
			maxRequestsPerSec, a.RequestsPerSecond))
	}

	if !slices.Contains(validCheckNameMode, a.CheckNameMode) {
		errs = append(errs, fmt.Errorf("check_name_mode: must be one of %s, got %q",
			strings.Join(validCheckNameMode, ", "), a.CheckNameMode))
	}

	return errs
}

func validateURL(field, value string) []error {
	u, err := url.Parse(value)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute http(s) URL, got %q", field, value)}
	}

	return nil
}

func validateListing(l *ListingConfig) []error {
	var errs []error

	if l.PageSize < minPageSize || l.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("page_size: must be between %d and %d, got %d",
			minPageSize, maxPageSize, l.PageSize))
	}

	if l.MaxPages < minMaxPages {
		errs = append(errs, fmt.Errorf("max_pages: must be at least %d, got %d", minMaxPages, l.MaxPages))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.Workers < minWorkers || t.Workers > maxWorkers {
		errs = append(errs, fmt.Errorf("workers: must be between %d and %d, got %d",
			minWorkers, maxWorkers, t.Workers))
	}

	if t.UploadBufferChunks < minBufferChunks || t.UploadBufferChunks > maxBufferChunks {
		errs = append(errs, fmt.Errorf("upload_buffer_chunks: must be between %d and %d, got %d",
			minBufferChunks, maxBufferChunks, t.UploadBufferChunks))
	}

	n, err := ParseSize(t.MaxUploadSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("max_upload_size: %w", err))
	} else if n <= 0 {
		errs = append(errs, errors.New("max_upload_size: must be positive"))
	}

	if err := validateDuration("upload_session_ttl", t.UploadSessionTTL, minUploadSession); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if err := validateDuration("connect_timeout", n.ConnectTimeout, minConnectTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("metadata_timeout", n.MetadataTimeout, minMetadataTimeout); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be at least %s, got %s", field, minimum, d)
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !slices.Contains(validLogLevels, l.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %s, got %q",
			strings.Join(validLogLevels, ", "), l.LogLevel))
	}

	if !slices.Contains(validLogFormats, l.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format: must be one of %s, got %q",
			strings.Join(validLogFormats, ", "), l.LogFormat))
	}

	return errs
}

func validateServer(s *ServerConfig) []error {
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		return []error{fmt.Errorf("listen: %w", err)}
	}

	return nil
}
