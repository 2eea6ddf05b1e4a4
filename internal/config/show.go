package config

import (
	"fmt"
	"io"
)

// redacted replaces secrets in rendered output.
const redacted = "<redacted>"

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	renderAPISection(ew, &cfg.API)
	renderListingSection(ew, &cfg.Listing)
	renderTransfersSection(ew, &cfg.Transfers)
	renderNetworkSection(ew, &cfg.Network)
	renderLoggingSection(ew, &cfg.Logging)
	renderStateSection(ew, cfg)
	renderServerSection(ew, &cfg.Server)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderAPISection(ew *errWriter, a *APIConfig) {
	ew.printf("[api]\n")
	ew.printf("  base_url            = %q\n", a.BaseURL)
	ew.printf("  token_url           = %q\n", a.TokenURL)
	ew.printf("  client_id           = %q\n", a.ClientID)

	if a.ClientSecret != "" {
		ew.printf("  client_secret       = %q\n", redacted)
	}

	ew.printf("  requests_per_second = %g\n", a.RequestsPerSecond)

	if a.UserAgent != "" {
		ew.printf("  user_agent          = %q\n", a.UserAgent)
	}

	ew.printf("  check_name_mode     = %q\n", a.CheckNameMode)
	ew.printf("\n")
}

func renderListingSection(ew *errWriter, l *ListingConfig) {
	ew.printf("[listing]\n")
	ew.printf("  page_size = %d\n", l.PageSize)
	ew.printf("  max_pages = %d\n", l.MaxPages)
	ew.printf("\n")
}

func renderTransfersSection(ew *errWriter, t *TransfersConfig) {
	ew.printf("[transfers]\n")
	ew.printf("  workers              = %d\n", t.Workers)
	ew.printf("  upload_buffer_chunks = %d\n", t.UploadBufferChunks)
	ew.printf("  max_upload_size      = %q\n", t.MaxUploadSize)
	ew.printf("  upload_session_ttl   = %q\n", t.UploadSessionTTL)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("  connect_timeout  = %q\n", n.ConnectTimeout)
	ew.printf("  metadata_timeout = %q\n", n.MetadataTimeout)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderStateSection(ew *errWriter, cfg *Config) {
	ew.printf("[state]\n")
	ew.printf("  db_path       = %q\n", cfg.StatePath())
	ew.printf("  thumbnail_dir = %q\n", cfg.ThumbnailDir())
	ew.printf("\n")
}

func renderServerSection(ew *errWriter, s *ServerConfig) {
	ew.printf("[server]\n")
	ew.printf("  listen = %q\n", s.Listen)
}
