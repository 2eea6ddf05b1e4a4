package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[api]
base_url = "https://api.example.com"
token_url = "https://api.example.com/token"
client_id = "cid"
client_secret = "secret"
requests_per_second = 2.5
user_agent = "test/1.0"
check_name_mode = "auto_rename"

[listing]
page_size = 50
max_pages = 20

[transfers]
workers = 8
upload_buffer_chunks = 4
max_upload_size = "1GiB"
upload_session_ttl = "30m"

[network]
connect_timeout = "5s"
metadata_timeout = "1m"

[logging]
log_level = "debug"
log_format = "json"

[state]
db_path = "/tmp/alipan/state.db"
thumbnail_dir = "/tmp/alipan/thumbs"

[server]
listen = ":9000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, "cid", cfg.API.ClientID)
	assert.InDelta(t, 2.5, cfg.API.RequestsPerSecond, 0.001)
	assert.Equal(t, "auto_rename", cfg.API.CheckNameMode)
	assert.Equal(t, 50, cfg.Listing.PageSize)
	assert.Equal(t, 8, cfg.Transfers.Workers)
	assert.Equal(t, int64(1<<30), cfg.MaxUploadBytes())
	assert.Equal(t, 30*time.Minute, cfg.UploadSessionTTL())
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, time.Minute, cfg.MetadataTimeout())
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.Equal(t, "/tmp/alipan/state.db", cfg.StatePath())
	assert.Equal(t, "/tmp/alipan/thumbs", cfg.ThumbnailDir())
	assert.Equal(t, ":9000", cfg.Server.Listen)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, "[listing]\npage_size = 20\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Listing.PageSize)
	assert.Equal(t, defaultMaxPages, cfg.Listing.MaxPages)
	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, int64(4<<30), cfg.MaxUploadBytes())
	assert.Equal(t, time.Hour, cfg.UploadSessionTTL())
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[listing\npage_size = ")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	path := writeTestConfig(t, `
[listing]
page_size = 500

[logging]
log_level = "loud"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page_size")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, `
[api]
client_id = "from-file"

[server]
listen = "127.0.0.1:1000"
`)

	listen := "127.0.0.1:2000"

	cfg, got, err := Resolve(
		EnvOverrides{ConfigPath: "/ignored.toml", ClientID: "from-env"},
		CLIOverrides{ConfigPath: path, Listen: &listen},
	)
	require.NoError(t, err)

	assert.Equal(t, path, got, "CLI path beats env path")
	assert.Equal(t, "from-env", cfg.API.ClientID, "env beats file")
	assert.Equal(t, "127.0.0.1:2000", cfg.Server.Listen, "CLI beats file")
}

func TestResolve_EnvConfigPath(t *testing.T) {
	path := writeTestConfig(t, "[listing]\nmax_pages = 7\n")

	cfg, got, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, 7, cfg.Listing.MaxPages)
}

func TestResolve_InvalidCLIListen(t *testing.T) {
	listen := "no-port"

	_, _, err := Resolve(EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "x.toml")}, CLIOverrides{Listen: &listen})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}
