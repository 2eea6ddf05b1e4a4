package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_AllSections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.ClientID = "cid"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "/etc/alipan-go/config.toml", &buf))

	out := buf.String()
	assert.Contains(t, out, "/etc/alipan-go/config.toml")

	for _, section := range []string{"[api]", "[listing]", "[transfers]", "[network]", "[logging]", "[state]", "[server]"} {
		assert.Contains(t, out, section)
	}

	assert.Contains(t, out, `client_id           = "cid"`)
	assert.Contains(t, out, `max_upload_size      = "4GiB"`)
}

func TestRenderEffective_RedactsSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.ClientSecret = "hunter2"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "", &buf))

	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), redacted)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(DefaultConfig(), "", failingWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
