package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kibibytes", 1536, "1.5 KiB"},
		{"mebibytes", 5242880, "5.0 MiB"},
		{"gibibytes", 1610612736, "1.5 GiB"},
		{"negative clamps", -1, "0 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "-", formatTime(time.Time{}))
	})

	t.Run("recent is relative", func(t *testing.T) {
		assert.Equal(t, "3 hours ago", formatTime(time.Now().Add(-3*time.Hour-time.Minute)))
	})

	t.Run("different year", func(t *testing.T) {
		got := formatTime(time.Date(2020, time.December, 25, 12, 0, 0, 0, time.Local))
		assert.Contains(t, got, "Dec")
		assert.Contains(t, got, "25")
		assert.Contains(t, got, "2020")
	})
}

func TestPrintTable_Aligned(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"ROOT", "TITLE"}, [][]string{
		{"backup", "阿里云盘(备份盘)"},
		{"x", "y"},
	}, true)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ROOT    TITLE", lines[0])
	assert.Equal(t, "backup  阿里云盘(备份盘)", lines[1])
	assert.Equal(t, "x       y", lines[2])
}

func TestPrintTable_Plain(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "SIZE"}, [][]string{{"a.txt", "1 B"}}, false)

	assert.Equal(t, "a.txt\t1 B\n", buf.String())
}
