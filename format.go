package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
)

// statusf prints a status message to stderr unless --quiet is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// formatSize renders a byte count in binary units, e.g. "1.5 MiB".
func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}

	return humanize.IBytes(uint64(bytes))
}

// formatTime returns a compact timestamp for listings. Timestamps within the
// last week read as relative ("3 hours ago").
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	now := time.Now()

	switch {
	case now.Sub(t) >= 0 && now.Sub(t) < 7*24*time.Hour:
		return humanize.RelTime(t, now, "ago", "from now")
	case t.Year() == now.Year():
		return t.Local().Format("Jan _2 15:04")
	default:
		return t.Local().Format("Jan _2  2006")
	}
}

// stdoutIsTerminal reports whether tables should be aligned for a reader.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// printTable writes aligned columns with a header row. When aligned is false
// it writes tab-separated rows without a header, for scripts.
func printTable(w io.Writer, headers []string, rows [][]string, aligned bool) {
	if !aligned {
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}

		return
	}

	// Column widths are display cells; drive titles are double-width CJK.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = runewidth.FillRight(cell, widths[i])
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
