package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of every config section.
var knownKeys = map[string][]string{
	"api": {
		"base_url", "token_url", "client_id", "client_secret",
		"requests_per_second", "user_agent", "check_name_mode",
	},
	"listing":   {"page_size", "max_pages"},
	"transfers": {"workers", "upload_buffer_chunks", "max_upload_size", "upload_session_ttl"},
	"network":   {"connect_timeout", "metadata_timeout"},
	"logging":   {"log_level", "log_format"},
	"state":     {"db_path", "thumbnail_dir"},
	"server":    {"listen"},
}

// knownSectionsList is the sorted list of section names for Levenshtein
// matching. Sorted for deterministic suggestions when two candidates have
// the same edit distance.
var knownSectionsList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	seen := make(map[string]bool)

	for _, key := range undecoded {
		err := unknownKeyError(key)
		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key, suggesting the closest known
// section or key.
func unknownKeyError(key toml.Key) error {
	section := key[0]

	sectionKeys, ok := knownKeys[section]
	if !ok {
		if suggestion := closestMatch(section, knownSectionsList); suggestion != "" {
			return fmt.Errorf("unknown config key %q; did you mean [%s]?", section, suggestion)
		}

		return fmt.Errorf("unknown config key %q", section)
	}

	if len(key) < 2 {
		return nil
	}

	field := key[1]

	candidates := slices.Clone(sectionKeys)
	sort.Strings(candidates)

	if suggestion := closestMatch(field, candidates); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s]; did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

// closestMatch returns the first of known within maxLevenshteinDistance
// edits of unknown, preferring the nearest, or "".
func closestMatch(unknown string, known []string) string {
	best, bestDist := "", maxLevenshteinDistance+1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			best, bestDist = k, d
		}
	}

	return best
}

// levenshtein is the rune-wise edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}

	for i, ca := range ra {
		diag := row[0]
		row[0] = i + 1

		for j, cb := range rb {
			sub := diag
			if ca != cb {
				sub++
			}

			diag = row[j+1]
			row[j+1] = min(row[j+1]+1, row[j]+1, sub)
		}
	}

	return row[len(rb)]
}
