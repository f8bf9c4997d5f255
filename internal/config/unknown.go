package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownSections maps each config table to its valid keys.
var knownSections = map[string][]string{
	"api": {
		"base_url", "platform", "device", "mode", "production_url",
		"dev_host", "dev_port", "dev_scheme",
	},
	"network": {
		"request_timeout", "upload_timeout", "probe_timeout", "max_retries",
		"user_agent", "upload_bandwidth_limit",
	},
	"storage": {"backend", "path"},
	"logging": {"log_level", "log_format"},
	"ui":      {"theme"},
}

// knownSectionList is the sorted list of table names. Sorted for
// deterministic suggestions when two candidates have the same edit distance.
var knownSectionList = func() []string {
	names := make([]string, 0, len(knownSections))
	for name, keys := range knownSections {
		sort.Strings(keys)

		names = append(names, name)
	}

	sort.Strings(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	reported := make(map[string]bool)

	for _, key := range md.Undecoded() {
		// An unknown table also leaves its children undecoded; report it once.
		if len(key) > 0 && knownSections[key[0]] == nil {
			if reported[key[0]] {
				continue
			}

			reported[key[0]] = true
		}

		errs = append(errs, buildKeyError(key))
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an undecoded key,
// suggesting the closest known section or key when one is near enough.
func buildKeyError(key toml.Key) error {
	if len(key) == 0 {
		return errors.New("unknown config key")
	}

	section := key[0]

	keys, ok := knownSections[section]
	if !ok || len(key) == 1 {
		if suggestion := closestMatch(section, knownSectionList); suggestion != "" && suggestion != section {
			return fmt.Errorf("unknown config key %q: did you mean [%s]?", section, suggestion)
		}

		return fmt.Errorf("unknown config key %q", section)
	}

	field := key[1]
	if suggestion := closestMatch(field, keys); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s]: did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Use single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
