package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// byteUnits are the size suffixes accepted in a transfer rate, longest
// first so "kib" is not read as "b".
var byteUnits = []struct {
	suffix string
	bytes  float64
}{
	{"tib", 1 << 40},
	{"gib", 1 << 30},
	{"mib", 1 << 20},
	{"kib", 1 << 10},
	{"tb", 1e12},
	{"gb", 1e9},
	{"mb", 1e6},
	{"kb", 1e3},
	{"b", 1},
}

// ParseRate converts an upload rate such as "5MB/s", "512KiB" or "0" to
// bytes per second. The "/s" suffix is optional and zero means unlimited.
func ParseRate(s string) (int64, error) {
	v := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "/s")
	if v == "" {
		return 0, nil
	}

	mult := 1.0

	for _, u := range byteUnits {
		if strings.HasSuffix(v, u.suffix) {
			mult = u.bytes
			v = strings.TrimSpace(strings.TrimSuffix(v, u.suffix))

			break
		}
	}

	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("invalid rate %q: want a non-negative size such as 5MB/s", s)
	}

	return int64(n * mult), nil
}

// UploadRate returns the upload limit in bytes per second, or 0 when the
// limit is unset or invalid.
func (n *NetworkConfig) UploadRate() int64 {
	r, err := ParseRate(n.UploadBandwidthLimit)
	if err != nil {
		return 0
	}

	return r
}
