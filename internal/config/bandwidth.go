package config

import (
	"fmt"
	"strings"

	units "github.com/docker/go-units"
)

// ParseBandwidth parses a human-readable bandwidth string to bits/sec.
// Supports formats: "100k", "100m", "1.5g" (case insensitive, SI units).
// Empty and "0" mean unlimited; other bare numbers are rejected.
func ParseBandwidth(s string) (uint64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "0" || s == "0.0" {
		return 0, nil
	}
	var multiplier float64
	switch s[len(s)-1] {
	case 'k':
		multiplier = 1e3
	case 'm':
		multiplier = 1e6
	case 'g':
		multiplier = 1e9
	default:
		return 0, fmt.Errorf("bandwidth must include unit suffix (k/m/g): %q", s)
	}
	var value float64
	if _, err := fmt.Sscanf(strings.TrimSpace(s[:len(s)-1]), "%f", &value); err != nil {
		return 0, fmt.Errorf("invalid bandwidth value: %q", s)
	}
	if value < 0 {
		return 0, fmt.Errorf("bandwidth cannot be negative: %q", s)
	}
	return uint64(value * multiplier), nil
}

// ParseSize parses a byte size such as "64KiB", "1MiB" or "1048576".
// Binary suffixes are 1024-based, decimal ones ("1MB") 1000-based.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.Contains(strings.ToLower(s), "i") {
		n, err := units.RAMInBytes(s)
		if err != nil {
			return 0, fmt.Errorf("invalid size value: %q", s)
		}
		return n, nil
	}
	n, err := units.FromHumanSize(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %q", s)
	}
	return n, nil
}
