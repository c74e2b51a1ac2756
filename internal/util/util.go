// Package util parses arguments passed by the host.
package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArgs unquotes every argument in place and returns args.
func CleanArgs(args []string) []string {
	for i, v := range args {
		args[i] = FixEscapeQuotes(TrimQuotes(strings.TrimSpace(v)))
	}
	return args
}

// ParseFloat32 parses a finite number.
func ParseFloat32(s string) (float32, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid number %q: not finite", s)
	}
	return float32(f), nil
}

// Float32Args parses args[i] for each i, defaulting missing trailing
// arguments to 0.
func Float32Args(args []string, n int) ([]float32, error) {
	if len(args) > n {
		return nil, fmt.Errorf("expected at most %d arguments, got %d", n, len(args))
	}
	out := make([]float32, n)
	for i, a := range args {
		if strings.TrimSpace(a) == "" {
			continue
		}
		f, err := ParseFloat32(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}
