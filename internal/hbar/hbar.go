// Package hbar provides shared HBAR parsing and formatting utilities.
//
// HBAR uses 8 decimal places. Amounts are carried as int64 tinybars
// (1 HBAR = 100,000,000 tinybars); the 50B HBAR total supply fits an
// int64 with room to spare. Transfer legs are signed: debits negative,
// credits positive.
package hbar

import (
	"strconv"
	"strings"
)

const (
	// Decimals is the number of fractional digits in an HBAR amount.
	Decimals = 8

	// TinybarsPerHbar is the smallest-unit scale factor.
	TinybarsPerHbar = 100_000_000
)

// Parse converts a decimal string (e.g. "1.5", "-0.00000001") to tinybars.
// Returns (0, false) on invalid input.
//
// Rules:
//   - Empty string parses as zero
//   - A single leading '-' is allowed
//   - Multiple decimal points are rejected
//   - Fractional digits beyond 8 places are rejected (not silently truncated;
//     a signing UI must never display a different amount than the chain sees)
func Parse(s string) (int64, bool) {
	if s == "" {
		return 0, true
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if s == "" || strings.HasPrefix(s, "-") {
		return 0, false
	}

	whole, frac, found := strings.Cut(s, ".")
	if strings.Contains(frac, ".") {
		return 0, false
	}
	if found && frac == "" && whole == "" {
		return 0, false
	}
	if len(frac) > Decimals {
		return 0, false
	}
	for len(frac) < Decimals {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	v, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// Format converts tinybars to a decimal string with exactly 8 fractional
// digits (e.g. "1.50000000").
func Format(tinybars int64) string {
	neg := tinybars < 0
	abs := tinybars
	if neg {
		abs = -abs
	}

	s := strconv.FormatInt(abs, 10)
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	cut := len(s) - Decimals
	out := s[:cut] + "." + s[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

// Float converts tinybars to a float64 HBAR value. Display and
// tolerance-comparison use only; never feed the result back into a
// transaction.
func Float(tinybars int64) float64 {
	return float64(tinybars) / TinybarsPerHbar
}
