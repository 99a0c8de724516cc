// Package money provides fixed-point parsing and formatting for token
// amounts.
//
// Traded tokens declare their own decimal precision, so every function takes
// the token's decimals explicitly. Amounts are held as big.Int in the
// smallest unit; no floating point anywhere in the money path.
package money

import (
	"math/big"
	"strings"
)

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation for a token with the given decimals.
// Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts longer than the token's decimals are rejected;
//     silently truncating would quote a different amount than requested
func Parse(s string, decimals uint8) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	d := int(decimals)
	if len(frac) > d {
		return nil, false
	}
	for len(frac) < d {
		frac += "0"
	}

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a smallest-unit big.Int to a human-readable decimal
// string with exactly the token's decimal places.
func Format(amount *big.Int, decimals uint8) string {
	d := int(decimals)
	if amount == nil {
		if d == 0 {
			return "0"
		}
		return "0." + strings.Repeat("0", d)
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < d+1 {
		s = "0" + s
	}
	result := s
	if d > 0 {
		split := len(s) - d
		result = s[:split] + "." + s[split:]
	}
	if neg {
		result = "-" + result
	}
	return result
}

// Scale returns 10^decimals as a big.Int.
func Scale(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
