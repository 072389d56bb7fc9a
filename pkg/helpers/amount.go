// Package helpers provides exact conversions between decimal amount
// strings and smallest-unit integers. All payout arithmetic happens on the
// integer side; these functions are the only crossing point.
package helpers

import (
	"fmt"
	"math/big"
	"strings"
)

// CoinDecimals is the fractional precision every supported currency uses.
const CoinDecimals = 8

// FormatAmount formats an amount in smallest units as a decimal string
// with trailing zeros trimmed. For example, FormatAmount(100000000, 8)
// returns "1".
func FormatAmount(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", amount)
	}

	amountBig := new(big.Int).SetUint64(amount)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	whole := new(big.Int).Div(amountBig, divisor)
	frac := new(big.Int).Mod(amountBig, divisor)

	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := fmt.Sprintf("%0*d", int(decimals), frac)
	// Trim trailing zeros
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}

	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}

// FormatFixed formats an amount in smallest units as a decimal string with
// exactly decimals fractional digits. FormatFixed(50000000, 8) returns
// "0.50000000". This is the canonical form stored and sent on the wire.
func FormatFixed(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", amount)
	}

	amountBig := new(big.Int).SetUint64(amount)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	whole := new(big.Int).Div(amountBig, divisor)
	frac := new(big.Int).Mod(amountBig, divisor)

	return fmt.Sprintf("%s.%0*d", whole.String(), int(decimals), frac)
}

// ParseAmount parses a decimal string to smallest units. The string must
// be non-negative and must not carry more than decimals significant
// fractional digits; trailing zeros beyond that are accepted.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount string")
	}

	wholeStr := s
	fracStr := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		wholeStr = s[:i]
		fracStr = s[i+1:]
	}
	if wholeStr == "" {
		wholeStr = "0"
	}

	for _, c := range wholeStr {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid character in amount %q: %c", s, c)
		}
	}
	for _, c := range fracStr {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid character in amount %q: %c", s, c)
		}
	}

	// Digits past the supported precision must all be zero; truncating a
	// nonzero tail would silently change the amount.
	if len(fracStr) > int(decimals) {
		for _, c := range fracStr[decimals:] {
			if c != '0' {
				return 0, fmt.Errorf("amount %q exceeds %d fractional digits", s, decimals)
			}
		}
		fracStr = fracStr[:decimals]
	}
	for len(fracStr) < int(decimals) {
		fracStr += "0"
	}

	combined := wholeStr + fracStr
	amount := new(big.Int)
	if _, ok := amount.SetString(combined, 10); !ok {
		return 0, fmt.Errorf("invalid amount: %s", s)
	}

	if !amount.IsUint64() {
		return 0, fmt.Errorf("amount overflow: %s", s)
	}

	return amount.Uint64(), nil
}

// CoinToSats converts a coin amount string to satoshis (8 decimals).
func CoinToSats(coin string) (uint64, error) {
	return ParseAmount(coin, CoinDecimals)
}

// SatsToCoin converts satoshis to the canonical fixed-point coin string.
func SatsToCoin(sats uint64) string {
	return FormatFixed(sats, CoinDecimals)
}
