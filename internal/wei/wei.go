// Package wei converts between decimal ether strings and wei amounts.
//
// All ledger values are held as big.Int in wei (1 ETH = 10^18 wei).
package wei

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const Decimals = 18

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ParseEther converts a decimal ether string ("1.5") to wei. Returns
// (nil, false) for negative, empty or malformed input, and for amounts
// finer than one wei. Trailing zeros past 18 places are accepted.
func ParseEther(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, false
	}

	whole, frac, found := strings.Cut(s, ".")
	if strings.Contains(frac, ".") || (found && frac == "" && whole == "") {
		return nil, false
	}
	if whole == "" {
		whole = "0"
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return nil, false
	}

	num := whole
	if frac != "" {
		num += "." + frac
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return nil, false
	}
	d = d.Shift(Decimals)
	if !d.IsInteger() {
		return nil, false
	}
	return d.BigInt(), true
}

// ParseWei parses a base-10 integer wei string. Negative values are rejected.
func ParseWei(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !digitsOnly(s) {
		return nil, false
	}
	return new(big.Int).SetString(s, 10)
}

// ParsePositive accepts either an integer wei string or, when weiStr is
// empty, a decimal ether string. Zero is rejected.
func ParsePositive(ether, weiStr string) (*big.Int, bool) {
	var (
		v  *big.Int
		ok bool
	)
	if strings.TrimSpace(weiStr) != "" {
		v, ok = ParseWei(weiStr)
	} else {
		v, ok = ParseEther(ether)
	}
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}

// FormatEther renders wei as a decimal ether string with trailing zeros
// trimmed ("1.5", "0.000000000000000001", "10").
func FormatEther(amount *big.Int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}
	neg := amount.Sign() < 0
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(amount), unit, new(big.Int))

	out := q.String()
	if r.Sign() != 0 {
		frac := r.String()
		frac = strings.Repeat("0", Decimals-len(frac)) + frac
		out += "." + strings.TrimRight(frac, "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}

// Ether returns n whole ether in wei.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), unit)
}

// Zero returns a fresh zero value.
func Zero() *big.Int { return new(big.Int) }

// Clone returns a copy of v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
