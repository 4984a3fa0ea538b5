package chain

import (
	"fmt"
	"math/big"
	"strings"
)

var weiPerEther = big.NewInt(1_000_000_000_000_000_000)

// FormatEther renders wei in ether units with prec fractional digits (rounded).
func FormatEther(v *big.Int, prec int) string {
	if v == nil {
		v = new(big.Int)
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(v), weiPerEther)
	return r.FloatString(prec)
}

// FormatEtherExact renders wei in ether units without trailing zeros.
func FormatEtherExact(v *big.Int) string {
	if v == nil {
		return "0"
	}
	s := new(big.Int).Abs(v).String()
	neg := v.Sign() < 0
	const decimals = 18
	var out string
	if len(s) <= decimals {
		frac := strings.TrimRight(strings.Repeat("0", decimals-len(s))+s, "0")
		out = "0"
		if frac != "" {
			out = "0." + frac
		}
	} else {
		out = s[:len(s)-decimals]
		if frac := strings.TrimRight(s[len(s)-decimals:], "0"); frac != "" {
			out += "." + frac
		}
	}
	if neg {
		return "-" + out
	}
	return out
}

// ParseEther converts a decimal ether amount ("8.99") to wei.
func ParseEther(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(amount, "-") {
		return nil, fmt.Errorf("negative amount %q", amount)
	}
	amount = strings.TrimPrefix(amount, "+")
	parts := strings.SplitN(amount, ".", 2)
	intPart, fracPart := parts[0], ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > 18 {
		return nil, fmt.Errorf("too many fractional digits in %q", amount)
	}
	fracPart += strings.Repeat("0", 18-len(fracPart))
	clean := strings.TrimLeft(intPart+fracPart, "0")
	if clean == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return nil, fmt.Errorf("bad amount %q", amount)
	}
	return v, nil
}
