package ledger

import (
	"fmt"
	"math/big"
)

// Fuel is a holofuel amount. The zero value is 0.
type Fuel struct {
	r big.Rat
}

// ParseFuel parses a decimal amount such as "12.5".
func ParseFuel(s string) (Fuel, error) {
	var f Fuel
	if s == "" {
		return f, nil
	}
	if _, ok := f.r.SetString(s); !ok {
		return Fuel{}, fmt.Errorf("invalid fuel amount %q", s)
	}
	return f, nil
}

// Add returns f + other.
func (f Fuel) Add(other Fuel) Fuel {
	var out Fuel
	out.r.Add(&f.r, &other.r)
	return out
}

// DivInt returns f / n. Dividing by zero returns f unchanged.
func (f Fuel) DivInt(n int64) Fuel {
	if n == 0 {
		return f
	}
	var out Fuel
	out.r.Quo(&f.r, new(big.Rat).SetInt64(n))
	return out
}

// Cmp compares f and other.
func (f Fuel) Cmp(other Fuel) int {
	return f.r.Cmp(&other.r)
}

// IsZero reports whether f is 0.
func (f Fuel) IsZero() bool {
	return f.r.Sign() == 0
}

// String renders f with up to 6 decimals and no trailing zeros.
func (f Fuel) String() string {
	s := f.r.FloatString(6)
	for len(s) > 1 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}

// MarshalJSON renders f as a JSON string, matching holofuel's encoding.
func (f Fuel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.String() + `"`), nil
}
