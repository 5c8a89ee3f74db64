// Package units converts human readable token amounts into integer base units.
// Amounts carry exactly six fractional digits; all arithmetic is integer.
package units

import (
	"encoding/json"
	"fmt"
	"strings"

	xerrors "IntentWallet/internal/errors"

	"github.com/holiman/uint256"
)

// Scale is the number of fractional digits an Amount keeps.
const Scale = 6

// Amount is a non-negative decimal quantized to Scale fractional digits.
// The zero value is 0.
type Amount struct {
	micros uint256.Int
}

// ParseAmount parses a decimal string such as "100", "0.25" or "12.3456789".
// Digits beyond Scale are rounded half to even.
func ParseAmount(s string) (Amount, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Amount{}, xerrors.New(xerrors.CodeInvalidArgument, "金额不能为空")
	}
	if strings.HasPrefix(raw, "+") {
		raw = raw[1:]
	}
	intPart, fracPart, hasDot := strings.Cut(raw, ".")
	if intPart == "" && (!hasDot || fracPart == "") {
		return Amount{}, invalidAmount(s)
	}
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return Amount{}, invalidAmount(s)
	}

	kept := fracPart
	rest := ""
	if len(kept) > Scale {
		kept, rest = fracPart[:Scale], fracPart[Scale:]
	}
	kept += strings.Repeat("0", Scale-len(kept))

	digits := strings.TrimLeft(intPart+kept, "0")
	if digits == "" {
		digits = "0"
	}
	value, err := uint256.FromDecimal(digits)
	if err != nil {
		return Amount{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("金额超出范围: %s", s))
	}

	if roundUp(rest, value) {
		if _, overflow := value.AddOverflow(value, uint256.NewInt(1)); overflow {
			return Amount{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("金额超出范围: %s", s))
		}
	}
	var a Amount
	a.micros.Set(value)
	return a, nil
}

// MustParse is ParseAmount for constants and tests.
func MustParse(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromMicros builds an Amount from its scaled integer representation.
func FromMicros(micros uint64) Amount {
	var a Amount
	a.micros.SetUint64(micros)
	return a
}

func roundUp(rest string, kept *uint256.Int) bool {
	if rest == "" {
		return false
	}
	first := rest[0]
	tail := strings.TrimRight(rest[1:], "0")
	switch {
	case first > '5':
		return true
	case first < '5':
		return false
	case tail != "":
		return true
	default:
		// exact half: round to even
		return kept.Uint64()%2 == 1
	}
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func invalidAmount(s string) error {
	return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("非法金额: %q", s))
}

// IsZero reports whether the amount is 0.
func (a Amount) IsZero() bool {
	return a.micros.IsZero()
}

// Equal compares two amounts after quantization.
func (a Amount) Equal(b Amount) bool {
	return a.micros.Eq(&b.micros)
}

// Micros returns a copy of the scaled integer value.
func (a Amount) Micros() *uint256.Int {
	return new(uint256.Int).Set(&a.micros)
}

// String renders the amount without trailing fractional zeros.
func (a Amount) String() string {
	dec := a.micros.Dec()
	if len(dec) <= Scale {
		dec = strings.Repeat("0", Scale-len(dec)+1) + dec
	}
	whole, frac := dec[:len(dec)-Scale], strings.TrimRight(dec[len(dec)-Scale:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// ToBaseUnits converts to the token's smallest unit. Conversions that would
// drop non-zero digits fail instead of truncating.
func (a Amount) ToBaseUnits(decimals uint8) (*uint256.Int, error) {
	out := new(uint256.Int).Set(&a.micros)
	if int(decimals) >= Scale {
		factor := pow10(int(decimals) - Scale)
		if _, overflow := out.MulOverflow(out, factor); overflow {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("金额 %s 在精度 %d 下溢出", a, decimals))
		}
		return out, nil
	}
	divisor := pow10(Scale - int(decimals))
	rem := new(uint256.Int)
	out.DivMod(out, divisor, rem)
	if !rem.IsZero() {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("金额 %s 超出代币精度 %d", a, decimals))
	}
	return out, nil
}

func pow10(n int) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// MarshalJSON encodes the amount as a JSON string to avoid float rounding.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both JSON strings and bare numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		*a = Amount{}
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}
	parsed, err := ParseAmount(text)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Ptr returns a pointer to a copy of a.
func Ptr(a Amount) *Amount {
	return &a
}

// EqualPtr compares optional amounts; two nils are equal.
func EqualPtr(a, b *Amount) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
