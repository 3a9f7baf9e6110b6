// Package money provides the fixed-point currency type used across the ledger.
//
// Amounts always carry exactly two fractional digits. They are stored in
// MongoDB as int64 cents so that $sum aggregations stay exact, and they cross
// JSON boundaries as decimal strings ("1250.00"). Parsed amounts are plain
// decimals below Limit in magnitude, so their cents always fit in an int64.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Scale is the number of fractional digits carried by an Amount.
const Scale = 2

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrTooPrecise    = errors.New("amount has more than two decimal places")
)

var hundred = decimal.NewFromInt(100)

// Limit bounds the magnitude of a parsed amount.
var Limit = decimal.New(1, 12)

// Amount is a currency value with two fractional digits.
// The zero value is 0.00 and is ready to use.
type Amount struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Amount{}

// Parse reads a decimal string such as "1500", "1500.5" or "1500.50".
// Values with more than two fractional digits are rejected rather than rounded.
// Exponent notation and magnitudes of Limit or more are invalid.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "eE") {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Abs().GreaterThanOrEqual(Limit) {
		return Amount{}, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, s)
	}
	if !d.Equal(d.Truncate(Scale)) {
		return Amount{}, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}
	return Amount{d: d.Truncate(Scale)}, nil
}

// MustParse is Parse for constants and tests. It panics on bad input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromCents builds an Amount from an integer number of cents.
func FromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -Scale)}
}

// FromDecimal rounds d half away from zero to two places.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d.Round(Scale)}
}

// Decimal returns the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Cents returns the value as an integer number of cents.
func (a Amount) Cents() int64 {
	return a.d.Mul(hundred).Round(0).IntPart()
}

// String formats the amount with exactly two fractional digits.
func (a Amount) String() string { return a.d.StringFixed(Scale) }

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// MulInt multiplies by an integer factor; the result keeps two places.
func (a Amount) MulInt(n int64) Amount { return Amount{d: a.d.Mul(decimal.NewFromInt(n))} }

// DivFloor divides by n and truncates toward zero to whole cents.
func (a Amount) DivFloor(n int64) Amount {
	return Amount{d: a.d.Div(decimal.NewFromInt(n)).Truncate(Scale)}
}

func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }
func (a Amount) IsPositive() bool { return a.d.IsPositive() }
func (a Amount) IsNegative() bool { return a.d.IsNegative() }
func (a Amount) IsZero() bool { return a.d.IsZero() }
func (a Amount) GreaterOrEqual(b Amount) bool { return a.d.GreaterThanOrEqual(b.d) }

// Sum adds all amounts; the empty sum is Zero.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// MarshalJSON encodes the amount as a quoted two-place decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = Zero
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = str
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalBSONValue stores the amount as int64 cents. Amounts whose cents
// overflow an int64 are refused.
func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !a.d.Mul(hundred).Round(0).BigInt().IsInt64() {
		return 0, nil, fmt.Errorf("%w: %s overflows int64 cents", ErrInvalidAmount, a)
	}
	return bsontype.Int64, bsoncore.AppendInt64(nil, a.Cents()), nil
}

// UnmarshalBSONValue reads cents written by MarshalBSONValue. Int32 values
// appear when $sum folds small totals, so both integer widths are accepted.
func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	v := bsoncore.Value{Type: t, Data: data}
	switch t {
	case bsontype.Int64:
		*a = FromCents(v.Int64())
	case bsontype.Int32:
		*a = FromCents(int64(v.Int32()))
	case bsontype.Null, bsontype.Undefined:
		*a = Zero
	default:
		return fmt.Errorf("money: cannot decode BSON %s into Amount", t)
	}
	return nil
}
