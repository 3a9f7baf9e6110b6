package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Rate is a monthly interest rate expressed in percent with two fractional
// digits, e.g. 1.50 for 1.5% per month. It is stored as int64 basis points.
type Rate struct {
	d decimal.Decimal
}

// ParseRate reads a percent string such as "1.5" or "1.50". Negative rates
// and rates with more than two fractional digits are rejected.
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "eE") {
		return Rate{}, fmt.Errorf("invalid interest rate %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, fmt.Errorf("invalid interest rate %q", s)
	}
	if d.IsNegative() {
		return Rate{}, fmt.Errorf("interest rate %q is negative", s)
	}
	if !d.Equal(d.Truncate(Scale)) {
		return Rate{}, fmt.Errorf("interest rate %q has more than two decimal places", s)
	}
	return Rate{d: d}, nil
}

// MustParseRate panics on bad input.
func MustParseRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Percent returns the rate as a percentage (1.50).
func (r Rate) Percent() decimal.Decimal { return r.d }

// Monthly returns the rate as a fraction (0.015).
func (r Rate) Monthly() decimal.Decimal { return r.d.Div(hundred) }

func (r Rate) IsZero() bool { return r.d.IsZero() }

func (r Rate) String() string { return r.d.StringFixed(Scale) }

func (r Rate) MarshalJSON() ([]byte, error) { return json.Marshal(r.String()) }

func (r *Rate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	v, err := ParseRate(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalBSONValue stores the rate as basis points (1.50% -> 150).
func (r Rate) MarshalBSONValue() (bsontype.Type, []byte, error) {
	bp := r.d.Mul(hundred).Round(0).IntPart()
	return bsontype.Int64, bsoncore.AppendInt64(nil, bp), nil
}

func (r *Rate) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	v := bsoncore.Value{Type: t, Data: data}
	switch t {
	case bsontype.Int64:
		r.d = decimal.New(v.Int64(), -Scale)
	case bsontype.Int32:
		r.d = decimal.New(int64(v.Int32()), -Scale)
	default:
		return fmt.Errorf("money: cannot decode BSON %s into Rate", t)
	}
	return nil
}
