package domain

import (
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Amount is a fixed-point monetary value. It marshals to/from its decimal
// string form in both JSON and BSON so stores never see binary floats.
type Amount struct {
	decimal.Decimal
}

// ZeroAmount is the additive identity
var ZeroAmount = Amount{decimal.Zero}

// NewAmount wraps a decimal
func NewAmount(d decimal.Decimal) Amount {
	return Amount{d}
}

// NewAmountFromString parses a decimal string
func NewAmountFromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroAmount, err
	}
	return Amount{d}, nil
}

// MustAmount parses a decimal string and panics on malformed input.
// Intended for constants and tests.
func MustAmount(s string) Amount {
	return Amount{decimal.RequireFromString(s)}
}

// NewAmountFromInt builds an amount from whole currency units
func NewAmountFromInt(v int64) Amount {
	return Amount{decimal.NewFromInt(v)}
}

func (a Amount) Plus(b Amount) Amount {
	return Amount{a.Decimal.Add(b.Decimal)}
}

func (a Amount) Minus(b Amount) Amount {
	return Amount{a.Decimal.Sub(b.Decimal)}
}

func (a Amount) Equal(b Amount) bool {
	return a.Decimal.Equal(b.Decimal)
}

func (a Amount) LessThan(b Amount) bool {
	return a.Decimal.LessThan(b.Decimal)
}

func (a Amount) GreaterThan(b Amount) bool {
	return a.Decimal.GreaterThan(b.Decimal)
}

func (a Amount) GreaterThanOrEqual(b Amount) bool {
	return a.Decimal.GreaterThanOrEqual(b.Decimal)
}

// Neg flips the sign, used for ledger debits
func (a Amount) Neg() Amount {
	return Amount{a.Decimal.Neg()}
}

func (a Amount) IsNegative() bool {
	return a.Decimal.IsNegative()
}

func (a Amount) IsPositive() bool {
	return a.Decimal.IsPositive()
}

// MarshalBSONValue stores the amount as its decimal string
func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(a.Decimal.String())
}

// UnmarshalBSONValue parses the stored decimal string
func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var s string
	raw := bson.RawValue{Type: t, Value: data}
	if err := raw.Unmarshal(&s); err != nil {
		return err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}
