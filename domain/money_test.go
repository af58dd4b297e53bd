package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestAmountArithmeticIsExact(t *testing.T) {
	a := MustAmount("0.1")
	b := MustAmount("0.2")
	assert.True(t, a.Plus(b).Equal(MustAmount("0.3")))
	assert.True(t, MustAmount("100").Minus(MustAmount("99.99")).Equal(MustAmount("0.01")))
	assert.True(t, MustAmount("5").Neg().Equal(MustAmount("-5")))
	assert.True(t, MustAmount("5").Neg().IsNegative())
	assert.True(t, ZeroAmount.Plus(ZeroAmount).Equal(ZeroAmount))
}

func TestAmountComparisons(t *testing.T) {
	assert.True(t, MustAmount("10").GreaterThan(MustAmount("9.999")))
	assert.True(t, MustAmount("10").GreaterThanOrEqual(MustAmount("10")))
	assert.True(t, MustAmount("9.999").LessThan(MustAmount("10")))
	assert.False(t, ZeroAmount.IsPositive())
	assert.True(t, MustAmount("0.01").IsPositive())
}

func TestNewAmountFromStringRejectsGarbage(t *testing.T) {
	_, err := NewAmountFromString("not-a-number")
	require.Error(t, err)

	a, err := NewAmountFromString("123.45")
	require.NoError(t, err)
	assert.Equal(t, "123.45", a.String())
}

func TestAmountSurvivesBsonAsDecimalString(t *testing.T) {
	type doc struct {
		Price Amount `bson:"price"`
	}

	data, err := bson.Marshal(doc{Price: MustAmount("199.90")})
	require.NoError(t, err)

	// the stored form must be the decimal string, never a binary float;
	// trailing zeros are trimmed on render
	raw := bson.Raw(data)
	s, ok := raw.Lookup("price").StringValueOK()
	require.True(t, ok)
	assert.Equal(t, "199.9", s)

	out := doc{}
	require.NoError(t, bson.Unmarshal(data, &out))
	assert.True(t, out.Price.Equal(MustAmount("199.90")))
}
