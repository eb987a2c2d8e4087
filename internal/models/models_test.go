package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"50,00":    "50",
		"50.5":     "50.5",
		" 12 ":     "12",
		"1.234,50": "1234.5",
		"0":        "0",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.True(t, decimal.RequireFromString(want).Equal(got), "%s => %s", in, got)
	}
}

func TestParseAmount_Rejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1,2,3x"} {
		_, err := ParseAmount(in)
		assert.True(t, IsValidation(err), in)
	}
}

func TestStatus(t *testing.T) {
	for _, s := range []Status{StatusSent, StatusServed, StatusPreparing, StatusReady} {
		assert.True(t, s.IsActive())
		assert.False(t, s.IsTerminal())
	}
	for _, s := range []Status{StatusPaid, StatusGift, StatusWaste, StatusCancel} {
		assert.True(t, s.IsTerminal())
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("eaten").Valid())
}

func TestOrderLineTotal(t *testing.T) {
	l := OrderLine{
		UnitPrice: decimal.NewFromInt(50),
		Quantity:  3,
		Modifiers: Modifiers{{Name: "cheese", Price: decimal.NewFromInt(5)}, {Name: "no onion", Price: decimal.Zero}},
	}
	assert.Equal(t, "55", l.UnitValue().String())
	assert.Equal(t, "165", l.Total().String())
}

func TestModifiersScan(t *testing.T) {
	var m Modifiers
	require.NoError(t, m.Scan(`[{"name":"bacon","price":"2.5"}]`))
	require.Len(t, m, 1)
	assert.Equal(t, "bacon", m[0].Name)
	assert.Equal(t, "2.5", m[0].Price.String())

	v, err := Modifiers(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestClampZero(t *testing.T) {
	assert.True(t, ClampZero(decimal.NewFromInt(-3)).IsZero())
	assert.Equal(t, "4", ClampZero(decimal.NewFromInt(4)).String())
}
