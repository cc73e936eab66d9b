package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name     string
		avg      string
		onHand   Quantity
		unitCost string
		qty      Quantity
		want     string
	}{
		{"empty stock takes unit cost", "0", 0, "12.5", 4, "12.5"},
		{"equal weights", "10", 10, "20", 10, "15"},
		{"rounds to four places", "1", 2, "2", 1, "1.3333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverage(MustMoney(tt.avg), tt.onHand, MustMoney(tt.unitCost), tt.qty)
			assert.True(t, MustMoney(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseQuantity(t *testing.T) {
	q, err := ParseQuantity("42")
	require.NoError(t, err)
	assert.Equal(t, Quantity(42), q)

	_, err = ParseQuantity("4.2")
	assert.Error(t, err)
}

func TestQuantity_Add(t *testing.T) {
	tests := []struct {
		name string
		q, d Quantity
		want Quantity
		ok   bool
	}{
		{"plain", 5, 3, 8, true},
		{"negative delta", 5, -7, -2, true},
		{"overflow", math.MaxInt64 - 1, 2, math.MaxInt64 - 1, false},
		{"underflow", math.MinInt64 + 1, -2, math.MinInt64 + 1, false},
		{"max fits", 1, math.MaxInt64 - 1, math.MaxInt64, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.q.Add(tt.d)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
