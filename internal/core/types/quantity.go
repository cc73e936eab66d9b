// Package types provides value types shared by ledger entities.
package types

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// CostPlaces is the number of fractional digits kept for unit and average costs.
const CostPlaces int32 = 4

// NewMoneyFromString creates a Money value from a string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ZeroMoney returns zero Money value.
func ZeroMoney() Money {
	return decimal.Zero
}

// WeightedAverage blends an existing average cost over onHand units with
// qty units received at unitCost.
func WeightedAverage(avg Money, onHand Quantity, unitCost Money, qty Quantity) Money {
	total := onHand + qty
	if total <= 0 {
		return unitCost.Round(CostPlaces)
	}
	value := avg.Mul(decimal.NewFromInt(int64(onHand))).
		Add(unitCost.Mul(decimal.NewFromInt(int64(qty))))
	return value.Div(decimal.NewFromInt(int64(total))).Round(CostPlaces)
}

// Quantity is a whole number of stock units.
type Quantity int64

func (q Quantity) Int64() int64 { return int64(q) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

// Add returns q+d and false when the sum does not fit in a Quantity.
func (q Quantity) Add(d Quantity) (Quantity, bool) {
	sum := q + d
	if (d > 0 && sum < q) || (d < 0 && sum > q) {
		return q, false
	}
	return sum, true
}

func (q Quantity) Neg() Quantity { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

func (q Quantity) String() string {
	return strconv.FormatInt(int64(q), 10)
}

// ParseQuantity parses a base-10 integer quantity.
func ParseQuantity(s string) (Quantity, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity: %w", err)
	}
	return Quantity(v), nil
}
