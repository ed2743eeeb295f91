// Package core provides money parsing and handling utilities.
//
// Amounts are whole currency units. Percentages are the source of truth and
// amounts are always derived from them with half-up rounding.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a decimal string to whole currency units with half-up rounding.
//
// It accepts both dot (1234.56) and comma (1234,56) decimal separators. Thousands
// separators are not supported. Returns an error for invalid formats, negative
// values, or amounts that round to zero.
//
// Examples:
//
//	ParseAmount("22500")    -> 22500, nil
//	ParseAmount("1999,50")  -> 2000, nil
//	ParseAmount("1999.49")  -> 1999, nil
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	units := d.Round(0)
	if !units.IsPositive() || units.GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, ErrInvalidAmount
	}
	return units.IntPart(), nil
}

// DeriveAmount returns round(income × percentage / 100) in whole currency units.
func DeriveAmount(income int64, percentage float64) int64 {
	return decimal.NewFromInt(income).
		Mul(decimal.NewFromFloat(percentage)).
		Div(hundred).
		Round(0).
		IntPart()
}

// PercentageOf returns amount as a percentage (0-100 scale) of total.
// A non-positive total yields 0.
func PercentageOf(amount, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(hundred).
		Div(decimal.NewFromInt(total)).
		InexactFloat64()
}
