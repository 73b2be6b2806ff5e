// Package money formats stored minor-unit amounts for display.
package money

import (
	"github.com/shopspring/decimal"
)

// Format renders minor units as a fixed two-decimal major amount.
func Format(paise int64) string {
	return decimal.New(paise, -2).StringFixed(2)
}
