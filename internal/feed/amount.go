package feed

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a feed amount such as "25,118.00" into a decimal.
// Empty or malformed input yields an invalid NullDecimal instead of an error.
func ParseAmount(raw string) decimal.NullDecimal {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if cleaned == "" {
		return decimal.NullDecimal{}
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(value)
}
