// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatPrice formats a price to cents with thousands separators and the
// currency symbol of the symbol's market, e.g. "$1,234.50" or "¥9.80".
func FormatPrice(symbol string, price decimal.Decimal) string {
	return FormatAmount(DetectMarket(symbol).CurrencySymbol(), price)
}

// FormatAmount formats an amount to cents with a currency prefix.
func FormatAmount(currency string, amount decimal.Decimal) string {
	negative := amount.IsNegative()
	str := amount.Abs().StringFixed(2)
	parts := strings.SplitN(str, ".", 2)

	result := currency + groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatVolume formats a share count with commas.
func FormatVolume(volume int64) string {
	if volume < 0 {
		return "-" + groupThousands(fmt.Sprintf("%d", -volume))
	}
	return groupThousands(fmt.Sprintf("%d", volume))
}
