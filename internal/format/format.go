// Package format renders metric values for display: thousands separators,
// a currency prefix for money-bearing titles, and the "vs previous" diff line.
package format

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/derickschaefer/kpiboard/internal/model"
)

var printer = message.NewPrinter(language.English)

// currencyWords mark a title as money-bearing; neutralWords override them
// ("Transaction Value Growth %" is a percentage, not dollars).
var (
	currencyWords = []string{"volume", "value", "revenue", "loss", "fee", "sales", "amount", "gmv", "cost", "income"}
	neutralWords  = []string{"%", "rate", "ratio", "count", "growth", "score"}
)

// IsCurrency reports whether numeric values for title render as dollars.
func IsCurrency(title string) bool {
	t := strings.ToLower(title)
	for _, w := range neutralWords {
		if strings.Contains(t, w) {
			return false
		}
	}
	for _, w := range currencyWords {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

// Number formats v with thousands separators. Integral values have no
// decimals; others are rounded to two places.
func Number(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "."
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return printer.Sprintf("%d", int64(v))
	}
	return printer.Sprintf("%.2f", v)
}

// Currency formats v as dollars: "$1,250,000", "-$42.50".
func Currency(v float64) string {
	if v < 0 {
		return "-$" + Number(-v)
	}
	return "$" + Number(v)
}

// Metric returns the display text for a card's value.
func Metric(title string, v model.Value) string {
	if !v.IsNum {
		return v.Str
	}
	if IsCurrency(title) {
		return Currency(v.Num)
	}
	return Number(v.Num)
}

// Positive is the diff polarity; zero counts as positive.
func Positive(diff float64) bool {
	return diff >= 0
}

// Diff returns "+12.5% vs previous" or "-3% vs previous".
func Diff(diff float64) string {
	sign := ""
	if Positive(diff) {
		sign = "+"
	}
	return sign + strconv.FormatFloat(diff, 'f', -1, 64) + "% vs previous"
}

// Stat formats a z-score or p-value annotation.
func Stat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
