// Package numfmt holds the numeric parsing and display helpers shared by the
// calculators, the ledger view and the CLI.
package numfmt

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var (
	hundred   = decimal.NewFromInt(100)
	tinyPrice = decimal.RequireFromString("0.0001")
	one       = decimal.NewFromInt(1)
)

// Hundred is 100 as a decimal, for percentage maths.
func Hundred() decimal.Decimal { return hundred }

// Magnitude bounds of a float64, in decimal digits.
const (
	maxMagnitude = 309
	minMagnitude = -324
)

// ParseDecimal parses a raw user-typed field. Empty, partial and
// non-finite input ("", "-", "1e", "NaN", "1e400") report ok=false.
// Values too small for a float64 parse as zero.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	// Bound the exponent before anything expands the coefficient.
	mag := int64(d.Exponent()) + int64(d.NumDigits())
	if mag > maxMagnitude {
		return decimal.Zero, false
	}
	if mag < minMagnitude {
		return decimal.Zero, true
	}
	if math.IsInf(d.InexactFloat64(), 0) {
		return decimal.Zero, false
	}
	return d, true
}

// ParseOrZero parses raw and substitutes zero when it does not parse.
func ParseOrZero(raw string) decimal.Decimal {
	d, _ := ParseDecimal(raw)
	return d
}

// FormatPrice renders a price with precision scaled to its magnitude:
// 8 places below 0.0001, 6 below 1, otherwise 4.
func FormatPrice(p decimal.Decimal) string {
	switch {
	case p.LessThan(tinyPrice):
		return p.StringFixed(8)
	case p.LessThan(one):
		return p.StringFixed(6)
	default:
		return p.StringFixed(4)
	}
}

// FormatSigned renders d with an explicit leading '+' for positive values.
func FormatSigned(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	if d.Round(places).IsPositive() {
		return "+" + s
	}
	return s
}

// FormatMoney renders a cash amount with thousands separators, e.g. $1,234.56.
func FormatMoney(d decimal.Decimal) string {
	f := d.Round(2).InexactFloat64()
	if f < 0 {
		return "-$" + humanize.CommafWithDigits(-f, 2)
	}
	return "$" + humanize.CommafWithDigits(f, 2)
}

// FormatPercent renders d as a percentage with the given precision.
func FormatPercent(d decimal.Decimal, places int32) string {
	return d.StringFixed(places) + "%"
}

// Optional renders a NullDecimal, or "--" when it carries no value.
func Optional(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return "--"
	}
	return d.Decimal.StringFixed(places)
}

// FormatCountdown renders a remaining duration as m:ss, clamped at zero.
func FormatCountdown(left time.Duration) string {
	if left < 0 {
		left = 0
	}
	sec := int(left / time.Second)
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}
