package numfmt

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want string
	}{
		{"100", true, "100"},
		{" 0.25 ", true, "0.25"},
		{"-3.5", true, "-3.5"},
		{"", false, "0"},
		{"   ", false, "0"},
		{"-", false, "0"},
		{"abc", false, "0"},
		{"NaN", false, "0"},
		{"Infinity", false, "0"},
		{"1.5e3", true, "1500"},
		{"1e400", false, "0"},
		{"-1e400", false, "0"},
		{"1e2000000000", false, "0"},
		{"2e308", false, "0"},
		{"1e-400", true, "0"},
	}
	for _, tt := range tests {
		got, ok := ParseDecimal(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseDecimal(%q) ok=%v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if !got.Equal(d(tt.want)) {
			t.Errorf("ParseDecimal(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatPrice_Tiers(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0.00001234", "0.00001234"},
		{"0.5", "0.500000"},
		{"95000", "95000.0000"},
	}
	for _, tt := range tests {
		if got := FormatPrice(d(tt.in)); got != tt.want {
			t.Errorf("FormatPrice(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatSigned(t *testing.T) {
	if got := FormatSigned(d("12.345"), 2); got != "+12.35" {
		t.Errorf("got %s", got)
	}
	if got := FormatSigned(d("-3"), 2); got != "-3.00" {
		t.Errorf("got %s", got)
	}
	if got := FormatSigned(decimal.Zero, 2); got != "0.00" {
		t.Errorf("got %s", got)
	}
}

func TestFormatMoney(t *testing.T) {
	if got := FormatMoney(d("1234.5")); got != "$1,234.5" {
		t.Errorf("got %s", got)
	}
	if got := FormatMoney(d("-20")); got != "-$20" {
		t.Errorf("got %s", got)
	}
}

func TestOptional(t *testing.T) {
	if got := Optional(decimal.NullDecimal{}, 2); got != "--" {
		t.Errorf("got %s", got)
	}
	if got := Optional(decimal.NewNullDecimal(d("1.5")), 2); got != "1.50" {
		t.Errorf("got %s", got)
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{-5 * time.Second, "0:00"},
		{59 * time.Second, "0:59"},
		{5*time.Minute + 7*time.Second + 900*time.Millisecond, "5:07"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.in); got != tt.want {
			t.Errorf("FormatCountdown(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
