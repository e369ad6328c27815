package instrument

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/tactician/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var snapshot = []model.Quote{
	{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", Price: d(95000)},
	{ID: "ethereum", Symbol: "eth", Name: "Ethereum", Price: d(3500)},
	{ID: "wrapped-bitcoin", Symbol: "wbtc", Name: "Wrapped Bitcoin", Price: d(94900)},
	{ID: "binance-usd", Symbol: "busd", Name: "Binance USD", Price: d(1)},
}

func TestParsePair_Valid(t *testing.T) {
	tests := []struct {
		in    string
		base  string
		quote string
	}{
		{"BTC", "BTC", ""},
		{"btc/usdt", "BTC", "USDT"},
		{"BTCUSDT", "BTC", "USDT"},
		{"eth-usd", "ETH", "USD"},
		{"SOL_USDC", "SOL", "USDC"},
		{"ETHBUSD", "ETH", "BUSD"},
		{" doge ", "DOGE", ""},
		{"BUSD", "BUSD", ""},
		{"USDT", "USDT", ""},
	}
	for _, tt := range tests {
		p, err := ParsePair(tt.in)
		if err != nil {
			t.Errorf("ParsePair(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if p.Base != tt.base || p.Quote != tt.quote {
			t.Errorf("ParsePair(%q) = %+v, want base=%s quote=%s", tt.in, p, tt.base, tt.quote)
		}
	}
}

func TestParsePair_Invalid(t *testing.T) {
	tests := []string{
		"",
		"B",
		"btc/",
		"btc/eur",
		"btc usdt",
		"$$$",
	}
	for _, in := range tests {
		if _, err := ParsePair(in); !errors.Is(err, ErrInvalidPair) {
			t.Errorf("ParsePair(%q): expected ErrInvalidPair, got %v", in, err)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		ref string
		id  string
	}{
		{"bitcoin", "bitcoin"},
		{"BTC", "bitcoin"},
		{"btc/usdt", "bitcoin"},
		{"ETHUSDT", "ethereum"},
		{"wbtc", "wrapped-bitcoin"},
		{"Binance-USD", "binance-usd"},
	}
	for _, tt := range tests {
		q, err := Resolve(snapshot, tt.ref)
		if err != nil {
			t.Errorf("Resolve(%q): unexpected error: %v", tt.ref, err)
			continue
		}
		if q.ID != tt.id {
			t.Errorf("Resolve(%q) = %s, want %s", tt.ref, q.ID, tt.id)
		}
	}
}

func TestResolve_SymbolBeforePair(t *testing.T) {
	quotes := []model.Quote{
		{ID: "fd-coin", Symbol: "fd", Name: "FD Coin", Price: d(2)},
		{ID: "first-digital-usd", Symbol: "fdusd", Name: "First Digital USD", Price: d(1)},
	}
	tests := []struct {
		ref string
		id  string
	}{
		{"FDUSD", "first-digital-usd"},
		{"fdusd", "first-digital-usd"},
		{"FD/USDT", "fd-coin"},
		{"FD-USD", "fd-coin"},
		{"FD", "fd-coin"},
	}
	for _, tt := range tests {
		q, err := Resolve(quotes, tt.ref)
		if err != nil {
			t.Errorf("Resolve(%q): unexpected error: %v", tt.ref, err)
			continue
		}
		if q.ID != tt.id {
			t.Errorf("Resolve(%q) = %s, want %s", tt.ref, q.ID, tt.id)
		}
	}
}

func TestResolve_Errors(t *testing.T) {
	if _, err := Resolve(snapshot, "  "); !errors.Is(err, ErrEmptyInstrumentRef) {
		t.Errorf("expected ErrEmptyInstrumentRef, got %v", err)
	}
	if _, err := Resolve(snapshot, "XRP"); !errors.Is(err, ErrUnknownInstrument) {
		t.Errorf("expected ErrUnknownInstrument, got %v", err)
	}
	if _, err := Resolve(nil, "BTC"); !errors.Is(err, ErrUnknownInstrument) {
		t.Errorf("expected ErrUnknownInstrument on empty snapshot, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	got := Search(snapshot, "BITCOIN", 0)
	if len(got) != 2 || got[0].ID != "bitcoin" || got[1].ID != "wrapped-bitcoin" {
		t.Errorf("unexpected name matches: %+v", got)
	}

	got = Search(snapshot, "eth", 0)
	if len(got) != 1 || got[0].ID != "ethereum" {
		t.Errorf("unexpected symbol matches: %+v", got)
	}

	for _, blank := range []string{"", "   "} {
		if got := Search(snapshot, blank, 0); got == nil || len(got) != 0 {
			t.Errorf("blank query %q should match nothing, got %#v", blank, got)
		}
	}
	if got := Search(snapshot, "b", 2); len(got) != 2 || got[0].ID != "bitcoin" || got[1].ID != "wrapped-bitcoin" {
		t.Errorf("expected first 2 of 3 matches, got %+v", got)
	}
	if got := Search(snapshot, "zzz", 0); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", got)
	}
}
