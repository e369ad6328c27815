// Package instrument resolves user-typed instrument references against a
// quote snapshot: pair notation parsing, symbol lookup and search.
package instrument

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/atmx/tactician/internal/model"
)

// pairRegex matches a base symbol with an optional USD-family quote suffix,
// joined directly or by '-', '/' or '_'.
// Examples: BTC, btc/usdt, BTCUSDT, eth-usd, SOL_USDC
var pairRegex = regexp.MustCompile(
	`(?i)^([A-Z0-9]{2,}?)(?:[-/_]?(USDT|USDC|BUSD|USD))?$`,
)

var (
	ErrInvalidPair        = errors.New("instrument: invalid pair notation")
	ErrUnknownInstrument  = errors.New("instrument: no quote for instrument")
	ErrEmptyInstrumentRef = errors.New("instrument: empty instrument reference")
)

// Pair is a parsed trading pair. Quote is empty when the input named only
// the base symbol.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote,omitempty"`
}

// ParsePair parses a pair notation into upper-case base and quote symbols.
func ParsePair(raw string) (Pair, error) {
	s := strings.TrimSpace(raw)
	matches := pairRegex.FindStringSubmatch(s)
	if matches == nil {
		return Pair{}, fmt.Errorf("%w: %q (expected BASE, BASE/QUOTE or BASEQUOTE)", ErrInvalidPair, raw)
	}
	return Pair{
		Base:  strings.ToUpper(matches[1]),
		Quote: strings.ToUpper(matches[2]),
	}, nil
}

// Resolve finds the quote a reference points to. The reference is tried as
// an exact instrument id first, then as an exact symbol (so FDUSD is not
// read as FD/USD), then as a pair notation whose base symbol matches
// case-insensitively. Among several instruments sharing a symbol the
// first in snapshot order (highest market cap) wins.
func Resolve(quotes []model.Quote, ref string) (model.Quote, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.Quote{}, ErrEmptyInstrumentRef
	}

	for _, q := range quotes {
		if strings.EqualFold(q.ID, ref) {
			return q, nil
		}
	}

	for _, q := range quotes {
		if strings.EqualFold(q.Symbol, ref) {
			return q, nil
		}
	}

	pair, err := ParsePair(ref)
	if err != nil {
		return model.Quote{}, err
	}
	for _, q := range quotes {
		if strings.EqualFold(q.Symbol, pair.Base) {
			return q, nil
		}
	}
	return model.Quote{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, ref)
}

// Search returns the quotes whose symbol or name contains query, case
// insensitively, in snapshot order. A blank query matches nothing.
// limit <= 0 means no limit.
func Search(quotes []model.Quote, query string, limit int) []model.Quote {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.Quote, 0)
	if q == "" {
		return out
	}
	for _, quote := range quotes {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(quote.Symbol), q) ||
			strings.Contains(strings.ToLower(quote.Name), q) {
			out = append(out, quote)
		}
	}
	return out
}
