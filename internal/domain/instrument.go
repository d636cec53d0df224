package domain

import (
	"fmt"
	"strings"
)

// SecurityCurrency derives the settlement currency from a security
// identifier. Dollar listings carry either an explicit USD settlement
// suffix ("AL30D-0002-C-CT-USD") or the market's D-ticker convention
// ("AL30D"); everything else settles in pesos.
func SecurityCurrency(security string) Currency {
	if strings.HasSuffix(security, string(CurrencyUSD)) ||
		strings.Contains(security, "D-") ||
		strings.HasSuffix(security, "D") {
		return CurrencyUSD
	}
	return CurrencyARS
}

// BondPair links the two listings of one underlying sovereign bond: the
// peso-denominated leg and the dollar-denominated leg. The implied FX cross
// between the two prices is what the strategy arbitrages.
type BondPair struct {
	Name           string
	PesoSecurity   string
	DollarSecurity string
}

// NewBondPair validates the grouping at construction time so the evaluator
// never has to fall back to string-matching conventions.
func NewBondPair(name, pesoSecurity, dollarSecurity string) (BondPair, error) {
	if name == "" || pesoSecurity == "" || dollarSecurity == "" {
		return BondPair{}, fmt.Errorf("%w: %q requires both securities", ErrInvalidPair, name)
	}
	if c := SecurityCurrency(pesoSecurity); c != CurrencyARS {
		return BondPair{}, fmt.Errorf("%w: peso leg %s settles in %s", ErrInvalidPair, pesoSecurity, c)
	}
	if c := SecurityCurrency(dollarSecurity); c != CurrencyUSD {
		return BondPair{}, fmt.Errorf("%w: dollar leg %s settles in %s", ErrInvalidPair, dollarSecurity, c)
	}
	return BondPair{Name: name, PesoSecurity: pesoSecurity, DollarSecurity: dollarSecurity}, nil
}

// InstrumentSet is the full collection of bond pairs in play for a run.
type InstrumentSet struct {
	pairs  []BondPair
	byName map[string]BondPair
	bySec  map[string]BondPair
}

// NewInstrumentSet builds the set, rejecting duplicate names or securities.
func NewInstrumentSet(pairs []BondPair) (*InstrumentSet, error) {
	s := &InstrumentSet{
		byName: make(map[string]BondPair, len(pairs)),
		bySec:  make(map[string]BondPair, len(pairs)*2),
	}
	for _, p := range pairs {
		if _, dup := s.byName[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate pair %q", ErrInvalidPair, p.Name)
		}
		for _, sec := range []string{p.PesoSecurity, p.DollarSecurity} {
			if _, dup := s.bySec[sec]; dup {
				return nil, fmt.Errorf("%w: security %s appears twice", ErrInvalidPair, sec)
			}
			s.bySec[sec] = p
		}
		s.byName[p.Name] = p
		s.pairs = append(s.pairs, p)
	}
	return s, nil
}

// Pairs returns the bond pairs in configuration order.
func (s *InstrumentSet) Pairs() []BondPair {
	return s.pairs
}

// Contains reports whether the security belongs to any configured pair.
func (s *InstrumentSet) Contains(security string) bool {
	_, ok := s.bySec[security]
	return ok
}

// PairFor resolves a security to its bond pair.
func (s *InstrumentSet) PairFor(security string) (BondPair, error) {
	p, ok := s.bySec[security]
	if !ok {
		return BondPair{}, fmt.Errorf("%w: %s", ErrUnknownSecurity, security)
	}
	return p, nil
}

// Securities lists every configured security across all pairs.
func (s *InstrumentSet) Securities() []string {
	out := make([]string, 0, len(s.pairs)*2)
	for _, p := range s.pairs {
		out = append(out, p.PesoSecurity, p.DollarSecurity)
	}
	return out
}
