package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ConversionLookup answers direct unit and dated currency lookups.
// Both the gateway and a ConversionSet snapshot implement it.
type ConversionLookup interface {
	FindConversion(ctx context.Context, unit, toUnit string) (decimal.Decimal, error)
	FindRates(ctx context.Context, from, to string, date time.Time) ([]CurrencyConversion, error)
}

type unitPair struct{ unit, toUnit string }

type currencyPair struct{ from, to string }

// ConversionSet is an immutable snapshot of both conversion tables.
// It is safe for concurrent use.
type ConversionSet struct {
	units map[unitPair]decimal.Decimal
	rates map[currencyPair][]CurrencyConversion
	nRate int
}

// NewConversionSet builds a snapshot from table rows. The slices are copied.
func NewConversionSet(units []UnitConversion, rates []CurrencyConversion) *ConversionSet {
	s := &ConversionSet{
		units: make(map[unitPair]decimal.Decimal, len(units)),
		rates: make(map[currencyPair][]CurrencyConversion),
		nRate: len(rates),
	}
	for _, u := range units {
		s.units[unitPair{u.Unit, u.ToUnit}] = u.Factor
	}
	for _, r := range rates {
		k := currencyPair{r.From, r.To}
		s.rates[k] = append(s.rates[k], r)
	}
	return s
}

// Units returns the number of unit conversion rows in the snapshot.
func (s *ConversionSet) Units() int { return len(s.units) }

// Rates returns the number of currency rate rows in the snapshot.
func (s *ConversionSet) Rates() int { return s.nRate }

// FindConversion returns the direct factor for unit -> toUnit or ErrNotFound.
func (s *ConversionSet) FindConversion(_ context.Context, unit, toUnit string) (decimal.Decimal, error) {
	f, ok := s.units[unitPair{unit, toUnit}]
	if !ok {
		return decimal.Decimal{}, ErrNotFound
	}
	return f, nil
}

// FindRates returns every from -> to row whose range contains date.
func (s *ConversionSet) FindRates(_ context.Context, from, to string, date time.Time) ([]CurrencyConversion, error) {
	var out []CurrencyConversion
	for _, r := range s.rates[currencyPair{from, to}] {
		if r.Covers(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ValidateUnitConversion checks the write-time invariants of a conversion row.
func ValidateUnitConversion(c UnitConversion) error {
	switch {
	case c.Unit == "":
		return &InvariantError{Field: "unit", Value: `""`, Rule: "must not be empty"}
	case c.ToUnit == "":
		return &InvariantError{Field: "to_unit", Value: `""`, Rule: "must not be empty"}
	case c.Unit == c.ToUnit:
		return &InvariantError{Field: "to_unit", Value: c.ToUnit, Rule: "must differ from unit"}
	case !c.Factor.IsPositive():
		return nonPositive("factor", c.Factor)
	}
	return nil
}

// ValidateUnitTypes checks that both units of c are registered and measure
// the same quantity. unitTypes maps each registered unit code found for the
// pair to the code of its UnitType.
func ValidateUnitTypes(c UnitConversion, unitTypes map[string]string) error {
	from, ok := unitTypes[c.Unit]
	if !ok {
		return &InvariantError{Field: "unit", Value: c.Unit, Rule: "must be a registered Unit"}
	}
	to, ok := unitTypes[c.ToUnit]
	if !ok {
		return &InvariantError{Field: "to_unit", Value: c.ToUnit, Rule: "must be a registered Unit"}
	}
	if from != to {
		return &InvariantError{
			Field: "to_unit",
			Value: fmt.Sprintf("%s (%s)", c.ToUnit, to),
			Rule:  fmt.Sprintf("must have unit type %s like %s", from, c.Unit),
		}
	}
	return nil
}

// ValidateCurrencyConversion checks the write-time invariants of a rate row.
// Overlap with existing ranges is not checked here; it surfaces on read.
func ValidateCurrencyConversion(c CurrencyConversion) error {
	switch {
	case c.From == "":
		return &InvariantError{Field: "currency", Value: `""`, Rule: "must not be empty"}
	case c.To == "":
		return &InvariantError{Field: "to_currency", Value: `""`, Rule: "must not be empty"}
	case c.From == c.To:
		return &InvariantError{Field: "to_currency", Value: c.To, Rule: "must differ from currency"}
	case !c.Rate.IsPositive():
		return nonPositive("rate", c.Rate)
	case c.DateFrom.IsZero() || c.DateTo.IsZero():
		return &InvariantError{Field: "date_from/date_to", Value: "zero", Rule: "must be set"}
	case DateOnly(c.DateFrom).After(DateOnly(c.DateTo)):
		return &InvariantError{
			Field: "date_from",
			Value: c.DateFrom.Format(time.DateOnly) + " > " + c.DateTo.Format(time.DateOnly),
			Rule:  "must not be after date_to",
		}
	}
	return nil
}
