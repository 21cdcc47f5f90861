package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/pricetracker/internal/core"
)

// AddUnitConversion stores the direct unit -> toUnit factor.
func (h *Handler) AddUnitConversion(ctx context.Context, unit, toUnit, factor string) (uuid.UUID, error) {
	f, err := parseNumber("factor", factor)
	if err != nil {
		return uuid.Nil, err
	}
	c := core.UnitConversion{Unit: strings.TrimSpace(unit), ToUnit: strings.TrimSpace(toUnit), Factor: f}
	id, err := h.Store.AddUnitConversion(ctx, c)
	if err != nil {
		return uuid.Nil, fmt.Errorf("add unit conversion %s->%s: %w", c.Unit, c.ToUnit, err)
	}
	h.printf("Added unit conversion %s -> %s x%s (%s)\n", c.Unit, c.ToUnit, c.Factor, id)
	return id, nil
}

// AddRate stores a currency rate valid from dateFrom through dateTo inclusive.
func (h *Handler) AddRate(ctx context.Context, from, to, rate, dateFrom, dateTo string) (uuid.UUID, error) {
	r, err := parseNumber("rate", rate)
	if err != nil {
		return uuid.Nil, err
	}
	start, err := parseDay("date_from", dateFrom)
	if err != nil {
		return uuid.Nil, err
	}
	end, err := parseDay("date_to", dateTo)
	if err != nil {
		return uuid.Nil, err
	}

	c := core.CurrencyConversion{
		From:     currencyCode(from),
		To:       currencyCode(to),
		DateFrom: start,
		DateTo:   end,
		Rate:     r,
	}
	id, err := h.Store.AddCurrencyConversion(ctx, c)
	if err != nil {
		return uuid.Nil, fmt.Errorf("add rate %s->%s: %w", c.From, c.To, err)
	}
	h.printf("Added rate %s -> %s %s for %s..%s (%s)\n",
		c.From, c.To, c.Rate, start.Format(time.DateOnly), end.Format(time.DateOnly), id)
	return id, nil
}

// ConvertUnit prints quantity expressed in toUnit.
func (h *Handler) ConvertUnit(ctx context.Context, quantity, unit, toUnit string) (decimal.Decimal, error) {
	q, err := parseNumber("quantity", quantity)
	if err != nil {
		return decimal.Decimal{}, err
	}
	unit, toUnit = strings.TrimSpace(unit), strings.TrimSpace(toUnit)
	result, err := h.normalizer().ConvertUnit(ctx, q, unit, toUnit)
	if err != nil {
		return decimal.Decimal{}, err
	}
	h.printf("%s %s = %s %s\n", q, unit, result, toUnit)
	return result, nil
}

// ConvertCurrency prints price expressed in toCurrency on date.
func (h *Handler) ConvertCurrency(ctx context.Context, price, currency, toCurrency, date string) (decimal.Decimal, error) {
	p, err := parseNumber("price", price)
	if err != nil {
		return decimal.Decimal{}, err
	}
	day, err := parseDay("date", date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	currency, toCurrency = currencyCode(currency), currencyCode(toCurrency)
	result, err := h.normalizer().ConvertCurrency(ctx, p, currency, toCurrency, day)
	if err != nil {
		return decimal.Decimal{}, err
	}
	h.printf("%s %s = %s %s on %s\n", p, currency, result, toCurrency, day.Format(time.DateOnly))
	return result, nil
}

// Normalize runs a normalization pass. A zero target field falls back to
// the configured canonical basis.
func (h *Handler) Normalize(ctx context.Context, target core.Target) (core.PassResult, error) {
	if target.Currency == "" {
		target.Currency = h.Config.Normalize.Currency
	}
	if len(target.Units) == 0 {
		target.Units = h.Config.Normalize.Units
	}
	target.Currency = currencyCode(target.Currency)

	ctx, cancel := withTimeout(ctx, h.Config.Normalize.Timeout)
	defer cancel()

	result, err := h.normalizer().RunPass(ctx, target)
	if err != nil {
		return result, fmt.Errorf("normalization pass: %w", err)
	}
	h.printf("Normalized %d of %d observations into %s %v (%s)\n",
		result.Normalized, result.Observations, target.Currency, target.Units, result.Duration.Round(time.Millisecond))
	return result, nil
}

func (h *Handler) normalizer() *core.Normalizer {
	return core.NewNormalizer(h.Store, h.Recorder, h.Config.Normalize.Workers)
}

func parseNumber(field, raw string) (decimal.Decimal, error) {
	d, err := core.ParseDecimal(raw)
	if err != nil {
		return decimal.Decimal{}, &core.ValidationError{Field: field, Value: raw, Message: "invalid number format"}
	}
	return d, nil
}

func parseDay(field, raw string) (time.Time, error) {
	t, err := core.ParseDate(raw)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: field, Value: raw, Message: "invalid date format (use YYYY-MM-DD)"}
	}
	return t, nil
}

func currencyCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
