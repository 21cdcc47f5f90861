package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/pricetracker/internal/logging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the normalization pass concurrency when none is configured.
const DefaultWorkers = 4

// Target is the canonical basis observations are normalized into.
//
// An empty Currency keeps each observation's currency. Units is ordered: an
// observation uses the first unit that equals its own or has a direct
// conversion from it. An empty Units list keeps each observation's unit.
type Target struct {
	Currency string
	Units    []string
}

// PassResult describes a completed normalization pass.
type PassResult struct {
	RunID        uuid.UUID
	Observations int
	Normalized   int
	Units        int // Unit conversion rows in the snapshot
	Rates        int // Currency rate rows in the snapshot
	Duration     time.Duration
}

// Normalizer converts quantities and prices with direct conversions only.
// Multi-hop paths are never searched.
type Normalizer struct {
	conversions ConversionStore
	prices      PriceStore
	recorder    Recorder
	workers     int
}

// NewNormalizer returns a normalizer over gw. recorder may be nil; workers
// below 1 means DefaultWorkers.
func NewNormalizer(gw Gateway, recorder Recorder, workers int) *Normalizer {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Normalizer{conversions: gw, prices: gw, recorder: recorder, workers: workers}
}

// ConvertUnit returns quantity expressed in toUnit, using the direct
// unit -> toUnit factor. The same unit is the identity.
func (n *Normalizer) ConvertUnit(ctx context.Context, quantity decimal.Decimal, unit, toUnit string) (decimal.Decimal, error) {
	return n.convertUnit(ctx, n.conversions, quantity, unit, toUnit)
}

// ConvertCurrency returns price expressed in toCurrency at the rate whose
// range contains date. The same currency is the identity.
func (n *Normalizer) ConvertCurrency(ctx context.Context, price decimal.Decimal, currency, toCurrency string, date time.Time) (decimal.Decimal, error) {
	return n.convertCurrency(ctx, n.conversions, price, currency, toCurrency, date)
}

// Normalize converts both the price and the quantity of obs into target.
func (n *Normalizer) Normalize(ctx context.Context, obs PriceObservation, target Target) (Canonical, error) {
	return n.normalize(ctx, n.conversions, obs, target)
}

// RunPass normalizes every stored observation against one snapshot of the
// conversion tables and persists the canonical values. The first failure
// cancels the remaining work.
func (n *Normalizer) RunPass(ctx context.Context, target Target) (PassResult, error) {
	start := time.Now()
	result := PassResult{RunID: uuid.New()}
	logger := logging.WithFields(ctx, "run_id", result.RunID, "currency", target.Currency, "units", target.Units)

	set, err := n.conversions.LoadConversions(ctx)
	if err != nil {
		return result, fmt.Errorf("load conversions: %w", err)
	}
	result.Units, result.Rates = set.Units(), set.Rates()

	observations, err := n.prices.ListPriceObservations(ctx)
	if err != nil {
		return result, fmt.Errorf("list observations: %w", err)
	}
	result.Observations = len(observations)
	logger.Info("normalization pass started",
		"observations", result.Observations,
		"unit_conversions", result.Units,
		"rates", result.Rates,
		"workers", n.workers,
	)

	var normalized atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)
	for _, obs := range observations {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c, err := n.normalize(gctx, set, obs, target)
			if err != nil {
				return fmt.Errorf("observation %s: %w", obs.ID, err)
			}
			if err := n.prices.SaveCanonical(gctx, obs.ID, c); err != nil {
				return fmt.Errorf("save observation %s: %w", obs.ID, err)
			}
			normalized.Add(1)
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	result.Normalized = int(normalized.Load())
	result.Duration = time.Since(start)
	n.recorder.PassCompleted(result.Duration, result.Normalized, err)

	if err != nil {
		logger.Error("normalization pass failed", "normalized", result.Normalized, "code", MapError(err).Code, "error", err)
		return result, err
	}
	logger.Info("normalization pass completed",
		"normalized", result.Normalized,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (n *Normalizer) normalize(ctx context.Context, lookup ConversionLookup, obs PriceObservation, target Target) (Canonical, error) {
	unit, err := n.targetUnit(ctx, lookup, obs.Unit, target.Units)
	if err != nil {
		return Canonical{}, err
	}
	quantity, err := n.convertUnit(ctx, lookup, obs.Quantity, obs.Unit, unit)
	if err != nil {
		return Canonical{}, err
	}

	currency := target.Currency
	if currency == "" {
		currency = obs.Currency
	}
	price, err := n.convertCurrency(ctx, lookup, obs.Price, obs.Currency, currency, obs.Date)
	if err != nil {
		return Canonical{}, err
	}

	return Canonical{Price: price, Currency: currency, Quantity: quantity, Unit: unit}, nil
}

func (n *Normalizer) targetUnit(ctx context.Context, lookup ConversionLookup, unit string, units []string) (string, error) {
	if len(units) == 0 {
		return unit, nil
	}
	for _, u := range units {
		if u == unit {
			return u, nil
		}
		_, err := lookup.FindConversion(ctx, unit, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("find conversion %s->%s: %w", unit, u, err)
		}
	}
	return "", &NoConversionPathError{Unit: unit, ToUnit: strings.Join(units, "|")}
}

func (n *Normalizer) convertUnit(ctx context.Context, lookup ConversionLookup, quantity decimal.Decimal, unit, toUnit string) (decimal.Decimal, error) {
	if unit == toUnit {
		return quantity, nil
	}
	factor, err := lookup.FindConversion(ctx, unit, toUnit)
	switch {
	case errors.Is(err, ErrNotFound):
		err = &NoConversionPathError{Unit: unit, ToUnit: toUnit}
	case err != nil:
		err = fmt.Errorf("find conversion %s->%s: %w", unit, toUnit, err)
	}
	n.recorder.Converted("unit", err)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return quantity.Mul(factor), nil
}

func (n *Normalizer) convertCurrency(ctx context.Context, lookup ConversionLookup, price decimal.Decimal, currency, toCurrency string, date time.Time) (decimal.Decimal, error) {
	if currency == toCurrency {
		return price, nil
	}
	day := DateOnly(date)
	rates, err := lookup.FindRates(ctx, currency, toCurrency, day)
	switch {
	case err != nil:
		err = fmt.Errorf("find rates %s->%s: %w", currency, toCurrency, err)
	case len(rates) == 0:
		err = &NoRateForDateError{From: currency, To: toCurrency, Date: day}
	case len(rates) > 1:
		err = &AmbiguousRateError{From: currency, To: toCurrency, Date: day, Matches: len(rates)}
	}
	n.recorder.Converted("currency", err)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return price.Mul(rates[0].Rate), nil
}
