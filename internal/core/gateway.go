package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferenceStore is the part of the gateway used by ingestion.
type ReferenceStore interface {
	// FindByNaturalKey returns the id of the kind's record with isoCode.
	// Returns ErrNotFound or ErrAmbiguousKey.
	FindByNaturalKey(ctx context.Context, kind Kind, isoCode string) (uuid.UUID, error)

	// Create stores a resolved record and returns its id.
	// Returns *DuplicateKeyError when the natural key is taken in its scope.
	Create(ctx context.Context, rec ResolvedRecord) (uuid.UUID, error)
}

// ConversionStore is the part of the gateway used by the normalizer.
type ConversionStore interface {
	// FindConversion returns the factor of the direct unit -> toUnit row.
	// Returns ErrNotFound when no such row exists.
	FindConversion(ctx context.Context, unit, toUnit string) (decimal.Decimal, error)

	// FindRates returns every rate row for from -> to whose range contains date.
	FindRates(ctx context.Context, from, to string, date time.Time) ([]CurrencyConversion, error)

	// AddUnitConversion stores a conversion row with exclusive access to the tables.
	AddUnitConversion(ctx context.Context, c UnitConversion) (uuid.UUID, error)

	// AddCurrencyConversion stores a rate row with exclusive access to the tables.
	AddCurrencyConversion(ctx context.Context, c CurrencyConversion) (uuid.UUID, error)

	// LoadConversions returns a consistent snapshot of both conversion tables.
	// No conversion write can interleave with the snapshot read.
	LoadConversions(ctx context.Context) (*ConversionSet, error)
}

// PriceStore holds price observations.
type PriceStore interface {
	AddPriceObservation(ctx context.Context, obs PriceObservation) (uuid.UUID, error)
	ListPriceObservations(ctx context.Context) ([]PriceObservation, error)

	// SaveCanonical records the normalized values of an observation.
	SaveCanonical(ctx context.Context, id uuid.UUID, c Canonical) error
}

// Gateway is the storage contract the pipeline depends on. The pipeline never
// issues queries of its own.
type Gateway interface {
	ReferenceStore
	ConversionStore
	PriceStore
}

// Recorder receives pipeline events for metrics.
type Recorder interface {
	RowParsed(kind Kind)
	RecordCreated(kind Kind)
	IngestFailed(kind Kind, code string)
	Converted(conversion string, err error)
	PassCompleted(d time.Duration, observations int, err error)
}

type nopRecorder struct{}

func (nopRecorder) RowParsed(Kind) {}
func (nopRecorder) RecordCreated(Kind) {}
func (nopRecorder) IngestFailed(Kind, string) {}
func (nopRecorder) Converted(string, error) {}
func (nopRecorder) PassCompleted(time.Duration, int, error) {}
