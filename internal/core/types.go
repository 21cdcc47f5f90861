package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies a reference-data entity kind.
type Kind string

const (
	KindCountry  Kind = "Country"
	KindState    Kind = "State"
	KindCity     Kind = "City"
	KindLanguage Kind = "Language"
	KindUnitType Kind = "UnitType"
	KindUnit     Kind = "Unit"
)

func (k Kind) String() string { return string(k) }

// Record is a parsed reference row before its parent has been resolved.
type Record struct {
	Kind      Kind
	ISOCode   string
	Name      string
	ParentKey string // Natural key of the owning Country/State/UnitType; empty for root kinds
	Metric    bool   // Unit only
	Line      int    // 1-indexed source line, 0 if not from a file
}

// ResolvedRecord is a Record whose parent identity has been looked up.
type ResolvedRecord struct {
	Record
	ParentID uuid.UUID // uuid.Nil for Country and Language
}

// Audit carries the creator/updater stamp applied by the gateway.
type Audit struct {
	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReferenceEntity is a stored reference record.
type ReferenceEntity struct {
	ID       uuid.UUID
	Kind     Kind
	ISOCode  string
	Name     string
	ParentID uuid.UUID
	Metric   bool
	Audit    Audit
}

// UnitConversion converts Unit into ToUnit by multiplying with Factor.
// The conversion is directional; the inverse needs its own row. Both units
// must be registered Unit records of the same UnitType.
type UnitConversion struct {
	ID     uuid.UUID
	Unit   string
	ToUnit string
	Factor decimal.Decimal
	Audit  Audit
}

// CurrencyConversion converts From into To with Rate for every date in
// [DateFrom, DateTo], both ends inclusive.
type CurrencyConversion struct {
	ID       uuid.UUID
	From     string
	To       string
	DateFrom time.Time
	DateTo   time.Time
	Rate     decimal.Decimal
	Audit    Audit
}

// Covers reports whether the range contains the calendar day of date.
func (c CurrencyConversion) Covers(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(c.DateFrom)) && !d.After(DateOnly(c.DateTo))
}

// Canonical holds a price observation expressed in the canonical basis.
type Canonical struct {
	Price    decimal.Decimal
	Currency string
	Quantity decimal.Decimal
	Unit     string
}

// PriceObservation is a single recorded price. Observations are append-only:
// value and canonical fields may be corrected, rows are never deleted.
type PriceObservation struct {
	ID        uuid.UUID
	Kind      PriceKind
	Date      time.Time
	Country   string
	State     string
	City      string
	Price     decimal.Decimal
	Currency  string
	Quantity  decimal.Decimal
	Unit      string
	Canonical *Canonical
	Audit     Audit
}

// RunSummary describes a completed ingestion run.
type RunSummary struct {
	RunID    uuid.UUID
	Kind     Kind
	Created  int
	Bytes    int64
	Duration time.Duration
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
