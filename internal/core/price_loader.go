package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/pricetracker/internal/logging"
	"github.com/google/uuid"
)

// KindPrice labels price observation runs in summaries, logs and metrics.
// It is not a reference kind and is not accepted by ParseKind.
const KindPrice Kind = "Price"

// PriceColumns is the header of a price observation file.
var PriceColumns = []string{"kind", "date", "country", "state", "city", "price", "currency", "quantity", "unit"}

// PriceFieldSpecs validates price observation rows.
var PriceFieldSpecs = []FieldSpec{
	{Name: "kind", Type: FieldEnum, Required: true, EnumValues: PriceKindNames(), Normalizer: strings.ToLower},
	{Name: "date", Type: FieldDate, Required: true},
	{Name: "country", Type: FieldText, Required: true, Normalizer: strings.ToUpper},
	{Name: "state", Type: FieldText, Normalizer: strings.ToUpper},
	{Name: "city", Type: FieldText, Normalizer: strings.ToUpper},
	{Name: "price", Type: FieldNumeric, Required: true},
	{Name: "currency", Type: FieldText, Required: true, Normalizer: strings.ToUpper},
	{Name: "quantity", Type: FieldNumeric, Required: true},
	{Name: "unit", Type: FieldText, Required: true},
}

// PriceLoader ingests header-based price observation files.
// Like Loader it is sequential and stops at the first failing row.
type PriceLoader struct {
	store    Gateway
	recorder Recorder
}

// NewPriceLoader returns a loader writing to store. recorder may be nil.
func NewPriceLoader(store Gateway, recorder Recorder) *PriceLoader {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &PriceLoader{store: store, recorder: recorder}
}

// Run reads observations from r. The country of every row must already be loaded.
func (l *PriceLoader) Run(ctx context.Context, r io.Reader, dialect Dialect) (RunSummary, error) {
	start := time.Now()
	runID := uuid.New()

	cr, src, dialect, err := openCSV(r, dialect)
	if err != nil {
		return RunSummary{}, l.fail(ctx, 1, nil, err)
	}
	logger := logging.WithFields(ctx, "run_id", runID, "kind", KindPrice, "dialect", dialect.Name)
	logger.Info("ingestion started")

	header, err := readNonEmpty(cr)
	if err == io.EOF {
		return RunSummary{}, l.fail(ctx, 1, nil, &ValidationError{Line: 1, Message: "file is empty"})
	}
	if err != nil {
		return RunSummary{}, l.fail(ctx, 1, nil, err)
	}
	idx, err := ValidateHeaders(header, PriceFieldSpecs)
	if err != nil {
		return RunSummary{}, l.fail(ctx, 1, header, err)
	}
	validator := NewRowValidator(PriceFieldSpecs, idx)

	countries := make(map[string]bool)
	created := 0
	for i := 0; ; i++ {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return RunSummary{}, l.fail(ctx, 0, nil, fmt.Errorf("run cancelled: %w", err))
			}
		}

		row, err := readNonEmpty(cr)
		if err == io.EOF {
			break
		}
		if err != nil {
			return RunSummary{}, l.fail(ctx, errorLine(err), nil, err)
		}
		line, _ := cr.FieldPos(0)
		l.recorder.RowParsed(KindPrice)

		obs, err := l.toObservation(line, row, validator)
		if err != nil {
			return RunSummary{}, l.fail(ctx, line, row, err)
		}

		if !countries[obs.Country] {
			if err := l.checkCountry(ctx, line, obs.Country); err != nil {
				return RunSummary{}, l.fail(ctx, line, row, err)
			}
			countries[obs.Country] = true
		}

		id, err := l.store.AddPriceObservation(ctx, obs)
		if err != nil {
			return RunSummary{}, l.fail(ctx, line, row, err)
		}
		created++
		l.recorder.RecordCreated(KindPrice)
		logger.Debug("observation created", "line", line, "id", id)
	}

	summary := RunSummary{
		RunID:    runID,
		Kind:     KindPrice,
		Created:  created,
		Bytes:    src.bytes,
		Duration: time.Since(start),
	}
	logger.Info("ingestion completed",
		"created", summary.Created,
		"bytes", summary.Bytes,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

func (l *PriceLoader) toObservation(line int, row []string, v *RowValidator) (PriceObservation, error) {
	if err := v.ValidateRow(line, row); err != nil {
		return PriceObservation{}, err
	}

	// Cells were validated above, so parse errors cannot occur here.
	kind, _ := ParsePriceKind(v.Cell(row, "kind"))
	date, _ := ParseDate(v.Cell(row, "date"))
	price, _ := ParseDecimal(v.Cell(row, "price"))
	quantity, _ := ParseDecimal(v.Cell(row, "quantity"))

	if price.IsNegative() {
		return PriceObservation{}, &InvariantError{Field: "price", Value: price.String(), Rule: "must not be negative"}
	}
	if !quantity.IsPositive() {
		return PriceObservation{}, nonPositive("quantity", quantity)
	}

	return PriceObservation{
		Kind:     kind,
		Date:     date,
		Country:  v.Cell(row, "country"),
		State:    v.Cell(row, "state"),
		City:     v.Cell(row, "city"),
		Price:    price,
		Currency: v.Cell(row, "currency"),
		Quantity: quantity,
		Unit:     v.Cell(row, "unit"),
	}, nil
}

func (l *PriceLoader) checkCountry(ctx context.Context, line int, iso string) error {
	_, err := l.store.FindByNaturalKey(ctx, KindCountry, iso)
	switch {
	case errors.Is(err, ErrNotFound):
		return &ParentNotFoundError{Kind: KindPrice, ParentKind: KindCountry, Key: iso, Line: line}
	case errors.Is(err, ErrAmbiguousKey):
		return &AmbiguousParentError{Kind: KindPrice, ParentKind: KindCountry, Key: iso, Line: line}
	case err != nil:
		return fmt.Errorf("resolve %s %q: %w", KindCountry, iso, err)
	}
	return nil
}

func (l *PriceLoader) fail(ctx context.Context, line int, row []string, err error) error {
	msg := MapError(err)
	l.recorder.IngestFailed(KindPrice, msg.Code)
	logging.FromContext(ctx).Error("ingestion failed",
		"kind", KindPrice,
		"line", line,
		"code", msg.Code,
		"error", err,
	)
	return &RowError{Line: line, Row: row, Err: err}
}

// readNonEmpty returns the next row that has at least one non-blank cell.
func readNonEmpty(cr *csv.Reader) ([]string, error) {
	for {
		row, err := cr.Read()
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &MalformedRowError{Kind: KindPrice, Line: pe.StartLine, Reason: pe.Err.Error()}
			}
			return nil, err
		}
		if !isEmptyRow(row) {
			return row, nil
		}
	}
}

func errorLine(err error) int {
	var m *MalformedRowError
	if errors.As(err, &m) {
		return m.Line
	}
	return 0
}
