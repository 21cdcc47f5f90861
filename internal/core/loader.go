package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/pricetracker/internal/logging"
	"github.com/google/uuid"
)

// ContextCheckInterval is how often, in rows, a run checks for cancellation.
var ContextCheckInterval = 100

// ProgressInterval is how often, in rows, a run logs progress.
var ProgressInterval = 1000

// Loader drives a single ingestion run: parse, resolve, create.
//
// Rows are processed one at a time with exactly one gateway write each, and
// the run stops at the first failing row. Rows created before the failure
// stay stored; rerunning the same file then fails on the first of them with
// a DuplicateKeyError.
type Loader struct {
	store    ReferenceStore
	resolver *Resolver
	recorder Recorder
}

// NewLoader returns a loader writing to store. recorder may be nil.
func NewLoader(store ReferenceStore, recorder Recorder) *Loader {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Loader{
		store:    store,
		resolver: NewResolver(store),
		recorder: recorder,
	}
}

// Run consumes p until io.EOF and returns a summary.
// On failure it returns a *RowError naming the line; no summary is produced.
func (l *Loader) Run(ctx context.Context, p *Parser) (RunSummary, error) {
	start := time.Now()
	runID := uuid.New()
	kind := p.Kind()

	logger := logging.WithFields(ctx, "run_id", runID, "kind", kind, "dialect", p.Dialect().Name)
	logger.Info("ingestion started")

	created := 0
	for i := 0; ; i++ {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return RunSummary{}, l.fail(ctx, kind, p.Line(), nil, fmt.Errorf("run cancelled: %w", err))
			}
		}

		rec, err := p.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return RunSummary{}, l.fail(ctx, kind, p.Line(), p.LastRow(), err)
		}
		l.recorder.RowParsed(kind)

		resolved, err := l.resolver.Resolve(ctx, rec)
		if err != nil {
			return RunSummary{}, l.fail(ctx, kind, rec.Line, p.LastRow(), err)
		}

		id, err := l.store.Create(ctx, resolved)
		if err != nil {
			return RunSummary{}, l.fail(ctx, kind, rec.Line, p.LastRow(), err)
		}
		created++
		l.recorder.RecordCreated(kind)

		logger.Debug("record created", "line", rec.Line, "iso_code", rec.ISOCode, "id", id)
		if created%ProgressInterval == 0 {
			logger.Info("ingestion progress", "created", created, "bytes", p.BytesRead())
		}
	}

	summary := RunSummary{
		RunID:    runID,
		Kind:     kind,
		Created:  created,
		Bytes:    p.BytesRead(),
		Duration: time.Since(start),
	}
	logger.Info("ingestion completed",
		"created", summary.Created,
		"bytes", summary.Bytes,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

func (l *Loader) fail(ctx context.Context, kind Kind, line int, row []string, err error) error {
	msg := MapError(err)
	l.recorder.IngestFailed(kind, msg.Code)

	logging.FromContext(ctx).Error("ingestion failed",
		"kind", kind,
		"line", line,
		"code", msg.Code,
		"error", err,
	)
	return &RowError{Line: line, Row: row, Err: err}
}
