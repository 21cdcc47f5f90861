package handler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/JonMunkholm/pricetracker/internal/core"
)

// UploadFile loads a reference file. args are [kind] [path] [dialect]; the
// missing ones are prompted for. An empty dialect uses the configured one,
// or detection.
func (h *Handler) UploadFile(ctx context.Context, args []string) (core.RunSummary, error) {
	kindName, err := h.Prompt.argOrAsk(args, 0, "kind")
	if err != nil {
		return core.RunSummary{}, err
	}
	path, err := h.Prompt.argOrAsk(args, 1, "path")
	if err != nil {
		return core.RunSummary{}, err
	}
	dialectName, err := h.Prompt.argOrAsk(args, 2, dialectLabel())
	if err != nil {
		return core.RunSummary{}, err
	}

	kind, err := core.ParseKind(kindName)
	if err != nil {
		return core.RunSummary{}, err
	}
	dialect, err := h.dialect(dialectName)
	if err != nil {
		return core.RunSummary{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return core.RunSummary{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ctx, cancel := withTimeout(ctx, h.Config.Ingest.Timeout)
	defer cancel()

	p, err := core.NewParser(f, kind, dialect)
	if err != nil {
		return core.RunSummary{}, runError(kind, err)
	}
	summary, err := core.NewLoader(h.Store, h.Recorder).Run(ctx, p)
	if err != nil {
		return summary, runError(kind, err)
	}

	h.printf("Uploaded %d %s records from %s (%d bytes, %s)\n",
		summary.Created, kind, path, summary.Bytes, summary.Duration.Round(time.Millisecond))
	return summary, nil
}

// UploadPrices loads a price observation file. args are <path> [dialect].
func (h *Handler) UploadPrices(ctx context.Context, path, dialectName string) (core.RunSummary, error) {
	dialect, err := h.dialect(dialectName)
	if err != nil {
		return core.RunSummary{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return core.RunSummary{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ctx, cancel := withTimeout(ctx, h.Config.Ingest.Timeout)
	defer cancel()

	summary, err := core.NewPriceLoader(h.Store, h.Recorder).Run(ctx, f, dialect)
	if err != nil {
		return summary, runError(core.KindPrice, err)
	}

	h.printf("Uploaded %d price observations from %s (%d bytes, %s)\n",
		summary.Created, path, summary.Bytes, summary.Duration.Round(time.Millisecond))
	return summary, nil
}

func (h *Handler) dialect(name string) (core.Dialect, error) {
	if name == "" {
		name = h.Config.Ingest.Dialect
	}
	return core.LookupDialect(name)
}

func dialectLabel() string {
	return fmt.Sprintf("dialect [%s %s]", strings.Join(core.Dialects(), " "), core.SniffDialect)
}
