package conversions

import (
	"context"
	"fmt"
	"time"

	"github.com/mtarasenko/schoolleads/internal/leads"
	"github.com/mtarasenko/schoolleads/internal/observability/metrics"
	"github.com/mtarasenko/schoolleads/pkg/logging"
)

// Source is the slice of the lead repository the exporter needs.
type Source interface {
	ListExportable(ctx context.Context) ([]leads.Lead, error)
}

// Exporter runs the full fetch -> filter -> map -> encode pipeline and
// returns the finished feed. It holds no state between runs; the only
// suspension point is the initial fetch.
type Exporter struct {
	source  Source
	metrics *metrics.ExportMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewExporter wires an exporter. metrics may be nil.
func NewExporter(source Source, m *metrics.ExportMetrics, logger *logging.Logger) *Exporter {
	if source == nil {
		panic("conversions: source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Exporter{
		source:  source,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the exporter's notion of now, for tests.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

// Export produces the complete feed. A store failure aborts the whole
// run; there is never a partial feed.
func (e *Exporter) Export(ctx context.Context) (string, int, error) {
	start := time.Now()

	fetched, err := e.source.ListExportable(ctx)
	if err != nil {
		e.metrics.ObserveRun("error", time.Since(start).Seconds())
		return "", 0, fmt.Errorf("conversions: fetch leads: %w", err)
	}

	rows, dropped := BuildRows(fetched, e.now())
	content, err := EncodeCSV(rows)
	if err != nil {
		e.metrics.ObserveRun("error", time.Since(start).Seconds())
		return "", 0, err
	}

	e.metrics.ObserveRun("success", time.Since(start).Seconds())
	e.metrics.AddRowsEmitted(len(rows))
	e.metrics.AddDropped("too_old", dropped.TooOld)
	e.metrics.AddDropped("no_identity", dropped.NoIdentity)

	e.logger.Info("conversion export finished",
		"fetched", len(fetched),
		"emitted", len(rows),
		"dropped_too_old", dropped.TooOld,
		"dropped_no_identity", dropped.NoIdentity,
		"bytes", len(content),
	)
	return content, len(rows), nil
}
