package conversions

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mtarasenko/schoolleads/internal/exportlog"
	"github.com/mtarasenko/schoolleads/pkg/logging"
)

const exportFilename = "direct_conversions.csv"

// Handler serves the Direct conversion feed over HTTP.
type Handler struct {
	exporter *Exporter
	runs     *exportlog.Store
	logger   *logging.Logger
}

// NewHandler creates a new conversions handler. runs may be nil when
// no Redis is configured.
func NewHandler(exporter *Exporter, runs *exportlog.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{exporter: exporter, runs: runs, logger: logger}
}

// ExportCSV handles GET /conversions/csv. The body is the complete
// feed; nothing is written until the whole pipeline succeeded, so an
// error response never carries partial CSV.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	content, rows, err := h.exporter.Export(r.Context())
	if err != nil {
		h.logger.Error("conversion export failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.runs.Record(r.Context(), exportlog.Run{
		RanAt:      time.Now(),
		Rows:       rows,
		Bytes:      len(content),
		DurationMS: time.Since(start).Milliseconds(),
	}); err != nil {
		// Best effort; the feed itself is already built.
		h.logger.Warn("failed to record export run", "error", err)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	w.Header().Set("Cache-Control", "no-cache, max-age=0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

// ExportStatus handles GET /export/status with the last successful
// run, for operators checking the scheduler did its job.
func (h *Handler) ExportStatus(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Last(r.Context())
	if err != nil {
		if errors.Is(err, exportlog.ErrNoRun) {
			writeJSONError(w, http.StatusNotFound, "no export run recorded")
			return
		}
		h.logger.Error("failed to read export run", "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(run)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
