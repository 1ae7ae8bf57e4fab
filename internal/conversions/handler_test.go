package conversions

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mtarasenko/schoolleads/internal/exportlog"
	"github.com/mtarasenko/schoolleads/internal/leads"
	"github.com/mtarasenko/schoolleads/pkg/logging"
)

func newTestHandler(t *testing.T, source Source) (*Handler, *exportlog.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	runs := exportlog.NewStore(client)
	exporter := NewExporter(source, nil, logging.New("error")).WithClock(fixedClock())
	return NewHandler(exporter, runs, logging.New("error")), runs
}

func TestExportCSVResponse(t *testing.T) {
	handler, runs := newTestHandler(t, &fakeSource{leads: []leads.Lead{
		{ID: 42, Phone: "89995551111", Status: leads.StatusPaid, UpdatedAt: daysAgo(5), CreatedAt: testNow.AddDate(0, 0, -30)},
	}})

	req := httptest.NewRequest(http.MethodGet, "/conversions/csv", nil)
	rec := httptest.NewRecorder()
	handler.ExportCSV(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="direct_conversions.csv"` {
		t.Errorf("content disposition = %q", cd)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache, max-age=0" {
		t.Errorf("cache control = %q", cc)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "create_date_time;") || !strings.Contains(body, "lead_42") {
		t.Errorf("unexpected body: %q", body)
	}

	// A successful export leaves a run record behind.
	run, err := runs.Last(req.Context())
	if err != nil {
		t.Fatalf("run record missing: %v", err)
	}
	if run.Rows != 1 || run.Bytes != len(body) {
		t.Errorf("run record = %+v", run)
	}
}

func TestExportCSVHeaderOnlyIsOK(t *testing.T) {
	handler, _ := newTestHandler(t, &fakeSource{})

	rec := httptest.NewRecorder()
	handler.ExportCSV(rec, httptest.NewRequest(http.MethodGet, "/conversions/csv", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for empty feed", rec.Code)
	}
	if lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n"); len(lines) != 1 {
		t.Errorf("expected header only, got %d lines", len(lines))
	}
}

func TestExportCSVStoreFailure(t *testing.T) {
	handler, _ := newTestHandler(t, &fakeSource{err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	handler.ExportCSV(rec, httptest.NewRequest(http.MethodGet, "/conversions/csv", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want JSON error", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("error message missing")
	}
	if strings.Contains(rec.Body.String(), "create_date_time") {
		t.Error("error response must not carry partial CSV")
	}
}

func TestExportStatus(t *testing.T) {
	handler, _ := newTestHandler(t, &fakeSource{leads: []leads.Lead{
		{ID: 1, Phone: "79995551111", Status: leads.StatusPaid, UpdatedAt: daysAgo(2), CreatedAt: testNow.AddDate(0, 0, -3)},
	}})

	rec := httptest.NewRecorder()
	handler.ExportStatus(rec, httptest.NewRequest(http.MethodGet, "/export/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status before any run = %d, want 404", rec.Code)
	}

	handler.ExportCSV(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/conversions/csv", nil))

	rec = httptest.NewRecorder()
	handler.ExportStatus(rec, httptest.NewRequest(http.MethodGet, "/export/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status after run = %d, want 200", rec.Code)
	}
	var run exportlog.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if run.Rows != 1 {
		t.Errorf("recorded rows = %d, want 1", run.Rows)
	}
}
