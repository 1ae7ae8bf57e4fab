package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtarasenko/schoolleads/internal/conversions"
	"github.com/mtarasenko/schoolleads/internal/leads"
	"github.com/mtarasenko/schoolleads/internal/metrika"
	"github.com/mtarasenko/schoolleads/pkg/logging"
)

type stubSource struct{}

func (stubSource) ListExportable(ctx context.Context) ([]leads.Lead, error) {
	return nil, nil
}

type stubRepo struct{}

func (stubRepo) ListExportable(ctx context.Context) ([]leads.Lead, error) { return nil, nil }
func (stubRepo) List(ctx context.Context, f leads.ListFilter) ([]leads.Lead, error) {
	return nil, nil
}
func (stubRepo) GetByID(ctx context.Context, id int64) (*leads.Lead, error) {
	return nil, leads.ErrLeadNotFound
}
func (stubRepo) UpdateStatus(ctx context.Context, id int64, s leads.Status) error { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := logging.New("error")
	exporter := conversions.NewExporter(stubSource{}, nil, logger)
	reg := prometheus.NewRegistry()
	return New(&Config{
		Logger:             logger,
		ConversionsHandler: conversions.NewHandler(exporter, nil, logger),
		MetrikaHandler:     metrika.NewHandler(nil, logger),
		LeadsHandler:       leads.NewHandler(stubRepo{}, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"*"},
	})
}

func TestHealthRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health body = %q", rec.Body.String())
	}
}

func TestCSVRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversions/csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestPreflightOnCSVRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/conversions/csv", nil)
	req.Header.Set("Origin", "https://admin.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("preflight body should be empty, got %q", rec.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
}

func TestExportStatusRouteWithoutRuns(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("export status = %d, want 404 before any run", rec.Code)
	}
}

func TestAdminLeadsRoutes(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list leads status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads/99", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get lead status = %d, want 404 from stub", rec.Code)
	}
}
