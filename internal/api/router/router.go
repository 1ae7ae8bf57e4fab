package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mtarasenko/schoolleads/internal/conversions"
	httpmiddleware "github.com/mtarasenko/schoolleads/internal/http/middleware"
	"github.com/mtarasenko/schoolleads/internal/leads"
	"github.com/mtarasenko/schoolleads/internal/metrika"
	"github.com/mtarasenko/schoolleads/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ConversionsHandler *conversions.Handler
	MetrikaHandler     *metrika.Handler
	LeadsHandler       *leads.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Rate limit for the CSV export route; zero disables it.
	ExportRate  float64
	ExportBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/conversions", func(conv chi.Router) {
		csv := conv.With()
		if cfg.ExportRate > 0 && cfg.ExportBurst > 0 {
			csv = conv.With(httpmiddleware.RateLimit(cfg.ExportRate, cfg.ExportBurst))
		}
		csv.Get("/csv", cfg.ConversionsHandler.ExportCSV)
		if cfg.MetrikaHandler != nil {
			conv.Post("/metrika", cfg.MetrikaHandler.PushConversion)
		}
	})
	r.Get("/export/status", cfg.ConversionsHandler.ExportStatus)

	if cfg.LeadsHandler != nil {
		r.Route("/admin/leads", func(admin chi.Router) {
			admin.Get("/", cfg.LeadsHandler.ListLeads)
			admin.Get("/{leadID}", cfg.LeadsHandler.GetLead)
			admin.Put("/{leadID}/status", cfg.LeadsHandler.UpdateStatus)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
