package metrika

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mtarasenko/schoolleads/pkg/logging"
)

// Handler accepts manual conversion pushes from the admin panel and
// forwards them to Metrika.
type Handler struct {
	client *Client
	logger *logging.Logger
}

// NewHandler creates a Metrika push handler. client may be nil when no
// token is configured; pushes then fail with a clear 500.
func NewHandler(client *Client, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{client: client, logger: logger}
}

type pushRequest struct {
	Goal     string `json:"goal"`
	ClientID string `json:"client_id"`
	Phone    string `json:"phone"`
	Course   string `json:"course"`
	Datetime string `json:"datetime"`
}

type pushResponse struct {
	Success        bool   `json:"success"`
	UploadID       int64  `json:"upload_id"`
	Goal           string `json:"goal"`
	Phone          string `json:"phone"`
	Course         string `json:"course"`
	ClientID       string `json:"client_id"`
	LinkedQuantity int64  `json:"linked_quantity"`
	Status         string `json:"status"`
}

// PushConversion handles POST /conversions/metrika.
func (h *Handler) PushConversion(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		writeJSONError(w, http.StatusInternalServerError, "YANDEX_METRIKA_TOKEN not configured")
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ClientID) == "" {
		writeJSONError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	goal := req.Goal
	if goal == "" {
		goal = DefaultGoal
	}
	comment := "Offline conversion"
	if req.Course != "" {
		comment = "Target client conversion - " + req.Course
	}

	upload, err := h.client.UploadConversion(r.Context(), Conversion{
		ClientID: req.ClientID,
		Goal:     goal,
		At:       parseEventTime(req.Datetime),
		Comment:  comment,
	})
	if err != nil {
		h.logger.Error("metrika upload failed", "error", err, "goal", goal)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			writeJSONError(w, apiErr.StatusCode, "Metrika API error: "+apiErr.Body)
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pushResponse{
		Success:        true,
		UploadID:       upload.ID,
		Goal:           goal,
		Phone:          req.Phone,
		Course:         req.Course,
		ClientID:       req.ClientID,
		LinkedQuantity: upload.LinkedQuantity,
		Status:         upload.Status,
	})
}

// parseEventTime accepts RFC 3339 (trailing Z included) or Unix
// seconds; anything else resolves to now. Metrika wants seconds in the
// counter's timezone, which the zero value of At also produces.
func parseEventTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
