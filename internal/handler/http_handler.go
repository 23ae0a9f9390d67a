package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gosight/slidetrack/internal/ingest"
	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/validation"
)

type HTTPHandler struct {
	ingest       *ingest.Service
	maxBodyBytes int64
}

func NewHTTPHandler(svc *ingest.Service, maxBodyBytes int64) *HTTPHandler {
	return &HTTPHandler{
		ingest:       svc,
		maxBodyBytes: maxBodyBytes,
	}
}

type SnapshotResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// HandleSnapshot accepts one snapshot per request
func (h *HTTPHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	defer r.Body.Close()

	// Parse request
	var snap model.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, SnapshotResponse{Message: "Snapshot too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, SnapshotResponse{Message: "Invalid JSON"})
		return
	}

	// RealIP middleware has already resolved X-Real-IP / X-Forwarded-For
	_, err := h.ingest.Accept(r.Context(), snap, ingest.Source{
		Transport: "http",
		UserAgent: r.Header.Get("User-Agent"),
		ClientIP:  r.RemoteAddr,
	})

	var invalid *ingest.InvalidError
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, SnapshotResponse{Success: true, Message: "Snapshot accepted"})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, SnapshotResponse{Message: "Invalid snapshot", Errors: invalid.Problems})
	case errors.Is(err, validation.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, SnapshotResponse{Message: "Rate limit exceeded"})
	default:
		writeJSON(w, http.StatusInternalServerError, SnapshotResponse{Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
