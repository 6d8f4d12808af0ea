package handler

import (
	"net/http"
	"time"
)

type Readiness interface {
	IsReady() bool
}

type Counter interface {
	Count() int
}

type HealthHandler struct {
	ingestor Readiness
	store    Counter
}

func NewHealthHandler(ing Readiness, s Counter) *HealthHandler {
	return &HealthHandler{
		ingestor: ing,
		store:    s,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready       bool      `json:"ready"`
	RecordCount int       `json:"recordCount"`
	ServerTime  time.Time `json:"serverTime"`
}

// Readyz reports 503 until the first poll cycle has succeeded.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ingestor.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:       ready,
		RecordCount: h.store.Count(),
		ServerTime:  time.Now(),
	})
}
