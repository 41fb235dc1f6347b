package resolver

import (
	"context"
	"errors"
	"net/http"

	"shelfmark/internal/httpx"
	"shelfmark/internal/metadata"
	"shelfmark/internal/platform/perpusnas"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// Resolve handles GET /books/{isbn}.
func (h *HTTPHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	isbn := r.PathValue("isbn")

	record, meta, err := h.svc.Resolve(r.Context(), isbn)
	if err != nil {
		switch {
		case errors.Is(err, metadata.ErrInvalidISBN):
			httpx.JSONErrorWithRequest(r, w, http.StatusBadRequest, "INVALID_ISBN", "isbn must be a valid ISBN-10 or ISBN-13", nil)
		case errors.Is(err, ErrNotFound):
			httpx.JSONErrorWithRequest(r, w, http.StatusNotFound, "NOT_FOUND", "no source has data for this isbn", nil)
		default:
			httpx.JSONErrorWithRequest(r, w, http.StatusInternalServerError, "RESOLVE_FAILED", err.Error(), nil)
		}
		return
	}

	httpx.JSONSuccessWithRequest(r, w, record, map[string]interface{}{
		"resolution": meta,
	})
}

// ConnectionChecker probes a harvesting source's endpoints.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context) perpusnas.Status
}

type HealthHandler struct {
	probe ConnectionChecker
}

func NewHealthHandler(probe ConnectionChecker) *HealthHandler {
	return &HealthHandler{probe: probe}
}

// PerpusnasHealth handles GET /sources/perpusnas/health. The probe sends a
// lightweight Identify request to each endpoint, so a 200 here means the
// harvest path is usable right now.
func (h *HealthHandler) PerpusnasHealth(w http.ResponseWriter, r *http.Request) {
	status := h.probe.CheckConnection(r.Context())
	if !status.Available {
		httpx.JSONErrorWithRequest(r, w, http.StatusServiceUnavailable, "SOURCE_UNAVAILABLE", "no perpusnas endpoint is reachable", nil)
		return
	}
	httpx.JSONSuccessWithRequest(r, w, status, nil)
}
