package classify

import (
	"encoding/json"
	"errors"
	"net/http"

	"shelfmark/internal/httpx"
	"shelfmark/internal/metadata"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

type classifyRequest struct {
	Metadata *metadata.BookMetadata `json:"metadata" validate:"required"`
}

// Classify handles POST /classify. The body carries a canonical record;
// the response is the same record enhanced with classification fields.
func (h *HTTPHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONErrorWithRequest(r, w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if verrs := httpx.ValidateStruct(req); len(verrs) > 0 {
		httpx.JSONErrorWithRequest(r, w, http.StatusBadRequest, "VALIDATION_ERROR", "metadata with ISBN is required", httpx.Details(verrs))
		return
	}
	if !httpx.ValidateVar(req.Metadata.ISBN, "required,isbn") {
		httpx.JSONErrorWithRequest(r, w, http.StatusBadRequest, "VALIDATION_ERROR", "isbn must be a valid ISBN (10 or 13 digits)", []httpx.ErrorDetail{
			{Field: "metadata.isbn", Message: "must be a valid ISBN-10 or ISBN-13"},
		})
		return
	}

	enhanced, err := h.svc.Classify(r.Context(), req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, metadata.ErrInvalidISBN):
			httpx.JSONErrorWithRequest(r, w, http.StatusBadRequest, "INVALID_ISBN", "isbn must be a valid ISBN-10 or ISBN-13", nil)
		case errors.Is(err, ErrRateLimited):
			httpx.JSONErrorWithRequest(r, w, http.StatusTooManyRequests, "AI_RATE_LIMITED", "AI rate limit reached. Please wait a moment and try again.", nil)
		default:
			httpx.JSONErrorWithRequest(r, w, http.StatusBadGateway, "CLASSIFY_FAILED", err.Error(), nil)
		}
		return
	}

	httpx.JSONSuccessWithRequest(r, w, enhanced, nil)
}
