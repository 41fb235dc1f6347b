package marc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"shelfmark/internal/httpx"
	"shelfmark/internal/metadata"
)

type HTTPHandler struct{}

func NewHTTPHandler() *HTTPHandler {
	return &HTTPHandler{}
}

type exportRequest struct {
	Records []*metadata.BookMetadata `json:"records" validate:"required,min=1"`
}

// Export handles POST /export/marc. The body carries canonical records;
// the response is a binary .mrc download.
func (h *HTTPHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONErrorWithRequest(r, w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if verrs := httpx.ValidateStruct(req); len(verrs) > 0 {
		httpx.JSONErrorWithRequest(r, w, http.StatusBadRequest, "VALIDATION_ERROR", "records must not be empty", httpx.Details(verrs))
		return
	}
	for _, rec := range req.Records {
		if rec == nil || !httpx.ValidateVar(rec.ISBN, "required,isbn") {
			httpx.JSONErrorWithRequest(r, w, http.StatusBadRequest, "VALIDATION_ERROR", "every record needs a valid ISBN", nil)
			return
		}
	}

	payload := BuildBatch(req.Records)
	filename := fmt.Sprintf("shelfmark_export_%s.mrc", time.Now().UTC().Format("20060102_150405"))

	w.Header().Set("Content-Type", "application/marc")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(payload)))
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}
