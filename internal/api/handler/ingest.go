package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cleanflip/opsight/internal/api/response"
	"github.com/cleanflip/opsight/internal/ingest"
)

// Ingester defines the interface the ingest handler depends on.
type Ingester interface {
	Ingest(ctx context.Context, r ingest.Report) (*ingest.Result, error)
}

type ingestResponse struct {
	Accepted    bool   `json:"accepted"`
	EventID     string `json:"event_id,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// NewIngestHandler returns an http.HandlerFunc for POST /api/v1/errors.
//
// Producers are fire-and-forget: a storage outage drops the report (already
// logged by the service) and still answers 202, so error-capture probes
// never block or retry-storm. Malformed payloads do get a 400 so a
// misconfigured probe is discoverable.
func NewIngestHandler(svc Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var report ingest.Report
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		result, err := svc.Ingest(r.Context(), report)
		if err != nil {
			if errors.Is(err, ingest.ErrInvalidReport) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			response.Accepted(w, ingestResponse{Accepted: false})
			return
		}

		response.Accepted(w, ingestResponse{
			Accepted:    true,
			EventID:     result.EventID.String(),
			Fingerprint: result.Fingerprint,
		})
	}
}
