package handler

import (
	"context"
	"net/http"

	"github.com/cleanflip/opsight/internal/api/response"
	"github.com/cleanflip/opsight/internal/series"
)

// TrendProvider defines the interface the series handler depends on.
type TrendProvider interface {
	Series(ctx context.Context, days int) ([]series.Bucket, error)
}

// NewSeriesHandler returns an http.HandlerFunc for GET /api/v1/series.
// The response always covers days*24 contiguous hourly buckets; the chart
// never has to gap-fill.
func NewSeriesHandler(svc TrendProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := intParam(r.URL.Query().Get("days"), 1)

		buckets, err := svc.Series(r.Context(), days)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load series", nil)
			return
		}

		response.JSON(w, buckets)
	}
}
