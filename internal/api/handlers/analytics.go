package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptlab/internal/models"
)

type AnalyticsService interface {
	GetPerformanceMetrics(ctx context.Context, promptID uuid.UUID, period models.Period) ([]models.MetricsBucket, error)
	CompareVersions(ctx context.Context, promptID uuid.UUID, versionIDs []uuid.UUID) ([]models.VersionStats, error)
}

type AnalyticsHandler struct {
	svc AnalyticsService
}

func NewAnalyticsHandler(svc AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

func (h *AnalyticsHandler) Performance(w http.ResponseWriter, r *http.Request) {
	promptID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	period, err := models.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	buckets, err := h.svc.GetPerformanceMetrics(r.Context(), promptID, period)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"period": period, "metrics": buckets})
}

// Compare takes a comma separated versionIds query parameter.
func (h *AnalyticsHandler) Compare(w http.ResponseWriter, r *http.Request) {
	promptID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var ids []uuid.UUID
	for _, s := range strings.Split(r.URL.Query().Get("versionIds"), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid version ID %q", models.ErrValidation, s))
			return
		}
		ids = append(ids, id)
	}

	stats, err := h.svc.CompareVersions(r.Context(), promptID, ids)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": stats})
}
