package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/notifyhub/syften-relay/internal/domain"
	"github.com/notifyhub/syften-relay/internal/repository"
)

var errInvalidQuery = errors.New("invalid query")

// DeliveryHandler exposes the dispatcher's delivery log.
type DeliveryHandler struct {
	repo   repository.DeliveryRepository
	logger *zap.Logger
}

func NewDeliveryHandler(repo repository.DeliveryRepository, logger *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{repo: repo, logger: logger}
}

// List handles GET /api/v1/deliveries
//
// Query params: outcome (delivered|dropped|retry), filter, limit (default 50,
// max 500).
//
// @Summary  List recent deliveries
// @Tags     deliveries
// @Produce  json
// @Param    outcome  query     string  false  "Outcome filter"
// @Param    filter   query     string  false  "Syften filter"
// @Param    limit    query     int     false  "Page size"
// @Success  200      {object}  map[string]any
// @Failure  400      {object}  map[string]string
// @Router   /api/v1/deliveries [get]
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseDeliveryFilter(r)
	if err != nil {
		mapError(w, err)
		return
	}

	deliveries, err := h.repo.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list deliveries failed", zap.Error(err))
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  deliveries,
		"count": len(deliveries),
	})
}

func parseDeliveryFilter(r *http.Request) (domain.DeliveryFilter, error) {
	q := r.URL.Query()
	f := domain.DeliveryFilter{
		Filter: q.Get("filter"),
		Limit:  repository.DefaultListLimit,
	}

	if v := q.Get("outcome"); v != "" {
		o := domain.Outcome(v)
		if !o.IsValid() {
			return f, fmt.Errorf("%w: unknown outcome %q", errInvalidQuery, v)
		}
		f.Outcome = &o
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > repository.MaxListLimit {
			return f, fmt.Errorf("%w: limit must be between 1 and %d", errInvalidQuery, repository.MaxListLimit)
		}
		f.Limit = n
	}

	return f, nil
}
