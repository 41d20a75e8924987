package handler

import (
	"net/http"

	"github.com/notifyhub/syften-relay/internal/worker"
)

// RelayStatus describes the running process for the status snapshot.
// Depth and Subscription are nil when not applicable.
type RelayStatus struct {
	Role         string
	QueueDriver  string
	Depth        func() int
	Subscription *worker.Subscription
}

// MetricsHandler serves a human-readable JSON status snapshot.
// Raw Prometheus metrics (counters, histograms) are available at /metrics
// via promhttp.Handler and are separate from this endpoint.
type MetricsHandler struct {
	status RelayStatus
}

func NewMetricsHandler(status RelayStatus) *MetricsHandler {
	return &MetricsHandler{status: status}
}

// GetMetrics handles GET /api/v1/metrics
//
// @Summary  Relay status snapshot
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/metrics [get]
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"role":         h.status.Role,
		"queue_driver": h.status.QueueDriver,
		"subscription": subscriptionState(h.status.Subscription),
	}
	if h.status.Depth != nil {
		body["queue_depth"] = h.status.Depth()
	}
	if s := h.status.Subscription; s != nil {
		if err := s.Err(); err != nil {
			body["subscription_error"] = err.Error()
		}
	}
	respondJSON(w, http.StatusOK, body)
}

func subscriptionState(s *worker.Subscription) string {
	if s == nil {
		return "disabled"
	}
	select {
	case <-s.Done():
		return "stopped"
	default:
		return "running"
	}
}
