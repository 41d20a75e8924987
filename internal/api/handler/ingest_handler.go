package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/syften-relay/internal/api/middleware"
	"github.com/notifyhub/syften-relay/internal/service"
)

// IngestHandler accepts item batches pushed by Syften.
type IngestHandler struct {
	producer *service.Producer
	logger   *zap.Logger
}

func NewIngestHandler(producer *service.Producer, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{producer: producer, logger: logger}
}

// Ingest handles POST /syften-webhook and POST /api/v1/items
//
// @Summary     Enqueue a batch of items
// @Tags        items
// @Accept      json
// @Produce     json
// @Param       body  body      []domain.Item  true  "Item batch"
// @Success     200   {object}  map[string]int
// @Failure     400   {object}  map[string]string
// @Failure     413   {object}  map[string]string
// @Failure     422   {object}  map[string]any
// @Failure     500   {object}  map[string]string
// @Router      /syften-webhook [post]
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("correlation_id", apimw.GetCorrelationID(r.Context())))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("payload too large", zap.Int64("limit", tooLarge.Limit))
			mapError(w, err)
			return
		}
		log.Warn("failed to read request body", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Could not read body")
		return
	}

	log.Debug("raw syften payload", zap.ByteString("body", body))

	n, err := h.producer.Ingest(r.Context(), body)
	if err != nil {
		var publishErr *service.PublishError
		if errors.As(err, &publishErr) {
			log.Error("failed to enqueue batch",
				zap.Int("total", publishErr.Total),
				zap.Int("failed", publishErr.Failed),
				zap.Error(err),
			)
		} else {
			log.Warn("batch rejected", zap.Error(err))
		}
		mapError(w, err)
		return
	}

	log.Info("batch enqueued", zap.Int("received", n))
	respondJSON(w, http.StatusOK, map[string]int{"received": n})
}
