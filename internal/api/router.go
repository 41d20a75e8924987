package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/syften-relay/internal/api/handler"
	apimw "github.com/notifyhub/syften-relay/internal/api/middleware"
	"github.com/notifyhub/syften-relay/internal/repository"
	"github.com/notifyhub/syften-relay/internal/service"
)

const defaultMaxBodyBytes = 1 << 20

// Deps holds what the router needs. Producer is nil when the process does
// not ingest; Deliveries is nil when the delivery log is disabled. The
// matching routes are not mounted in either case.
type Deps struct {
	Producer     *service.Producer
	Deliveries   repository.DeliveryRepository
	Status       handler.RelayStatus
	Gatherer     prometheus.Gatherer
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(d Deps) http.Handler {
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(maxBody)) // inbound body cap, 413 on overflow
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(d.Logger, "/healthz", "/health", "/metrics"))

	// --- handler instances ---
	hh := handler.NewHealthHandler()
	mh := handler.NewMetricsHandler(d.Status)

	// --- routes ---
	r.Get("/healthz", hh.Health)
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	var ih *handler.IngestHandler
	if d.Producer != nil {
		ih = handler.NewIngestHandler(d.Producer, d.Logger)
		// Path Syften is configured to push to.
		r.Post("/syften-webhook", ih.Ingest)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if ih != nil {
			r.Post("/items", ih.Ingest)
		}
		if d.Deliveries != nil {
			dh := handler.NewDeliveryHandler(d.Deliveries, d.Logger)
			r.Get("/deliveries", dh.List)
		}

		// JSON status snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
