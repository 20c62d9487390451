// Package api provides the HTTP admin API for Herald.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/herald/engine"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/stream"
)

// API wires the HTTP handlers to an Engine.
type API struct {
	eng      *engine.Engine
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	broker   *stream.Broker
}

// Option configures an API.
type Option func(*API)

// WithGatherer serves /metrics from g. Without it /metrics is not mounted.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *API) { a.gatherer = g }
}

// WithLogger sets the logger used for server-side errors.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithBroker serves live lifecycle events from b at /v1/events (SSE) and
// /v1/events/ws (WebSocket).
func WithBroker(b *stream.Broker) Option {
	return func(a *API) { a.broker = b }
}

// New creates an API from a Herald Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: eng.Logger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all Herald routes on r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.healthz)
	if a.gatherer != nil {
		r.Handle("/metrics", observability.Handler(a.gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		a.registerJobRoutes(r)
		a.registerDLQRoutes(r)
		a.registerCronRoutes(r)
		r.Get("/stats", a.stats)
		if a.broker != nil {
			r.Get("/events", a.events)
			r.Get("/events/ws", a.eventsWS)
		}
	})
}

func (a *API) registerJobRoutes(r chi.Router) {
	r.Post("/deliveries", a.createDelivery)
	r.Post("/triggers", a.createTrigger)

	r.Get("/jobs/due", a.listDue)
	r.Get("/jobs/failed", a.listFailed)
	r.Get("/jobs/{jobId}", a.getJob)
	r.Post("/jobs/{jobId}/cancel", a.cancelJob)
	r.Post("/jobs/{jobId}/retry", a.retryJob)
}

func (a *API) registerDLQRoutes(r chi.Router) {
	r.Get("/dlq", a.listDLQ)
	r.Post("/dlq/replay", a.replayAllDLQ)
	r.Post("/dlq/{jobId}/replay", a.replayDLQ)
}

func (a *API) registerCronRoutes(r chi.Router) {
	r.Get("/crons", a.listCrons)
	r.Post("/crons", a.createCron)
	r.Get("/crons/{name}", a.getCron)
	r.Delete("/crons/{name}", a.deleteCron)
	r.Post("/crons/{name}/enable", a.enableCron)
	r.Post("/crons/{name}/disable", a.disableCron)
}
