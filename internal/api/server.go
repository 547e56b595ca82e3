// Package api implements the HTTP surface of the facility planner.
package api

import (
	"context"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/htangden/lastbil-optimering/internal/auth"
	"github.com/htangden/lastbil-optimering/internal/config"
	"github.com/htangden/lastbil-optimering/internal/store"
	"github.com/htangden/lastbil-optimering/internal/webhooks"
)

type Server struct {
	Config config.Config
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker

	limiter  *tenantLimiter
	verifier *auth.Verifier
	ctx      context.Context
	cancel   context.CancelFunc
	running  sync.WaitGroup
}

// NewServer wires the store and broker named by cfg. Without a database URL
// plans live in memory; without a Redis URL events stay in-process.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if cfg.Database.URL == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := sp.Migrate(context.Background()); err != nil {
				return nil, err
			}
		}
		s = sp
	}
	var broker EventBroker = NewBroker()
	if cfg.Redis.URL != "" {
		rb, err := NewRedisBroker(cfg.Redis.URL, cfg.Redis.Channel)
		if err != nil {
			log.WithError(err).Warn("redis broker unavailable, using in-process broker")
		} else {
			broker = rb
		}
	}
	return newServer(cfg, s, broker), nil
}

func newServer(cfg config.Config, s store.Store, broker EventBroker) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Config:   cfg,
		Store:    s,
		Pub:      webhooks.NewPublisher(s),
		Broker:   broker,
		limiter:  newTenantLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst),
		verifier: auth.New(cfg.Auth),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Routes returns the service handler with logging and metrics applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Plans
	mux.HandleFunc("/v1/plans", s.PlansHandler)
	mux.HandleFunc("/v1/plans/", s.PlanByIDHandler) // includes /report, /lp, /geojson, /events/stream, /ws

	// Subscriptions
	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/debug", s.DebugJSON)

	return logMiddleware(metricsMiddleware(s.authMiddleware(mux)))
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.Webhooks.MaxAttempts)
}

// Shutdown cancels running searches and waits for them to record their
// outcome.
func (s *Server) Shutdown() {
	s.cancel()
	s.running.Wait()
}
