package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradefin/core"
	"tradefin/gateway/middleware"
)

// Config wires the HTTP surface over a node. Nil middleware fields disable
// the corresponding concern.
type Config struct {
	Node          *core.Node
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	DevFaucet     bool
}

// New builds the gateway router: the exporter directory, receivable ledger
// and pool settlement endpoints under /v1, plus health and metrics.
func New(cfg Config) (http.Handler, error) {
	h, err := newHandlers(cfg.Node)
	if err != nil {
		return nil, err
	}

	gate := func(scopes ...string) func(http.Handler) http.Handler {
		if cfg.Authenticator == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.Authenticator.Middleware(scopes...)
	}
	observe := func(route string) func(http.Handler) http.Handler {
		if cfg.Observability == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.Observability.Middleware(route)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Observability != nil {
		r.Handle("/metrics", cfg.Observability.MetricsHandler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/exporters", func(sr chi.Router) {
			sr.With(observe("exporters.approve"), gate(middleware.ScopeAdmin)).Post("/", h.approveExporter)
			sr.With(observe("exporters.get")).Get("/{addr}", h.getExporter)
		})

		v1.Route("/receivables", func(sr chi.Router) {
			sr.With(observe("receivables.create")).Post("/", h.createReceivable)
			sr.With(observe("receivables.get")).Get("/{id}", h.getReceivable)
			sr.With(observe("receivables.verify"), gate(middleware.ScopeVerifier)).Post("/{id}/verify", h.verifyReceivable)
		})

		v1.Route("/pools", func(sr chi.Router) {
			sr.With(observe("pools.create"), gate(middleware.ScopeAdmin)).Post("/", h.createPool)
			sr.With(observe("pools.get")).Get("/{id}", h.getPool)
			sr.With(observe("pools.invest")).Post("/{id}/invest", h.invest)
			sr.With(observe("pools.mature")).Post("/{id}/mature", h.updateMaturity)
			sr.With(observe("pools.payments"), gate(middleware.ScopeAdmin)).Post("/{id}/payments", h.recordPayment)
			sr.With(observe("pools.distribute")).Post("/{id}/distribute", h.distributeYield)
			sr.With(observe("pools.default"), gate(middleware.ScopeAdmin)).Post("/{id}/default", h.markDefaulted)
			sr.With(observe("pools.position")).Get("/{id}/investors/{addr}", h.getPosition)
		})

		v1.With(observe("accounts.get")).Get("/accounts/{addr}", h.getAccount)
		if cfg.DevFaucet {
			v1.With(observe("faucet")).Post("/faucet", h.faucet)
		}
	})

	return r, nil
}
