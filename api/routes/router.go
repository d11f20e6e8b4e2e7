package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/merchstack/tierprice-service/api/controllers"
	"github.com/merchstack/tierprice-service/api/middleware"
	"github.com/merchstack/tierprice-service/pkg/config"
	"github.com/merchstack/tierprice-service/pkg/logger"
	pkgredis "github.com/merchstack/tierprice-service/pkg/redis"
)

// NewRouter wires the HTTP surface: the tier price batch endpoints, health
// probes and the metrics endpoint.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	priceService controllers.TierPriceService,
	idempotencyStore pkgredis.IdempotencyStore,
	healthDeps map[string]controllers.Pinger,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, healthDeps))
	})

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1/tier-prices", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Post("/query", controllers.QueryTierPrices(priceService, logg))
		r.Post("/", controllers.UpdateTierPrices(priceService, logg))
		r.Put("/", controllers.ReplaceTierPrices(priceService, logg))
		r.Post("/delete", controllers.DeleteTierPrices(priceService, logg))
	})

	return r
}
