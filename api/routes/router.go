package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hartwellgoods/storefront-backend/api/controllers"
	cartcontrollers "github.com/hartwellgoods/storefront-backend/api/controllers/cart"
	"github.com/hartwellgoods/storefront-backend/api/middleware"
	"github.com/hartwellgoods/storefront-backend/pkg/config"
	"github.com/hartwellgoods/storefront-backend/pkg/logger"
	"github.com/hartwellgoods/storefront-backend/pkg/redis"
)

// RouterParams carries the wired collaborators the HTTP surface needs.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Redis    *redis.Client
	Engines  cartcontrollers.EngineProvider
	Registry prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pinger(params.Redis)))
	})

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	settleWait := cfg.Cart.SettleWait

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.CartSession(logg))
		r.Use(middleware.Idempotency(idempotencyStore(params.Redis), logg))

		r.Get("/", cartcontrollers.Fetch(params.Engines, logg))
		r.Post("/lines", cartcontrollers.AddLine(params.Engines, settleWait, logg))
		r.Patch("/lines/{lineID}", cartcontrollers.UpdateLine(params.Engines, settleWait, logg))
		r.Post("/lines/remove", cartcontrollers.RemoveLines(params.Engines, settleWait, logg))
		r.Put("/discounts", cartcontrollers.UpdateDiscounts(params.Engines, settleWait, logg))
		r.Post("/gift-cards", cartcontrollers.AddGiftCard(params.Engines, settleWait, logg))
		r.Delete("/gift-cards/{giftCardID}", cartcontrollers.RemoveGiftCard(params.Engines, settleWait, logg))
	})

	return r
}

// pinger and idempotencyStore keep a typed nil redis client from sneaking into
// an interface as non-nil.
func pinger(client *redis.Client) redis.Pinger {
	if client == nil {
		return nil
	}
	return client
}

func idempotencyStore(client *redis.Client) redis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}
