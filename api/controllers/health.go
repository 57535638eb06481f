package controllers

import (
	"net/http"

	"github.com/hartwellgoods/storefront-backend/api/responses"
	"github.com/hartwellgoods/storefront-backend/pkg/config"
	"github.com/hartwellgoods/storefront-backend/pkg/logger"
	"github.com/hartwellgoods/storefront-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness, probing the session cache. The commerce
// backend is deliberately not probed: the engine degrades to optimistic-only
// behavior when it is down, and a probe would flap readiness with it.
func HealthReady(cfg *config.Config, logg *logger.Logger, cache redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", cfg.App.Env)

		components := map[string]string{}
		healthy := true

		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				components["redis"] = "unavailable"
				healthy = false
				if logg != nil {
					logg.Error(r.Context(), "readiness redis probe failed", err)
				}
			} else {
				components["redis"] = "ok"
			}
		}

		if !healthy {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{
				"status":     "degraded",
				"components": components,
			})
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"status":     "ready",
			"components": components,
		})
	}
}
