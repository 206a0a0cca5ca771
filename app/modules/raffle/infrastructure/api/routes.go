package raffleapi

import (
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// RouteConfig tunes the raffle routes.
type RouteConfig struct {
	AllowedOrigins []string
	RateLimit      rate.Limit
	RateBurst      int
}

// Mount registers the raffle routes under /raffle.
func Mount(r chi.Router, h *Handlers, cfg RouteConfig) {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	limiter := NewIPRateLimiter(cfg.RateLimit, cfg.RateBurst)

	r.Route("/raffle", func(r chi.Router) {
		r.Use(CORSMiddleware(cfg.AllowedOrigins))
		r.Use(RateLimitMiddleware(limiter))

		r.Get("/", h.HandleGetRaffle)
		r.Post("/entries", h.HandleEnter)
		r.Get("/players/{index}", h.HandleGetPlayer)
		r.Get("/upkeep", h.HandleCheckUpkeep)
		r.Post("/upkeep", h.HandleRequestUpkeep)
		r.Get("/upkeep/jobs", h.HandleListUpkeepJobs)
		r.Get("/proofs/{requestID}", h.HandleGetProof)
		r.Get("/settlements", h.HandleListSettlements)
		r.Get("/rounds/{roundID}", h.HandleGetRound)
		r.Get("/payouts", h.HandleListPayouts)
		r.Get("/balances/{address}", h.HandleGetBalance)
	})
}
