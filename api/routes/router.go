package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/ledgermart/api/controllers"
	"github.com/angelmondragon/ledgermart/api/middleware"
	"github.com/angelmondragon/ledgermart/pkg/config"
	"github.com/angelmondragon/ledgermart/pkg/logger"
	pkgredis "github.com/angelmondragon/ledgermart/pkg/redis"
)

// Dependencies carries everything the HTTP surface talks to.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	Idempotency pkgredis.IdempotencyStore
	Checks      map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer

	Items     controllers.ItemReader
	Purchases controllers.PurchaseStarter
	Journal   controllers.PurchaseJournal
	Wallet    interface {
		controllers.WalletSession
		middleware.IdentitySource
	}
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger
	ledgerCfg := cfg.Ledger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Checks))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	replayable := middleware.PurchaseIdempotency(deps.Idempotency, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.WalletContext(deps.Wallet, logg))

		r.Route("/items", func(r chi.Router) {
			r.Get("/", controllers.ItemList(deps.Items, ledgerCfg, logg))
			r.Get("/{itemId}", controllers.ItemDetail(deps.Items, ledgerCfg, logg))
			r.With(replayable).Post("/{itemId}/purchase", controllers.PurchaseStart(deps.Items, deps.Purchases, ledgerCfg, logg))
			r.Get("/{itemId}/purchases", controllers.PurchaseHistory(deps.Journal, ledgerCfg, logg))
		})

		r.Get("/purchases/{intentId}", controllers.PurchaseStatus(deps.Journal, ledgerCfg, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletStatus(deps.Wallet, ledgerCfg, logg))
			r.Post("/connect", controllers.WalletConnect(deps.Wallet, ledgerCfg, logg))
			r.Delete("/", controllers.WalletDisconnect(deps.Wallet, ledgerCfg, logg))
		})
	})

	return r
}
