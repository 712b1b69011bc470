package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/library-backend/api/controllers"
	"github.com/angelmondragon/library-backend/api/middleware"
	"github.com/angelmondragon/library-backend/internal/books"
	"github.com/angelmondragon/library-backend/internal/borrowers"
	"github.com/angelmondragon/library-backend/internal/rentals"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/library-backend/pkg/redis"
)

// Dependencies wires the router. RedisPinger and Idempotency are nil when
// redis is not configured.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	DBPinger    controllers.Pinger
	RedisPinger controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Books       books.Service
	Borrowers   borrowers.Service
	Rentals     rentals.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, deps.RedisPinger))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	idempotent := middleware.Idempotency(deps.Idempotency, cfg.Rentals.IdempotencyTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/books", func(r chi.Router) {
			r.Get("/", controllers.BookList(deps.Books, logg))
			r.Post("/", controllers.BookCreate(deps.Books, logg))
			r.Get("/stats", controllers.BookStats(deps.Books, logg))
			r.Get("/{bookId}", controllers.BookGet(deps.Books, logg))
			r.Put("/{bookId}", controllers.BookUpdate(deps.Books, logg))
			r.Delete("/{bookId}", controllers.BookDelete(deps.Rentals, logg))
		})

		r.Route("/borrowers", func(r chi.Router) {
			r.Get("/", controllers.BorrowerList(deps.Borrowers, logg))
			r.Post("/", controllers.BorrowerCreate(deps.Borrowers, logg))
			r.Get("/stats", controllers.BorrowerStats(deps.Borrowers, logg))
			r.Get("/{borrowerId}", controllers.BorrowerGet(deps.Borrowers, logg))
			r.Put("/{borrowerId}", controllers.BorrowerUpdate(deps.Borrowers, logg))
			r.Delete("/{borrowerId}", controllers.BorrowerDelete(deps.Rentals, logg))
		})

		r.Route("/rentals", func(r chi.Router) {
			r.Get("/", controllers.RentalList(deps.Rentals, logg))
			r.Get("/active", controllers.RentalActive(deps.Rentals, logg))
			r.Get("/stats", controllers.RentalStats(deps.Rentals, logg))
			r.Get("/{rentalId}", controllers.RentalGet(deps.Rentals, logg))
			r.With(idempotent).Post("/rent", controllers.RentalRent(deps.Rentals, logg))
			r.With(idempotent).Post("/return", controllers.RentalReturn(deps.Rentals, logg))
		})
	})

	return r
}
