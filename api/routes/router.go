package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/flashticket-backend/api/controllers"
	"github.com/angelmondragon/flashticket-backend/api/middleware"
	"github.com/angelmondragon/flashticket-backend/internal/reservations"
	"github.com/angelmondragon/flashticket-backend/internal/waitroom"
	"github.com/angelmondragon/flashticket-backend/pkg/config"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
)

// Deps carries the services and probes mounted by NewRouter.
type Deps struct {
	Reservations reservations.Service
	Waitroom     waitroom.Service
	Probes       map[string]controllers.Pinger
	Gatherer     prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Probes))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.CreateReservation(deps.Reservations, logg))
			r.Get("/{id}", controllers.GetReservation(deps.Reservations, logg))
			r.Post("/{id}/confirm", controllers.ConfirmReservation(deps.Reservations, logg))
			r.Post("/{id}/cancel", controllers.CancelReservation(deps.Reservations, logg))
		})
		r.Get("/users/{userId}/reservations", controllers.ListUserReservations(deps.Reservations, logg))
		r.Get("/tickets/{id}", controllers.GetTicket(deps.Reservations, logg))

		r.Route("/queue/tickets/{ticketId}", func(r chi.Router) {
			r.Post("/", controllers.EnterQueue(deps.Waitroom, logg))
			r.Delete("/", controllers.LeaveQueue(deps.Waitroom, logg))
			r.Get("/status", controllers.QueueStatus(deps.Waitroom, logg))
			r.Get("/size", controllers.QueueSize(deps.Waitroom, logg))
			r.Post("/admit", controllers.AdmitFromQueue(deps.Waitroom, logg))
		})
	})

	return r
}
