package controllers

import (
	"net/http"

	"github.com/angelmondragon/flashticket-backend/api/responses"
	"github.com/angelmondragon/flashticket-backend/api/validators"
	"github.com/angelmondragon/flashticket-backend/internal/reservations"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
)

// GetTicket reports a ticket's durable stock alongside the cached counter.
func GetTicket(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetTicket(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
