package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/flashticket-backend/api/responses"
	"github.com/angelmondragon/flashticket-backend/api/validators"
	"github.com/angelmondragon/flashticket-backend/internal/reservations"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
	"github.com/angelmondragon/flashticket-backend/pkg/pagination"
)

type createReservationRequest struct {
	TicketID string `json:"ticketId" validate:"required,uuid"`
	UserID   string `json:"userId" validate:"required,uuid"`
}

// CreateReservation claims one unit of a ticket for a user.
func CreateReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReservationRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Reserve(r.Context(), uuid.MustParse(req.TicketID), uuid.MustParse(req.UserID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func ConfirmReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return reservationAction(logg, func(ctx context.Context, id uuid.UUID) (*reservations.ReservationView, error) {
		return svc.Confirm(ctx, id)
	})
}

func CancelReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return reservationAction(logg, func(ctx context.Context, id uuid.UUID) (*reservations.ReservationView, error) {
		return svc.Cancel(ctx, id)
	})
}

func GetReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return reservationAction(logg, func(ctx context.Context, id uuid.UUID) (*reservations.ReservationView, error) {
		return svc.Get(ctx, id)
	})
}

func reservationAction(logg *logger.Logger, action func(ctx context.Context, id uuid.UUID) (*reservations.ReservationView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := action(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ListUserReservations pages a user's reservations, newest first.
func ListUserReservations(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParseQueryInt(r, "page", 0, 0, 1<<20)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		size, err := validators.ParseQueryInt(r, "size", pagination.DefaultSize, 1, pagination.MaxSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListByUser(r.Context(), userID, pagination.Params{Page: page, Size: size})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
