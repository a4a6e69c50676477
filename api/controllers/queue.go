package controllers

import (
	"net/http"

	"github.com/angelmondragon/flashticket-backend/api/responses"
	"github.com/angelmondragon/flashticket-backend/api/validators"
	"github.com/angelmondragon/flashticket-backend/internal/waitroom"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
)

type enterQueueRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
}

type admitRequest struct {
	Count int `json:"count" validate:"required,min=1"`
}

type queueSizeResponse struct {
	TicketID     string `json:"ticketId"`
	TotalWaiting int64  `json:"totalWaiting"`
}

type admitResponse struct {
	TicketID string   `json:"ticketId"`
	Admitted []string `json:"admitted"`
}

func EnterQueue(svc waitroom.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID, err := validators.ParseUUIDParam(r, "ticketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req enterQueueRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.EnterQueue(r.Context(), ticketID.String(), req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

func QueueStatus(svc waitroom.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID, err := validators.ParseUUIDParam(r, "ticketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token, err := validators.RequireQuery(r, "token")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.QueueStatus(r.Context(), ticketID.String(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

func QueueSize(svc waitroom.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID, err := validators.ParseUUIDParam(r, "ticketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		size, err := svc.QueueSize(r.Context(), ticketID.String())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, queueSizeResponse{TicketID: ticketID.String(), TotalWaiting: size})
	}
}

func LeaveQueue(svc waitroom.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID, err := validators.ParseUUIDParam(r, "ticketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token, err := validators.RequireQuery(r, "token")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.LeaveQueue(r.Context(), ticketID.String(), token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AdmitFromQueue pops the head of the queue; operator use.
func AdmitFromQueue(svc waitroom.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID, err := validators.ParseUUIDParam(r, "ticketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req admitRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tokens, err := svc.Admit(r.Context(), ticketID.String(), req.Count)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if tokens == nil {
			tokens = []string{}
		}
		responses.WriteSuccess(w, admitResponse{TicketID: ticketID.String(), Admitted: tokens})
	}
}
