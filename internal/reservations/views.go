package reservations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/flashticket-backend/pkg/db/models"
	"github.com/angelmondragon/flashticket-backend/pkg/enums"
	"github.com/angelmondragon/flashticket-backend/pkg/pagination"
)

// ReservationView is the API representation of a reservation.
type ReservationView struct {
	ID           uuid.UUID               `json:"id"`
	TicketID     uuid.UUID               `json:"ticketId"`
	UserID       uuid.UUID               `json:"userId"`
	Status       enums.ReservationStatus `json:"status"`
	TicketName   string                  `json:"ticketName,omitempty"`
	Price        *decimal.Decimal        `json:"price,omitempty"`
	CancelReason *string                 `json:"cancelReason,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
	ExpiresAt    time.Time               `json:"expiresAt"`
	ConfirmedAt  *time.Time              `json:"confirmedAt,omitempty"`
	CancelledAt  *time.Time              `json:"cancelledAt,omitempty"`
	Expired      bool                    `json:"expired"`
}

// ReservationList is one page of a user's reservations, newest first.
type ReservationList = pagination.Page[ReservationView]

// TicketView reports durable stock next to the cached counter.
type TicketView struct {
	ID          uuid.UUID       `json:"id"`
	EventID     uuid.UUID       `json:"eventId"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CachedStock *int64          `json:"cachedStock,omitempty"`
}

func newReservationView(r *models.Reservation, ttl time.Duration, now time.Time) *ReservationView {
	view := &ReservationView{
		ID:           r.ID,
		TicketID:     r.TicketID,
		UserID:       r.UserID,
		Status:       r.Status,
		CancelReason: r.CancelReason,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.CreatedAt.Add(ttl),
		ConfirmedAt:  r.ConfirmedAt,
		CancelledAt:  r.CancelledAt,
		Expired:      isExpired(r, ttl, now),
	}
	if r.Ticket != nil {
		price := r.Ticket.Price
		view.TicketName = r.Ticket.Name
		view.Price = &price
	}
	return view
}

func isExpired(r *models.Reservation, ttl time.Duration, now time.Time) bool {
	return r.Status == enums.ReservationStatusPending && now.Sub(r.CreatedAt) > ttl
}
