package reservations

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/flashticket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/flashticket-backend/pkg/errors"
)

func errDuplicate(ticketID, userID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeDuplicate, "user already holds an active reservation for this ticket").
		WithDetails(map[string]any{"ticketId": ticketID, "userId": userID})
}

func errOutOfStock(ticketID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeOutOfStock, "ticket is sold out").
		WithDetails(map[string]any{"ticketId": ticketID})
}

func errInvalidTransition(id uuid.UUID, from, to enums.ReservationStatus, reason string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, reason).
		WithDetails(map[string]any{"reservationId": id, "from": from, "to": to})
}

func errReservationNotFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found").
		WithDetails(map[string]any{"reservationId": id})
}

func errTicketNotFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found").
		WithDetails(map[string]any{"ticketId": id})
}

func errPersistence(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reservation persistence failed")
}
