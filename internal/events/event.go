package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/flashticket-backend/pkg/enums"
)

// LifecycleEvent is the wire payload appended to the reservation topic.
type LifecycleEvent struct {
	EventID       uuid.UUID                `json:"eventId"`
	ReservationID uuid.UUID                `json:"reservationId"`
	UserID        string                   `json:"userId"`
	TicketID      uuid.UUID                `json:"ticketId"`
	EventType     enums.LifecycleEventType `json:"eventType"`
	Reason        string                   `json:"reason,omitempty"`
	Timestamp     time.Time                `json:"timestamp"`
}

// NewLifecycleEvent stamps a fresh event id and UTC timestamp.
func NewLifecycleEvent(eventType enums.LifecycleEventType, reservationID, ticketID uuid.UUID, userID string, reason enums.CancelReason) LifecycleEvent {
	return LifecycleEvent{
		EventID:       uuid.New(),
		ReservationID: reservationID,
		UserID:        userID,
		TicketID:      ticketID,
		EventType:     eventType,
		Reason:        string(reason),
		Timestamp:     time.Now().UTC(),
	}
}

// Key partitions the event log by reservation.
func (e LifecycleEvent) Key() string {
	return e.ReservationID.String()
}

// Headers are transport attributes shared by every driver.
func (e LifecycleEvent) Headers() map[string]string {
	return map[string]string{
		"event_id":   e.EventID.String(),
		"event_type": string(e.EventType),
		"ticket_id":  e.TicketID.String(),
	}
}
