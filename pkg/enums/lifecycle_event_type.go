package enums

import "fmt"

// LifecycleEventType names the reservation events published to the event log.
type LifecycleEventType string

const (
	LifecycleEventCreated   LifecycleEventType = "CREATED"
	LifecycleEventConfirmed LifecycleEventType = "CONFIRMED"
	LifecycleEventCancelled LifecycleEventType = "CANCELLED"
)

var validLifecycleEventTypes = []LifecycleEventType{
	LifecycleEventCreated,
	LifecycleEventConfirmed,
	LifecycleEventCancelled,
}

func (e LifecycleEventType) String() string {
	return string(e)
}

func (e LifecycleEventType) IsValid() bool {
	for _, candidate := range validLifecycleEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

func ParseLifecycleEventType(value string) (LifecycleEventType, error) {
	for _, candidate := range validLifecycleEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lifecycle event type %q", value)
}

// CancelReason records why a reservation left the active set.
type CancelReason string

const (
	CancelReasonUser    CancelReason = "user_cancelled"
	CancelReasonExpired CancelReason = "expired"
)

func (c CancelReason) String() string {
	return string(c)
}
