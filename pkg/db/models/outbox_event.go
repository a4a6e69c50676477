package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/flashticket-backend/pkg/enums"
)

// OutboxEvent is a lifecycle event staged in the same transaction as the state change.
type OutboxEvent struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	EventType    enums.LifecycleEventType `gorm:"column:event_type;type:varchar(32);not null"`
	AggregateID  uuid.UUID                `gorm:"column:aggregate_id;type:uuid;not null;index"`
	Topic        string                   `gorm:"column:topic;not null"`
	Payload      json.RawMessage          `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime;index:idx_outbox_events_unpublished,priority:2"`
	PublishedAt  *time.Time               `gorm:"column:published_at;index:idx_outbox_events_unpublished,priority:1"`
	AttemptCount int                      `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string                  `gorm:"column:last_error"`
}

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
