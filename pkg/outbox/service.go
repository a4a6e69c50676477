package outbox

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/flashticket-backend/pkg/db/models"
	"github.com/angelmondragon/flashticket-backend/pkg/enums"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
)

// Message is a lifecycle event staged for relay. ID doubles as the outbox row id
// so relayed messages can be traced back to the staging transaction.
type Message struct {
	ID          uuid.UUID
	EventType   enums.LifecycleEventType
	AggregateID uuid.UUID
	Topic       string
	Payload     any
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit inserts msg into outbox_events using the caller's transaction.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, msg Message) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if msg.Topic == "" {
		return errors.New("outbox topic required")
	}
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	row := models.OutboxEvent{
		ID:          msg.ID,
		EventType:   msg.EventType,
		AggregateID: msg.AggregateID,
		Topic:       msg.Topic,
		Payload:     json.RawMessage(payload),
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"outbox_id":    msg.ID.String(),
			"event_type":   msg.EventType,
			"aggregate_id": msg.AggregateID.String(),
			"topic":        msg.Topic,
		})
		s.logg.Debug(logCtx, "outbox event queued")
	}
	return nil
}
