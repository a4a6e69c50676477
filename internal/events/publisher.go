package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/flashticket-backend/pkg/logger"
	"github.com/angelmondragon/flashticket-backend/pkg/outbox"
)

const (
	DefaultTopic          = "reservation-events"
	DefaultPublishTimeout = 2 * time.Second
)

// Publisher emits reservation lifecycle events. Stage runs inside the state
// change's transaction; Publish runs after it commits. Each mode implements
// one of the two and treats the other as a no-op. Neither surfaces delivery
// failures to the reservation flow.
type Publisher interface {
	Stage(ctx context.Context, tx *gorm.DB, evt LifecycleEvent) error
	Publish(ctx context.Context, evt LifecycleEvent)
}

// Recorder counts delivery outcomes per event type.
type Recorder interface {
	ObserveEvent(eventType string, ok bool)
}

// DirectParams configure the best-effort publisher.
type DirectParams struct {
	Log      Log
	Logger   *logger.Logger
	Topic    string
	Timeout  time.Duration
	Recorder Recorder
}

// DirectPublisher appends events straight to the event log after commit.
// Failures are logged and counted, never retried.
type DirectPublisher struct {
	log      Log
	logg     *logger.Logger
	topic    string
	timeout  time.Duration
	recorder Recorder
}

func NewDirectPublisher(params DirectParams) (*DirectPublisher, error) {
	if params.Log == nil {
		return nil, errors.New("event log required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	topic := params.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &DirectPublisher{log: params.Log, logg: logg, topic: topic, timeout: timeout, recorder: params.Recorder}, nil
}

func (p *DirectPublisher) Stage(context.Context, *gorm.DB, LifecycleEvent) error { return nil }

func (p *DirectPublisher) Publish(ctx context.Context, evt LifecycleEvent) {
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"event_id":       evt.EventID.String(),
		"event_type":     evt.EventType,
		"reservation_id": evt.ReservationID.String(),
		"topic":          p.topic,
	})
	payload, err := json.Marshal(evt)
	if err != nil {
		p.record(evt, false)
		p.logg.Error(logCtx, "encode lifecycle event", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.log.Append(pubCtx, p.topic, evt.Key(), payload, evt.Headers()); err != nil {
		p.record(evt, false)
		p.logg.Error(logCtx, "publish lifecycle event failed", err)
		return
	}
	p.record(evt, true)
}

func (p *DirectPublisher) record(evt LifecycleEvent, ok bool) {
	if p.recorder != nil {
		p.recorder.ObserveEvent(string(evt.EventType), ok)
	}
}

// OutboxPublisher stages events in outbox_events for cmd/outbox-publisher to relay.
type OutboxPublisher struct {
	outbox   *outbox.Service
	topic    string
	recorder Recorder
}

func NewOutboxPublisher(svc *outbox.Service, topic string, recorder Recorder) (*OutboxPublisher, error) {
	if svc == nil {
		return nil, errors.New("outbox service required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &OutboxPublisher{outbox: svc, topic: topic, recorder: recorder}, nil
}

func (p *OutboxPublisher) Stage(ctx context.Context, tx *gorm.DB, evt LifecycleEvent) error {
	err := p.outbox.Emit(ctx, tx, outbox.Message{
		ID:          evt.EventID,
		EventType:   evt.EventType,
		AggregateID: evt.ReservationID,
		Topic:       p.topic,
		Payload:     evt,
	})
	if p.recorder != nil {
		p.recorder.ObserveEvent(string(evt.EventType), err == nil)
	}
	return err
}

func (p *OutboxPublisher) Publish(context.Context, LifecycleEvent) {}

// Nop drops every event.
type Nop struct{}

func (Nop) Stage(context.Context, *gorm.DB, LifecycleEvent) error { return nil }
func (Nop) Publish(context.Context, LifecycleEvent)               {}
