package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/flashticket-backend/pkg/config"
	"github.com/angelmondragon/flashticket-backend/pkg/db/models"
	"github.com/angelmondragon/flashticket-backend/pkg/enums"
	"github.com/angelmondragon/flashticket-backend/pkg/outbox"
)

type appended struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type fakeLog struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	items []appended
}

func (f *fakeLog) Append(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, appended{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func (f *fakeLog) Ping(context.Context) error { return nil }
func (f *fakeLog) Close() error               { return nil }

type countingRecorder struct {
	ok     map[string]int
	failed map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ok: map[string]int{}, failed: map[string]int{}}
}

func (r *countingRecorder) ObserveEvent(eventType string, ok bool) {
	if ok {
		r.ok[eventType]++
		return
	}
	r.failed[eventType]++
}

func sampleEvent() LifecycleEvent {
	return NewLifecycleEvent(enums.LifecycleEventCancelled, uuid.New(), uuid.New(), "user-1", enums.CancelReasonExpired)
}

func TestDirectPublisherAppendsKeyedJSON(t *testing.T) {
	log := &fakeLog{}
	rec := newCountingRecorder()
	pub, err := NewDirectPublisher(DirectParams{Log: log, Recorder: rec})
	require.NoError(t, err)

	evt := sampleEvent()
	pub.Publish(context.Background(), evt)

	require.Len(t, log.items, 1)
	item := log.items[0]
	assert.Equal(t, DefaultTopic, item.topic)
	assert.Equal(t, evt.ReservationID.String(), item.key)
	assert.Equal(t, "CANCELLED", item.headers["event_type"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(item.value, &decoded))
	for _, field := range []string{"eventId", "reservationId", "userId", "ticketId", "eventType", "reason", "timestamp"} {
		assert.Contains(t, decoded, field)
	}
	assert.Equal(t, "expired", decoded["reason"])
	assert.Equal(t, 1, rec.ok["CANCELLED"])
}

func TestDirectPublisherAbsorbsFailures(t *testing.T) {
	rec := newCountingRecorder()
	pub, err := NewDirectPublisher(DirectParams{Log: &fakeLog{err: errors.New("broker down")}, Recorder: rec})
	require.NoError(t, err)

	pub.Publish(context.Background(), sampleEvent())
	assert.Equal(t, 1, rec.failed["CANCELLED"])
}

func TestDirectPublisherBoundedByTimeout(t *testing.T) {
	rec := newCountingRecorder()
	pub, err := NewDirectPublisher(DirectParams{Log: &fakeLog{delay: time.Second}, Timeout: 20 * time.Millisecond, Recorder: rec})
	require.NoError(t, err)

	started := time.Now()
	pub.Publish(context.Background(), sampleEvent())
	assert.Less(t, time.Since(started), 500*time.Millisecond)
	assert.Equal(t, 1, rec.failed["CANCELLED"])
}

func TestOutboxPublisherStagesRow(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:events_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}))

	pub, err := NewOutboxPublisher(outbox.NewService(outbox.NewRepository(db), nil), "", nil)
	require.NoError(t, err)

	evt := sampleEvent()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return pub.Stage(context.Background(), tx, evt)
	}))
	pub.Publish(context.Background(), evt)

	var row models.OutboxEvent
	require.NoError(t, db.First(&row, "id = ?", evt.EventID).Error)
	assert.Equal(t, evt.ReservationID, row.AggregateID)
	assert.Equal(t, DefaultTopic, row.Topic)
}

func TestOpenLogSelectsDriver(t *testing.T) {
	cfg := &config.Config{Events: config.EventsConfig{Driver: "log"}}
	log, err := OpenLog(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &LoggerLog{}, log)
	require.NoError(t, log.Append(context.Background(), "t", "k", []byte("{}"), nil))

	cfg.Events.Driver = "carrier-pigeon"
	_, err = OpenLog(context.Background(), cfg, nil)
	assert.Error(t, err)
}
