package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/flashticket-backend/internal/events"
	"github.com/angelmondragon/flashticket-backend/pkg/config"
	"github.com/angelmondragon/flashticket-backend/pkg/db/models"
	"github.com/angelmondragon/flashticket-backend/pkg/enums"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			newRow(t, enums.LifecycleEventCreated),
			newRow(t, enums.LifecycleEventConfirmed),
		},
	}
	log := &fakeLog{errs: []error{errors.New("transient"), nil}}
	recorder := &fakeRecorder{}
	service := newTestService(t, repo, log, &fakeDLQRepo{}, recorder, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
	if recorder.ok != 1 || recorder.failed != 1 {
		t.Fatalf("expected one ok and one failed observation, got %d/%d", recorder.ok, recorder.failed)
	}
}

func TestServicePublishUsesReservationKeyAndHeaders(t *testing.T) {
	row := newRow(t, enums.LifecycleEventCancelled)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	log := &fakeLog{}
	service := newTestService(t, repo, log, &fakeDLQRepo{}, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(log.appended) != 1 {
		t.Fatalf("expected one append, got %d", len(log.appended))
	}
	got := log.appended[0]
	if got.topic != "reservation-events" {
		t.Fatalf("unexpected topic %q", got.topic)
	}
	if got.key != row.AggregateID.String() {
		t.Fatalf("expected reservation id as key, got %q", got.key)
	}
	if got.headers["event_id"] != row.ID.String() || got.headers["event_type"] != "CANCELLED" {
		t.Fatalf("unexpected headers %v", got.headers)
	}
	if string(got.value) != string(row.Payload) {
		t.Fatalf("payload should be relayed unchanged")
	}
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	row := newRow(t, enums.LifecycleEventCreated)
	row.Payload = json.RawMessage(`{not json`)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	dlq := &fakeDLQRepo{}
	log := &fakeLog{}
	service := newTestService(t, repo, log, dlq, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(log.appended) != 0 {
		t.Fatalf("invalid payload must not reach the log")
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected reason %s", dlq.entries[0].ErrorReason)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != row.ID {
		t.Fatalf("expected row marked terminal")
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	row := newRow(t, enums.LifecycleEventCreated)
	row.AttemptCount = 2
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	dlq := &fakeDLQRepo{}
	log := &fakeLog{errs: []error{errors.New("broker down")}}
	service := newTestService(t, repo, log, dlq, nil, &config.OutboxConfig{MaxAttempts: 3})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal rows should not be marked failed")
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max_attempts dlq entry, got %+v", dlq.entries)
	}
	if dlq.entries[0].EventID != row.ID {
		t.Fatalf("dlq entry should reference the outbox row")
	}
}

func TestServiceProcessBatchEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakeLog{}, &fakeDLQRepo{}, nil, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil || processed {
		t.Fatalf("expected idle batch, got processed=%v err=%v", processed, err)
	}
}

func TestRunFailsWhenLogUnavailable(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakeLog{pingErr: errors.New("no brokers")}, &fakeDLQRepo{}, nil, nil)
	if err := service.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness failure")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(0, time.Second, maxBackoff); got != 2*time.Second {
		t.Fatalf("unexpected first backoff %s", got)
	}
	if got := nextBackoff(8*time.Second, time.Second, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap, got %s", got)
	}
	if got := withJitter(time.Second); got < time.Second || got >= time.Second+jitterWindow {
		t.Fatalf("jitter out of window: %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, log events.Log, dlq dlqRepository, recorder events.Recorder, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	cfg := &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 5}}
	if outboxCfgOverride != nil {
		cfg.Outbox = *outboxCfgOverride
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logger.Nop(),
		DB:            &fakeDB{},
		Log:           log,
		Repository:    repo,
		DLQRepository: dlq,
		Recorder:      recorder,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func newRow(tb testing.TB, eventType enums.LifecycleEventType) models.OutboxEvent {
	tb.Helper()
	evt := events.NewLifecycleEvent(eventType, uuid.New(), uuid.New(), uuid.NewString(), "")
	payload, err := json.Marshal(evt)
	if err != nil {
		tb.Fatalf("marshal event: %v", err)
	}
	return models.OutboxEvent{
		ID:          evt.EventID,
		EventType:   eventType,
		AggregateID: evt.ReservationID,
		Topic:       "reservation-events",
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type appended struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type fakeLog struct {
	errs     []error
	pingErr  error
	appended []appended
}

func (f *fakeLog) Append(_ context.Context, topic, key string, value []byte, headers map[string]string) error {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.appended = append(f.appended, appended{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func (f *fakeLog) Ping(context.Context) error { return f.pingErr }
func (f *fakeLog) Close() error               { return nil }

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeRecorder struct {
	ok, failed int
}

func (f *fakeRecorder) ObserveEvent(_ string, ok bool) {
	if ok {
		f.ok++
		return
	}
	f.failed++
}
