package waitroom

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/flashticket-backend/pkg/errors"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
)

const (
	DefaultAdmissionRate = 100
	DefaultMaxAdmitBatch = 1000
)

// Entry is the caller-facing view of a queue position. Position is 1-based.
type Entry struct {
	Token                string     `json:"token"`
	TicketID             string     `json:"ticketId"`
	Position             int64      `json:"position"`
	TotalWaiting         int64      `json:"totalWaiting"`
	EstimatedWaitSeconds int64      `json:"estimatedWaitSeconds"`
	EnteredAt            *time.Time `json:"enteredAt,omitempty"`
}

// Service fronts the queue store with token issuance and wait estimates.
type Service interface {
	EnterQueue(ctx context.Context, ticketID, userID string) (*Entry, error)
	QueueStatus(ctx context.Context, ticketID, token string) (*Entry, error)
	LeaveQueue(ctx context.Context, ticketID, token string) error
	QueueSize(ctx context.Context, ticketID string) (int64, error)
	Admit(ctx context.Context, ticketID string, count int) ([]string, error)
}

type queueStore interface {
	Enter(ctx context.Context, resourceID, token string) (Placement, error)
	Status(ctx context.Context, resourceID, token string) (Placement, bool, error)
	Exit(ctx context.Context, resourceID, token string) (bool, error)
	AdmitNext(ctx context.Context, resourceID string, n int64) ([]string, error)
	Size(ctx context.Context, resourceID string) (int64, error)
}

// ServiceParams configure the waitroom service.
type ServiceParams struct {
	Store         queueStore
	Logger        *logger.Logger
	AdmissionRate int
	MaxAdmitBatch int
}

type service struct {
	store    queueStore
	logg     *logger.Logger
	rate     int64
	maxBatch int
	newToken func(userID string) string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, errors.New("queue store required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	rate := params.AdmissionRate
	if rate <= 0 {
		rate = DefaultAdmissionRate
	}
	maxBatch := params.MaxAdmitBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxAdmitBatch
	}
	return &service{
		store:    params.Store,
		logg:     logg,
		rate:     int64(rate),
		maxBatch: maxBatch,
		newToken: func(userID string) string { return userID + ":" + uuid.NewString() },
	}, nil
}

func (s *service) EnterQueue(ctx context.Context, ticketID, userID string) (*Entry, error) {
	ticketID, userID = strings.TrimSpace(ticketID), strings.TrimSpace(userID)
	if ticketID == "" || userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticketId and userId are required")
	}
	token := s.newToken(userID)
	placement, err := s.store.Enter(ctx, ticketID, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enter queue")
	}
	entry := s.entry(ticketID, token, placement)
	logCtx := s.logg.WithFields(ctx, map[string]any{"ticket_id": ticketID, "user_id": userID, "position": entry.Position})
	s.logg.Debug(logCtx, "entered waiting room")
	return entry, nil
}

func (s *service) QueueStatus(ctx context.Context, ticketID, token string) (*Entry, error) {
	if strings.TrimSpace(ticketID) == "" || strings.TrimSpace(token) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticketId and token are required")
	}
	placement, found, err := s.store.Status(ctx, ticketID, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue status")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "token not in queue")
	}
	return s.entry(ticketID, token, placement), nil
}

func (s *service) LeaveQueue(ctx context.Context, ticketID, token string) error {
	if strings.TrimSpace(ticketID) == "" || strings.TrimSpace(token) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "ticketId and token are required")
	}
	if _, err := s.store.Exit(ctx, ticketID, token); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "leave queue")
	}
	return nil
}

func (s *service) QueueSize(ctx context.Context, ticketID string) (int64, error) {
	if strings.TrimSpace(ticketID) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "ticketId is required")
	}
	size, err := s.store.Size(ctx, ticketID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue size")
	}
	return size, nil
}

func (s *service) Admit(ctx context.Context, ticketID string, count int) ([]string, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticketId is required")
	}
	if count <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "count must be positive")
	}
	if count > s.maxBatch {
		count = s.maxBatch
	}
	tokens, err := s.store.AdmitNext(ctx, ticketID, int64(count))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "admit from queue")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"ticket_id": ticketID, "admitted": len(tokens)}), "admitted from waiting room")
	return tokens, nil
}

func (s *service) entry(ticketID, token string, placement Placement) *Entry {
	position := placement.Rank + 1
	entry := &Entry{
		Token:                token,
		TicketID:             ticketID,
		Position:             position,
		TotalWaiting:         placement.Total,
		EstimatedWaitSeconds: EstimatedWait(position, s.rate),
	}
	if !placement.ArrivedAt.IsZero() {
		arrived := placement.ArrivedAt
		entry.EnteredAt = &arrived
	}
	return entry
}

// EstimatedWait is ceil(position / rate) seconds.
func EstimatedWait(position, rate int64) int64 {
	if position <= 0 || rate <= 0 {
		return 0
	}
	return (position + rate - 1) / rate
}
