package waitroom

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/flashticket-backend/pkg/errors"
)

func newTestService(t *testing.T, maxBatch int) Service {
	t.Helper()
	store, _ := newTestStore(t)
	svc, err := NewService(ServiceParams{Store: store, AdmissionRate: 2, MaxAdmitBatch: maxBatch})
	require.NoError(t, err)
	return svc
}

func TestEnterQueueIssuesUserScopedTokens(t *testing.T) {
	svc := newTestService(t, 0)
	ctx := context.Background()

	first, err := svc.EnterQueue(ctx, "t1", "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Token, "alice:"))
	assert.Equal(t, int64(1), first.Position)
	assert.Equal(t, int64(1), first.EstimatedWaitSeconds)
	require.NotNil(t, first.EnteredAt)

	for i := 0; i < 3; i++ {
		_, err := svc.EnterQueue(ctx, "t1", fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
	}

	status, err := svc.QueueStatus(ctx, "t1", first.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Position)
	assert.Equal(t, int64(4), status.TotalWaiting)
	require.NotNil(t, status.EnteredAt)

	size, err := svc.QueueSize(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}

func TestQueueStatusUnknownToken(t *testing.T) {
	svc := newTestService(t, 0)
	_, err := svc.QueueStatus(context.Background(), "t1", "ghost:1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestLeaveQueueRemovesToken(t *testing.T) {
	svc := newTestService(t, 0)
	ctx := context.Background()
	entry, err := svc.EnterQueue(ctx, "t1", "alice")
	require.NoError(t, err)

	require.NoError(t, svc.LeaveQueue(ctx, "t1", entry.Token))
	_, err = svc.QueueStatus(ctx, "t1", entry.Token)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAdmitClampsToMaxBatch(t *testing.T) {
	svc := newTestService(t, 2)
	ctx := context.Background()
	var tokens []string
	for i := 0; i < 3; i++ {
		entry, err := svc.EnterQueue(ctx, "t1", fmt.Sprintf("u%d", i))
		require.NoError(t, err)
		tokens = append(tokens, entry.Token)
	}

	admitted, err := svc.Admit(ctx, "t1", 10)
	require.NoError(t, err)
	assert.Equal(t, tokens[:2], admitted)

	_, err = svc.Admit(ctx, "t1", 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestEnterQueueValidation(t *testing.T) {
	svc := newTestService(t, 0)
	_, err := svc.EnterQueue(context.Background(), " ", "alice")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestEstimatedWait(t *testing.T) {
	assert.Equal(t, int64(0), EstimatedWait(0, 100))
	assert.Equal(t, int64(1), EstimatedWait(1, 100))
	assert.Equal(t, int64(1), EstimatedWait(100, 100))
	assert.Equal(t, int64(2), EstimatedWait(101, 100))
}
