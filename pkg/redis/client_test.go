package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/flashticket-backend/pkg/config"
)

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.StockKey("t1"):          "ft:ticket:stock:t1",
		client.LockKey("t1", "u1"):     "ft:ticket:lock:t1:user:u1",
		client.QueueKey("t1"):          "ft:queue:ticket:t1",
		client.QueueSeqKey("t1"):       "ft:queue:ticket:t1:seq",
		client.QueueLastScoreKey("t1"): "ft:queue:ticket:t1:last",
		client.QueueArrivalsKey("t1"):  "ft:queue:ticket:t1:arrivals",
		client.CronLockKey("dev"):      "ft:cron:leader:dev",
	}
	for got, want := range cases {
		assert.Equal(t, want, got)
	}
	assert.Equal(t, "ft:ticket:stock", client.StockKey(" "), "empty parts are skipped")
}

func TestClientDelegatesToStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := NewFromCmdable(db)
	ctx := context.Background()

	mock.ExpectPing().SetVal("PONG")
	mock.ExpectIncr("ft:ticket:stock:t1").SetVal(6)

	require.NoError(t, client.Ping(ctx))
	val, err := client.Cmdable().Incr(ctx, client.StockKey("t1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(6), val)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("connection refused"))

	err := NewFromCmdable(db).Ping(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	assert.Error(t, client.Ping(context.Background()))
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)
}
