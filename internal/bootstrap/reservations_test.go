package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/flashticket-backend/pkg/config"
	"github.com/angelmondragon/flashticket-backend/pkg/db"
	"github.com/angelmondragon/flashticket-backend/pkg/db/models"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
	ftredis "github.com/angelmondragon/flashticket-backend/pkg/redis"
)

func newDeps(t *testing.T) (*db.Client, *ftredis.Client) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:bootstrap_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))

	mr := miniredis.RunT(t)
	return db.NewFromGorm(conn), ftredis.NewFromCmdable(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
}

func baseConfig(delivery string) *config.Config {
	return &config.Config{
		Reservation: config.ReservationConfig{},
		Events: config.EventsConfig{
			Driver:   config.EventsDriverLog,
			Delivery: delivery,
			Topic:    "reservation-events",
		},
	}
}

func TestNewReservationsOutboxStagesEvents(t *testing.T) {
	dbClient, redisClient := newDeps(t)
	ticket := models.Ticket{Name: "GA", Price: decimal.NewFromInt(50), Stock: 3, EventID: uuid.New()}
	require.NoError(t, dbClient.DB().Create(&ticket).Error)

	stack, err := NewReservations(context.Background(), baseConfig(config.EventsDeliveryOutbox), logger.Nop(), dbClient, redisClient, prometheus.NewRegistry())
	require.NoError(t, err)
	defer stack.Close()
	assert.Nil(t, stack.Log)

	_, err = stack.Service.Reserve(context.Background(), ticket.ID, uuid.New())
	require.NoError(t, err)

	var staged int64
	require.NoError(t, dbClient.DB().Model(&models.OutboxEvent{}).Count(&staged).Error)
	assert.Equal(t, int64(1), staged)
}

func TestNewReservationsDirectOpensLog(t *testing.T) {
	dbClient, redisClient := newDeps(t)

	stack, err := NewReservations(context.Background(), baseConfig(config.EventsDeliveryDirect), logger.Nop(), dbClient, redisClient, prometheus.NewRegistry())
	require.NoError(t, err)
	defer stack.Close()

	require.NotNil(t, stack.Log)
	assert.NoError(t, stack.Log.Ping(context.Background()))

	var staged int64
	require.NoError(t, dbClient.DB().Model(&models.OutboxEvent{}).Count(&staged).Error)
	assert.Zero(t, staged)
}
