package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/db/dbtest"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/outbox"
)

func TestOutboxRetentionJobDeletesOnlyOldPublishedRows(t *testing.T) {
	t.Parallel()
	client := dbtest.Client(t)
	conn := client.DB()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)
	rows := []models.OutboxEvent{
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &old},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &recent},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`)},
	}
	require.NoError(t, conn.Create(&rows).Error)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Discard(),
		DB:         client,
		Repository: outbox.NewRepository(conn),
	})
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("created_at ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	ids := []uuid.UUID{remaining[0].ID, remaining[1].ID}
	assert.ElementsMatch(t, []uuid.UUID{rows[1].ID, rows[2].ID}, ids)
}

func TestOutboxRetentionJobPrunesDeadLetters(t *testing.T) {
	t.Parallel()
	client := dbtest.Client(t)
	conn := client.DB()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	letters := []models.OutboxDLQ{
		{EventID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), ErrorReason: enums.OutboxDLQReasonMaxAttempts, FailedAt: now.Add(-120 * 24 * time.Hour)},
		{EventID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), ErrorReason: enums.OutboxDLQReasonMaxAttempts, FailedAt: now.Add(-10 * 24 * time.Hour)},
	}
	require.NoError(t, conn.Create(&letters).Error)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      logger.Discard(),
		DB:          client,
		Repository:  outbox.NewRepository(conn),
		DeadLetters: outbox.NewDLQRepository(conn),
	})
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.OutboxDLQ
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, letters[1].EventID, remaining[0].EventID)
}

func TestNewOutboxRetentionJobRequiresDeps(t *testing.T) {
	t.Parallel()
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Discard()})
	assert.Error(t, err)
}
