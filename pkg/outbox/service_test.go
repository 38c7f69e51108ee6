package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/dbtest"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/outbox/payloads"
)

func TestEmitStoresEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Discard())

	orderID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: "customer"}
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actor,
			OccurredAt:    occurred,
			Data:          payloads.OrderCancelledEvent{OrderID: orderID, PaymentStatus: enums.PaymentStatusCaptured},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListForAggregate(enums.AggregateOrder, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventOrderCancelled, rows[0].EventType)
	require.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.True(t, envelope.OccurredAt.Equal(occurred))
	require.Equal(t, actor.UserID, envelope.Actor.UserID)

	var data payloads.OrderCancelledEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, enums.PaymentStatusCaptured, data.PaymentStatus)
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		Data:          payloads.OrderCreatedEvent{},
	})
	require.ErrorContains(t, err, "aggregate id required")

	err = svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     "order.teleported",
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
	})
	require.ErrorContains(t, err, "unknown outbox event type")

	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	orderID := uuid.New()

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderCreatedEvent{OrderID: orderID},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListForAggregate(enums.AggregateOrder, orderID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitRejectsUnknownEventAndMissingTx(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated}))
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "order.unknown", AggregateID: uuid.New()})
	})
	require.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		id := ids[i]
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   id,
				Data:          payloads.OrderCreatedEvent{OrderID: id},
			})
		}))
	}

	var batch []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, batch, 3)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkPublishedTx(tx, batch[0].ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, batch[1].ID, errors.New("pubsub unavailable")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, batch[2].ID, errors.New("bad payload"), 3)
	}))

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		remaining, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, remaining, 1)
	require.Equal(t, batch[1].ID, remaining[0].ID)
	require.Equal(t, 1, remaining[0].AttemptCount)
	require.NotNil(t, remaining[0].LastError)
	require.Equal(t, "pubsub unavailable", *remaining[0].LastError)
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)

	long := make([]byte, maxErrorMessageLen+100)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	eventID := uuid.New()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventRefundIssued,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &msg,
			FailedAt:      time.Now().UTC(),
		})
	}))

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, *found.ErrorMessage, maxErrorMessageLen)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestDLQRepositoryDeletesOldEntries(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	now := time.Now().UTC()

	for _, failedAt := range []time.Time{now.Add(-100 * 24 * time.Hour), now.Add(-time.Hour)} {
		require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
			EventID:       uuid.New(),
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			FailedAt:      failedAt,
		}))
	}

	deleted, err := dlq.DeleteFailedBefore(context.Background(), conn, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestClipMessageKeepsRunesWhole(t *testing.T) {
	msg := string(make([]byte, maxErrorMessageLen-1)) + "é tail"
	clipped := clipMessage(msg)
	require.Len(t, clipped, maxErrorMessageLen-1)
	require.Equal(t, "short", clipMessage("short"))
}

func TestDecodeEnvelope(t *testing.T) {
	good := []byte(`{"version":1,"eventId":"` + uuid.NewString() + `","occurredAt":"2026-01-01T00:00:00Z","data":{"orderId":"x"}}`)
	env, err := DecodeEnvelope(good)
	require.NoError(t, err)
	require.Equal(t, 1, env.Version)

	bad := map[string]string{
		"future version": `{"version":2,"eventId":"` + uuid.NewString() + `","data":{}}`,
		"bad event id":   `{"version":1,"eventId":"nope","data":{}}`,
		"null data":      `{"version":1,"eventId":"` + uuid.NewString() + `","data":null}`,
		"not json":       `{"version":`,
	}
	for name, raw := range bad {
		_, err := DecodeEnvelope([]byte(raw))
		require.Error(t, err, name)
	}
}
