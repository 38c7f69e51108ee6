package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type fakeFinder struct {
	ids    []uuid.UUID
	cutoff time.Time
	limit  int
}

func (f *fakeFinder) ListUnpaidBefore(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.ids, nil
}

type fakeExpirer struct {
	results map[uuid.UUID]error
	calls   []uuid.UUID
}

func (f *fakeExpirer) ExpireUnpaid(_ context.Context, orderID uuid.UUID) (*contracts.Order, error) {
	f.calls = append(f.calls, orderID)
	if err := f.results[orderID]; err != nil {
		return nil, err
	}
	return &contracts.Order{ID: orderID, Status: enums.OrderStatusCancelled}, nil
}

func TestOrderExpiryJobSkipsSettledOrdersAndCollectsFailures(t *testing.T) {
	t.Parallel()
	expired, paid, broken, after := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	finder := &fakeFinder{ids: []uuid.UUID{expired, paid, broken, after}}
	expirer := &fakeExpirer{results: map[uuid.UUID]error{
		paid:   pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment"),
		broken: pkgerrors.New(pkgerrors.CodeDependency, "db down"),
	}}
	now := time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)

	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:    logger.Discard(),
		Finder:    finder,
		Orders:    expirer,
		TTL:       6 * time.Hour,
		BatchSize: 25,
	})
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	count, err := job.Run(context.Background())
	assert.Equal(t, int64(2), count)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "got %v", err)
	assert.Equal(t, []uuid.UUID{expired, paid, broken, after}, expirer.calls)
	assert.Equal(t, now.Add(-6*time.Hour), finder.cutoff)
	assert.Equal(t, 25, finder.limit)
}

func TestOrderExpiryJobNothingToDo(t *testing.T) {
	t.Parallel()
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{Logger: logger.Discard(), Finder: &fakeFinder{}, Orders: &fakeExpirer{}})
	require.NoError(t, err)

	count, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
