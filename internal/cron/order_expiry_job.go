package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/pkg/contracts"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	defaultUnpaidOrderTTL  = 24 * time.Hour
	defaultExpiryBatchSize = 100
)

type unpaidOrderFinder interface {
	ListUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type orderExpirer interface {
	ExpireUnpaid(ctx context.Context, orderID uuid.UUID) (*contracts.Order, error)
}

type OrderExpiryJobParams struct {
	Logger    *logger.Logger
	Finder    unpaidOrderFinder
	Orders    orderExpirer
	TTL       time.Duration
	BatchSize int
}

// OrderExpiryJob cancels card orders whose checkout was abandoned so their
// reserved stock goes back on sale.
type OrderExpiryJob struct {
	logg      *logger.Logger
	finder    unpaidOrderFinder
	orders    orderExpirer
	ttl       time.Duration
	batchSize int
	now       func() time.Time
}

func NewOrderExpiryJob(params OrderExpiryJobParams) (*OrderExpiryJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finder == nil {
		return nil, fmt.Errorf("unpaid order finder required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultUnpaidOrderTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &OrderExpiryJob{
		logg:      params.Logger,
		finder:    params.Finder,
		orders:    params.Orders,
		ttl:       ttl,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

func (j *OrderExpiryJob) Name() string { return "order-expiry" }

// Run expires one batch. An order paid between listing and locking comes back
// as a state conflict and is skipped; other failures are collected and the
// batch continues.
func (j *OrderExpiryJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.ttl)
	ids, err := j.finder.ListUnpaidBefore(ctx, cutoff, j.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unpaid orders: %w", err)
	}

	var (
		expired int64
		errs    error
	)
	for _, id := range ids {
		orderCtx := j.logg.WithOrderID(ctx, id.String())
		if _, err := j.orders.ExpireUnpaid(orderCtx, id); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				j.logg.Info(orderCtx, "order settled before expiry, skipped")
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		expired++
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "candidates": len(ids), "expired": expired}),
		"unpaid order sweep complete")
	return expired, errs
}
