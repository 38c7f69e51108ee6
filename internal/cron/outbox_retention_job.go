package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	Retention  time.Duration
	// DeadLetters is optional; when set, dead letters older than
	// DLQRetention are pruned in the same transaction.
	DeadLetters  deadLetterPruner
	DLQRetention time.Duration
}

// OutboxRetentionJob deletes outbox rows published longer ago than the
// retention window, and stale dead letters.
type OutboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxPruner
	dlq          deadLetterPruner
	retention    time.Duration
	dlqRetention time.Duration
	now          func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (*OutboxRetentionJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	dlqRetention := params.DLQRetention
	if dlqRetention <= 0 {
		dlqRetention = defaultDLQRetention
	}
	return &OutboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		dlq:          params.DeadLetters,
		retention:    retention,
		dlqRetention: dlqRetention,
		now:          time.Now,
	}, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) (int64, error) {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)
	var events, letters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff); err != nil {
			return err
		}
		if j.dlq == nil {
			return nil
		}
		letters, err = j.dlq.DeleteFailedBefore(ctx, tx, now.Add(-j.dlqRetention))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":               cutoff,
		"events_deleted":       events,
		"dead_letters_deleted": letters,
	}), "outbox pruned")
	return events + letters, nil
}
