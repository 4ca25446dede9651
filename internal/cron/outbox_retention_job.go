package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const (
	outboxRetentionDays = 30
	outboxMinAttempts   = 10
	// Dead letters outlive the rows they copy so operators can still replay them.
	deadLetterRetentionFactor = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPruner interface {
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Outbox      outboxPruner
	DeadLetters deadLetterPruner
	// Retention is in days. MinAttempts must equal the publisher's attempt
	// ceiling so rows still being retried are never removed.
	Retention   int
	MinAttempts int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Outbox == nil || params.DeadLetters == nil:
		return nil, fmt.Errorf("outbox and dlq repositories required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		outbox:      params.Outbox,
		deadLetters: params.DeadLetters,
		days:        params.Retention,
		minAttempts: params.MinAttempts,
		now:         time.Now,
	}
	if job.days <= 0 {
		job.days = outboxRetentionDays
	}
	if job.minAttempts <= 0 {
		job.minAttempts = outboxMinAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxPruner
	deadLetters deadLetterPruner
	days        int
	minAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes both tables in one transaction.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	rowCutoff := daysBefore(now, j.days)
	dlqCutoff := daysBefore(now, j.days*deadLetterRetentionFactor)

	var rows, letters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if rows, err = j.outbox.DeletePublishedBefore(ctx, tx, rowCutoff, j.minAttempts); err != nil {
			return fmt.Errorf("outbox rows: %w", err)
		}
		if letters, err = j.deadLetters.DeleteBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"row_cutoff":           rowCutoff,
		"dlq_cutoff":           dlqCutoff,
		"min_attempts":         j.minAttempts,
		"rows_deleted":         rows,
		"dead_letters_deleted": letters,
	}), "outbox retention cleanup complete")
	return nil
}

func daysBefore(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, -days)
}
