package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const guestRetentionDays = 30

// guestPurger deletes guest-owned rows untouched since cutoff.
type guestPurger interface {
	PurgeGuestsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type GuestCleanupJobParams struct {
	Logger        *logger.Logger
	Carts         guestPurger
	Favorites     guestPurger
	RetentionDays int
}

func NewGuestCleanupJob(params GuestCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil || params.Favorites == nil {
		return nil, fmt.Errorf("cart and favorites repositories required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = guestRetentionDays
	}
	return &guestCleanupJob{
		logg:      params.Logger,
		carts:     params.Carts,
		favorites: params.Favorites,
		retention: retention,
		now:       time.Now,
	}, nil
}

type guestCleanupJob struct {
	logg      *logger.Logger
	carts     guestPurger
	favorites guestPurger
	retention int
	now       func() time.Time
}

func (j *guestCleanupJob) Name() string { return "guest-cleanup" }

// Run purges both stores even when one of them fails.
func (j *guestCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)

	var errs error
	carts, err := j.carts.PurgeGuestsBefore(ctx, cutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("purge guest carts: %w", err))
	}
	lists, err := j.favorites.PurgeGuestsBefore(ctx, cutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("purge guest favorites: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":            cutoff,
		"retention_days":    j.retention,
		"carts_deleted":     carts,
		"favorites_deleted": lists,
	})
	if errs != nil {
		return errs
	}
	j.logg.Info(logCtx, "guest cleanup complete")
	return nil
}
