package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

type categoriesRefresher interface {
	RefreshCategories(ctx context.Context) ([]string, error)
}

type CategoriesRefreshJobParams struct {
	Logger  *logger.Logger
	Catalog categoriesRefresher
}

// NewCategoriesRefreshJob keeps the catalog's category list warm so the
// storefront filter never pays for the DISTINCT scan.
func NewCategoriesRefreshJob(params CategoriesRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	return &categoriesRefreshJob{logg: params.Logger, catalog: params.Catalog}, nil
}

type categoriesRefreshJob struct {
	logg    *logger.Logger
	catalog categoriesRefresher
}

func (j *categoriesRefreshJob) Name() string { return "categories-refresh" }

func (j *categoriesRefreshJob) Run(ctx context.Context) error {
	categories, err := j.catalog.RefreshCategories(ctx)
	if err != nil {
		return fmt.Errorf("refresh categories: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "categories", len(categories)), "categories cache refreshed")
	return nil
}
