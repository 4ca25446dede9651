package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot when running in dev with
// PARTYSHOP_AUTO_MIGRATE enabled. Every other environment migrates
// through cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "service", cfg.Service.Kind)
	logg.Info(ctx, "migrate.autorun.start")
	if err := Run(ctx, sqlDB, "", "up"); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(ctx, "migrate.autorun.done")
	return nil
}
