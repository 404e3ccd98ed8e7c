package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stocktake-backend/pkg/config"
	"github.com/angelmondragon/stocktake-backend/pkg/db"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date at boot when STOCKTAKE_AUTO_MIGRATE
// is set. Postgres is only touched in the dev environment.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	// The goose files use Postgres types, so local sqlite databases are
	// shaped straight from the models instead.
	if client.Dialect() == db.DriverSQLite {
		logg.Info(logg.WithField(ctx, "dialect", client.Dialect()), "auto-migrating models")
		return client.AutoMigrate(ctx)
	}

	if !cfg.App.IsDev() {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": "embedded"})
	if err := Run(ctx, sqlDB, "", "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "schema migrations applied")
	return nil
}
