package db

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
)

// Models lists every persisted type in dependency order.
func Models() []any {
	return []any{
		&models.User{},
		&models.CatalogItem{},
		&models.CountRecord{},
		&models.AuditLog{},
	}
}

// AutoMigrate shapes the schema from the models. It backs sqlite mode and
// tests; Postgres deployments use the goose migrations.
func (c *Client) AutoMigrate(ctx context.Context) error {
	if err := c.conn.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}
	return nil
}
