package catalog

import (
	"database/sql"

	"github.com/rpenyav/ia-backend/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create catalog tables (categories, products)",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE catalog_categories (
						slug TEXT PRIMARY KEY,
						name TEXT NOT NULL
					)`,
					`CREATE TABLE catalog_products (
						id            TEXT PRIMARY KEY,
						slug          TEXT NOT NULL UNIQUE,
						name          TEXT NOT NULL,
						brand         TEXT NOT NULL,
						model         TEXT NOT NULL DEFAULT '',
						year          INTEGER NOT NULL DEFAULT 0,
						price         REAL NOT NULL,
						mileage       INTEGER NOT NULL DEFAULT 0,
						category_slug TEXT NOT NULL REFERENCES catalog_categories(slug),
						fuel_type     TEXT NOT NULL DEFAULT 'diesel',
						gearbox       TEXT NOT NULL DEFAULT 'manual',
						seats         INTEGER NOT NULL DEFAULT 5,
						doors         INTEGER NOT NULL DEFAULT 5,
						color         TEXT NOT NULL DEFAULT '',
						description   TEXT NOT NULL DEFAULT '',
						image_url     TEXT NOT NULL DEFAULT '',
						images        TEXT NOT NULL DEFAULT '[]',
						link          TEXT NOT NULL DEFAULT '',
						active        INTEGER NOT NULL DEFAULT 1
					)`,
					`CREATE INDEX idx_catalog_products_search ON catalog_products(active, category_slug, price)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
