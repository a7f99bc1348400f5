package usage

import (
	"database/sql"

	"github.com/rpenyav/ia-backend/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create usage_records table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE usage_records (
						id              TEXT PRIMARY KEY,
						provider        TEXT NOT NULL,
						model           TEXT NOT NULL,
						user_id         TEXT,
						conversation_id TEXT,
						input_tokens    INTEGER,
						output_tokens   INTEGER,
						total_tokens    INTEGER NOT NULL DEFAULT 0,
						created_at      DATETIME NOT NULL
					)`,
					`CREATE INDEX idx_usage_records_created ON usage_records(created_at)`,
					`CREATE INDEX idx_usage_records_user ON usage_records(user_id)`,
					`CREATE INDEX idx_usage_records_conversation ON usage_records(conversation_id)`,
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
