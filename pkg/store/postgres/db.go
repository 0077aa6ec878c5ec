package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ConsistencyAuditSchema is the only table this service owns. The vehicles
// and users tables are provisioned by the fleet platform itself.
const ConsistencyAuditSchema = `
	CREATE TABLE IF NOT EXISTS gp51_consistency_audit (
		id BIGSERIAL PRIMARY KEY,
		overall_score INT NOT NULL,
		checks_performed INT NOT NULL,
		checks_passed INT NOT NULL,
		checks_failed INT NOT NULL,
		data_health TEXT NOT NULL,
		report_data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

var bootQueries = []string{
	ConsistencyAuditSchema,
}

type Settings struct {
	DSN          string
	MaxOpenConns int
}

func NewDB(settings Settings) (*sql.DB, error) {
	db, err := sql.Open("pgx", settings.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if settings.MaxOpenConns > 0 {
		db.SetMaxOpenConns(settings.MaxOpenConns)
	}

	for _, query := range bootQueries {
		if _, err := db.Exec(query); err != nil {
			db.Close()
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return db, nil
}
