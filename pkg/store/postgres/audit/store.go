package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/envio-tools/fleet-atlas/pkg/models/store"
)

// Store is the append-only consistency audit log written after each monitored
// verification pass.
type Store interface {
	AppendSnapshot(ctx context.Context, snapshot store.ConsistencySnapshot) error
}

type auditStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return &auditStore{db: db}
}

func (s *auditStore) AppendSnapshot(ctx context.Context, snapshot store.ConsistencySnapshot) error {
	query := `
		INSERT INTO gp51_consistency_audit
			(overall_score, checks_performed, checks_passed, checks_failed, data_health, report_data)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query,
		snapshot.OverallScore,
		snapshot.ChecksPerformed,
		snapshot.ChecksPassed,
		snapshot.ChecksFailed,
		snapshot.DataHealth,
		snapshot.ReportData,
	)
	if err != nil {
		return fmt.Errorf("append consistency snapshot: %w", err)
	}
	return nil
}
