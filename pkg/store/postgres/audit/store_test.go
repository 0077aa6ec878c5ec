package audit

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/envio-tools/fleet-atlas/pkg/models/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_AppendSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db)
	ctx := context.Background()

	snapshot := store.ConsistencySnapshot{
		OverallScore:    88,
		ChecksPerformed: 8,
		ChecksPassed:    7,
		ChecksFailed:    1,
		DataHealth:      "good",
		ReportData:      []byte(`{"overall_score":88}`),
	}

	t.Run("inserts one row", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO gp51_consistency_audit`).
			WithArgs(88, 8, 7, 1, "good", snapshot.ReportData).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, s.AppendSnapshot(ctx, snapshot))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert errors are wrapped", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO gp51_consistency_audit`).
			WillReturnError(sql.ErrConnDone)

		err := s.AppendSnapshot(ctx, snapshot)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "append consistency snapshot")
	})
}
