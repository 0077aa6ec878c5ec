package fleet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/models/store"
	"github.com/rs/zerolog"
)

// Store exposes the slice of the fleet schema the consistency and
// reconciliation services operate on. Each write is its own atomic statement;
// callers never span transactions across repair steps.
type Store interface {
	CountUsers(ctx context.Context) (int64, error)
	CountVehicles(ctx context.Context) (int64, error)

	ListOrphanedVehicles(ctx context.Context) ([]store.VehicleRecord, error)
	ListImportedUsersWithoutVehicles(ctx context.Context) ([]store.UserRecord, error)
	ListUsernameMismatches(ctx context.Context) ([]store.UsernameMismatch, error)
	ListVehiclesWithZeroPosition(ctx context.Context) ([]store.VehicleRecord, error)
	FindDuplicateDeviceIDs(ctx context.Context) ([]store.DuplicateDeviceGroup, error)
	ListVehiclesMissingMetadata(ctx context.Context, limit int) ([]store.VehicleRecord, error)
	ListVehiclesWithMetadata(ctx context.Context) ([]store.VehicleRecord, error)
	ListInactiveVehiclesWithRecentActivity(ctx context.Context, since time.Time) ([]store.VehicleRecord, error)
	ListOwnersOverVehicleLimit(ctx context.Context, limit int) ([]store.OwnerVehicleCount, error)
	CountReferentialViolations(ctx context.Context, childTable, childColumn, parentTable, parentColumn string) (int64, error)

	FindUserByUsername(ctx context.Context, username string) (*store.UserRecord, error)
	AssignVehicleOwner(ctx context.Context, vehicleID, userID string) error
	UpdateVehicleUsername(ctx context.Context, vehicleID, username string) error
	UpdateVehicleMetadata(ctx context.Context, vehicleID string, metadata []byte) error
	ReactivateVehicle(ctx context.Context, vehicleID string, at time.Time) error
}

type fleetStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return &fleetStore{db: db}
}

const vehicleColumns = `id, gp51_device_id, name, envio_user_id, gp51_username, is_active,
		gp51_metadata, last_latitude, last_longitude, updated_at, created_at`

func scanVehicle(rows *sql.Rows) (store.VehicleRecord, error) {
	var v store.VehicleRecord
	err := rows.Scan(
		&v.ID, &v.DeviceID, &v.Name, &v.OwnerUserID, &v.GP51Username, &v.IsActive,
		&v.Metadata, &v.LastLatitude, &v.LastLongitude, &v.UpdatedAt, &v.CreatedAt,
	)
	return v, err
}

func (s *fleetStore) queryVehicles(ctx context.Context, query string, args ...any) ([]store.VehicleRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []store.VehicleRecord
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (s *fleetStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *fleetStore) CountVehicles(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vehicles: %w", err)
	}
	return n, nil
}

func (s *fleetStore) ListOrphanedVehicles(ctx context.Context) ([]store.VehicleRecord, error) {
	query := `
		SELECT ` + vehicleColumns + `
		FROM vehicles
		WHERE envio_user_id IS NULL
		ORDER BY created_at`
	vehicles, err := s.queryVehicles(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list orphaned vehicles: %w", err)
	}
	return vehicles, nil
}

func (s *fleetStore) ListImportedUsersWithoutVehicles(ctx context.Context) ([]store.UserRecord, error) {
	query := `
		SELECT u.id, u.name, u.gp51_username, u.import_source, u.created_at
		FROM users u
		LEFT JOIN vehicles v ON v.envio_user_id = u.id
		WHERE u.import_source IS NOT NULL
		GROUP BY u.id, u.name, u.gp51_username, u.import_source, u.created_at
		HAVING COUNT(v.id) = 0
		ORDER BY u.created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list imported users without vehicles: %w", err)
	}
	defer rows.Close()

	var users []store.UserRecord
	for rows.Next() {
		var u store.UserRecord
		if err := rows.Scan(&u.ID, &u.Name, &u.GP51Username, &u.ImportSource, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *fleetStore) ListUsernameMismatches(ctx context.Context) ([]store.UsernameMismatch, error) {
	query := `
		SELECT v.id, v.gp51_device_id, v.gp51_username, u.id, u.gp51_username
		FROM vehicles v
		JOIN users u ON u.id = v.envio_user_id
		WHERE v.gp51_username IS NOT NULL
		  AND v.gp51_username <> u.gp51_username`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list username mismatches: %w", err)
	}
	defer rows.Close()

	var mismatches []store.UsernameMismatch
	for rows.Next() {
		var m store.UsernameMismatch
		if err := rows.Scan(&m.VehicleID, &m.DeviceID, &m.VehicleUsername, &m.UserID, &m.UserUsername); err != nil {
			return nil, err
		}
		mismatches = append(mismatches, m)
	}
	return mismatches, rows.Err()
}

func (s *fleetStore) ListVehiclesWithZeroPosition(ctx context.Context) ([]store.VehicleRecord, error) {
	query := `
		SELECT ` + vehicleColumns + `
		FROM vehicles
		WHERE last_latitude IS NULL
		   OR last_longitude IS NULL
		   OR (last_latitude = 0 AND last_longitude = 0)`
	vehicles, err := s.queryVehicles(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles with zero position: %w", err)
	}
	return vehicles, nil
}

func (s *fleetStore) FindDuplicateDeviceIDs(ctx context.Context) ([]store.DuplicateDeviceGroup, error) {
	query := `
		SELECT gp51_device_id, COUNT(*), array_agg(id ORDER BY created_at)
		FROM vehicles
		GROUP BY gp51_device_id
		HAVING COUNT(*) > 1`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find duplicate device ids: %w", err)
	}
	defer rows.Close()

	var groups []store.DuplicateDeviceGroup
	for rows.Next() {
		var g store.DuplicateDeviceGroup
		var ids []byte
		if err := rows.Scan(&g.DeviceID, &g.Count, &ids); err != nil {
			return nil, err
		}
		g.VehicleIDs = parseTextArray(ids)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *fleetStore) ListVehiclesMissingMetadata(ctx context.Context, limit int) ([]store.VehicleRecord, error) {
	query := `
		SELECT ` + vehicleColumns + `
		FROM vehicles
		WHERE gp51_metadata IS NULL OR gp51_metadata = '{}'::jsonb
		ORDER BY created_at
		LIMIT $1`
	vehicles, err := s.queryVehicles(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list vehicles missing metadata: %w", err)
	}
	return vehicles, nil
}

func (s *fleetStore) ListVehiclesWithMetadata(ctx context.Context) ([]store.VehicleRecord, error) {
	query := `
		SELECT ` + vehicleColumns + `
		FROM vehicles
		WHERE gp51_metadata IS NOT NULL AND gp51_metadata <> '{}'::jsonb`
	vehicles, err := s.queryVehicles(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles with metadata: %w", err)
	}
	return vehicles, nil
}

func (s *fleetStore) ListInactiveVehiclesWithRecentActivity(ctx context.Context, since time.Time) ([]store.VehicleRecord, error) {
	query := `
		SELECT ` + vehicleColumns + `
		FROM vehicles
		WHERE is_active = FALSE
		  AND gp51_metadata ? 'updatetime'
		  AND to_timestamp((gp51_metadata->>'updatetime')::bigint / 1000) > $1`
	vehicles, err := s.queryVehicles(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list inactive vehicles with recent activity: %w", err)
	}
	return vehicles, nil
}

func (s *fleetStore) ListOwnersOverVehicleLimit(ctx context.Context, limit int) ([]store.OwnerVehicleCount, error) {
	query := `
		SELECT u.id, u.gp51_username, COUNT(v.id)
		FROM users u
		JOIN vehicles v ON v.envio_user_id = u.id
		GROUP BY u.id, u.gp51_username
		HAVING COUNT(v.id) > $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list owners over vehicle limit: %w", err)
	}
	defer rows.Close()

	var counts []store.OwnerVehicleCount
	for rows.Next() {
		var c store.OwnerVehicleCount
		if err := rows.Scan(&c.UserID, &c.GP51Username, &c.VehicleCount); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// CountReferentialViolations counts child rows whose non-null reference has no
// matching parent. Table and column names are trusted identifiers supplied by
// the verifier, never user input.
func (s *fleetStore) CountReferentialViolations(ctx context.Context, childTable, childColumn, parentTable, parentColumn string) (int64, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %[1]s c
		LEFT JOIN %[3]s p ON p.%[4]s = c.%[2]s
		WHERE c.%[2]s IS NOT NULL AND p.%[4]s IS NULL`,
		childTable, childColumn, parentTable, parentColumn)

	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count referential violations %s.%s: %w", childTable, childColumn, err)
	}
	return n, nil
}

func (s *fleetStore) FindUserByUsername(ctx context.Context, username string) (*store.UserRecord, error) {
	query := `
		SELECT id, name, gp51_username, import_source, created_at
		FROM users
		WHERE gp51_username = $1`
	var u store.UserRecord
	err := s.db.QueryRowContext(ctx, query, username).
		Scan(&u.ID, &u.Name, &u.GP51Username, &u.ImportSource, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return &u, nil
}

func (s *fleetStore) AssignVehicleOwner(ctx context.Context, vehicleID, userID string) error {
	zerolog.Ctx(ctx).Debug().
		Str("vehicle_id", vehicleID).
		Str("user_id", userID).
		Msg("linking vehicle to owner")

	_, err := s.db.ExecContext(ctx,
		`UPDATE vehicles SET envio_user_id = $2, updated_at = now() WHERE id = $1`,
		vehicleID, userID)
	if err != nil {
		return fmt.Errorf("assign vehicle owner: %w", err)
	}
	return nil
}

func (s *fleetStore) UpdateVehicleUsername(ctx context.Context, vehicleID, username string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vehicles SET gp51_username = $2, updated_at = now() WHERE id = $1`,
		vehicleID, username)
	if err != nil {
		return fmt.Errorf("update vehicle username: %w", err)
	}
	return nil
}

func (s *fleetStore) UpdateVehicleMetadata(ctx context.Context, vehicleID string, metadata []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vehicles SET gp51_metadata = $2, updated_at = now() WHERE id = $1`,
		vehicleID, metadata)
	if err != nil {
		return fmt.Errorf("update vehicle metadata: %w", err)
	}
	return nil
}

func (s *fleetStore) ReactivateVehicle(ctx context.Context, vehicleID string, at time.Time) error {
	query := `
		UPDATE vehicles
		SET is_active = TRUE,
		    gp51_metadata = jsonb_set(COALESCE(gp51_metadata, '{}'::jsonb), '{reactivated_at}', to_jsonb($2::text)),
		    updated_at = now()
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, vehicleID, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("reactivate vehicle: %w", err)
	}
	return nil
}
