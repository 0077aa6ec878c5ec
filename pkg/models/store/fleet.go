package store

import (
	"database/sql"
	"time"
)

// VehicleRecord mirrors one row of the vehicles table. Metadata holds the raw
// gp51_metadata jsonb blob; nil means the vehicle has never been enriched.
type VehicleRecord struct {
	ID            string
	DeviceID      string
	Name          string
	OwnerUserID   sql.NullString
	GP51Username  sql.NullString
	IsActive      bool
	Metadata      []byte
	LastLatitude  sql.NullFloat64
	LastLongitude sql.NullFloat64
	UpdatedAt     time.Time
	CreatedAt     time.Time
}

// UserRecord mirrors one row of the users table.
type UserRecord struct {
	ID           string
	Name         string
	GP51Username string
	ImportSource sql.NullString
	CreatedAt    time.Time
}

// UsernameMismatch pairs a vehicle whose denormalized owner username differs
// from the linked user's own username.
type UsernameMismatch struct {
	VehicleID       string
	DeviceID        string
	VehicleUsername string
	UserID          string
	UserUsername    string
}

// DuplicateDeviceGroup reports one device identifier shared by several vehicles.
type DuplicateDeviceGroup struct {
	DeviceID   string
	Count      int
	VehicleIDs []string
}

// OwnerVehicleCount reports how many vehicles a single user owns.
type OwnerVehicleCount struct {
	UserID       string
	GP51Username string
	VehicleCount int
}
