package location

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for position history persistence.
type Repository interface {
	Insert(ctx context.Context, u Update) error
	Last(ctx context.Context, deviceID string) (*Update, error)
	History(ctx context.Context, deviceID string, limit int) ([]Update, error)
}

// SQLiteRepository implements Repository using the location_updates table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed location repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert stores one position report.
func (r *SQLiteRepository) Insert(ctx context.Context, u Update) error {
	const query = `INSERT INTO location_updates (device_id, timestamp, latitude, longitude, accuracy)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		u.DeviceID, u.Timestamp.UnixMilli(), u.Latitude, u.Longitude, nullFloat(u.Accuracy))
	if err != nil {
		return fmt.Errorf("inserting location for %s: %w", u.DeviceID, err)
	}
	return nil
}

// Last returns the newest report for deviceID, or ErrNoFix.
func (r *SQLiteRepository) Last(ctx context.Context, deviceID string) (*Update, error) {
	const query = `SELECT device_id, timestamp, latitude, longitude, accuracy
		FROM location_updates WHERE device_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT 1`
	u, err := scanUpdate(r.db.QueryRowContext(ctx, query, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoFix
	}
	if err != nil {
		return nil, fmt.Errorf("querying last location for %s: %w", deviceID, err)
	}
	return u, nil
}

// History returns up to limit reports for deviceID, newest first.
func (r *SQLiteRepository) History(ctx context.Context, deviceID string, limit int) ([]Update, error) {
	const query = `SELECT device_id, timestamp, latitude, longitude, accuracy
		FROM location_updates WHERE device_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying location history for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var out []Update
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpdate(row rowScanner) (*Update, error) {
	var (
		u        Update
		ts       int64
		accuracy sql.NullFloat64
	)
	if err := row.Scan(&u.DeviceID, &ts, &u.Latitude, &u.Longitude, &accuracy); err != nil {
		return nil, err
	}
	u.Timestamp = time.UnixMilli(ts).UTC()
	if accuracy.Valid {
		u.Accuracy = &accuracy.Float64
	}
	return &u, nil
}

// nullFloat converts a *float64 to a sql.NullFloat64 for nullable columns.
func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
