package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeLayout has fixed-width fractions so rows sort as text.
	historyTimeLayout = "2006-01-02T15:04:05.000Z"
)

// SQLiteStatusHistoryRepository implements StatusHistoryRepository using
// the device_status_history table.
type SQLiteStatusHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStatusHistoryRepository creates a new SQLite status history repository.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteStatusHistoryRepository: Repository instance ready for use
func NewSQLiteStatusHistoryRepository(db *sql.DB) *SQLiteStatusHistoryRepository {
	return &SQLiteStatusHistoryRepository{db: db}
}

// RecordStatusChange inserts a transition for a device.
func (r *SQLiteStatusHistoryRepository) RecordStatusChange(ctx context.Context, deviceID string, status Status, source Source) error {
	if deviceID == "" {
		return errors.New("device id is required")
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO device_status_history (device_id, status, source, created_at) VALUES (?, ?, ?, ?)",
		deviceID,
		string(status),
		string(source),
		time.Now().UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting status history: %w", err)
	}
	return nil
}

// GetHistory returns recent transitions for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []StatusHistoryEntry: Entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteStatusHistoryRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]StatusHistoryEntry, error) {
	if deviceID == "" {
		return nil, errors.New("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, status, source, created_at
		 FROM device_status_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying status history: %w", err)
	}
	defer rows.Close()

	entries := make([]StatusHistoryEntry, 0, limit)
	for rows.Next() {
		var entry StatusHistoryEntry
		var status, source, createdAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &status, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning status history: %w", err)
		}
		entry.Status = Status(status)
		entry.Source = Source(source)

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes entries older than the given duration.
func (r *SQLiteStatusHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeLayout)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM device_status_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting status history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("created_at is empty")
	}

	timestamp, err := time.Parse(historyTimeLayout, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse(time.RFC3339, value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
