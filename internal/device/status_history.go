package device

import (
	"context"
	"time"
)

// StatusHistoryEntry is one recorded online/offline transition.
type StatusHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID is the unique identifier of the device.
	DeviceID string `json:"device_id"`

	// Status is the status the device moved to.
	Status Status `json:"status"`

	// Source is the integration that reported the change.
	Source Source `json:"source"`

	// CreatedAt is the timestamp of the transition (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StatusHistoryRepository stores and retrieves device status transitions.
//
// Implementations must be thread-safe and use UTC timestamps.
type StatusHistoryRepository interface {
	StatusRecorder

	// GetHistory returns recent transitions for the device, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Unique device identifier
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []StatusHistoryEntry: Transitions ordered newest first
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StatusHistoryEntry, error)

	// PruneHistory removes entries older than the retention period.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - olderThan: Retention duration
	//
	// Returns:
	//   - int64: Number of rows deleted
	//   - error: nil on success, otherwise the underlying persistence error
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
