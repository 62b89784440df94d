package tracker

import "errors"

// Domain-specific errors for the tracker package.
var (
	// ErrNoDatabase is returned when a persisting tracker is built without
	// a database.
	ErrNoDatabase = errors.New("tracker: database is required")

	// ErrUnknownKind is returned for a history lookup of an unknown kind.
	ErrUnknownKind = errors.New("tracker: unknown history kind")
)
