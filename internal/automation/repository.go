package automation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Execution list bounds.
const (
	defaultExecutionLimit = 10
	maxExecutionLimit     = 100
)

// ExecutionRepository persists the scene audit log.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type ExecutionRepository interface {
	// CreateExecution appends one run to the log.
	CreateExecution(ctx context.Context, exec *Execution) error

	// GetExecution returns one run by id.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions returns the most recent runs, newest first. An empty
	// sceneID lists runs of every scene.
	ListExecutions(ctx context.Context, sceneID string, limit int) ([]Execution, error)
}

// ErrExecutionNotFound is returned when an execution ID does not exist.
var ErrExecutionNotFound = errors.New("scene: execution not found")

// SQLiteRepository implements ExecutionRepository using the scene_executions
// table created by the embedded migrations.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed execution log.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const executionColumns = `id, scene_id, scene_title, timestamp, trigger_type, trigger_source, success`

// CreateExecution inserts a new execution record.
func (r *SQLiteRepository) CreateExecution(ctx context.Context, exec *Execution) error {
	if exec.ID == "" {
		exec.ID = GenerateID()
	}
	if exec.Timestamp.IsZero() {
		exec.Timestamp = time.Now()
	}

	query := `INSERT INTO scene_executions (` + executionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		exec.ID,
		exec.SceneID,
		exec.SceneTitle,
		exec.Timestamp.UnixMilli(),
		string(exec.TriggerType),
		nullableString(exec.TriggerSource),
		boolToInt(exec.Success),
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (r *SQLiteRepository) GetExecution(ctx context.Context, id string) (*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM scene_executions WHERE id = ?`

	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return exec, nil
}

// ListExecutions retrieves recent executions, newest first. The limit is
// clamped to 1-100 (default 10).
func (r *SQLiteRepository) ListExecutions(ctx context.Context, sceneID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = defaultExecutionLimit
	}
	if limit > maxExecutionLimit {
		limit = maxExecutionLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if sceneID == "" {
		query := `SELECT ` + executionColumns + ` FROM scene_executions
			ORDER BY timestamp DESC, rowid DESC LIMIT ?`
		rows, err = r.db.QueryContext(ctx, query, limit)
	} else {
		query := `SELECT ` + executionColumns + ` FROM scene_executions
			WHERE scene_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`
		rows, err = r.db.QueryContext(ctx, query, sceneID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	executions := []Execution{}
	for rows.Next() {
		exec, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning execution: %w", scanErr)
		}
		executions = append(executions, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return executions, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(scanner rowScanner) (*Execution, error) {
	var (
		e             Execution
		timestamp     int64
		triggerType   string
		triggerSource sql.NullString
		success       int
	)
	err := scanner.Scan(
		&e.ID,
		&e.SceneID,
		&e.SceneTitle,
		&timestamp,
		&triggerType,
		&triggerSource,
		&success,
	)
	if err != nil {
		return nil, err
	}

	e.Timestamp = time.UnixMilli(timestamp).UTC()
	e.TriggerType = TriggerType(triggerType)
	if triggerSource.Valid {
		e.TriggerSource = triggerSource.String
	}
	e.Success = success != 0
	return &e, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
