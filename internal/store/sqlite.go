package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/voicetask/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		child_id TEXT NOT NULL,
		child_name TEXT NOT NULL,
		title TEXT NOT NULL,
		due_at INTEGER NOT NULL,
		points INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, created_at);

	CREATE TABLE IF NOT EXISTS turn_log (
		session_id TEXT NOT NULL,
		turn_index INTEGER NOT NULL,
		turn_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		transcript TEXT NOT NULL,
		intent TEXT NOT NULL,
		speak TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, turn_index)
	);
	CREATE INDEX IF NOT EXISTS idx_turn_log_created ON turn_log(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// SaveTask inserts a confirmed task. Saving the same session twice keeps the
// first record and returns its id.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *domain.Task) (int64, error) {
	query := `
	INSERT INTO tasks (session_id, user_id, child_id, child_name, title, due_at, points, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO NOTHING`

	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var id int64
	err := withRetry(ctx, "save_task", func() error {
		if _, err := s.db.ExecContext(ctx, query,
			task.SessionID, task.UserID, task.ChildID, task.ChildName, task.Title,
			task.DueAt.UnixMilli(), task.Points, createdAt.UnixMilli(),
		); err != nil {
			return err
		}
		return s.db.QueryRowContext(ctx, `SELECT id FROM tasks WHERE session_id = ?`, task.SessionID).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("save task: %w", err)
	}
	task.ID = id
	task.CreatedAt = createdAt
	return id, nil
}

// ListTasks returns the user's tasks, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, userID string) ([]*domain.Task, error) {
	query := `
		SELECT id, session_id, user_id, child_id, child_name, title, due_at, points, created_at
		FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close task rows", "error", closeErr)
		}
	}()

	tasks := []*domain.Task{}
	for rows.Next() {
		var task domain.Task
		var dueAt, createdAt int64
		if err := rows.Scan(
			&task.ID, &task.SessionID, &task.UserID, &task.ChildID, &task.ChildName,
			&task.Title, &dueAt, &task.Points, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		task.DueAt = time.UnixMilli(dueAt)
		task.CreatedAt = time.UnixMilli(createdAt)
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// AppendTurn records one accepted turn. A turn index is recorded once per session.
func (s *SQLiteStore) AppendTurn(ctx context.Context, rec *domain.TurnRecord) error {
	query := `
	INSERT INTO turn_log (session_id, turn_index, turn_id, user_id, transcript, intent, speak, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, turn_index) DO NOTHING`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	err := withRetry(ctx, "append_turn", func() error {
		_, err := s.db.ExecContext(ctx, query,
			rec.SessionID, rec.TurnIndex, rec.TurnID, rec.UserID, rec.Transcript,
			string(rec.Intent), rec.Speak, string(rec.Status), createdAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// ListTurns returns a session's turns in turn order.
func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string) ([]*domain.TurnRecord, error) {
	query := `
		SELECT session_id, turn_index, turn_id, user_id, transcript, intent, speak, status, created_at
		FROM turn_log WHERE session_id = ? ORDER BY turn_index`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close turn rows", "error", closeErr)
		}
	}()

	var turns []*domain.TurnRecord
	for rows.Next() {
		var rec domain.TurnRecord
		var intent, status string
		var createdAt int64
		if err := rows.Scan(
			&rec.SessionID, &rec.TurnIndex, &rec.TurnID, &rec.UserID, &rec.Transcript,
			&intent, &rec.Speak, &status, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		rec.Intent = domain.Intent(intent)
		rec.Status = domain.Status(status)
		rec.CreatedAt = time.UnixMilli(createdAt)
		turns = append(turns, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// PruneTurns removes turn records older than olderThan.
func (s *SQLiteStore) PruneTurns(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := s.now().Add(-olderThan).UnixMilli()

	var removed int64
	err := withRetry(ctx, "prune_turns", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM turn_log WHERE created_at < ?`, threshold)
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune turns: %w", err)
	}
	return removed, nil
}

var _ Repository = (*SQLiteStore)(nil)
