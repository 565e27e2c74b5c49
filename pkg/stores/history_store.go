package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// HistoryStore persists sessions, lifecycle transitions, and endpoint
// allocations in SQLite.
type HistoryStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewHistoryStore creates a new history store instance.
func NewHistoryStore(cfg Config) (*HistoryStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &HistoryStore{path: cfg.Path, cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *HistoryStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded migration files.
func (s *HistoryStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CreateSession starts a new session record for an application run.
func (s *HistoryStore) CreateSession(ctx context.Context, appName string) (*Session, error) {
	session := &Session{
		ID:        uuid.New().String(),
		AppName:   appName,
		StartedAt: time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO sessions (id, app_name, started_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.AppName,
		session.StartedAt,
		session.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by ID.
func (s *HistoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, app_name, started_at, created_at
		FROM sessions
		WHERE id = ?
	`
	session := &Session{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.AppName,
		&session.StartedAt,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// RecordTransition persists one accepted lifecycle transition.
func (s *HistoryStore) RecordTransition(ctx context.Context, rec *TransitionRecord) error {
	query := `
		INSERT INTO transitions (session_id, resource, state, label, reported_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.Resource,
		rec.State,
		rec.Label,
		rec.ReportedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	rec.ID, _ = result.LastInsertId()
	return nil
}

// ListTransitions lists a resource's transitions within a session in report
// order. An empty resource lists the whole session.
func (s *HistoryStore) ListTransitions(ctx context.Context, sessionID, resource string, limit, offset int) ([]*TransitionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, session_id, resource, state, label, reported_at, created_at
		FROM transitions
		WHERE session_id = ? AND (? = '' OR resource = ?)
		ORDER BY reported_at ASC, id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, resource, resource, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var records []*TransitionRecord
	for rows.Next() {
		rec := &TransitionRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Resource,
			&rec.State,
			&rec.Label,
			&rec.ReportedAt,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecordBuildResult persists one image pipeline outcome.
func (s *HistoryStore) RecordBuildResult(ctx context.Context, rec *BuildResultRecord) error {
	query := `
		INSERT INTO build_results (session_id, resource, image, status, error, duration_ms, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.Resource,
		rec.Image,
		rec.Status,
		rec.Error,
		rec.DurationMS,
		rec.FinishedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record build result: %w", err)
	}
	rec.ID, _ = result.LastInsertId()
	return nil
}

// ListBuildResults lists a session's image pipeline outcomes in finish order.
func (s *HistoryStore) ListBuildResults(ctx context.Context, sessionID string) ([]*BuildResultRecord, error) {
	query := `
		SELECT id, session_id, resource, image, status, error, duration_ms, finished_at, created_at
		FROM build_results
		WHERE session_id = ?
		ORDER BY finished_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list build results: %w", err)
	}
	defer rows.Close()

	var records []*BuildResultRecord
	for rows.Next() {
		rec := &BuildResultRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Resource,
			&rec.Image,
			&rec.Status,
			&rec.Error,
			&rec.DurationMS,
			&rec.FinishedAt,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build result: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecordAllocation persists one endpoint allocation.
func (s *HistoryStore) RecordAllocation(ctx context.Context, rec *AllocationRecord) error {
	query := `
		INSERT INTO endpoint_allocations (session_id, resource, endpoint, host, port, allocated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.Resource,
		rec.Endpoint,
		rec.Host,
		rec.Port,
		rec.AllocatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record allocation: %w", err)
	}
	rec.ID, _ = result.LastInsertId()
	return nil
}

// ListAllocations lists a session's endpoint allocations in allocation order.
func (s *HistoryStore) ListAllocations(ctx context.Context, sessionID string) ([]*AllocationRecord, error) {
	query := `
		SELECT id, session_id, resource, endpoint, host, port, allocated_at
		FROM endpoint_allocations
		WHERE session_id = ?
		ORDER BY allocated_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var records []*AllocationRecord
	for rows.Next() {
		rec := &AllocationRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Resource,
			&rec.Endpoint,
			&rec.Host,
			&rec.Port,
			&rec.AllocatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
