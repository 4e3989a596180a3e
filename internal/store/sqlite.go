package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeAttempts  = 3
	writeBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
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
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen_at);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		app_id INTEGER NOT NULL,
		game_name TEXT NOT NULL,
		language TEXT NOT NULL,
		review_type TEXT NOT NULL,
		day_range INTEGER NOT NULL,
		use_gpt INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		total_reviews INTEGER NOT NULL DEFAULT 0,
		positive_count INTEGER NOT NULL DEFAULT 0,
		negative_count INTEGER NOT NULL DEFAULT 0,
		narrative_failed INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analysis_runs_user ON analysis_runs(user_id, created_at);
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

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	err := shared.RetryOnConflict(ctx, "upsert_user", writeAttempts, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username,
			user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`

	var result sql.Result
	err := shared.RetryOnConflict(ctx, "update_last_seen", writeAttempts, writeBaseDelay, func() error {
		var err error
		result, err = s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// DeleteIdleUsers removes users inactive for longer than ttl and their runs.
func (s *SQLiteStore) DeleteIdleUsers(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete_idle_users", writeAttempts, writeBaseDelay, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM analysis_runs WHERE user_id IN (SELECT user_id FROM users WHERE last_seen_at < ?)`,
			threshold,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE last_seen_at < ?`, threshold)
		if err != nil {
			return err
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("delete idle users: %w", err)
	}
	return deleted, nil
}

// RecordAnalysis stores a settled analysis.
func (s *SQLiteStore) RecordAnalysis(ctx context.Context, run *domain.AnalysisRun) error {
	query := `
		INSERT INTO analysis_runs (
			user_id, app_id, game_name, language, review_type, day_range, use_gpt,
			outcome, total_reviews, positive_count, negative_count,
			narrative_failed, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	var errMsg any
	if run.ErrorMessage != "" {
		errMsg = run.ErrorMessage
	}

	var result sql.Result
	err := shared.RetryOnConflict(ctx, "record_analysis", writeAttempts, writeBaseDelay, func() error {
		var err error
		result, err = s.db.ExecContext(ctx, query,
			run.UserID, run.AppID, run.GameName,
			run.Settings.Language, run.Settings.ReviewType, run.Settings.DayRange, run.Settings.UseAISummary,
			run.Outcome, run.TotalReviews, run.PositiveCount, run.NegativeCount,
			run.NarrativeFailed, errMsg, run.CreatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get analysis id: %w", err)
	}
	run.ID = id
	return nil
}

// ListAnalyses returns the most recent runs for a user, newest first.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, userID string, limit int) ([]*domain.AnalysisRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, user_id, app_id, game_name, language, review_type, day_range, use_gpt,
		       outcome, total_reviews, positive_count, negative_count,
		       narrative_failed, error_message, created_at
		FROM analysis_runs WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close analyses rows", "error", closeErr)
		}
	}()

	var runs []*domain.AnalysisRun
	for rows.Next() {
		var run domain.AnalysisRun
		var errMsg sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&run.ID, &run.UserID, &run.AppID, &run.GameName,
			&run.Settings.Language, &run.Settings.ReviewType, &run.Settings.DayRange, &run.Settings.UseAISummary,
			&run.Outcome, &run.TotalReviews, &run.PositiveCount, &run.NegativeCount,
			&run.NarrativeFailed, &errMsg, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan analysis row: %w", err)
		}

		run.ErrorMessage = errMsg.String
		run.CreatedAt = time.Unix(createdAt, 0)
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}

	return runs, nil
}

// CleanupAnalyses removes runs older than retention.
func (s *SQLiteStore) CleanupAnalyses(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).Unix()

	var result sql.Result
	err := shared.RetryOnConflict(ctx, "cleanup_analyses", writeAttempts, writeBaseDelay, func() error {
		var err error
		result, err = s.db.ExecContext(ctx, `DELETE FROM analysis_runs WHERE created_at < ?`, threshold)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup analyses: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
