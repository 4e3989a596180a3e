// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/designdesk/designdesk/internal/domain"
)

// Repository defines the interface for persisting devices and their analysis
// history. Chat history is never stored here.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when the
	// user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// DeleteIdleUsers removes users inactive for longer than ttl together with
	// their analysis runs.
	DeleteIdleUsers(ctx context.Context, ttl time.Duration) (int64, error)

	// RecordAnalysis stores a settled analysis and sets run.ID.
	RecordAnalysis(ctx context.Context, run *domain.AnalysisRun) error

	// ListAnalyses returns the most recent runs for a user, newest first.
	ListAnalyses(ctx context.Context, userID string, limit int) ([]*domain.AnalysisRun, error)

	// CleanupAnalyses removes runs older than retention.
	CleanupAnalyses(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
