// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
)

// Repository persists anonymous users and the tutor call log. Problems,
// transcripts and credentials are never stored.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// DeleteStaleUsers removes users not seen within retention, with their call log.
	DeleteStaleUsers(ctx context.Context, retention time.Duration) (int64, error)

	// RecordTutorCall appends one entry to the call log.
	RecordTutorCall(ctx context.Context, call *domain.TutorCall) error

	// CallStats counts calls per backend and outcome since the given time.
	// A zero since counts every call.
	CallStats(ctx context.Context, since time.Time) ([]domain.CallStat, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
