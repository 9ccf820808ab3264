// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/friendchat/internal/domain"
)

// ProfileKey is the key of the flat profile record in the key/value table.
const ProfileKey = "current_user"

// Repository defines the interface for persisting sessions and the profile record.
type Repository interface {
	// ListSessions returns every stored session.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// UpsertSession creates or fully rewrites a session record.
	UpsertSession(ctx context.Context, session *domain.Session) error

	// UpsertSessions rewrites several sessions in a single transaction.
	UpsertSessions(ctx context.Context, sessions []*domain.Session) error

	// DeleteSession removes a session record.
	DeleteSession(ctx context.Context, id string) error

	// DeleteAllSessions removes every session record.
	DeleteAllSessions(ctx context.Context) (int64, error)

	// GetProfile reads the flat profile record. It returns nil, nil when missing.
	GetProfile(ctx context.Context) (*domain.Profile, error)

	// SaveProfile writes the flat profile record.
	SaveProfile(ctx context.Context, profile *domain.Profile) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
