// Package store is the persistence boundary of the engine. Sessions and
// leaderboard entries are small documents; both backends honor the same
// create-if-absent semantics so code assignment can treat the creation
// write as authoritative.
package store

import (
	"context"

	"github.com/victornm/egame/internal/domain"
)

type Store interface {
	// CreateSession persists s only if no session with the same code
	// exists. Returns false (and no error) when the code is taken.
	CreateSession(ctx context.Context, s *domain.Session) (bool, error)
	// GetSession returns the session or an error with errors.CodeNotFound.
	GetSession(ctx context.Context, code string) (*domain.Session, error)
	// UpdateSession overwrites an existing session. A deleted session is
	// never resurrected: updating an absent code fails with CodeNotFound.
	UpdateSession(ctx context.Context, s *domain.Session) error
	DeleteSession(ctx context.Context, code string) error

	UpsertEntry(ctx context.Context, code string, e domain.LeaderboardEntry) error
	ListEntries(ctx context.Context, code string) ([]domain.LeaderboardEntry, error)
	ClearEntries(ctx context.Context, code string) error
}
