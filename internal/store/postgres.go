package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/egame/internal/domain"
	"github.com/victornm/egame/internal/errors"
)

// Postgres is the durable Store backend. Token sequences are stored as
// JSONB, times as text so decimal values round-trip exactly.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateSession(ctx context.Context, ss *domain.Session) (bool, error) {
	const stmt = `
INSERT INTO sessions (code, host_conn_id, host_id, state, game_mode, scrambled_order, found_progress, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (code) DO NOTHING;`

	order, progress, err := marshalTokens(ss)
	if err != nil {
		return false, err
	}

	ct, err := s.db.Exec(ctx, stmt,
		ss.Code, ss.HostConnID, ss.HostID, string(ss.State), ss.GameMode, order, progress, ss.CreatedAt)
	if err != nil {
		return false, unavailable(err)
	}

	return ct.RowsAffected() == 1, nil
}

func (s *Postgres) GetSession(ctx context.Context, code string) (*domain.Session, error) {
	const stmt = `
SELECT code, host_conn_id, host_id, state, game_mode, scrambled_order, found_progress, create_time
FROM sessions WHERE code = $1;`

	var (
		ss              domain.Session
		state           string
		order, progress []byte
	)
	err := s.db.QueryRow(ctx, stmt, code).Scan(
		&ss.Code, &ss.HostConnID, &ss.HostID, &state, &ss.GameMode, &order, &progress, &ss.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: code=%s", code))
	}
	if err != nil {
		return nil, unavailable(err)
	}

	ss.State = domain.GameState(state)
	if err := json.Unmarshal(order, &ss.ScrambledOrder); err != nil {
		return nil, fmt.Errorf("unmarshal scrambled order: %w", err)
	}
	if err := json.Unmarshal(progress, &ss.FoundProgress); err != nil {
		return nil, fmt.Errorf("unmarshal found progress: %w", err)
	}

	return &ss, nil
}

func (s *Postgres) UpdateSession(ctx context.Context, ss *domain.Session) error {
	const stmt = `
UPDATE sessions
SET state = $2, game_mode = $3, scrambled_order = $4, found_progress = $5
WHERE code = $1;`

	order, progress, err := marshalTokens(ss)
	if err != nil {
		return err
	}

	ct, err := s.db.Exec(ctx, stmt, ss.Code, string(ss.State), ss.GameMode, order, progress)
	if err != nil {
		return unavailable(err)
	}
	if ct.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: code=%s", ss.Code))
	}

	return nil
}

func (s *Postgres) DeleteSession(ctx context.Context, code string) error {
	const stmt = `DELETE FROM sessions WHERE code = $1;`

	if _, err := s.db.Exec(ctx, stmt, code); err != nil {
		return unavailable(err)
	}

	return nil
}

func (s *Postgres) UpsertEntry(ctx context.Context, code string, e domain.LeaderboardEntry) error {
	const stmt = `
INSERT INTO leaderboard_entries (code, team_id, team_name, section, best_time, seq, submit_time)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (code, team_id)
DO UPDATE SET team_name = $3, section = $4, best_time = $5, submit_time = $7;`

	_, err := s.db.Exec(ctx, stmt,
		code, e.TeamID, e.TeamName, e.Section, e.Time.String(), e.Seq, e.SubmittedAt)
	if err != nil {
		return unavailable(err)
	}

	return nil
}

func (s *Postgres) ListEntries(ctx context.Context, code string) ([]domain.LeaderboardEntry, error) {
	const stmt = `
SELECT team_id, team_name, section, best_time, seq, submit_time
FROM leaderboard_entries
WHERE code = $1
ORDER BY seq;`

	rows, err := s.db.Query(ctx, stmt, code)
	if err != nil {
		return nil, unavailable(err)
	}

	entries, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var (
			e domain.LeaderboardEntry
			t string
		)
		if err := r.Scan(&e.TeamID, &e.TeamName, &e.Section, &t, &e.Seq, &e.SubmittedAt); err != nil {
			return domain.LeaderboardEntry{}, err
		}

		d, err := decimal.NewFromString(t)
		if err != nil {
			return domain.LeaderboardEntry{}, fmt.Errorf("parse time %q: %w", t, err)
		}
		e.Time = d
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (s *Postgres) ClearEntries(ctx context.Context, code string) error {
	const stmt = `DELETE FROM leaderboard_entries WHERE code = $1;`

	if _, err := s.db.Exec(ctx, stmt, code); err != nil {
		return unavailable(err)
	}

	return nil
}

func marshalTokens(ss *domain.Session) (order, progress []byte, err error) {
	order, err = json.Marshal(ss.ScrambledOrder)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal scrambled order: %w", err)
	}

	progress, err = json.Marshal(ss.FoundProgress)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal found progress: %w", err)
	}

	return order, progress, nil
}
