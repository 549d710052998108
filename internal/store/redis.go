package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/egame/internal/domain"
	"github.com/victornm/egame/internal/errors"
)

// Redis stores sessions as JSON values (SETNX for create-if-absent) and
// leaderboard entries as one hash per session keyed by team ID.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (s *Redis) CreateSession(ctx context.Context, ss *domain.Session) (bool, error) {
	b, err := json.Marshal(ss)
	if err != nil {
		return false, fmt.Errorf("marshal session: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.sessionKey(ss.Code), b, 0).Result()
	if err != nil {
		return false, unavailable(err)
	}

	return ok, nil
}

func (s *Redis) GetSession(ctx context.Context, code string) (*domain.Session, error) {
	b, err := s.rdb.Get(ctx, s.sessionKey(code)).Bytes()
	if err == redis.Nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: code=%s", code))
	}
	if err != nil {
		return nil, unavailable(err)
	}

	var ss domain.Session
	if err := json.Unmarshal(b, &ss); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &ss, nil
}

func (s *Redis) UpdateSession(ctx context.Context, ss *domain.Session) error {
	b, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	// XX so a session deleted by a concurrent termination stays deleted.
	ok, err := s.rdb.SetXX(ctx, s.sessionKey(ss.Code), b, 0).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: code=%s", ss.Code))
	}

	return nil
}

func (s *Redis) DeleteSession(ctx context.Context, code string) error {
	if err := s.rdb.Del(ctx, s.sessionKey(code)).Err(); err != nil {
		return unavailable(err)
	}

	return nil
}

func (s *Redis) UpsertEntry(ctx context.Context, code string, e domain.LeaderboardEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := s.rdb.HSet(ctx, s.entriesKey(code), e.TeamID, b).Err(); err != nil {
		return unavailable(err)
	}

	return nil
}

func (s *Redis) ListEntries(ctx context.Context, code string) ([]domain.LeaderboardEntry, error) {
	m, err := s.rdb.HGetAll(ctx, s.entriesKey(code)).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(m))
	for _, v := range m {
		var e domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

func (s *Redis) ClearEntries(ctx context.Context, code string) error {
	if err := s.rdb.Del(ctx, s.entriesKey(code)).Err(); err != nil {
		return unavailable(err)
	}

	return nil
}

func (s *Redis) sessionKey(code string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, code)
}

func (s *Redis) entriesKey(code string) string {
	return fmt.Sprintf("%s:entries:%s", s.prefix, code)
}

func unavailable(err error) error {
	return errors.New(errors.CodeUnavailable, errors.WithCause(err))
}
