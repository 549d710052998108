package leaderboard

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/egame/internal/domain"
	"github.com/victornm/egame/internal/event"
	"github.com/victornm/egame/internal/store"
)

type Config struct {
	Store    store.Store
	EventBus *event.Bus
}

// Service maintains the ranked, deduplicated-by-team set of time
// submissions per session.
type Service struct {
	store store.Store
	eb    *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
		eb:    c.EventBus,
	}
}

type SubmitRequest struct {
	Code        string
	TeamID      string
	TeamName    string
	Section     string
	Time        decimal.Decimal
	SubmittedAt time.Time
}

// Submit records a team's time and returns the full ranked leaderboard.
// A team's stored time only ever improves: a submission slower than the
// existing entry leaves the entry untouched.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) ([]domain.LeaderboardEntry, error) {
	entries, err := s.store.ListEntries(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	entries, changed := Upsert(entries, domain.LeaderboardEntry{
		TeamID:      req.TeamID,
		TeamName:    req.TeamName,
		Section:     req.Section,
		Time:        req.Time,
		SubmittedAt: req.SubmittedAt,
	})

	if changed != nil {
		if err := s.store.UpsertEntry(ctx, req.Code, *changed); err != nil {
			return nil, err
		}
	}

	ranked := Rank(entries)

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
			Leaderboard: domain.Leaderboard{Code: req.Code, Entries: ranked},
		})
	}

	return ranked, nil
}

// List returns the ranked leaderboard for a session.
func (s *Service) List(ctx context.Context, code string) ([]domain.LeaderboardEntry, error) {
	entries, err := s.store.ListEntries(ctx, code)
	if err != nil {
		return nil, err
	}

	return Rank(entries), nil
}

// Clear removes all entries for the session; used by restart/end paths.
func (s *Service) Clear(ctx context.Context, code string) error {
	return s.store.ClearEntries(ctx, code)
}

// Upsert applies the best-time-wins policy: a new team is inserted with
// the next insertion sequence, an existing team's entry is replaced only
// if the new time is strictly lower. Returns the entry that must be
// persisted, or nil when nothing changed.
func Upsert(entries []domain.LeaderboardEntry, e domain.LeaderboardEntry) ([]domain.LeaderboardEntry, *domain.LeaderboardEntry) {
	for i := range entries {
		if entries[i].TeamID != e.TeamID {
			continue
		}

		if !e.Time.LessThan(entries[i].Time) {
			return entries, nil
		}

		e.Seq = entries[i].Seq
		entries[i] = e
		return entries, &entries[i]
	}

	var maxSeq int64
	for i := range entries {
		if entries[i].Seq > maxSeq {
			maxSeq = entries[i].Seq
		}
	}
	e.Seq = maxSeq + 1

	entries = append(entries, e)
	return entries, &entries[len(entries)-1]
}

// Rank sorts ascending by time, ties broken by insertion order so the
// ordering is deterministic for identical input sets.
func Rank(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	ranked := append([]domain.LeaderboardEntry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].Time.Cmp(ranked[j].Time); c != 0 {
			return c < 0
		}
		return ranked[i].Seq < ranked[j].Seq
	})

	return ranked
}
