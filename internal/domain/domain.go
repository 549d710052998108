package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameState is the lifecycle state of a session. A terminated session is
// deleted rather than kept around in a terminal state.
type GameState string

const (
	StateWaiting GameState = "waiting"
	StatePlaying GameState = "playing"
)

// Session represents one hosted game round, identified by a short code.
type Session struct {
	// Code is a 4-digit numeric string, unique among active sessions and
	// immutable for the session's lifetime.
	Code string
	// HostConnID identifies the connection that created the session and is
	// the sole authority for its mutating operations.
	HostConnID string
	HostID     string
	State      GameState
	GameMode   string
	// ScrambledOrder is regenerated on every transition into Playing.
	ScrambledOrder []int
	// FoundProgress tracks mode-specific progress (e.g. found pairs),
	// reset on every transition into Waiting.
	FoundProgress []int
	CreatedAt     time.Time
}

// LeaderboardEntry is a participant's best recorded completion time within
// a session. Keyed by TeamID, not by connection, so a participant that
// reconnects keeps their entry.
type LeaderboardEntry struct {
	TeamID   string
	TeamName string
	Section  string
	// Time is the completion time, lower is better. Decimal so the
	// best-time comparison is exact.
	Time decimal.Decimal
	// Seq is the insertion order within the session, the deterministic
	// tie break when ranking.
	Seq         int64
	SubmittedAt time.Time
}

// Leaderboard is the ranked list of entries for one session, sorted by
// time ascending with ties broken by submission order.
type Leaderboard struct {
	Code    string
	Entries []LeaderboardEntry
}
