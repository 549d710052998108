package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/egame/internal/domain"
	"github.com/victornm/egame/internal/errors"
	"github.com/victornm/egame/internal/leaderboard"
	"github.com/victornm/egame/internal/realtime"
	"github.com/victornm/egame/internal/shuffle"
)

// StartGame moves the session into Playing: regenerates the scrambled
// order for the requested mode, resets progress, starts the timer and
// broadcasts the new game state. Only the host may start; a request from
// any other connection is a silent no-op.
func (r *Registry) StartGame(ctx context.Context, c, requesterConnID, gameMode string) error {
	if !validCode(c) {
		return notFound(c)
	}

	unlock := r.lockSession(c)
	defer unlock()

	ss, err := r.store.GetSession(ctx, c)
	if err != nil {
		return err
	}

	if ss.HostConnID != requesterConnID {
		slog.DebugContext(ctx, "session: ignoring start from non-host", "code", c, "conn", requesterConnID)
		return nil
	}

	if gameMode == "" {
		gameMode = ss.GameMode
	}

	ss.State = domain.StatePlaying
	ss.GameMode = gameMode
	ss.ScrambledOrder = shuffle.Generate(gameMode)
	ss.FoundProgress = []int{}

	if err := r.store.UpdateSession(ctx, ss); err != nil {
		return err
	}

	// Every client observes the same message shape regardless of mode.
	r.transport.BroadcastToRoom(ctx, c, realtime.MsgGameStateUpdate, realtime.GameStateUpdate{
		State:          string(ss.State),
		GameMode:       ss.GameMode,
		ScrambledOrder: ss.ScrambledOrder,
	})
	r.transport.BroadcastToRoom(ctx, c, realtime.MsgTimerUpdate, realtime.TimerUpdate{ElapsedMs: 0})

	r.timers.Start(c)

	slog.InfoContext(ctx, "session: game started", "code", c, "mode", gameMode)
	return nil
}

// RestartGame returns the session to Waiting: cancels the timer, clears
// the leaderboard, regenerates the scrambled order for the (possibly new)
// mode and broadcasts the reset in a fixed order so clients converge.
func (r *Registry) RestartGame(ctx context.Context, c, requesterConnID, gameMode string) error {
	if !validCode(c) {
		return notFound(c)
	}

	unlock := r.lockSession(c)
	defer unlock()

	ss, err := r.store.GetSession(ctx, c)
	if err != nil {
		return err
	}

	if ss.HostConnID != requesterConnID {
		slog.DebugContext(ctx, "session: ignoring restart from non-host", "code", c, "conn", requesterConnID)
		return nil
	}

	r.timers.Cancel(c)

	if err := r.lb.Clear(ctx, c); err != nil {
		return err
	}

	if gameMode == "" {
		gameMode = ss.GameMode
	}

	ss.State = domain.StateWaiting
	ss.GameMode = gameMode
	ss.ScrambledOrder = shuffle.Generate(gameMode)
	ss.FoundProgress = []int{}

	if err := r.store.UpdateSession(ctx, ss); err != nil {
		return err
	}

	r.transport.BroadcastToRoom(ctx, c, realtime.MsgTimerUpdate, realtime.TimerUpdate{ElapsedMs: 0})
	r.transport.BroadcastToRoom(ctx, c, realtime.MsgLeaderboardUpdate, realtime.LeaderboardUpdate{
		Entries: []realtime.LeaderboardRow{},
	})
	r.transport.BroadcastToRoom(ctx, c, realtime.MsgGameStateUpdate, realtime.GameStateUpdate{
		State:          string(ss.State),
		GameMode:       ss.GameMode,
		ScrambledOrder: ss.ScrambledOrder,
	})

	slog.InfoContext(ctx, "session: game restarted", "code", c, "mode", gameMode)
	return nil
}

// EndSession terminates a session. Idempotent: ending an already-gone
// session is a no-op. Once the room has been told the event ended,
// persistence failures are logged and swallowed so clients and server
// never disagree about liveness.
func (r *Registry) EndSession(ctx context.Context, c string) error {
	if !validCode(c) {
		return nil
	}

	unlock := r.lockSession(c)
	defer unlock()

	ss, err := r.store.GetSession(ctx, c)
	if errors.Is(err, errors.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return r.terminate(ctx, ss)
}

// EndSessionBy is EndSession gated on host authority, for the inbound
// endEvent intent. Internal termination paths (disconnect, re-create,
// shutdown) use EndSession directly.
func (r *Registry) EndSessionBy(ctx context.Context, c, requesterConnID string) error {
	if !validCode(c) {
		return nil
	}

	unlock := r.lockSession(c)
	defer unlock()

	ss, err := r.store.GetSession(ctx, c)
	if errors.Is(err, errors.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if ss.HostConnID != requesterConnID {
		slog.DebugContext(ctx, "session: ignoring end from non-host", "code", c, "conn", requesterConnID)
		return nil
	}

	return r.terminate(ctx, ss)
}

// terminate runs the actual teardown. Caller holds the session lock.
func (r *Registry) terminate(ctx context.Context, ss *domain.Session) error {
	c := ss.Code

	r.timers.Cancel(c)

	r.transport.BroadcastToRoom(ctx, c, realtime.MsgTimerUpdate, realtime.TimerUpdate{ElapsedMs: 0})
	r.transport.BroadcastToRoom(ctx, c, realtime.MsgEventEnded, realtime.EventEnded{})

	if err := r.lb.Clear(ctx, c); err != nil {
		slog.ErrorContext(ctx, "session: clear leaderboard on end failed", "code", c, "error", err)
	}

	r.mu.Lock()
	delete(r.hosts, ss.HostConnID)
	r.mu.Unlock()

	if err := r.store.DeleteSession(ctx, c); err != nil {
		slog.ErrorContext(ctx, "session: delete on end failed", "code", c, "error", err)
	}

	r.eb.Publish(ctx, domain.EventSessionEnded{Session: *ss})

	slog.InfoContext(ctx, "session: ended", "code", c)
	return nil
}

type SubmitRequest struct {
	Code     string
	TeamID   string
	TeamName string
	Section  string
	Time     decimal.Decimal
}

// SubmitTime records a participant's completion time and broadcasts the
// recomputed ranked leaderboard to the room. Any participant may submit
// for themselves; submissions for unknown sessions are silently ignored.
func (r *Registry) SubmitTime(ctx context.Context, req SubmitRequest) error {
	if !validCode(req.Code) {
		return nil
	}

	unlock := r.lockSession(req.Code)
	defer unlock()

	_, err := r.store.GetSession(ctx, req.Code)
	if errors.Is(err, errors.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ranked, err := r.lb.Submit(ctx, leaderboard.SubmitRequest{
		Code:        req.Code,
		TeamID:      req.TeamID,
		TeamName:    req.TeamName,
		Section:     req.Section,
		Time:        req.Time,
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	r.transport.BroadcastToRoom(ctx, req.Code, realtime.MsgLeaderboardUpdate, realtime.LeaderboardUpdate{
		Entries: LeaderboardRows(ranked),
	})

	return nil
}

// LeaderboardRows converts ranked entries to their wire shape. Times are
// rendered as decimal strings, never floats.
func LeaderboardRows(entries []domain.LeaderboardEntry) []realtime.LeaderboardRow {
	rows := make([]realtime.LeaderboardRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, realtime.LeaderboardRow{
			TeamID:   e.TeamID,
			TeamName: e.TeamName,
			Section:  e.Section,
			Time:     e.Time.String(),
		})
	}

	return rows
}
