// Package session owns the live-session lifecycle: code assignment,
// host authority, the waiting/playing state machine and the broadcasts
// that keep every participant in sync.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/egame/internal/code"
	"github.com/victornm/egame/internal/domain"
	"github.com/victornm/egame/internal/errors"
	"github.com/victornm/egame/internal/event"
	"github.com/victornm/egame/internal/leaderboard"
	"github.com/victornm/egame/internal/realtime"
	"github.com/victornm/egame/internal/shuffle"
	"github.com/victornm/egame/internal/store"
	"github.com/victornm/egame/internal/timer"
)

// createAttempts bounds retries when the create-if-absent write loses a
// race for a code the generator believed free.
const createAttempts = 5

type Config struct {
	Store       store.Store
	Transport   realtime.Transport
	Timers      *timer.Scheduler
	Leaderboard *leaderboard.Service
	Codes       *code.Generator
	EventBus    *event.Bus
}

// Registry is the single entry point for inbound intents. It keeps the
// host index and transport room membership consistent with session
// existence, and serializes all work per session code.
type Registry struct {
	store     store.Store
	transport realtime.Transport
	timers    *timer.Scheduler
	lb        *leaderboard.Service
	codes     *code.Generator
	eb        *event.Bus

	mu    sync.Mutex
	hosts map[string]string // host connection -> session code
	locks map[string]*sync.Mutex
}

func NewRegistry(c Config) *Registry {
	return &Registry{
		store:     c.Store,
		transport: c.Transport,
		timers:    c.Timers,
		lb:        c.Leaderboard,
		codes:     c.Codes,
		eb:        c.EventBus,
		hosts:     make(map[string]string),
		locks:     make(map[string]*sync.Mutex),
	}
}

// CreateSession creates a new session owned by hostConnID and returns its
// code. A host connection owns at most one session at a time: an existing
// one is terminated first.
func (r *Registry) CreateSession(ctx context.Context, hostConnID, hostID string) (string, error) {
	r.mu.Lock()
	existing := r.hosts[hostConnID]
	r.mu.Unlock()

	if existing != "" {
		if err := r.EndSession(ctx, existing); err != nil {
			slog.ErrorContext(ctx, "session: end previous session failed",
				"code", existing, "error", err)
		}
	}

	for i := 0; i < createAttempts; i++ {
		c, err := r.codes.Next(ctx)
		if err != nil {
			return "", err
		}

		ss := &domain.Session{
			Code:           c,
			HostConnID:     hostConnID,
			HostID:         hostID,
			State:          domain.StateWaiting,
			GameMode:       shuffle.DefaultMode,
			ScrambledOrder: []int{},
			FoundProgress:  []int{},
			CreatedAt:      time.Now().UTC(),
		}

		created, err := r.store.CreateSession(ctx, ss)
		if err != nil {
			return "", errors.New(errors.CodeUnavailable,
				errors.WithMessagef("create session failed"), errors.WithCause(err))
		}
		if !created {
			// Lost the race for this code, draw another.
			continue
		}

		r.mu.Lock()
		r.hosts[hostConnID] = c
		r.mu.Unlock()

		r.transport.Subscribe(hostConnID, c)

		r.eb.Publish(ctx, domain.EventSessionCreated{Session: *ss})

		slog.InfoContext(ctx, "session: created", "code", c, "host", hostID)
		return c, nil
	}

	return "", errors.New(errors.CodeResourceExhausted,
		errors.WithMessagef("no free session code after %d create attempts", createAttempts))
}

type JoinRequest struct {
	Code     string
	TeamID   string
	TeamName string
	Section  string
}

type JoinResult struct {
	Code     string
	State    domain.GameState
	GameMode string
	Entries  []domain.LeaderboardEntry
}

// JoinSession subscribes connID to the session's room and returns the
// current state. Joining is refused while a game is in progress. The host
// is notified of the new participant; nobody else is.
func (r *Registry) JoinSession(ctx context.Context, connID string, req JoinRequest) (*JoinResult, error) {
	if !validCode(req.Code) {
		return nil, notFound(req.Code)
	}

	unlock := r.lockSession(req.Code)
	defer unlock()

	ss, err := r.store.GetSession(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	if ss.State == domain.StatePlaying {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("game already in progress"))
	}

	r.transport.Subscribe(connID, req.Code)

	// A failed leaderboard fetch degrades to an empty snapshot rather
	// than aborting the join.
	entries, err := r.lb.List(ctx, req.Code)
	if err != nil {
		slog.ErrorContext(ctx, "session: list leaderboard on join failed",
			"code", req.Code, "error", err)
		entries = nil
	}

	if ss.HostConnID != "" {
		r.transport.SendToConnection(ctx, ss.HostConnID, realtime.MsgPlayerJoined, realtime.PlayerJoined{
			TeamName: req.TeamName,
			Section:  req.Section,
		})
	}

	return &JoinResult{
		Code:     ss.Code,
		State:    ss.State,
		GameMode: ss.GameMode,
		Entries:  entries,
	}, nil
}

// HandleDisconnect terminates the session owned by connID, if any.
// Participant disconnects need no registry action: participants are
// tracked by team identity in the leaderboard, not by connection.
func (r *Registry) HandleDisconnect(ctx context.Context, connID string) {
	r.mu.Lock()
	c := r.hosts[connID]
	r.mu.Unlock()

	if c == "" {
		return
	}

	if err := r.EndSession(ctx, c); err != nil {
		slog.ErrorContext(ctx, "session: end on host disconnect failed",
			"code", c, "error", err)
	}
}

// TerminateAll ends every active session; used on shutdown so no room is
// left believing its session is live.
func (r *Registry) TerminateAll(ctx context.Context) error {
	r.mu.Lock()
	active := make([]string, 0, len(r.hosts))
	for _, c := range r.hosts {
		active = append(active, c)
	}
	r.mu.Unlock()

	var eg errgroup.Group
	eg.SetLimit(8)
	for _, c := range active {
		c := c
		eg.Go(func() error {
			return r.EndSession(ctx, c)
		})
	}

	return eg.Wait()
}

// lockSession returns the unlock func of the per-session mutual exclusion
// scope. Codes are validated to 4 digits before locking, so the lock map
// is bounded by the code space and entries are never reclaimed.
func (r *Registry) lockSession(code string) func() {
	r.mu.Lock()
	m, ok := r.locks[code]
	if !ok {
		m = new(sync.Mutex)
		r.locks[code] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func validCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func notFound(code string) error {
	return errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: code=%s", code))
}
