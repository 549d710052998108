// Package api translates between the transport's wire messages and the
// session registry's operations.
package api

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/victornm/egame/internal/errors"
	"github.com/victornm/egame/internal/leaderboard"
	"github.com/victornm/egame/internal/realtime"
	"github.com/victornm/egame/internal/session"
	"github.com/victornm/egame/internal/store"
)

type Config struct {
	Registry    *session.Registry
	Transport   realtime.Transport
	Leaderboard *leaderboard.Service
	Store       store.Store
}

type API struct {
	reg       *session.Registry
	transport realtime.Transport
	lb        *leaderboard.Service
	store     store.Store
}

func New(c Config) *API {
	return &API{
		reg:       c.Registry,
		transport: c.Transport,
		lb:        c.Leaderboard,
		store:     c.Store,
	}
}

// Inbound payload shapes.
type (
	createEventRequest struct {
		HostID string `json:"hostId"`
	}

	joinEventRequest struct {
		EventCode string `json:"eventCode"`
		TeamID    string `json:"teamId"`
		TeamName  string `json:"teamName"`
		Section   string `json:"section"`
	}

	gameRequest struct {
		EventCode string `json:"eventCode"`
		GameMode  string `json:"gameMode"`
	}

	submitTimeRequest struct {
		EventCode string          `json:"eventCode"`
		TeamID    string          `json:"teamId"`
		TeamName  string          `json:"teamName"`
		Section   string          `json:"section"`
		Time      decimal.Decimal `json:"time"`
	}

	endEventRequest struct {
		EventCode string `json:"eventCode"`
	}
)

// HandleMessage dispatches one inbound intent. Messages with an unknown
// name or missing required fields are dropped without a response.
func (a *API) HandleMessage(ctx context.Context, connID string, e realtime.Envelope) {
	switch e.Event {
	case realtime.MsgCreateEvent:
		a.createEvent(ctx, connID, e.Data)
	case realtime.MsgJoinEvent:
		a.joinEvent(ctx, connID, e.Data)
	case realtime.MsgStartGame:
		a.startGame(ctx, connID, e.Data)
	case realtime.MsgRestartGame:
		a.restartGame(ctx, connID, e.Data)
	case realtime.MsgSubmitTime:
		a.submitTime(ctx, connID, e.Data)
	case realtime.MsgEndEvent:
		a.endEvent(ctx, connID, e.Data)
	default:
		slog.DebugContext(ctx, "api: dropping unknown message", "event", e.Event, "conn", connID)
	}
}

// HandleDisconnect implements realtime.Handler.
func (a *API) HandleDisconnect(ctx context.Context, connID string) {
	a.reg.HandleDisconnect(ctx, connID)
}

func (a *API) createEvent(ctx context.Context, connID string, data json.RawMessage) {
	var req createEventRequest
	if !decode(ctx, data, &req) || req.HostID == "" {
		return
	}

	c, err := a.reg.CreateSession(ctx, connID, req.HostID)
	if err != nil {
		slog.ErrorContext(ctx, "api: create event failed", "host", req.HostID, "error", err)
		a.transport.SendToConnection(ctx, connID, realtime.MsgHostCodeError, realtime.HostCodeError{
			Message: "could not create event, please try again",
		})
		return
	}

	a.transport.SendToConnection(ctx, connID, realtime.MsgHostCode, realtime.HostCode{Code: c})
}

func (a *API) joinEvent(ctx context.Context, connID string, data json.RawMessage) {
	var req joinEventRequest
	if !decode(ctx, data, &req) || req.EventCode == "" || req.TeamID == "" {
		return
	}

	res, err := a.reg.JoinSession(ctx, connID, session.JoinRequest{
		Code:     req.EventCode,
		TeamID:   req.TeamID,
		TeamName: req.TeamName,
		Section:  req.Section,
	})
	if err != nil {
		a.transport.SendToConnection(ctx, connID, realtime.MsgJoinResponse, realtime.JoinResponse{
			Success: false,
			Message: joinFailureMessage(err),
		})
		return
	}

	a.transport.SendToConnection(ctx, connID, realtime.MsgJoinResponse, realtime.JoinResponse{
		Success:         true,
		EventCode:       res.Code,
		GameState:       string(res.State),
		CurrentGameMode: res.GameMode,
	})

	// New joiners get the current standings without waiting for the next
	// submission to trigger a room-wide update.
	if len(res.Entries) > 0 {
		a.transport.SendToConnection(ctx, connID, realtime.MsgLeaderboardUpdate, realtime.LeaderboardUpdate{
			Entries: session.LeaderboardRows(res.Entries),
		})
	}
}

func joinFailureMessage(err error) string {
	switch errors.Convert(err).Code {
	case errors.CodeNotFound:
		return "event not found"
	case errors.CodeFailedPrecondition:
		return "game already in progress"
	default:
		return "could not join event, please try again"
	}
}

func (a *API) startGame(ctx context.Context, connID string, data json.RawMessage) {
	var req gameRequest
	if !decode(ctx, data, &req) || req.EventCode == "" {
		return
	}

	if err := a.reg.StartGame(ctx, req.EventCode, connID, req.GameMode); err != nil {
		slog.ErrorContext(ctx, "api: start game failed", "code", req.EventCode, "error", err)
	}
}

func (a *API) restartGame(ctx context.Context, connID string, data json.RawMessage) {
	var req gameRequest
	if !decode(ctx, data, &req) || req.EventCode == "" {
		return
	}

	if err := a.reg.RestartGame(ctx, req.EventCode, connID, req.GameMode); err != nil {
		slog.ErrorContext(ctx, "api: restart game failed", "code", req.EventCode, "error", err)
	}
}

func (a *API) submitTime(ctx context.Context, connID string, data json.RawMessage) {
	var req submitTimeRequest
	if !decode(ctx, data, &req) || req.EventCode == "" || req.TeamID == "" || !req.Time.IsPositive() {
		return
	}

	if err := a.reg.SubmitTime(ctx, session.SubmitRequest{
		Code:     req.EventCode,
		TeamID:   req.TeamID,
		TeamName: req.TeamName,
		Section:  req.Section,
		Time:     req.Time,
	}); err != nil {
		slog.ErrorContext(ctx, "api: submit time failed", "code", req.EventCode, "error", err)
	}
}

func (a *API) endEvent(ctx context.Context, connID string, data json.RawMessage) {
	var req endEventRequest
	if !decode(ctx, data, &req) || req.EventCode == "" {
		return
	}

	if err := a.reg.EndSessionBy(ctx, req.EventCode, connID); err != nil {
		slog.ErrorContext(ctx, "api: end event failed", "code", req.EventCode, "error", err)
	}
}

func decode(ctx context.Context, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		slog.DebugContext(ctx, "api: dropping malformed message", "error", err)
		return false
	}

	return true
}
