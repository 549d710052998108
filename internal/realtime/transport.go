package realtime

import (
	"context"
	"encoding/json"
)

// Inbound message names.
const (
	MsgCreateEvent = "createEvent"
	MsgJoinEvent   = "joinEvent"
	MsgStartGame   = "startGame"
	MsgRestartGame = "restartGame"
	MsgSubmitTime  = "submitTime"
	MsgEndEvent    = "endEvent"
)

// Outbound message names.
const (
	MsgHostCode          = "hostCode"
	MsgHostCodeError     = "hostCodeError"
	MsgJoinResponse      = "joinResponse"
	MsgPlayerJoined      = "playerJoined"
	MsgLeaderboardUpdate = "leaderboardUpdate"
	MsgGameStateUpdate   = "gameStateUpdate"
	MsgTimerUpdate       = "timerUpdate"
	MsgEventEnded        = "eventEnded"
)

// Envelope is the wire shape of every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Transport delivers messages to connected clients and groups connections
// into rooms. Room identifier = session code. Sends are fire-and-forget:
// delivery failures are the transport's concern, never the caller's.
type Transport interface {
	Subscribe(connID, roomID string)
	Unsubscribe(connID, roomID string)
	SendToConnection(ctx context.Context, connID, event string, data any)
	BroadcastToRoom(ctx context.Context, roomID, event string, data any)
}

// Handler receives inbound transport events.
type Handler interface {
	HandleMessage(ctx context.Context, connID string, e Envelope)
	HandleDisconnect(ctx context.Context, connID string)
}

// Outbound payload shapes.
type (
	HostCode struct {
		Code string `json:"code"`
	}

	HostCodeError struct {
		Message string `json:"message"`
	}

	JoinResponse struct {
		Success         bool   `json:"success"`
		EventCode       string `json:"eventCode,omitempty"`
		GameState       string `json:"gameState,omitempty"`
		CurrentGameMode string `json:"currentGameMode,omitempty"`
		Message         string `json:"message,omitempty"`
	}

	PlayerJoined struct {
		TeamName string `json:"teamName"`
		Section  string `json:"section"`
	}

	LeaderboardRow struct {
		TeamID   string `json:"teamId"`
		TeamName string `json:"teamName"`
		Section  string `json:"section"`
		Time     string `json:"time"`
	}

	LeaderboardUpdate struct {
		Entries []LeaderboardRow `json:"entries"`
	}

	GameStateUpdate struct {
		State          string `json:"state"`
		GameMode       string `json:"gameMode"`
		ScrambledOrder []int  `json:"scrambledOrder"`
	}

	TimerUpdate struct {
		ElapsedMs int64 `json:"elapsedMs"`
	}

	EventEnded struct{}
)
