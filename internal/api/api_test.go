package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/egame/internal/api"
	"github.com/victornm/egame/internal/code"
	"github.com/victornm/egame/internal/event"
	"github.com/victornm/egame/internal/leaderboard"
	"github.com/victornm/egame/internal/realtime"
	"github.com/victornm/egame/internal/session"
	"github.com/victornm/egame/internal/store"
	"github.com/victornm/egame/internal/timer"
)

func TestAPI_CreateEvent(t *testing.T) {
	t.Parallel()

	f := makeAPI(t)
	ctx := context.Background()

	f.a.HandleMessage(ctx, "host-conn", envelope(t, realtime.MsgCreateEvent, map[string]any{
		"hostId": "host-1",
	}))

	sent := f.tr.sentTo("host-conn")
	require.Len(t, sent, 1)
	require.Equal(t, realtime.MsgHostCode, sent[0].event)
	require.Len(t, sent[0].data.(realtime.HostCode).Code, 4)
}

func TestAPI_CreateEvent_MissingHostIDIsDropped(t *testing.T) {
	t.Parallel()

	f := makeAPI(t)

	f.a.HandleMessage(context.Background(), "host-conn", envelope(t, realtime.MsgCreateEvent, map[string]any{}))

	require.Empty(t, f.tr.sentTo("host-conn"), "malformed messages get no response")
}

func TestAPI_JoinEvent(t *testing.T) {
	t.Parallel()

	f := makeAPI(t)
	ctx := context.Background()

	c := createSession(t, f, "host-conn")

	f.a.HandleMessage(ctx, "player-conn", envelope(t, realtime.MsgJoinEvent, map[string]any{
		"eventCode": c,
		"teamId":    "t1",
		"teamName":  "Foo",
		"section":   "A",
	}))

	sent := f.tr.sentTo("player-conn")
	require.Len(t, sent, 1)
	require.Equal(t, realtime.MsgJoinResponse, sent[0].event)
	require.Equal(t, realtime.JoinResponse{
		Success:         true,
		EventCode:       c,
		GameState:       "waiting",
		CurrentGameMode: "number-scramble",
	}, sent[0].data)
}

func TestAPI_JoinEvent_UnknownCode(t *testing.T) {
	t.Parallel()

	f := makeAPI(t)

	f.a.HandleMessage(context.Background(), "player-conn", envelope(t, realtime.MsgJoinEvent, map[string]any{
		"eventCode": "0000",
		"teamId":    "t1",
		"teamName":  "Foo",
	}))

	sent := f.tr.sentTo("player-conn")
	require.Len(t, sent, 1)
	resp := sent[0].data.(realtime.JoinResponse)
	require.False(t, resp.Success)
	require.Equal(t, "event not found", resp.Message)
}

func TestAPI_SubmitTime_InvalidTimeIsDropped(t *testing.T) {
	t.Parallel()

	f := makeAPI(t)
	ctx := context.Background()

	c := createSession(t, f, "host-conn")
	f.tr.reset()

	f.a.HandleMessage(ctx, "player-conn", envelope(t, realtime.MsgSubmitTime, map[string]any{
		"eventCode": c,
		"teamId":    "t1",
		"teamName":  "Foo",
		"time":      -1,
	}))

	require.Empty(t, f.tr.broadcastsTo(c), "non-positive times are dropped")
}

func TestAPI_SubmitTime_Broadcasts(t *testing.T) {
	t.Parallel()

	f := makeAPI(t)
	ctx := context.Background()

	c := createSession(t, f, "host-conn")
	f.tr.reset()

	f.a.HandleMessage(ctx, "player-conn", envelope(t, realtime.MsgSubmitTime, map[string]any{
		"eventCode": c,
		"teamId":    "t1",
		"teamName":  "Foo",
		"section":   "A",
		"time":      12.5,
	}))

	msgs := f.tr.broadcastsTo(c)
	require.Len(t, msgs, 1)
	require.Equal(t, realtime.MsgLeaderboardUpdate, msgs[0].event)
	require.Equal(t, []realtime.LeaderboardRow{
		{TeamID: "t1", TeamName: "Foo", Section: "A", Time: "12.5"},
	}, msgs[0].data.(realtime.LeaderboardUpdate).Entries)
}

func TestAPI_REST_GetLeaderboard(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)

	f := makeAPI(t)
	ctx := context.Background()

	c := createSession(t, f, "host-conn")
	f.a.HandleMessage(ctx, "player-conn", envelope(t, realtime.MsgSubmitTime, map[string]any{
		"eventCode": c,
		"teamId":    "t1",
		"teamName":  "Foo",
		"time":      12.5,
	}))

	e := gin.New()
	f.a.RegisterRoutes(e)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+c+"/leaderboard", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"code":"`+c+`","entries":[{"teamId":"t1","teamName":"Foo","section":"","time":"12.5"}]}`, w.Body.String())

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/0000", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

// --- fixtures ---

type apiFixture struct {
	a  *api.API
	tr *fakeTransport
}

func makeAPI(t *testing.T) *apiFixture {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	st := store.NewRedis(rc, "test")
	tr := &fakeTransport{}
	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	lb := leaderboard.NewService(leaderboard.Config{Store: st, EventBus: eb})

	reg := session.NewRegistry(session.Config{
		Store:       st,
		Transport:   tr,
		Timers:      timer.NewScheduler(timer.Config{Transport: tr, Clock: clockwork.NewFakeClock()}),
		Leaderboard: lb,
		Codes:       code.NewGenerator(code.Config{Store: st}),
		EventBus:    eb,
	})

	return &apiFixture{
		a: api.New(api.Config{
			Registry:    reg,
			Transport:   tr,
			Leaderboard: lb,
			Store:       st,
		}),
		tr: tr,
	}
}

func createSession(t *testing.T, f *apiFixture, hostConn string) string {
	t.Helper()

	f.a.HandleMessage(context.Background(), hostConn, envelope(t, realtime.MsgCreateEvent, map[string]any{
		"hostId": "host-1",
	}))

	sent := f.tr.sentTo(hostConn)
	require.NotEmpty(t, sent)
	hc, ok := sent[len(sent)-1].data.(realtime.HostCode)
	require.True(t, ok, "expected a hostCode response, got %v", sent[len(sent)-1])
	return hc.Code
}

func envelope(t *testing.T, event string, data any) realtime.Envelope {
	t.Helper()

	b, err := json.Marshal(data)
	require.NoError(t, err)
	return realtime.Envelope{Event: event, Data: b}
}

type sentMessage struct {
	event string
	data  any
}

type fakeTransport struct {
	mu     sync.Mutex
	byConn map[string][]sentMessage
	byRoom map[string][]sentMessage
}

func (f *fakeTransport) Subscribe(string, string)   {}
func (f *fakeTransport) Unsubscribe(string, string) {}

func (f *fakeTransport) SendToConnection(_ context.Context, connID, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byConn == nil {
		f.byConn = make(map[string][]sentMessage)
	}
	f.byConn[connID] = append(f.byConn[connID], sentMessage{event: event, data: data})
}

func (f *fakeTransport) BroadcastToRoom(_ context.Context, roomID, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byRoom == nil {
		f.byRoom = make(map[string][]sentMessage)
	}
	f.byRoom[roomID] = append(f.byRoom[roomID], sentMessage{event: event, data: data})
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byConn = nil
	f.byRoom = nil
}

func (f *fakeTransport) sentTo(connID string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.byConn[connID]...)
}

func (f *fakeTransport) broadcastsTo(roomID string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.byRoom[roomID]...)
}
