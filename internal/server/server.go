package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/egame/internal/api"
	"github.com/victornm/egame/internal/code"
	"github.com/victornm/egame/internal/event"
	"github.com/victornm/egame/internal/leaderboard"
	"github.com/victornm/egame/internal/realtime"
	"github.com/victornm/egame/internal/session"
	"github.com/victornm/egame/internal/store"
	"github.com/victornm/egame/internal/telemetry"
	"github.com/victornm/egame/internal/timer"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Store struct {
		// Driver selects the persistence backend: "redis" (default) or
		// "postgres".
		Driver string
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Game struct {
		// TickIntervalMs is the timer broadcast interval; 0 means 100ms.
		TickIntervalMs int
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	store store.Store

	service struct {
		timers      *timer.Scheduler
		leaderboard *leaderboard.Service
		registry    *session.Registry
	}

	hub  *realtime.Hub
	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	telemetry.RegisterMetrics(prometheus.DefaultRegisterer, s.eb)

	if err := s.initStore(); err != nil {
		return nil, fmt.Errorf("server: init store: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initStore() error {
	switch s.c.Store.Driver {
	case "", "redis":
		if err := s.initRedis(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		s.store = store.NewRedis(s.infra.redis, s.c.Redis.Prefix)

	case "postgres":
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.store = store.NewPostgres(s.infra.postgres)

	default:
		return fmt.Errorf("unknown store driver %q", s.c.Store.Driver)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() {
	s.hub = realtime.NewHub()

	s.service.timers = timer.NewScheduler(timer.Config{
		Transport: s.hub,
		Interval:  time.Duration(s.c.Game.TickIntervalMs) * time.Millisecond,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		Store:    s.store,
		EventBus: s.eb,
	})

	s.service.registry = session.NewRegistry(session.Config{
		Store:       s.store,
		Transport:   s.hub,
		Timers:      s.service.timers,
		Leaderboard: s.service.leaderboard,
		Codes:       code.NewGenerator(code.Config{Store: s.store}),
		EventBus:    s.eb,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	a := api.New(api.Config{
		Registry:    s.service.registry,
		Transport:   s.hub,
		Leaderboard: s.service.leaderboard,
		Store:       s.store,
	})
	a.RegisterRoutes(e)

	s.hub.SetHandler(a)

	e.GET("/ws", func(c *gin.Context) {
		s.hub.Serve(c.Writer, c.Request)
	})

	e.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// End every live session so no client is left in a room the server
	// has forgotten about.
	if err := s.service.registry.TerminateAll(ctx); err != nil {
		slog.ErrorContext(ctx, "server: terminate sessions failed", "error", err)
	}
	s.service.timers.CancelAll()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
