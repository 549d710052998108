package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/egame/internal/errors"
	"github.com/victornm/egame/internal/session"
)

// RegisterRoutes mounts the read-only REST surface. Mutations go through
// the realtime transport only, so these handlers never touch the
// per-session write path.
func (a *API) RegisterRoutes(e *gin.Engine) {
	e.GET("/api/sessions/:code", a.getSession)
	e.GET("/api/sessions/:code/leaderboard", a.getLeaderboard)
}

type sessionView struct {
	Code           string    `json:"code"`
	State          string    `json:"state"`
	GameMode       string    `json:"gameMode"`
	ScrambledOrder []int     `json:"scrambledOrder"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (a *API) getSession(c *gin.Context) {
	ss, err := a.store.GetSession(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionView{
		Code:           ss.Code,
		State:          string(ss.State),
		GameMode:       ss.GameMode,
		ScrambledOrder: ss.ScrambledOrder,
		CreatedAt:      ss.CreatedAt,
	})
}

func (a *API) getLeaderboard(c *gin.Context) {
	entries, err := a.lb.List(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    c.Param("code"),
		"entries": session.LeaderboardRows(entries),
	})
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
