package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/victornm/riffle/internal/domain"
	"github.com/victornm/riffle/internal/errors"
	"github.com/victornm/riffle/internal/event"
	"github.com/victornm/riffle/internal/invite"
	"github.com/victornm/riffle/internal/leaderboard"
	"github.com/victornm/riffle/internal/season"
	"github.com/victornm/riffle/internal/submission"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Season       SeasonService
	Submission   SubmissionService
	Invite       InviteService
	Leaderboard  LeaderboardService
	Redis        Redis
	PubsubPrefix string
	AuthSecret   string
	RedeemLimit  rate.Limit
	RedeemBurst  int
}

type SeasonService interface {
	CreateSeason(ctx context.Context, req season.CreateSeasonRequest) (*domain.Season, error)
	ActivateSeason(ctx context.Context, req season.ActivateSeasonRequest) error
	SetCurrentWeek(ctx context.Context, req season.SetCurrentWeekRequest) error
	GetSeason(ctx context.Context, req season.GetSeasonRequest) (*domain.Season, error)
	GetActiveSeason(ctx context.Context) (*domain.Season, error)
	JoinSeason(ctx context.Context, req season.JoinSeasonRequest) (*domain.Membership, error)
}

type SubmissionService interface {
	Submit(ctx context.Context, req submission.SubmitRequest) (*domain.Submission, error)
	ListWeekSubmissions(ctx context.Context, req submission.ListWeekSubmissionsRequest) ([]domain.Submission, error)
}

type InviteService interface {
	CreateCode(ctx context.Context, req invite.CreateCodeRequest) (*domain.InviteCode, error)
	Redeem(ctx context.Context, req invite.RedeemRequest) (*domain.InviteCode, error)
}

type LeaderboardService interface {
	GetSeasonStats(ctx context.Context, req leaderboard.GetSeasonStatsRequest) (*domain.SeasonStats, error)
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ss  SeasonService
	sub SubmissionService
	is  InviteService
	ls  LeaderboardService

	redis  Redis
	prefix string
	secret []byte
}

func New(c Config) *API {
	a := &API{
		ss:     c.Season,
		sub:    c.Submission,
		is:     c.Invite,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
		secret: []byte(c.AuthSecret),
	}

	// HTTP APIs
	g := c.Router.Group("/api", a.authenticate)
	admin := g.Group("", requireAdmin)

	admin.POST("/invites", a.createInvite)
	g.POST("/invites/redeem", rateLimit(NewIPRateLimiter(c.RedeemLimit, c.RedeemBurst)), a.redeemInvite)

	admin.POST("/seasons", a.createSeason)
	g.GET("/seasons/active", a.getActiveSeason)
	g.GET("/seasons/:season_id", a.getSeason)
	admin.POST("/seasons/:season_id/activate", a.activateSeason)
	admin.PUT("/seasons/:season_id/current-week", a.setCurrentWeek)
	g.POST("/seasons/:season_id/members", a.joinSeason)
	g.GET("/seasons/:season_id/leaderboard", a.getLeaderboard)
	admin.GET("/seasons/:season_id/leaderboard.xlsx", a.exportLeaderboard)

	g.POST("/weeks/:week_id/submissions", a.submit)
	g.GET("/weeks/:week_id/submissions", a.listWeekSubmissions)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

// pathID reads a UUID path parameter.
func pathID(c *gin.Context, name string) (string, error) {
	v := c.Param(name)
	if _, err := uuid.Parse(v); err != nil {
		return "", errors.InvalidArgument("invalid %s: %q", name, v)
	}
	return v, nil
}

func bindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body: %v", err),
			errors.WithCause(err),
		)
	}
	return nil
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

func created(c *gin.Context, body any) {
	c.JSON(http.StatusCreated, body)
}
