package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victornm/riffle/internal/calendar"
	"github.com/victornm/riffle/internal/errors"
	"github.com/victornm/riffle/internal/invite"
	"github.com/victornm/riffle/internal/leaderboard"
	"github.com/victornm/riffle/internal/report"
	"github.com/victornm/riffle/internal/season"
	"github.com/victornm/riffle/internal/submission"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (a *API) createInvite(c *gin.Context) {
	ic, err := a.is.CreateCode(c.Request.Context(), invite.CreateCodeRequest{
		CreatedBy: claimsFrom(c).Subject,
	})
	if err != nil {
		abort(c, err)
		return
	}

	created(c, toInviteCode(ic))
}

func (a *API) redeemInvite(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := bindJSON(c, &req); err != nil {
		abort(c, err)
		return
	}

	ic, err := a.is.Redeem(c.Request.Context(), invite.RedeemRequest{
		Code:   req.Code,
		UserID: claimsFrom(c).Subject,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toInviteCode(ic))
}

func (a *API) createSeason(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		StartDate string `json:"start_date" binding:"required"`
		EndDate   string `json:"end_date" binding:"required"`
	}
	if err := bindJSON(c, &req); err != nil {
		abort(c, err)
		return
	}

	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		abort(c, errors.InvalidArgument("invalid start_date: %q", req.StartDate))
		return
	}
	end, err := calendar.ParseDate(req.EndDate)
	if err != nil {
		abort(c, errors.InvalidArgument("invalid end_date: %q", req.EndDate))
		return
	}

	ss, err := a.ss.CreateSeason(c.Request.Context(), season.CreateSeasonRequest{
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		abort(c, err)
		return
	}

	created(c, toSeason(ss))
}

func (a *API) getActiveSeason(c *gin.Context) {
	ss, err := a.ss.GetActiveSeason(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toSeason(ss))
}

func (a *API) getSeason(c *gin.Context) {
	id, err := pathID(c, "season_id")
	if err != nil {
		abort(c, err)
		return
	}

	ss, err := a.ss.GetSeason(c.Request.Context(), season.GetSeasonRequest{SeasonID: id})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toSeason(ss))
}

func (a *API) activateSeason(c *gin.Context) {
	id, err := pathID(c, "season_id")
	if err != nil {
		abort(c, err)
		return
	}

	if err := a.ss.ActivateSeason(c.Request.Context(), season.ActivateSeasonRequest{SeasonID: id}); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) setCurrentWeek(c *gin.Context) {
	id, err := pathID(c, "season_id")
	if err != nil {
		abort(c, err)
		return
	}

	var req struct {
		WeekID string `json:"week_id" binding:"required,uuid"`
	}
	if err := bindJSON(c, &req); err != nil {
		abort(c, err)
		return
	}

	if err := a.ss.SetCurrentWeek(c.Request.Context(), season.SetCurrentWeekRequest{
		SeasonID: id,
		WeekID:   req.WeekID,
	}); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) joinSeason(c *gin.Context) {
	id, err := pathID(c, "season_id")
	if err != nil {
		abort(c, err)
		return
	}

	var req struct {
		Nickname string `json:"nickname"`
	}
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			abort(c, err)
			return
		}
	}

	claims := claimsFrom(c)
	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		nickname = claims.Nickname
	}

	m, err := a.ss.JoinSeason(c.Request.Context(), season.JoinSeasonRequest{
		SeasonID: id,
		UserID:   claims.Subject,
		Nickname: nickname,
	})
	if err != nil {
		abort(c, err)
		return
	}

	created(c, Membership(*m))
}

func (a *API) getLeaderboard(c *gin.Context) {
	id, err := pathID(c, "season_id")
	if err != nil {
		abort(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := a.ss.GetSeason(ctx, season.GetSeasonRequest{SeasonID: id}); err != nil {
		abort(c, err)
		return
	}

	st, err := a.ls.GetSeasonStats(ctx, leaderboard.GetSeasonStatsRequest{SeasonID: id})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(st))
}

func (a *API) exportLeaderboard(c *gin.Context) {
	id, err := pathID(c, "season_id")
	if err != nil {
		abort(c, err)
		return
	}

	ctx := c.Request.Context()
	ss, err := a.ss.GetSeason(ctx, season.GetSeasonRequest{SeasonID: id})
	if err != nil {
		abort(c, err)
		return
	}

	st, err := a.ls.GetSeasonStats(ctx, leaderboard.GetSeasonStatsRequest{SeasonID: id})
	if err != nil {
		abort(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteSeasonStats(&buf, *ss, *st); err != nil {
		abort(c, fmt.Errorf("export season %s: %w", id, err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="leaderboard-%s.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (a *API) submit(c *gin.Context) {
	id, err := pathID(c, "week_id")
	if err != nil {
		abort(c, err)
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := bindJSON(c, &req); err != nil {
		abort(c, err)
		return
	}

	sub, err := a.sub.Submit(c.Request.Context(), submission.SubmitRequest{
		WeekID:   id,
		AuthorID: claimsFrom(c).Subject,
		Content:  req.Content,
	})
	if err != nil {
		abort(c, err)
		return
	}

	created(c, toSubmission(*sub))
}

func (a *API) listWeekSubmissions(c *gin.Context) {
	id, err := pathID(c, "week_id")
	if err != nil {
		abort(c, err)
		return
	}

	req := submission.ListWeekSubmissionsRequest{WeekID: id}
	if claims := claimsFrom(c); claims.Role != RoleAdmin {
		req.ViewerID = claims.Subject
	}

	subs, err := a.sub.ListWeekSubmissions(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}

	resp := make([]Submission, 0, len(subs))
	for _, s := range subs {
		resp = append(resp, toSubmission(s))
	}

	c.JSON(http.StatusOK, gin.H{"submissions": resp})
}
