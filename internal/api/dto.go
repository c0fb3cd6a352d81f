package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/riffle/internal/domain"
)

type (
	Season struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		IsActive  bool   `json:"is_active"`
		Weeks     []Week `json:"weeks"`
	}

	Week struct {
		ID         string `json:"id"`
		WeekNumber int    `json:"week_number"`
		Title      string `json:"title"`
		StartDate  string `json:"start_date"`
		EndDate    string `json:"end_date"`
		IsCurrent  bool   `json:"is_current"`
	}

	Membership struct {
		SeasonID string `json:"season_id"`
		UserID   string `json:"user_id"`
		Nickname string `json:"nickname"`
	}

	Submission struct {
		ID         string    `json:"id"`
		WeekID     string    `json:"week_id"`
		AuthorID   string    `json:"author_id"`
		Version    int       `json:"version"`
		Content    string    `json:"content"`
		CreateTime time.Time `json:"create_time"`
	}

	InviteCode struct {
		Code       string     `json:"code"`
		CreatedBy  string     `json:"created_by"`
		UsedBy     string     `json:"used_by,omitempty"`
		UsedAt     *time.Time `json:"used_at,omitempty"`
		CreateTime time.Time  `json:"create_time"`
	}

	Leaderboard struct {
		SeasonID string             `json:"season_id"`
		Entries  []LeaderboardEntry `json:"entries"`
		Overview Overview           `json:"overview"`
	}

	// LeaderboardEntry carries rates as decimal strings so clients never see float noise.
	LeaderboardEntry struct {
		Rank             int    `json:"rank"`
		UserID           string `json:"user_id"`
		Nickname         string `json:"nickname"`
		TotalSubmissions int    `json:"total_submissions"`
		SubmissionRate   string `json:"submission_rate"`
		CurrentStreak    int    `json:"current_streak"`
		LongestStreak    int    `json:"longest_streak"`
	}

	Overview struct {
		TotalMembers          int    `json:"total_members"`
		TotalWeeks            int    `json:"total_weeks"`
		AverageSubmissionRate string `json:"average_submission_rate"`
		AverageStreak         string `json:"average_streak"`
		PerfectMembers        int    `json:"perfect_members"`
	}
)

const ratePlaces = 4

func formatRate(f float64) string {
	return decimal.NewFromFloat(f).Round(ratePlaces).String()
}

func toSeason(ss *domain.Season) Season {
	s := Season{
		ID:        ss.ID,
		Name:      ss.Name,
		StartDate: ss.StartDate.Format(domain.DateLayout),
		EndDate:   ss.EndDate.Format(domain.DateLayout),
		IsActive:  ss.IsActive,
		Weeks:     make([]Week, 0, len(ss.Weeks)),
	}

	for _, w := range ss.Weeks {
		s.Weeks = append(s.Weeks, Week{
			ID:         w.ID,
			WeekNumber: w.WeekNumber,
			Title:      w.Title,
			StartDate:  w.StartDate.Format(domain.DateLayout),
			EndDate:    w.EndDate.Format(domain.DateLayout),
			IsCurrent:  w.IsCurrent,
		})
	}

	return s
}

func toSubmission(s domain.Submission) Submission {
	return Submission(s)
}

func toInviteCode(ic *domain.InviteCode) InviteCode {
	out := InviteCode{
		Code:       ic.Code,
		CreatedBy:  ic.CreatedBy,
		UsedBy:     ic.UsedBy,
		CreateTime: ic.CreateTime,
	}

	if !ic.UsedAt.IsZero() {
		out.UsedAt = &ic.UsedAt
	}

	return out
}

func toLeaderboard(st *domain.SeasonStats) Leaderboard {
	l := Leaderboard{
		SeasonID: st.SeasonID,
		Entries:  make([]LeaderboardEntry, 0, len(st.Members)),
		Overview: Overview{
			TotalMembers:          st.Overview.TotalMembers,
			TotalWeeks:            st.Overview.TotalWeeks,
			AverageSubmissionRate: formatRate(st.Overview.AverageSubmissionRate),
			AverageStreak:         formatRate(st.Overview.AverageStreak),
			PerfectMembers:        st.Overview.PerfectMembers,
		},
	}

	for _, m := range st.Members {
		l.Entries = append(l.Entries, LeaderboardEntry{
			Rank:             m.Rank,
			UserID:           m.UserID,
			Nickname:         m.Nickname,
			TotalSubmissions: m.TotalSubmissions,
			SubmissionRate:   formatRate(m.SubmissionRate),
			CurrentStreak:    m.CurrentStreak,
			LongestStreak:    m.LongestStreak,
		})
	}

	return l
}
