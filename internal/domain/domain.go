package domain

import (
	"time"
)

// DateLayout is the wire and storage form of calendar dates.
const DateLayout = "2006-01-02"

// Season represents a bounded study period with an ordered list of weeks.
type Season struct {
	ID        string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
	Weeks     []Week
}

// Week is a Monday-Sunday interval within a season. The final week of a season
// may end before Sunday.
type Week struct {
	ID         string
	SeasonID   string
	WeekNumber int
	Title      string
	StartDate  time.Time
	EndDate    time.Time
	IsCurrent  bool
}

// Membership is a member enrolled in a season.
type Membership struct {
	SeasonID string
	UserID   string
	Nickname string
}

// Submission is a stored weekly summary. A member may submit several versions
// for the same week.
type Submission struct {
	ID         string
	WeekID     string
	AuthorID   string
	Version    int
	Content    string
	CreateTime time.Time
}

// SubmissionRecord marks that an author has submitted for a week.
type SubmissionRecord struct {
	AuthorID string
	WeekID   string
}

type InviteCode struct {
	Code       string
	CreatedBy  string
	UsedBy     string
	UsedAt     time.Time
	CreateTime time.Time
}

// MemberStats is the participation summary of a member within a season.
type MemberStats struct {
	UserID           string
	Nickname         string
	TotalSubmissions int
	SubmissionRate   float64
	CurrentStreak    int
	LongestStreak    int
	Rank             int
}

type SeasonStatsOverview struct {
	TotalMembers          int
	TotalWeeks            int
	AverageSubmissionRate float64
	AverageStreak         float64
	PerfectMembers        int
}

// SeasonStats is the ranked member list of a season together with its aggregate.
// Members are sorted by rank in ascending order.
type SeasonStats struct {
	SeasonID string
	Members  []MemberStats
	Overview SeasonStatsOverview
}
