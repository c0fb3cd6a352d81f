package domain

const (
	EventNameSeasonCreated      = "season.created"
	EventNameSubmissionCreated  = "submission.created"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventSeasonCreated struct {
	Season Season
}

func (EventSeasonCreated) Name() string { return EventNameSeasonCreated }

type EventSubmissionCreated struct {
	SeasonID   string
	Submission Submission
}

func (EventSubmissionCreated) Name() string { return EventNameSubmissionCreated }

type EventLeaderboardUpdated struct {
	Stats SeasonStats
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
