package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/riffle/internal/domain"
	"github.com/victornm/riffle/internal/event"
	"github.com/victornm/riffle/internal/ranking"
	"github.com/victornm/riffle/internal/season"
	"github.com/victornm/riffle/internal/submission"
	"github.com/victornm/riffle/internal/telemetry"
)

const (
	defaultPublishInterval = 2 * time.Second
)

type Config struct {
	EventBus        *event.Bus
	Seasons         Seasons
	Submissions     Submissions
	Redis           redis.UniversalClient
	Prefix          string
	PublishInterval time.Duration
}

type Seasons interface {
	ListWeeks(ctx context.Context, req season.ListWeeksRequest) ([]domain.Week, error)
	ListMembers(ctx context.Context, req season.ListMembersRequest) ([]domain.Membership, error)
}

type Submissions interface {
	ListSeasonRecords(ctx context.Context, req submission.ListSeasonRecordsRequest) ([]domain.SubmissionRecord, error)
}

type Service struct {
	eb          *event.Bus
	seasons     Seasons
	submissions Submissions
	redis       redis.UniversalClient
	prefix      string
	interval    time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:          c.EventBus,
		seasons:     c.Seasons,
		submissions: c.Submissions,
		redis:       c.Redis,
		prefix:      c.Prefix,
		interval:    c.PublishInterval,
	}

	if s.interval <= 0 {
		s.interval = defaultPublishInterval
	}

	s.eb.Subscribe(domain.EventNameSubmissionCreated, func(ctx context.Context, e event.Event) error {
		return s.HandleSubmissionCreated(ctx, e.(domain.EventSubmissionCreated))
	})

	return s
}

type GetSeasonStatsRequest struct {
	SeasonID string
}

// GetSeasonStats ranks the members of a season from the current weeks, members and submissions.
func (s *Service) GetSeasonStats(ctx context.Context, req GetSeasonStatsRequest) (_ *domain.SeasonStats, err error) {
	start := time.Now()
	var ranked int
	defer func() { telemetry.ObserveStatsComputation(start, ranked, err) }()

	var (
		weeks   []domain.Week
		members []domain.Membership
		records []domain.SubmissionRecord
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		weeks, err = s.seasons.ListWeeks(egCtx, season.ListWeeksRequest{SeasonID: req.SeasonID})
		return err
	})
	eg.Go(func() (err error) {
		members, err = s.seasons.ListMembers(egCtx, season.ListMembersRequest{SeasonID: req.SeasonID})
		return err
	})
	eg.Go(func() (err error) {
		records, err = s.submissions.ListSeasonRecords(egCtx, submission.ListSeasonRecordsRequest{SeasonID: req.SeasonID})
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("load season %s: %w", req.SeasonID, err)
	}

	stats := ranking.ComputeSeasonStats(weeks, members, records)
	stats.SeasonID = req.SeasonID
	ranked = len(stats.Members)

	return &stats, nil
}

// HandleSubmissionCreated schedules a leaderboard.updated notification for the submission's season.
func (s *Service) HandleSubmissionCreated(ctx context.Context, e domain.EventSubmissionCreated) error {
	return s.schedulePublishLeaderboard(ctx, e.SeasonID, e.Submission.CreateTime)
}

// schedulePublishLeaderboard publishes the season leaderboard at most once per interval.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, seasonID string, at time.Time) error {
	// SET NX keeps several instances from publishing the same season within one interval.
	ok, err := s.redis.SetNX(ctx, s.getPublishLockKey(seasonID), at.UnixMilli(), s.interval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, seasonID)
}

func (s *Service) publishLeaderboard(ctx context.Context, seasonID string) error {
	stats, err := s.GetSeasonStats(ctx, GetSeasonStatsRequest{
		SeasonID: seasonID,
	})
	if err != nil {
		return fmt.Errorf("get season stats failed: season=%s: %w", seasonID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Stats: *stats,
	})

	return nil
}

func (s *Service) getPublishLockKey(season string) string {
	return fmt.Sprintf("%s:%s:leaderboard:published", s.prefix, season)
}
