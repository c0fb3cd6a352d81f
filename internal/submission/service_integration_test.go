//go:build integration_test

package submission_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/riffle/internal/domain"
	"github.com/victornm/riffle/internal/errors"
	"github.com/victornm/riffle/internal/event"
	"github.com/victornm/riffle/internal/postgres/pgtest"
	"github.com/victornm/riffle/internal/season"
	"github.com/victornm/riffle/internal/submission"
)

var db *pgxpool.Pool

func TestMain(m *testing.M) {
	var stop func()
	var err error

	db, stop, err = pgtest.Start(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	stop()
	os.Exit(code)
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	eb := event.NewBus()

	var (
		mu        sync.Mutex
		published []domain.EventSubmissionCreated
	)
	eb.Subscribe(domain.EventNameSubmissionCreated, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		published = append(published, e.(domain.EventSubmissionCreated))
		mu.Unlock()
		return nil
	})

	s := submission.NewService(submission.Config{EventBus: eb, DB: db})
	ss := seedSeason(t, eb, "alice")
	week := ss.Weeks[0].ID

	first, err := s.Submit(ctx, submission.SubmitRequest{WeekID: week, AuthorID: "alice", Content: " draft "})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, "draft", first.Content)
	assert.False(t, first.CreateTime.IsZero())

	second, err := s.Submit(ctx, submission.SubmitRequest{WeekID: week, AuthorID: "alice", Content: "final"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version, "resubmitting should create the next version")

	other, err := s.Submit(ctx, submission.SubmitRequest{WeekID: ss.Weeks[1].ID, AuthorID: "alice", Content: "week 2"})
	require.NoError(t, err)
	assert.Equal(t, 1, other.Version, "versions should be counted per week")

	eb.Stop()
	require.Len(t, published, 3)
	for _, e := range published {
		assert.Equal(t, ss.ID, e.SeasonID)
	}

	subs, err := s.ListWeekSubmissions(ctx, submission.ListWeekSubmissionsRequest{WeekID: week, ViewerID: "alice"})
	require.NoError(t, err)
	require.Len(t, subs, 1, "only the latest version should be listed")
	assert.Equal(t, second.ID, subs[0].ID)
	assert.Equal(t, "final", subs[0].Content)

	records, err := s.ListSeasonRecords(ctx, submission.ListSeasonRecordsRequest{SeasonID: ss.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.SubmissionRecord{
		{AuthorID: "alice", WeekID: ss.Weeks[0].ID},
		{AuthorID: "alice", WeekID: ss.Weeks[1].ID},
	}, records, "versions of the same week should collapse into one record")
}

func TestService_Submit_Rejected(t *testing.T) {
	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	s := submission.NewService(submission.Config{EventBus: eb, DB: db})
	ss := seedSeason(t, eb, "bob")

	tests := map[string]struct {
		req  submission.SubmitRequest
		code errors.Code
	}{
		"a non-member should not find the week": {
			req:  submission.SubmitRequest{WeekID: ss.Weeks[0].ID, AuthorID: "mallory", Content: "hi"},
			code: errors.CodeNotFound,
		},
		"an unknown week should not be found": {
			req:  submission.SubmitRequest{WeekID: uuid.NewString(), AuthorID: "bob", Content: "hi"},
			code: errors.CodeNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.Submit(context.Background(), tt.req)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestService_ListWeekSubmissions_Viewer(t *testing.T) {
	ctx := context.Background()
	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	s := submission.NewService(submission.Config{EventBus: eb, DB: db})
	ss := seedSeason(t, eb, "carol")
	week := ss.Weeks[0].ID

	_, err := s.Submit(ctx, submission.SubmitRequest{WeekID: week, AuthorID: "carol", Content: "notes"})
	require.NoError(t, err)

	tests := map[string]struct {
		viewer string
		assert func(t *testing.T, subs []domain.Submission, err error)
	}{
		"a member should see the week": {
			viewer: "carol",
			assert: func(t *testing.T, subs []domain.Submission, err error) {
				require.NoError(t, err)
				assert.Len(t, subs, 1)
			},
		},
		"a non-member should be denied": {
			viewer: "mallory",
			assert: func(t *testing.T, _ []domain.Submission, err error) {
				assert.True(t, errors.Is(err, errors.CodePermissionDenied), "got %v", err)
			},
		},
		"an unchecked viewer should see the week": {
			viewer: "",
			assert: func(t *testing.T, subs []domain.Submission, err error) {
				require.NoError(t, err)
				assert.Len(t, subs, 1)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			subs, err := s.ListWeekSubmissions(ctx, submission.ListWeekSubmissionsRequest{WeekID: week, ViewerID: tt.viewer})
			tt.assert(t, subs, err)
		})
	}
}

// seedSeason creates a season with three weeks and enrols the members.
func seedSeason(t *testing.T, eb *event.Bus, members ...string) *domain.Season {
	t.Helper()
	ctx := context.Background()

	seasons := season.NewService(season.Config{DB: db, EventBus: eb})
	ss, err := seasons.CreateSeason(ctx, season.CreateSeasonRequest{
		Name:      "season " + uuid.NewString(),
		StartDate: time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, time.March, 23, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	for _, m := range members {
		_, err := db.Exec(ctx,
			`INSERT INTO invite_codes (code, created_by, used_by, used_at) VALUES ($1, 'admin', $2, NOW());`,
			uuid.NewString(), m)
		require.NoError(t, err)

		_, err = seasons.JoinSeason(ctx, season.JoinSeasonRequest{SeasonID: ss.ID, UserID: m, Nickname: m})
		require.NoError(t, err)
	}

	return ss
}
