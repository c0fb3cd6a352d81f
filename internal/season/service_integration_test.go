//go:build integration_test

package season_test

import (
	"context"
	"fmt"
	"os"
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

func TestService_CreateSeason(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	created, err := s.CreateSeason(ctx, season.CreateSeasonRequest{
		Name:      " Winter ",
		StartDate: date(2025, time.January, 1),
		EndDate:   date(2025, time.January, 22),
	})
	require.NoError(t, err)
	assert.Equal(t, "Winter", created.Name)
	assert.False(t, created.IsActive)

	got, err := s.GetSeason(ctx, season.GetSeasonRequest{SeasonID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.True(t, got.StartDate.Equal(date(2025, time.January, 1)))

	require.Len(t, got.Weeks, 3)
	for i, w := range got.Weeks {
		assert.Equal(t, i+1, w.WeekNumber)
		assert.Equal(t, created.ID, w.SeasonID)
		assert.Equal(t, i == 0, w.IsCurrent)
	}
	assert.True(t, got.Weeks[0].StartDate.Equal(date(2025, time.January, 6)))
	assert.True(t, got.Weeks[2].EndDate.Equal(date(2025, time.January, 22)), "last week should be clipped to the season end")
}

func TestService_ActivateSeason(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	first := createSeason(t, s)
	second := createSeason(t, s)

	require.NoError(t, s.ActivateSeason(ctx, season.ActivateSeasonRequest{SeasonID: first.ID}))
	active, err := s.GetActiveSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, s.ActivateSeason(ctx, season.ActivateSeasonRequest{SeasonID: second.ID}))
	active, err = s.GetActiveSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	got, err := s.GetSeason(ctx, season.GetSeasonRequest{SeasonID: first.ID})
	require.NoError(t, err)
	assert.False(t, got.IsActive, "activating a season should deactivate the previous one")

	var n int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM seasons WHERE is_active;`).Scan(&n))
	assert.Equal(t, 1, n)

	// Re-activating the active season keeps it active.
	require.NoError(t, s.ActivateSeason(ctx, season.ActivateSeasonRequest{SeasonID: second.ID}))

	err = s.ActivateSeason(ctx, season.ActivateSeasonRequest{SeasonID: uuid.NewString()})
	assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)

	active, err = s.GetActiveSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID, "a failed activation should roll back")
}

func TestService_SetCurrentWeek(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	ss := createSeason(t, s)
	other := createSeason(t, s)

	tests := map[string]struct {
		req     season.SetCurrentWeekRequest
		assert  func(t *testing.T, err error)
		current int
	}{
		"a week of the season should become current": {
			req: season.SetCurrentWeekRequest{SeasonID: ss.ID, WeekID: ss.Weeks[1].ID},
			assert: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
			current: 2,
		},
		"an unknown week should not be found": {
			req: season.SetCurrentWeekRequest{SeasonID: ss.ID, WeekID: uuid.NewString()},
			assert: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
			},
			current: 2,
		},
		"a week of another season should not be found": {
			req: season.SetCurrentWeekRequest{SeasonID: ss.ID, WeekID: other.Weeks[0].ID},
			assert: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
			},
			current: 2,
		},
		"the current week should move again": {
			req: season.SetCurrentWeekRequest{SeasonID: ss.ID, WeekID: ss.Weeks[2].ID},
			assert: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
			current: 3,
		},
	}

	// Cases depend on the previous one.
	for _, name := range []string{
		"a week of the season should become current",
		"an unknown week should not be found",
		"a week of another season should not be found",
		"the current week should move again",
	} {
		tt := tests[name]
		t.Run(name, func(t *testing.T) {
			tt.assert(t, s.SetCurrentWeek(ctx, tt.req))

			weeks, err := s.ListWeeks(ctx, season.ListWeeksRequest{SeasonID: ss.ID})
			require.NoError(t, err)
			for _, w := range weeks {
				assert.Equal(t, w.WeekNumber == tt.current, w.IsCurrent, "week %d", w.WeekNumber)
			}
		})
	}
}

func TestService_JoinSeason(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)
	ss := createSeason(t, s)

	tests := map[string]struct {
		arrange func(t *testing.T) season.JoinSeasonRequest
		assert  func(t *testing.T, m *domain.Membership, err error)
	}{
		"a user without a redeemed invite should be denied": {
			arrange: func(t *testing.T) season.JoinSeasonRequest {
				return season.JoinSeasonRequest{SeasonID: ss.ID, UserID: "outsider", Nickname: "eve"}
			},

			assert: func(t *testing.T, _ *domain.Membership, err error) {
				assert.True(t, errors.Is(err, errors.CodePermissionDenied), "got %v", err)
			},
		},

		"a user with an unredeemed invite of their own should be denied": {
			arrange: func(t *testing.T) season.JoinSeasonRequest {
				_, err := db.Exec(ctx, `INSERT INTO invite_codes (code, created_by) VALUES ($1, 'issuer');`, uuid.NewString())
				require.NoError(t, err)
				return season.JoinSeasonRequest{SeasonID: ss.ID, UserID: "issuer", Nickname: "ivy"}
			},

			assert: func(t *testing.T, _ *domain.Membership, err error) {
				assert.True(t, errors.Is(err, errors.CodePermissionDenied), "got %v", err)
			},
		},

		"a user with a redeemed invite should join": {
			arrange: func(t *testing.T) season.JoinSeasonRequest {
				redeemInvite(t, "alice")
				return season.JoinSeasonRequest{SeasonID: ss.ID, UserID: "alice", Nickname: " alice "}
			},

			assert: func(t *testing.T, m *domain.Membership, err error) {
				require.NoError(t, err)
				assert.Equal(t, &domain.Membership{SeasonID: ss.ID, UserID: "alice", Nickname: "alice"}, m)

				members, err := s.ListMembers(ctx, season.ListMembersRequest{SeasonID: ss.ID})
				require.NoError(t, err)
				assert.Contains(t, members, *m)
			},
		},

		"joining twice should already exist": {
			arrange: func(t *testing.T) season.JoinSeasonRequest {
				redeemInvite(t, "bob")
				_, err := s.JoinSeason(ctx, season.JoinSeasonRequest{SeasonID: ss.ID, UserID: "bob", Nickname: "bob"})
				require.NoError(t, err)
				return season.JoinSeasonRequest{SeasonID: ss.ID, UserID: "bob", Nickname: "bobby"}
			},

			assert: func(t *testing.T, _ *domain.Membership, err error) {
				assert.True(t, errors.Is(err, errors.CodeAlreadyExists), "got %v", err)
			},
		},

		"an unknown season should not be found": {
			arrange: func(t *testing.T) season.JoinSeasonRequest {
				redeemInvite(t, "carol")
				return season.JoinSeasonRequest{SeasonID: uuid.NewString(), UserID: "carol", Nickname: "carol"}
			},

			assert: func(t *testing.T, _ *domain.Membership, err error) {
				assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			m, err := s.JoinSeason(ctx, tt.arrange(t))
			tt.assert(t, m, err)
		})
	}
}

func makeService(t *testing.T) *season.Service {
	t.Helper()

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	return season.NewService(season.Config{DB: db, EventBus: eb})
}

func createSeason(t *testing.T, s *season.Service) *domain.Season {
	t.Helper()

	ss, err := s.CreateSeason(context.Background(), season.CreateSeasonRequest{
		Name:      "season " + uuid.NewString(),
		StartDate: date(2025, time.March, 3),
		EndDate:   date(2025, time.March, 23),
	})
	require.NoError(t, err)
	require.Len(t, ss.Weeks, 3)
	return ss
}

func redeemInvite(t *testing.T, user string) {
	t.Helper()

	_, err := db.Exec(context.Background(),
		`INSERT INTO invite_codes (code, created_by, used_by, used_at) VALUES ($1, 'admin', $2, NOW());`,
		uuid.NewString(), user)
	require.NoError(t, err)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
