package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/victornm/riffle/internal/domain"
	"github.com/victornm/riffle/internal/report"
)

func TestWriteSeasonStats(t *testing.T) {
	ss := domain.Season{
		ID:        "s1",
		Name:      "2025 Winter",
		StartDate: time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, time.January, 19, 0, 0, 0, 0, time.UTC),
	}
	stats := domain.SeasonStats{
		SeasonID: "s1",
		Members: []domain.MemberStats{
			{UserID: "u2", Nickname: "bob", TotalSubmissions: 2, SubmissionRate: 1, CurrentStreak: 2, LongestStreak: 2, Rank: 1},
			{UserID: "u1", Nickname: "alice", TotalSubmissions: 1, SubmissionRate: 0.5, CurrentStreak: 0, LongestStreak: 1, Rank: 2},
		},
		Overview: domain.SeasonStatsOverview{TotalMembers: 2, TotalWeeks: 2, AverageSubmissionRate: 0.75, AverageStreak: 1, PerfectMembers: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteSeasonStats(&buf, ss, stats))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	assert.Equal(t, []string{report.SheetLeaderboard, report.SheetOverview}, f.GetSheetList())

	rows, err := f.GetRows(report.SheetLeaderboard, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Rank", rows[0][0])
	assert.Equal(t, []string{"1", "bob", "u2", "2", "1", "2", "2"}, rows[1])
	assert.Equal(t, []string{"2", "alice", "u1", "1", "0.5", "0", "1"}, rows[2])

	name, err := f.GetCellValue(report.SheetOverview, "B1")
	require.NoError(t, err)
	assert.Equal(t, "2025 Winter", name)

	perfect, err := f.GetCellValue(report.SheetOverview, "B8")
	require.NoError(t, err)
	assert.Equal(t, "1", perfect)
}

func TestWriteSeasonStats_NoMembers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteSeasonStats(&buf, domain.Season{Name: "empty"}, domain.SeasonStats{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	rows, err := f.GetRows(report.SheetLeaderboard)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "only the header should be written")
}
