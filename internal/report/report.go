// Package report exports season leaderboards as spreadsheets.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/victornm/riffle/internal/domain"
)

const (
	SheetLeaderboard = "Leaderboard"
	SheetOverview    = "Overview"

	percentFormat = 10 // 0.00%
)

var leaderboardHeader = []any{"Rank", "Nickname", "User ID", "Submissions", "Submission rate", "Current streak", "Longest streak"}

// WriteSeasonStats writes the ranked members and the overview of a season as an xlsx workbook.
func WriteSeasonStats(w io.Writer, ss domain.Season, stats domain.SeasonStats) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetLeaderboard); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	percent, err := f.NewStyle(&excelize.Style{NumFmt: percentFormat})
	if err != nil {
		return fmt.Errorf("new style: %w", err)
	}

	if err := writeLeaderboard(f, stats, percent); err != nil {
		return err
	}

	if err := writeOverview(f, ss, stats, percent); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	return nil
}

func writeLeaderboard(f *excelize.File, stats domain.SeasonStats, percent int) error {
	if err := f.SetSheetRow(SheetLeaderboard, "A1", &leaderboardHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, m := range stats.Members {
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		row := []any{m.Rank, m.Nickname, m.UserID, m.TotalSubmissions, m.SubmissionRate, m.CurrentStreak, m.LongestStreak}
		if err := f.SetSheetRow(SheetLeaderboard, axis, &row); err != nil {
			return fmt.Errorf("write member %s: %w", m.UserID, err)
		}
	}

	if len(stats.Members) > 0 {
		last := fmt.Sprintf("E%d", len(stats.Members)+1)
		if err := f.SetCellStyle(SheetLeaderboard, "E2", last, percent); err != nil {
			return fmt.Errorf("style rates: %w", err)
		}
	}

	return f.SetPanes(SheetLeaderboard, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeOverview(f *excelize.File, ss domain.Season, stats domain.SeasonStats, percent int) error {
	if _, err := f.NewSheet(SheetOverview); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}

	o := stats.Overview
	rows := [][]any{
		{"Season", ss.Name},
		{"Start date", ss.StartDate.Format(domain.DateLayout)},
		{"End date", ss.EndDate.Format(domain.DateLayout)},
		{"Members", o.TotalMembers},
		{"Weeks", o.TotalWeeks},
		{"Average submission rate", o.AverageSubmissionRate},
		{"Average streak", o.AverageStreak},
		{"Perfect members", o.PerfectMembers},
	}

	for i, row := range rows {
		if err := f.SetSheetRow(SheetOverview, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("write overview: %w", err)
		}
	}

	return f.SetCellStyle(SheetOverview, "B6", "B6", percent)
}
