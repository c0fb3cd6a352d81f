// Package ranking computes participation statistics for the members of a season.
package ranking

import (
	"sort"

	"github.com/victornm/riffle/internal/domain"
)

// ComputeSeasonStats ranks members by submission rate, then longest streak, then
// current streak, all descending. Members with equal keys share a rank and the
// following rank skips accordingly (1, 1, 3).
//
// Several submissions by the same author for the same week count once.
// Submissions for weeks not in weeks are ignored. The current streak is the run
// ending at the week with the highest number, whichever week is flagged current.
func ComputeSeasonStats(weeks []domain.Week, members []domain.Membership, submissions []domain.SubmissionRecord) domain.SeasonStats {
	if len(weeks) == 0 {
		return domain.SeasonStats{Members: []domain.MemberStats{}}
	}

	weekNumbers := make(map[string]int, len(weeks))
	sorted := make([]int, 0, len(weeks))
	for _, w := range weeks {
		weekNumbers[w.ID] = w.WeekNumber
		sorted = append(sorted, w.WeekNumber)
	}
	sort.Ints(sorted)

	submitted := make(map[string]map[int]struct{})
	for _, s := range submissions {
		n, ok := weekNumbers[s.WeekID]
		if !ok {
			continue
		}

		if submitted[s.AuthorID] == nil {
			submitted[s.AuthorID] = make(map[int]struct{})
		}
		submitted[s.AuthorID][n] = struct{}{}
	}

	stats := make([]domain.MemberStats, 0, len(members))
	for _, m := range members {
		done := submitted[m.UserID]
		stats = append(stats, domain.MemberStats{
			UserID:           m.UserID,
			Nickname:         m.Nickname,
			TotalSubmissions: len(done),
			SubmissionRate:   float64(len(done)) / float64(len(sorted)),
			CurrentStreak:    currentStreak(sorted, done),
			LongestStreak:    longestStreak(sorted, done),
		})
	}

	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.SubmissionRate != b.SubmissionRate {
			return a.SubmissionRate > b.SubmissionRate
		}
		if a.LongestStreak != b.LongestStreak {
			return a.LongestStreak > b.LongestStreak
		}
		return a.CurrentStreak > b.CurrentStreak
	})

	for i := range stats {
		if i > 0 && tied(stats[i-1], stats[i]) {
			stats[i].Rank = stats[i-1].Rank
			continue
		}
		stats[i].Rank = i + 1
	}

	return domain.SeasonStats{
		Members:  stats,
		Overview: overview(stats, len(sorted)),
	}
}

func longestStreak(weekNumbers []int, submitted map[int]struct{}) int {
	var longest, streak int
	for _, n := range weekNumbers {
		if _, ok := submitted[n]; !ok {
			streak = 0
			continue
		}

		streak++
		longest = max(longest, streak)
	}

	return longest
}

func currentStreak(weekNumbers []int, submitted map[int]struct{}) int {
	var streak int
	for i := len(weekNumbers) - 1; i >= 0; i-- {
		if _, ok := submitted[weekNumbers[i]]; !ok {
			break
		}
		streak++
	}

	return streak
}

func tied(a, b domain.MemberStats) bool {
	return a.SubmissionRate == b.SubmissionRate &&
		a.LongestStreak == b.LongestStreak &&
		a.CurrentStreak == b.CurrentStreak
}

func overview(stats []domain.MemberStats, totalWeeks int) domain.SeasonStatsOverview {
	o := domain.SeasonStatsOverview{
		TotalMembers: len(stats),
		TotalWeeks:   totalWeeks,
	}

	if len(stats) == 0 {
		return o
	}

	var rates float64
	var streaks int
	for _, s := range stats {
		rates += s.SubmissionRate
		streaks += s.CurrentStreak
		if s.SubmissionRate == 1 {
			o.PerfectMembers++
		}
	}

	o.AverageSubmissionRate = rates / float64(len(stats))
	o.AverageStreak = float64(streaks) / float64(len(stats))
	return o
}
