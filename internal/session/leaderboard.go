package session

import (
	"cmp"
	"slices"
)

// ComputeLeaderboard ranks participants from the full record set.
// Order: total score desc, correct count desc, join time asc, then id for a total order.
func ComputeLeaderboard(participants []Participant, records []AnswerRecord) []LeaderboardEntry {
	type tally struct {
		score   int
		correct int
	}
	totals := make(map[string]*tally, len(participants))
	for _, p := range participants {
		totals[p.ID] = &tally{}
	}
	for _, r := range records {
		t, ok := totals[r.ParticipantID]
		if !ok {
			continue
		}
		t.score += r.PointsAwarded
		if r.IsCorrect {
			t.correct++
		}
	}

	ordered := slices.Clone(participants)
	slices.SortFunc(ordered, func(a, b Participant) int {
		ta, tb := totals[a.ID], totals[b.ID]
		if c := cmp.Compare(tb.score, ta.score); c != 0 {
			return c
		}
		if c := cmp.Compare(tb.correct, ta.correct); c != 0 {
			return c
		}
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	entries := make([]LeaderboardEntry, 0, len(ordered))
	for i, p := range ordered {
		t := totals[p.ID]
		entries = append(entries, LeaderboardEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			TotalScore:    t.score,
			CorrectCount:  t.correct,
			Rank:          i + 1,
		})
	}
	return entries
}

// questionStats summarises the records of each question index in [0, count).
func questionStats(questionIDs []string, records []AnswerRecord) []QuestionStats {
	stats := make([]QuestionStats, len(questionIDs))
	offsets := make([]int64, len(questionIDs))
	for i, id := range questionIDs {
		stats[i] = QuestionStats{QuestionIndex: i, QuestionID: id}
	}
	for _, r := range records {
		if r.QuestionIndex < 0 || r.QuestionIndex >= len(stats) {
			continue
		}
		s := &stats[r.QuestionIndex]
		if r.TimedOut() {
			s.TimedOut++
			continue
		}
		s.Answered++
		offsets[r.QuestionIndex] += r.SubmittedAtOffsetMs
		if r.IsCorrect {
			s.Correct++
		}
	}
	for i := range stats {
		if stats[i].Answered > 0 {
			stats[i].AverageOffsetMs = offsets[i] / int64(stats[i].Answered)
		}
	}
	return stats
}
