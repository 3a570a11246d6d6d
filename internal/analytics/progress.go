package analytics

import (
	"context"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/prepdash/prepdash/internal/model"
)

// Trend window: the most recent rows compared against everything before
// them, with a fixed ±5 point threshold.
const (
	trendWindow    = 3
	trendThreshold = 5.0
	recentWindow   = 5
)

// Aggregator builds longitudinal progress data from a user's completed
// sessions and their persisted per-subject metrics.
type Aggregator struct {
	store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Progress computes the full cross-session rollup for one user.
func (a *Aggregator) Progress(ctx context.Context, userID string) (*model.ProgressData, error) {
	sessions, err := a.store.ListSessionsByUserAndStatus(userID, model.StatusCompleted)
	if err != nil {
		return nil, &StorageError{Op: "fetch sessions for user " + userID, Err: err}
	}
	allMetrics, err := a.store.ListSubjectMetricsByUser(userID)
	if err != nil {
		return nil, &StorageError{Op: "fetch metrics for user " + userID, Err: err}
	}

	bySession := make(map[string][]model.SubjectMetrics)
	for _, m := range allMetrics {
		bySession[m.SessionID] = append(bySession[m.SessionID], m)
	}

	p := &model.ProgressData{UserID: userID}
	for _, sess := range sessions {
		total, correct := 0, 0
		for _, m := range bySession[sess.ID] {
			total += m.TotalQuestions
			correct += m.CorrectAnswers
		}
		p.History = append(p.History, model.ProgressHistoryItem{
			SessionID:          sess.ID,
			StartedAt:          sess.StartedAt,
			TotalQuestions:     total,
			Score:              correct,
			AccuracyPercentage: round2(ratio(correct, total)),
		})
	}

	p.Overall = overallProgress(p.History)
	p.Subjects = subjectProgress(allMetrics)
	p.ConsistentWeakAreas = consistentWeakAreas(allMetrics)
	p.ImprovementAreas = improvementAreas(allMetrics)

	return p, nil
}

// PerformanceHistory returns every persisted per-subject metrics row for a
// user, oldest first.
func (a *Aggregator) PerformanceHistory(ctx context.Context, userID string) ([]model.SubjectMetrics, error) {
	rows, err := a.store.ListSubjectMetricsByUser(userID)
	if err != nil {
		return nil, &StorageError{Op: "fetch metrics for user " + userID, Err: err}
	}
	if rows == nil {
		rows = []model.SubjectMetrics{}
	}
	return rows, nil
}

// SubjectAnalysis merges all of a user's persisted metrics rows into one
// rollup per subject, with recomputed accuracy and deduplicated
// strength/weakness lists.
func (a *Aggregator) SubjectAnalysis(ctx context.Context, userID string) ([]model.SubjectAnalysis, error) {
	allMetrics, err := a.store.ListSubjectMetricsByUser(userID)
	if err != nil {
		return nil, &StorageError{Op: "fetch metrics for user " + userID, Err: err}
	}

	bySubject := make(map[model.Subject][]model.SubjectMetrics)
	for _, m := range allMetrics {
		bySubject[m.Subject] = append(bySubject[m.Subject], m)
	}

	var out []model.SubjectAnalysis
	for _, subject := range model.AllSubjects() {
		rows := bySubject[subject]
		if len(rows) == 0 {
			continue
		}

		sa := model.SubjectAnalysis{Subject: subject, TestsTaken: len(rows)}
		times := make([]float64, len(rows))
		strengths := make(map[string]bool)
		weaknesses := make(map[string]bool)
		for i, m := range rows {
			sa.TotalQuestions += m.TotalQuestions
			sa.CorrectAnswers += m.CorrectAnswers
			times[i] = m.AverageTimePerQuestion
			for _, s := range m.Strengths {
				strengths[s] = true
			}
			for _, w := range m.Weaknesses {
				weaknesses[w] = true
			}
		}
		sa.AccuracyPercentage = round2(ratio(sa.CorrectAnswers, sa.TotalQuestions))
		meanTime, _ := stats.Mean(times)
		sa.AverageTimePerQuestion = round2(meanTime)
		sa.Strengths = sortedKeys(strengths)
		sa.Weaknesses = sortedKeys(weaknesses)

		out = append(out, sa)
	}
	return out, nil
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func overallProgress(history []model.ProgressHistoryItem) model.OverallProgress {
	o := model.OverallProgress{TotalTests: len(history)}
	if len(history) == 0 {
		return o
	}

	accuracies := make([]float64, len(history))
	scoreSum := 0
	o.BestScore = history[0].Score
	o.WorstScore = history[0].Score
	for i, h := range history {
		accuracies[i] = h.AccuracyPercentage
		scoreSum += h.Score
		if h.Score > o.BestScore {
			o.BestScore = h.Score
		}
		if h.Score < o.WorstScore {
			o.WorstScore = h.Score
		}
	}
	o.AverageScore = round2(float64(scoreSum) / float64(len(history)))

	mean, _ := stats.Mean(accuracies)
	o.AverageAccuracy = round2(mean)

	if len(history) >= 2 {
		first := history[0].AccuracyPercentage
		last := history[len(history)-1].AccuracyPercentage
		if first != 0 {
			o.ImprovementRate = round2((last - first) / first * 100)
		}
	}

	stddev, _ := stats.StandardDeviation(accuracies)
	o.ConsistencyScore = round2(clamp(100-2*stddev, 0, 100))

	return o
}

func subjectProgress(allMetrics []model.SubjectMetrics) []model.SubjectProgress {
	bySubject := make(map[model.Subject][]model.SubjectMetrics)
	for _, m := range allMetrics {
		bySubject[m.Subject] = append(bySubject[m.Subject], m)
	}

	var out []model.SubjectProgress
	for _, subject := range model.AllSubjects() {
		rows := bySubject[subject]
		if len(rows) == 0 {
			continue
		}

		accuracies := make([]float64, len(rows))
		for i, m := range rows {
			accuracies[i] = m.AccuracyPercentage
		}
		mean, _ := stats.Mean(accuracies)

		sp := model.SubjectProgress{
			Subject:         subject,
			TestsTaken:      len(rows),
			AverageAccuracy: round2(mean),
			Trend:           accuracyTrend(accuracies),
		}
		recent := accuracies
		if len(recent) > recentWindow {
			recent = recent[len(recent)-recentWindow:]
		}
		sp.RecentPerformance = append([]float64(nil), recent...)

		out = append(out, sp)
	}
	return out
}

// accuracyTrend compares the mean of the last three values against the
// mean of everything before them. Fewer than three values, or no older
// values to compare with, is always stable.
func accuracyTrend(accuracies []float64) model.Trend {
	if len(accuracies) < trendWindow {
		return model.TrendStable
	}
	older := accuracies[:len(accuracies)-trendWindow]
	if len(older) == 0 {
		return model.TrendStable
	}
	recentMean, _ := stats.Mean(accuracies[len(accuracies)-trendWindow:])
	olderMean, _ := stats.Mean(older)
	switch {
	case recentMean-olderMean > trendThreshold:
		return model.TrendImproving
	case recentMean-olderMean < -trendThreshold:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

// consistentWeakAreas returns weaknesses recorded in at least half of the
// user's metrics rows, rounded up.
func consistentWeakAreas(allMetrics []model.SubjectMetrics) []string {
	if len(allMetrics) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, m := range allMetrics {
		for _, w := range m.Weaknesses {
			counts[w]++
		}
	}
	threshold := (len(allMetrics) + 1) / 2

	var out []string
	for w, n := range counts {
		if n >= threshold {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

// improvementAreas returns weaknesses from the older portion of the
// history that reappear as strengths in the most recent three rows.
func improvementAreas(allMetrics []model.SubjectMetrics) []string {
	if len(allMetrics) <= trendWindow {
		return nil
	}
	older := allMetrics[:len(allMetrics)-trendWindow]
	recent := allMetrics[len(allMetrics)-trendWindow:]

	recentStrengths := make(map[string]bool)
	for _, m := range recent {
		for _, s := range m.Strengths {
			recentStrengths[s] = true
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, m := range older {
		for _, w := range m.Weaknesses {
			if seen[w] {
				continue
			}
			seen[w] = true
			if recentStrengths[w] {
				out = append(out, w)
			}
		}
	}
	sort.Strings(out)
	return out
}
