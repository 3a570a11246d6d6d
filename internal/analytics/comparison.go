package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/montanaflynn/stats"

	appI18n "github.com/prepdash/prepdash/internal/i18n"
	"github.com/prepdash/prepdash/internal/model"
)

const (
	comparisonAccuracyThreshold = 5.0
	comparisonTimeThreshold     = 10.0
	comparisonVarianceBound     = 25.0
)

// Comparator builds a chronological multi-session comparison from the
// persisted per-subject metrics of the requested sessions.
type Comparator struct {
	store Store
}

func NewComparator(store Store) *Comparator {
	return &Comparator{store: store}
}

// Compare aggregates the requested sessions into comparison items and
// derives improvement/decline call-outs and insights. Sessions that do not
// exist, belong to another user, or have no metrics yet are skipped, not
// errors.
func (c *Comparator) Compare(ctx context.Context, userID string, sessionIDs []string) (*model.ComparisonData, error) {
	if len(sessionIDs) < 2 {
		return nil, &ValidationError{Msg: "at least 2 session ids are required for comparison"}
	}

	data := &model.ComparisonData{UserID: userID}
	for _, id := range sessionIDs {
		sess, err := c.store.GetSession(id)
		if errors.Is(err, sql.ErrNoRows) {
			slog.Debug("comparison skipping unknown session", "session_id", id)
			continue
		}
		if err != nil {
			return nil, &StorageError{Op: "fetch session " + id, Err: err}
		}
		if sess.UserID != userID {
			slog.Debug("comparison skipping foreign session", "session_id", id, "user_id", userID)
			continue
		}

		rows, err := c.store.ListSubjectMetricsBySession(id)
		if err != nil {
			return nil, &StorageError{Op: "fetch metrics for session " + id, Err: err}
		}
		if len(rows) == 0 {
			continue
		}

		item := model.ComparisonItem{
			SessionID:         sess.ID,
			StartedAt:         sess.StartedAt,
			SubjectAccuracies: make(map[model.Subject]float64, len(rows)),
		}
		total := 0
		times := make([]float64, len(rows))
		for i, m := range rows {
			total += m.TotalQuestions
			item.Score += m.CorrectAnswers
			item.SubjectAccuracies[m.Subject] = m.AccuracyPercentage
			times[i] = m.AverageTimePerQuestion
		}
		item.AccuracyPercentage = round2(ratio(item.Score, total))
		meanTime, _ := stats.Mean(times)
		item.AverageTimePerQuestion = round2(meanTime)

		data.Items = append(data.Items, item)
	}

	sort.Slice(data.Items, func(i, j int) bool {
		return data.Items[i].StartedAt.Before(data.Items[j].StartedAt)
	})

	if len(data.Items) < 2 {
		data.Insights = append(data.Insights, appI18n.T(ctx, "ComparisonNeedMore"))
		return data, nil
	}

	c.callouts(ctx, data)
	c.insights(ctx, data)
	return data, nil
}

// callouts compares the earliest item against the latest only.
func (c *Comparator) callouts(ctx context.Context, data *model.ComparisonData) {
	first := data.Items[0]
	last := data.Items[len(data.Items)-1]

	delta := last.AccuracyPercentage - first.AccuracyPercentage
	switch {
	case delta >= comparisonAccuracyThreshold:
		data.Improvements = append(data.Improvements, appI18n.Td(ctx, "OverallAccuracyImproved",
			map[string]any{"Delta": fmt.Sprintf("%.1f", delta)}))
	case delta <= -comparisonAccuracyThreshold:
		data.Declines = append(data.Declines, appI18n.Td(ctx, "OverallAccuracyDeclined",
			map[string]any{"Delta": fmt.Sprintf("%.1f", -delta)}))
	}

	for _, subject := range model.AllSubjects() {
		firstAcc, okFirst := first.SubjectAccuracies[subject]
		lastAcc, okLast := last.SubjectAccuracies[subject]
		if !okFirst || !okLast {
			continue
		}
		d := lastAcc - firstAcc
		switch {
		case d >= comparisonAccuracyThreshold:
			data.Improvements = append(data.Improvements, appI18n.Td(ctx, "SubjectAccuracyImproved",
				map[string]any{"Subject": string(subject), "Delta": fmt.Sprintf("%.1f", d)}))
		case d <= -comparisonAccuracyThreshold:
			data.Declines = append(data.Declines, appI18n.Td(ctx, "SubjectAccuracyDeclined",
				map[string]any{"Subject": string(subject), "Delta": fmt.Sprintf("%.1f", -d)}))
		}
	}

	if first.AverageTimePerQuestion > 0 {
		change := (last.AverageTimePerQuestion - first.AverageTimePerQuestion) / first.AverageTimePerQuestion * 100
		switch {
		case change < -comparisonTimeThreshold:
			data.Improvements = append(data.Improvements, appI18n.Td(ctx, "PacingImproved",
				map[string]any{"Delta": fmt.Sprintf("%.1f", -change)}))
		case change > comparisonTimeThreshold:
			data.Declines = append(data.Declines, appI18n.Td(ctx, "PacingDeclined",
				map[string]any{"Delta": fmt.Sprintf("%.1f", change)}))
		}
	}
}

// insights looks at the whole compared series.
func (c *Comparator) insights(ctx context.Context, data *model.ComparisonData) {
	accuracies := make([]float64, len(data.Items))
	for i, item := range data.Items {
		accuracies[i] = item.AccuracyPercentage
	}

	variance, _ := stats.PopulationVariance(accuracies)
	if variance < comparisonVarianceBound {
		data.Insights = append(data.Insights, appI18n.T(ctx, "ComparisonConsistent"))
	} else {
		data.Insights = append(data.Insights, appI18n.T(ctx, "ComparisonVaries"))
	}

	half := len(accuracies) / 2
	firstMean, _ := stats.Mean(accuracies[:half])
	secondMean, _ := stats.Mean(accuracies[half:])
	switch {
	case secondMean-firstMean >= comparisonAccuracyThreshold:
		data.Insights = append(data.Insights, appI18n.T(ctx, "ComparisonUpward"))
	case secondMean-firstMean <= -comparisonAccuracyThreshold:
		data.Insights = append(data.Insights, appI18n.T(ctx, "ComparisonDownward"))
	}
}
