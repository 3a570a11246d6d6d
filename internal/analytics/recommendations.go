package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"

	appI18n "github.com/prepdash/prepdash/internal/i18n"
	"github.com/prepdash/prepdash/internal/model"
)

// Recommendation types and priorities.
const (
	RecTypeTopic    = "topic"
	RecTypeSubject  = "subject"
	RecTypeStrategy = "strategy"

	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

const (
	subjectAccuracyFloor  = 60.0
	strategyAccuracyFloor = 70.0
	consistencyFloor      = 60.0
	strategyLookbackTests = 3
)

// Recommender produces the prioritized, rule-based action list for a
// user. Every rule fires independently; nothing suppresses anything else.
type Recommender struct {
	agg *Aggregator
}

func NewRecommender(agg *Aggregator) *Recommender {
	return &Recommender{agg: agg}
}

// Recommendations evaluates all rules against the user's progress data.
func (r *Recommender) Recommendations(ctx context.Context, userID string) ([]model.Recommendation, error) {
	progress, err := r.agg.Progress(ctx, userID)
	if err != nil {
		return nil, err
	}

	var recs []model.Recommendation

	if len(progress.ConsistentWeakAreas) > 0 {
		recs = append(recs, model.Recommendation{
			Type:     RecTypeTopic,
			Priority: PriorityHigh,
			Title:    appI18n.T(ctx, "RecWeakAreasTitle"),
			Description: appI18n.Td(ctx, "RecWeakAreasDesc",
				map[string]any{"Areas": strings.Join(progress.ConsistentWeakAreas, ", ")}),
			ActionItems: []string{
				appI18n.T(ctx, "RecWeakAreasAction1"),
				appI18n.T(ctx, "RecWeakAreasAction2"),
			},
		})
	}

	for _, sp := range progress.Subjects {
		subject := string(sp.Subject)
		if sp.AverageAccuracy < subjectAccuracyFloor {
			recs = append(recs, model.Recommendation{
				Type:     RecTypeSubject,
				Priority: PriorityHigh,
				Title:    appI18n.Td(ctx, "RecSubjectTitle", map[string]any{"Subject": subject}),
				Description: appI18n.Td(ctx, "RecSubjectDesc", map[string]any{
					"Subject":  subject,
					"Accuracy": fmt.Sprintf("%.1f", sp.AverageAccuracy),
				}),
				ActionItems: []string{
					appI18n.Td(ctx, "RecSubjectAction1", map[string]any{"Subject": subject}),
					appI18n.Td(ctx, "RecSubjectAction2", map[string]any{"Subject": subject}),
				},
			})
			continue
		}
		if sp.Trend == model.TrendDeclining {
			recs = append(recs, model.Recommendation{
				Type:        RecTypeSubject,
				Priority:    PriorityMedium,
				Title:       appI18n.Td(ctx, "RecDecliningTitle", map[string]any{"Subject": subject}),
				Description: appI18n.Td(ctx, "RecDecliningDesc", map[string]any{"Subject": subject}),
				ActionItems: []string{
					appI18n.Td(ctx, "RecDecliningAction1", map[string]any{"Subject": subject}),
					appI18n.Td(ctx, "RecDecliningAction2", map[string]any{"Subject": subject}),
				},
			})
		}
	}

	if recent := recentAccuracyMean(progress.History, strategyLookbackTests); len(progress.History) > 0 && recent < strategyAccuracyFloor {
		recs = append(recs, model.Recommendation{
			Type:     RecTypeStrategy,
			Priority: PriorityMedium,
			Title:    appI18n.T(ctx, "RecStrategyTitle"),
			Description: appI18n.Td(ctx, "RecStrategyDesc", map[string]any{
				"Count":    strategyLookbackTests,
				"Accuracy": fmt.Sprintf("%.1f", recent),
			}),
			ActionItems: []string{
				appI18n.T(ctx, "RecStrategyAction1"),
				appI18n.T(ctx, "RecStrategyAction2"),
			},
		})
	}

	if len(progress.History) > 0 && progress.Overall.ConsistencyScore < consistencyFloor {
		recs = append(recs, model.Recommendation{
			Type:     RecTypeStrategy,
			Priority: PriorityMedium,
			Title:    appI18n.T(ctx, "RecConsistencyTitle"),
			Description: appI18n.Td(ctx, "RecConsistencyDesc", map[string]any{
				"Score": fmt.Sprintf("%.0f", progress.Overall.ConsistencyScore),
			}),
			ActionItems: []string{
				appI18n.T(ctx, "RecConsistencyAction1"),
				appI18n.T(ctx, "RecConsistencyAction2"),
			},
		})
	}

	if len(progress.ImprovementAreas) > 0 {
		recs = append(recs, model.Recommendation{
			Type:     RecTypeTopic,
			Priority: PriorityLow,
			Title:    appI18n.T(ctx, "RecImprovementTitle"),
			Description: appI18n.Td(ctx, "RecImprovementDesc",
				map[string]any{"Areas": strings.Join(progress.ImprovementAreas, ", ")}),
			ActionItems: []string{
				appI18n.T(ctx, "RecImprovementAction1"),
				appI18n.T(ctx, "RecImprovementAction2"),
			},
		})
	}

	return recs, nil
}

func recentAccuracyMean(history []model.ProgressHistoryItem, n int) float64 {
	if len(history) == 0 {
		return 0
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	accuracies := make([]float64, len(history))
	for i, h := range history {
		accuracies[i] = h.AccuracyPercentage
	}
	mean, _ := stats.Mean(accuracies)
	return mean
}
