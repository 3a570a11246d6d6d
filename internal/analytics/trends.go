package analytics

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/prepdash/prepdash/internal/model"
)

const (
	overallTrendThreshold = 10.0
	predictionWindow      = 5
	minPredictionSessions = 3
)

// TrendAnalyzer derives trend classification, a regression-based score
// prediction, and a percentile estimate from the aggregated progress data.
type TrendAnalyzer struct {
	agg *Aggregator
}

func NewTrendAnalyzer(agg *Aggregator) *TrendAnalyzer {
	return &TrendAnalyzer{agg: agg}
}

// Trends computes the full trend analysis for one user. The aggregator
// call completes before any regression work starts.
func (t *TrendAnalyzer) Trends(ctx context.Context, userID string) (*model.TrendAnalysis, error) {
	progress, err := t.agg.Progress(ctx, userID)
	if err != nil {
		return nil, err
	}

	ta := &model.TrendAnalysis{
		UserID:        userID,
		SubjectTrends: make(map[model.Subject]model.Trend, len(progress.Subjects)),
	}

	switch {
	case progress.Overall.ImprovementRate > overallTrendThreshold:
		ta.OverallTrend = model.TrendImproving
	case progress.Overall.ImprovementRate < -overallTrendThreshold:
		ta.OverallTrend = model.TrendDeclining
	default:
		ta.OverallTrend = model.TrendStable
	}

	for _, sp := range progress.Subjects {
		ta.SubjectTrends[sp.Subject] = sp.Trend
	}

	ta.Prediction = predictScore(progress)
	ta.PercentileRanking = percentileEstimate(progress.Overall.AverageAccuracy)

	return ta, nil
}

// predictScore fits an ordinary-least-squares line to the last five
// sessions' (index, accuracy) pairs and evaluates it one step past the
// window. The question-count basis for the predicted score is the most
// recent session's total.
func predictScore(progress *model.ProgressData) model.ScorePrediction {
	history := progress.History
	if len(history) < minPredictionSessions {
		return model.ScorePrediction{
			PredictedScore: int(math.Round(progress.Overall.AverageScore)),
			Confidence:     model.ConfidenceLow,
			BasedOnTests:   len(history),
		}
	}

	window := history
	if len(window) > predictionWindow {
		window = window[len(window)-predictionWindow:]
	}

	series := make(stats.Series, len(window))
	for i, h := range window {
		series[i] = stats.Coordinate{X: float64(i), Y: h.AccuracyPercentage}
	}
	predictedAccuracy := extrapolate(series, float64(len(window)))
	predictedAccuracy = clamp(predictedAccuracy, 0, 100)

	latestTotal := history[len(history)-1].TotalQuestions
	p := model.ScorePrediction{
		PredictedScore: int(math.Round(predictedAccuracy / 100 * float64(latestTotal))),
		BasedOnTests:   len(history),
	}

	switch {
	case progress.Overall.ConsistencyScore > 80:
		p.Confidence = model.ConfidenceHigh
	case progress.Overall.ConsistencyScore < 50:
		p.Confidence = model.ConfidenceLow
	default:
		p.Confidence = model.ConfidenceMedium
	}

	if avg := progress.Overall.AverageAccuracy; avg != 0 {
		p.ProjectedImprovement = round2((predictedAccuracy - avg) / avg * 100)
	}

	return p
}

// extrapolate fits an OLS line through the series and evaluates it at x.
func extrapolate(series stats.Series, x float64) float64 {
	fitted, err := stats.LinearRegression(series)
	if err != nil || len(fitted) < 2 {
		// Flat history: fall back to the last observed value.
		return series[len(series)-1].Y
	}
	first := fitted[0]
	last := fitted[len(fitted)-1]
	dx := last.X - first.X
	if dx == 0 {
		return last.Y
	}
	slope := (last.Y - first.Y) / dx
	intercept := first.Y - slope*first.X
	return slope*x + intercept
}

// percentileEstimate is a fixed step function of average accuracy. It is a
// placeholder, not a true rank against other users.
func percentileEstimate(averageAccuracy float64) float64 {
	switch {
	case averageAccuracy >= 90:
		return 95
	case averageAccuracy >= 80:
		return 85
	case averageAccuracy >= 70:
		return 70
	case averageAccuracy >= 60:
		return 55
	case averageAccuracy >= 50:
		return 40
	default:
		return 25
	}
}
