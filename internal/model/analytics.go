package model

import "time"

// Trend classifies the direction of recent performance relative to older
// performance.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// TopicPerformance holds per-topic correct/total counts within one subject.
type TopicPerformance struct {
	Topic              string  `json:"topic"`
	TotalQuestions     int     `json:"totalQuestions"`
	CorrectAnswers     int     `json:"correctAnswers"`
	AccuracyPercentage float64 `json:"accuracyPercentage"`
}

// SubjectBreakdown holds one subject's slice of a session's metrics.
type SubjectBreakdown struct {
	Subject                Subject            `json:"subject"`
	TotalQuestions         int                `json:"totalQuestions"`
	AnsweredQuestions      int                `json:"answeredQuestions"`
	CorrectAnswers         int                `json:"correctAnswers"`
	IncorrectAnswers       int                `json:"incorrectAnswers"`
	UnansweredQuestions    int                `json:"unansweredQuestions"`
	AccuracyPercentage     float64            `json:"accuracyPercentage"`
	AverageTimePerQuestion float64            `json:"averageTimePerQuestion"`
	TopicBreakdown         []TopicPerformance `json:"topicBreakdown"`
	Strengths              []string           `json:"strengths"`
	Weaknesses             []string           `json:"weaknesses"`
}

// TimeManagement buckets answered questions by time spent and carries
// pacing suggestions.
type TimeManagement struct {
	FastCount      int             `json:"fastCount"`
	NormalCount    int             `json:"normalCount"`
	SlowCount      int             `json:"slowCount"`
	TimePerSubject map[Subject]int `json:"timePerSubject"`
	Suggestions    []string        `json:"suggestions"`
}

// ThinkingAbility classifies answer patterns by speed and correctness.
// ConfidenceScore is a 0-100 heuristic, not a statistical interval.
type ThinkingAbility struct {
	QuickCorrect      int      `json:"quickCorrect"`
	ThoughtfulCorrect int      `json:"thoughtfulCorrect"`
	SlowCorrect       int      `json:"slowCorrect"`
	ImpulsiveErrors   int      `json:"impulsiveErrors"`
	ConfusionErrors   int      `json:"confusionErrors"`
	ConfidenceScore   float64  `json:"confidenceScore"`
	Insights          []string `json:"insights"`
}

// TestMetrics is the full per-session metrics record produced by the
// calculator. It is returned to the caller; only the per-subject rows are
// persisted.
type TestMetrics struct {
	SessionID              string             `json:"sessionId"`
	UserID                 string             `json:"userId"`
	TotalQuestions         int                `json:"totalQuestions"`
	AnsweredQuestions      int                `json:"answeredQuestions"`
	CorrectAnswers         int                `json:"correctAnswers"`
	IncorrectAnswers       int                `json:"incorrectAnswers"`
	UnansweredQuestions    int                `json:"unansweredQuestions"`
	AccuracyPercentage     float64            `json:"accuracyPercentage"`
	TotalTimeSpent         int                `json:"totalTimeSpent"`
	AverageTimePerQuestion float64            `json:"averageTimePerQuestion"`
	Subjects               []SubjectBreakdown `json:"subjects"`
	TimeManagement         TimeManagement     `json:"timeManagement"`
	ThinkingAbility        ThinkingAbility    `json:"thinkingAbility"`
	CalculatedAt           time.Time          `json:"calculatedAt"`
}

// ProgressHistoryItem is one completed session's rollup inside a user's
// longitudinal history.
type ProgressHistoryItem struct {
	SessionID          string    `json:"sessionId"`
	StartedAt          time.Time `json:"startedAt"`
	TotalQuestions     int       `json:"totalQuestions"`
	Score              int       `json:"score"`
	AccuracyPercentage float64   `json:"accuracyPercentage"`
}

// OverallProgress summarizes a user's full history.
type OverallProgress struct {
	TotalTests       int     `json:"totalTests"`
	AverageScore     float64 `json:"averageScore"`
	AverageAccuracy  float64 `json:"averageAccuracy"`
	BestScore        int     `json:"bestScore"`
	WorstScore       int     `json:"worstScore"`
	ImprovementRate  float64 `json:"improvementRate"`
	ConsistencyScore float64 `json:"consistencyScore"`
}

// SubjectProgress is the per-subject longitudinal view.
type SubjectProgress struct {
	Subject           Subject   `json:"subject"`
	TestsTaken        int       `json:"testsTaken"`
	AverageAccuracy   float64   `json:"averageAccuracy"`
	Trend             Trend     `json:"trend"`
	RecentPerformance []float64 `json:"recentPerformance"`
}

// ProgressData is the derived cross-session rollup for one user.
// It is computed on request and never persisted.
type ProgressData struct {
	UserID              string                `json:"userId"`
	History             []ProgressHistoryItem `json:"history"`
	Overall             OverallProgress       `json:"overall"`
	Subjects            []SubjectProgress     `json:"subjects"`
	ConsistentWeakAreas []string              `json:"consistentWeakAreas"`
	ImprovementAreas    []string              `json:"improvementAreas"`
}

// ComparisonItem is one session's entry in a multi-session comparison.
type ComparisonItem struct {
	SessionID              string              `json:"sessionId"`
	StartedAt              time.Time           `json:"startedAt"`
	Score                  int                 `json:"score"`
	AccuracyPercentage     float64             `json:"accuracyPercentage"`
	SubjectAccuracies      map[Subject]float64 `json:"subjectAccuracies"`
	AverageTimePerQuestion float64             `json:"averageTimePerQuestion"`
}

// ComparisonData compares a set of sessions chronologically.
type ComparisonData struct {
	UserID       string           `json:"userId"`
	Items        []ComparisonItem `json:"items"`
	Improvements []string         `json:"improvements"`
	Declines     []string         `json:"declines"`
	Insights     []string         `json:"insights"`
}

// PredictionConfidence grades how much history backs a prediction.
type PredictionConfidence string

const (
	ConfidenceLow    PredictionConfidence = "low"
	ConfidenceMedium PredictionConfidence = "medium"
	ConfidenceHigh   PredictionConfidence = "high"
)

// ScorePrediction is a regression-based estimate of the next test score.
type ScorePrediction struct {
	PredictedScore       int                  `json:"predictedScore"`
	Confidence           PredictionConfidence `json:"confidence"`
	BasedOnTests         int                  `json:"basedOnTests"`
	ProjectedImprovement float64              `json:"projectedImprovement"`
}

// TrendAnalysis is the trend/prediction view for one user.
type TrendAnalysis struct {
	UserID            string            `json:"userId"`
	OverallTrend      Trend             `json:"overallTrend"`
	SubjectTrends     map[Subject]Trend `json:"subjectTrends"`
	Prediction        ScorePrediction   `json:"prediction"`
	PercentileRanking float64           `json:"percentileRanking"`
}

// Recommendation is one rule-triggered study recommendation.
type Recommendation struct {
	Type        string   `json:"type"`
	Priority    string   `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ActionItems []string `json:"actionItems"`
}

// SubjectAnalysis is the per-subject rollup across all of a user's
// persisted metrics rows, with merged strengths and weaknesses.
type SubjectAnalysis struct {
	Subject                Subject  `json:"subject"`
	TestsTaken             int      `json:"testsTaken"`
	TotalQuestions         int      `json:"totalQuestions"`
	CorrectAnswers         int      `json:"correctAnswers"`
	AccuracyPercentage     float64  `json:"accuracyPercentage"`
	AverageTimePerQuestion float64  `json:"averageTimePerQuestion"`
	Strengths              []string `json:"strengths"`
	Weaknesses             []string `json:"weaknesses"`
}
