package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	appI18n "github.com/prepdash/prepdash/internal/i18n"
	"github.com/prepdash/prepdash/internal/model"
)

// Time buckets (seconds) shared by the time-management and
// thinking-ability classifications.
const (
	fastThreshold      = 60
	slowThreshold      = 120
	impulsiveThreshold = 30
)

// calculationSLA is the soft deadline for one metrics calculation.
// Violations are logged, never fatal.
const calculationSLA = 30 * time.Second

// Calculator computes one session's performance metrics from its raw
// answer and question records.
type Calculator struct {
	store Store
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{store: store}
}

// Calculate builds the full metrics record for a session without
// persisting anything.
func (c *Calculator) Calculate(ctx context.Context, sessionID string) (*model.TestMetrics, error) {
	start := time.Now()

	sess, err := c.store.GetSession(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "session", ID: sessionID}
	}
	if err != nil {
		return nil, &StorageError{Op: "fetch session " + sessionID, Err: err}
	}

	answers, err := c.store.ListAnswersBySession(sessionID)
	if err != nil {
		return nil, &StorageError{Op: "fetch answers for session " + sessionID, Err: err}
	}
	questions, err := c.store.ListQuestionsForSession(sessionID)
	if err != nil {
		return nil, &StorageError{Op: "fetch questions for session " + sessionID, Err: err}
	}

	questionByID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		questionByID[q.ID] = q
	}
	answerByQID := make(map[string]model.Answer, len(answers))
	for _, a := range answers {
		answerByQID[a.QuestionID] = a
	}

	m := &model.TestMetrics{
		SessionID:      sess.ID,
		UserID:         sess.UserID,
		TotalQuestions: sess.TotalQuestions,
		CalculatedAt:   time.Now(),
	}

	for _, a := range answers {
		m.TotalTimeSpent += a.TimeSpent
		if !a.Answered() {
			continue
		}
		m.AnsweredQuestions++
		if a.IsCorrect {
			m.CorrectAnswers++
		} else {
			m.IncorrectAnswers++
		}
	}
	m.UnansweredQuestions = m.TotalQuestions - m.AnsweredQuestions
	m.AccuracyPercentage = round2(ratio(m.CorrectAnswers, m.AnsweredQuestions))
	if m.AnsweredQuestions > 0 {
		m.AverageTimePerQuestion = round2(float64(m.TotalTimeSpent) / float64(m.AnsweredQuestions))
	}

	subjects := sess.Subjects
	if len(subjects) == 0 {
		subjects = model.AllSubjects()
	}
	for _, subject := range subjects {
		m.Subjects = append(m.Subjects, c.subjectBreakdown(ctx, subject, questions, answerByQID))
	}

	m.TimeManagement = c.timeManagement(ctx, subjects, answers, questionByID, m.AnsweredQuestions, m.TotalTimeSpent)
	m.ThinkingAbility = c.thinkingAbility(ctx, answers, m.AnsweredQuestions)

	if elapsed := time.Since(start); elapsed > calculationSLA {
		slog.Warn("metrics calculation exceeded SLA",
			"session_id", sessionID, "elapsed", elapsed, "sla", calculationSLA)
	}
	return m, nil
}

// CalculateAndStore computes the metrics and persists one SubjectMetrics
// row per subject. It returns the metrics and the measured calculation
// time in milliseconds.
func (c *Calculator) CalculateAndStore(ctx context.Context, sessionID string) (*model.TestMetrics, int64, error) {
	start := time.Now()

	m, err := c.Calculate(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}

	for _, sb := range m.Subjects {
		_, err := c.store.UpsertSubjectMetrics(model.SubjectMetrics{
			SessionID:              m.SessionID,
			UserID:                 m.UserID,
			Subject:                sb.Subject,
			TotalQuestions:         sb.TotalQuestions,
			CorrectAnswers:         sb.CorrectAnswers,
			AccuracyPercentage:     sb.AccuracyPercentage,
			AverageTimePerQuestion: sb.AverageTimePerQuestion,
			Strengths:              sb.Strengths,
			Weaknesses:             sb.Weaknesses,
			CalculatedAt:           m.CalculatedAt,
		})
		if err != nil {
			return nil, 0, &StorageError{Op: fmt.Sprintf("store metrics for %s/%s", m.SessionID, sb.Subject), Err: err}
		}
	}

	return m, time.Since(start).Milliseconds(), nil
}

func (c *Calculator) subjectBreakdown(ctx context.Context, subject model.Subject, questions []model.Question, answerByQID map[string]model.Answer) model.SubjectBreakdown {
	sb := model.SubjectBreakdown{Subject: subject}

	type topicCount struct{ total, correct int }
	topics := make(map[string]*topicCount)
	timeSpent := 0

	for _, q := range questions {
		if q.Subject != subject {
			continue
		}
		sb.TotalQuestions++
		tc := topics[q.Topic]
		if tc == nil {
			tc = &topicCount{}
			topics[q.Topic] = tc
		}
		tc.total++

		a, ok := answerByQID[q.ID]
		if !ok {
			continue
		}
		timeSpent += a.TimeSpent
		if !a.Answered() {
			continue
		}
		sb.AnsweredQuestions++
		if a.IsCorrect {
			sb.CorrectAnswers++
			tc.correct++
		} else {
			sb.IncorrectAnswers++
		}
	}
	sb.UnansweredQuestions = sb.TotalQuestions - sb.AnsweredQuestions
	sb.AccuracyPercentage = round2(ratio(sb.CorrectAnswers, sb.AnsweredQuestions))
	if sb.AnsweredQuestions > 0 {
		sb.AverageTimePerQuestion = round2(float64(timeSpent) / float64(sb.AnsweredQuestions))
	}

	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)

	// Strength and weakness entries are bare topic names so the progress
	// aggregator can match them across sessions.
	for _, name := range names {
		tc := topics[name]
		acc := ratio(tc.correct, tc.total)
		sb.TopicBreakdown = append(sb.TopicBreakdown, model.TopicPerformance{
			Topic:              name,
			TotalQuestions:     tc.total,
			CorrectAnswers:     tc.correct,
			AccuracyPercentage: round2(acc),
		})
		switch {
		case acc >= 80:
			sb.Strengths = append(sb.Strengths, name)
		case acc < 50:
			sb.Weaknesses = append(sb.Weaknesses, name)
		}
	}

	if len(sb.Strengths) == 0 && sb.AccuracyPercentage >= 70 {
		sb.Strengths = append(sb.Strengths, appI18n.Td(ctx, "SubjectConsistent",
			map[string]any{"Subject": string(subject)}))
	}
	if len(sb.Weaknesses) == 0 && sb.AccuracyPercentage < 50 {
		sb.Weaknesses = append(sb.Weaknesses, appI18n.Td(ctx, "SubjectNeedsWork",
			map[string]any{"Subject": string(subject)}))
	}

	return sb
}

func (c *Calculator) timeManagement(ctx context.Context, subjects []model.Subject, answers []model.Answer, questionByID map[string]model.Question, answered, totalTime int) model.TimeManagement {
	tm := model.TimeManagement{TimePerSubject: make(map[model.Subject]int, len(subjects))}
	for _, subject := range subjects {
		tm.TimePerSubject[subject] = 0
	}

	fastCorrect := 0
	for _, a := range answers {
		if q, ok := questionByID[a.QuestionID]; ok {
			tm.TimePerSubject[q.Subject] += a.TimeSpent
		}
		if !a.Answered() {
			continue
		}
		switch {
		case a.TimeSpent < fastThreshold:
			tm.FastCount++
			if a.IsCorrect {
				fastCorrect++
			}
		case a.TimeSpent > slowThreshold:
			tm.SlowCount++
		default:
			tm.NormalCount++
		}
	}

	if answered > 0 {
		if float64(tm.SlowCount) > 0.30*float64(answered) {
			tm.Suggestions = append(tm.Suggestions, appI18n.Tp(ctx, "SlowQuestions", tm.SlowCount))
		}
		if float64(tm.FastCount) > 0.50*float64(answered) && ratio(fastCorrect, tm.FastCount) < 70 {
			tm.Suggestions = append(tm.Suggestions, appI18n.T(ctx, "RushedAnswers"))
		}
	}
	if totalTime > 0 {
		for _, subject := range subjects {
			share := float64(tm.TimePerSubject[subject]) / float64(totalTime) * 100
			if share > 40 {
				tm.Suggestions = append(tm.Suggestions, appI18n.Td(ctx, "SubjectPacing",
					map[string]any{"Subject": string(subject), "Share": fmt.Sprintf("%.0f", share)}))
			}
		}
	}

	return tm
}

func (c *Calculator) thinkingAbility(ctx context.Context, answers []model.Answer, answered int) model.ThinkingAbility {
	ta := model.ThinkingAbility{}

	correct := 0
	for _, a := range answers {
		if !a.Answered() {
			continue
		}
		if a.IsCorrect {
			correct++
			switch {
			case a.TimeSpent < fastThreshold:
				ta.QuickCorrect++
			case a.TimeSpent > slowThreshold:
				ta.SlowCorrect++
			default:
				ta.ThoughtfulCorrect++
			}
			continue
		}
		// Wrong answers between the impulsive and confusion bounds stay
		// unclassified.
		switch {
		case a.TimeSpent < impulsiveThreshold:
			ta.ImpulsiveErrors++
		case a.TimeSpent > slowThreshold:
			ta.ConfusionErrors++
		}
	}

	score := ratio(correct, answered)
	if answered > 0 {
		n := float64(answered)
		if float64(ta.ImpulsiveErrors) > 0.20*n {
			score -= 10
		}
		if float64(ta.ConfusionErrors) > 0.15*n {
			score -= 15
		}
		if float64(ta.QuickCorrect) > 0.30*n {
			score += 5
		}

		if float64(ta.QuickCorrect) > 0.40*n {
			ta.Insights = append(ta.Insights, appI18n.T(ctx, "QuickCorrectInsight"))
		}
		if float64(ta.ThoughtfulCorrect) > 0.50*n {
			ta.Insights = append(ta.Insights, appI18n.T(ctx, "ThoughtfulInsight"))
		}
		if float64(ta.ImpulsiveErrors) > 0.20*n {
			ta.Insights = append(ta.Insights, appI18n.T(ctx, "ImpulsiveInsight"))
		}
		if float64(ta.ConfusionErrors) > 0.15*n {
			ta.Insights = append(ta.Insights, appI18n.T(ctx, "ConfusionInsight"))
		}
		if float64(ta.SlowCorrect) > 0.30*n {
			ta.Insights = append(ta.Insights, appI18n.T(ctx, "SlowCorrectInsight"))
		}
	}
	ta.ConfidenceScore = round2(clamp(score, 0, 100))

	return ta
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
