package analytics

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	appI18n "github.com/prepdash/prepdash/internal/i18n"
	"github.com/prepdash/prepdash/internal/model"
	"github.com/prepdash/prepdash/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testAnswer describes one question and its (possibly missing) answer for
// session seeding. Selected == "" means the question was skipped.
type testAnswer struct {
	subject   model.Subject
	topic     string
	selected  string
	correct   bool
	timeSpent int
}

func seedSession(t *testing.T, s *store.Store, userID string, answers []testAnswer) string {
	t.Helper()

	subjectSet := make(map[model.Subject]bool)
	var questionIDs []string
	for i, ta := range answers {
		subjectSet[ta.subject] = true
		qID, err := s.InsertQuestion(model.Question{
			Subject:       ta.subject,
			Difficulty:    model.DifficultyMedium,
			Text:          "q",
			Options:       []string{"A", "B", "C", "D"},
			CorrectOption: "A",
			Topic:         ta.topic,
			EstimatedTime: 90,
		})
		if err != nil {
			t.Fatalf("seed question %d: %v", i, err)
		}
		questionIDs = append(questionIDs, qID)
	}

	var subjects []model.Subject
	for _, subject := range model.AllSubjects() {
		if subjectSet[subject] {
			subjects = append(subjects, subject)
		}
	}

	sessID, err := s.CreateSession(userID, subjects, questionIDs)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	now := time.Now()
	for i, ta := range answers {
		a := model.Answer{
			SessionID:  sessID,
			QuestionID: questionIDs[i],
			IsCorrect:  ta.correct,
			TimeSpent:  ta.timeSpent,
			AnsweredAt: &now,
		}
		if ta.selected != "" {
			selected := ta.selected
			a.SelectedOption = &selected
		}
		if err := s.SaveAnswer(a); err != nil {
			t.Fatalf("seed answer %d: %v", i, err)
		}
	}
	return sessID
}

func completeSession(t *testing.T, s *store.Store, sessID string) {
	t.Helper()
	if err := s.UpdateSessionStatus(sessID, model.StatusCompleted); err != nil {
		t.Fatalf("completeSession: %v", err)
	}
}

// seedMetricsSession creates a completed session with one persisted
// physics metrics row, for the aggregation-level tests.
func seedMetricsSession(t *testing.T, s *store.Store, userID string, total, correct int, strengths, weaknesses []string) string {
	t.Helper()
	sessID, err := s.CreateSession(userID, []model.Subject{model.SubjectPhysics}, nil)
	if err != nil {
		t.Fatalf("seedMetricsSession: %v", err)
	}
	completeSession(t, s, sessID)
	_, err = s.UpsertSubjectMetrics(model.SubjectMetrics{
		SessionID:              sessID,
		UserID:                 userID,
		Subject:                model.SubjectPhysics,
		TotalQuestions:         total,
		CorrectAnswers:         correct,
		AccuracyPercentage:     ratio(correct, total),
		AverageTimePerQuestion: 60,
		Strengths:              strengths,
		Weaknesses:             weaknesses,
		CalculatedAt:           time.Now(),
	})
	if err != nil {
		t.Fatalf("seedMetricsSession metrics: %v", err)
	}
	return sessID
}

func TestCalculatePartition(t *testing.T) {
	s := newTestStore(t)

	// 10 physics questions: 7 correct, 2 incorrect, 1 skipped.
	var answers []testAnswer
	for i := 0; i < 7; i++ {
		answers = append(answers, testAnswer{model.SubjectPhysics, "mechanics", "A", true, 70})
	}
	for i := 0; i < 2; i++ {
		answers = append(answers, testAnswer{model.SubjectPhysics, "optics", "B", false, 70})
	}
	answers = append(answers, testAnswer{model.SubjectPhysics, "optics", "", false, 20})

	sessID := seedSession(t, s, "user-1", answers)
	m, err := NewCalculator(s).Calculate(context.Background(), sessID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if m.TotalQuestions != 10 {
		t.Errorf("totalQuestions = %d, want 10", m.TotalQuestions)
	}
	if m.AnsweredQuestions != 9 || m.CorrectAnswers != 7 || m.IncorrectAnswers != 2 || m.UnansweredQuestions != 1 {
		t.Errorf("partition = answered %d correct %d incorrect %d unanswered %d",
			m.AnsweredQuestions, m.CorrectAnswers, m.IncorrectAnswers, m.UnansweredQuestions)
	}
	if m.AnsweredQuestions+m.UnansweredQuestions != m.TotalQuestions {
		t.Errorf("answered + unanswered != total")
	}
	if m.CorrectAnswers+m.IncorrectAnswers != m.AnsweredQuestions {
		t.Errorf("correct + incorrect != answered")
	}

	// Accuracy is over answered questions only: 7/9.
	if want := 77.78; m.AccuracyPercentage != want {
		t.Errorf("accuracy = %v, want %v", m.AccuracyPercentage, want)
	}

	// Total time includes the skipped question; average does not.
	if want := 9*70 + 20; m.TotalTimeSpent != want {
		t.Errorf("totalTimeSpent = %d, want %d", m.TotalTimeSpent, want)
	}
	if want := round2(float64(9*70+20) / 9); m.AverageTimePerQuestion != want {
		t.Errorf("averageTimePerQuestion = %v, want %v", m.AverageTimePerQuestion, want)
	}

	if len(m.Subjects) != 1 || m.Subjects[0].Subject != model.SubjectPhysics {
		t.Fatalf("expected single physics breakdown, got %+v", m.Subjects)
	}
	sb := m.Subjects[0]
	if sb.AccuracyPercentage != m.AccuracyPercentage {
		t.Errorf("subject accuracy = %v, want %v", sb.AccuracyPercentage, m.AccuracyPercentage)
	}
}

func TestCalculateAllAnswered(t *testing.T) {
	s := newTestStore(t)

	// 10 physics questions, 7 correct and 3 wrong, nothing skipped.
	var answers []testAnswer
	for i := 0; i < 7; i++ {
		answers = append(answers, testAnswer{model.SubjectPhysics, "mechanics", "A", true, 70})
	}
	for i := 0; i < 3; i++ {
		answers = append(answers, testAnswer{model.SubjectPhysics, "optics", "B", false, 70})
	}
	sessID := seedSession(t, s, "user-1", answers)

	m, err := NewCalculator(s).Calculate(context.Background(), sessID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if m.CorrectAnswers != 7 || m.IncorrectAnswers != 3 || m.UnansweredQuestions != 0 {
		t.Errorf("partition = correct %d incorrect %d unanswered %d",
			m.CorrectAnswers, m.IncorrectAnswers, m.UnansweredQuestions)
	}
	if m.AccuracyPercentage != 70 {
		t.Errorf("accuracy = %v, want 70", m.AccuracyPercentage)
	}
}

func TestCalculateNoAnswers(t *testing.T) {
	s := newTestStore(t)

	// Every question skipped.
	answers := []testAnswer{
		{model.SubjectChemistry, "acids", "", false, 0},
		{model.SubjectChemistry, "acids", "", false, 0},
	}
	sessID := seedSession(t, s, "user-1", answers)

	m, err := NewCalculator(s).Calculate(context.Background(), sessID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if m.AnsweredQuestions != 0 || m.UnansweredQuestions != 2 {
		t.Errorf("answered = %d, unanswered = %d", m.AnsweredQuestions, m.UnansweredQuestions)
	}
	if m.AccuracyPercentage != 0 {
		t.Errorf("accuracy with no answers = %v, want 0", m.AccuracyPercentage)
	}
	if m.AverageTimePerQuestion != 0 {
		t.Errorf("averageTimePerQuestion with no answers = %v, want 0", m.AverageTimePerQuestion)
	}
	if m.ThinkingAbility.ConfidenceScore != 0 {
		t.Errorf("confidenceScore with no answers = %v, want 0", m.ThinkingAbility.ConfidenceScore)
	}
}

func TestCalculateSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := NewCalculator(s).Calculate(context.Background(), "no-such-session")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.ID != "no-such-session" {
		t.Errorf("NotFoundError.ID = %q", nf.ID)
	}
}

func TestTopicStrengthsAndWeaknesses(t *testing.T) {
	s := newTestStore(t)

	answers := []testAnswer{
		{model.SubjectPhysics, "optics", "A", true, 70},
		{model.SubjectPhysics, "optics", "A", true, 70},
		{model.SubjectPhysics, "thermodynamics", "B", false, 70},
		{model.SubjectPhysics, "thermodynamics", "B", false, 70},
		{model.SubjectPhysics, "mechanics", "A", true, 70},
		{model.SubjectPhysics, "mechanics", "B", false, 70},
	}
	sessID := seedSession(t, s, "user-1", answers)

	m, err := NewCalculator(s).Calculate(context.Background(), sessID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	sb := m.Subjects[0]

	if len(sb.Strengths) != 1 || sb.Strengths[0] != "optics" {
		t.Errorf("strengths = %v, want [optics]", sb.Strengths)
	}
	if len(sb.Weaknesses) != 1 || sb.Weaknesses[0] != "thermodynamics" {
		t.Errorf("weaknesses = %v, want [thermodynamics]", sb.Weaknesses)
	}
	// mechanics at 50% is neither.
	if len(sb.TopicBreakdown) != 3 {
		t.Errorf("expected 3 topics, got %d", len(sb.TopicBreakdown))
	}
}

func TestTimeManagementBuckets(t *testing.T) {
	s := newTestStore(t)

	answers := []testAnswer{
		{model.SubjectPhysics, "optics", "A", true, 30},   // fast
		{model.SubjectPhysics, "optics", "A", true, 90},   // normal
		{model.SubjectPhysics, "optics", "B", false, 150}, // slow
		{model.SubjectPhysics, "optics", "A", true, 60},   // boundary: normal
		{model.SubjectPhysics, "optics", "A", true, 120},  // boundary: normal
	}
	sessID := seedSession(t, s, "user-1", answers)

	m, err := NewCalculator(s).Calculate(context.Background(), sessID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	tm := m.TimeManagement

	if tm.FastCount != 1 || tm.NormalCount != 3 || tm.SlowCount != 1 {
		t.Errorf("buckets = fast %d normal %d slow %d", tm.FastCount, tm.NormalCount, tm.SlowCount)
	}
	if tm.FastCount+tm.NormalCount+tm.SlowCount != m.AnsweredQuestions {
		t.Errorf("bucket sum != answered")
	}
	if tm.TimePerSubject[model.SubjectPhysics] != m.TotalTimeSpent {
		t.Errorf("timePerSubject = %d, want %d", tm.TimePerSubject[model.SubjectPhysics], m.TotalTimeSpent)
	}
}

func TestThinkingAbilityImpulsive(t *testing.T) {
	s := newTestStore(t)

	// All answers wrong and locked in fast: confidence bottoms out at 0.
	var answers []testAnswer
	for i := 0; i < 5; i++ {
		answers = append(answers, testAnswer{model.SubjectPhysics, "optics", "B", false, 10})
	}
	sessID := seedSession(t, s, "user-1", answers)

	m, err := NewCalculator(s).Calculate(context.Background(), sessID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	ta := m.ThinkingAbility

	if ta.ImpulsiveErrors != 5 {
		t.Errorf("impulsiveErrors = %d, want 5", ta.ImpulsiveErrors)
	}
	if ta.ConfidenceScore != 0 {
		t.Errorf("confidenceScore = %v, want 0", ta.ConfidenceScore)
	}

	found := false
	for _, insight := range ta.Insights {
		if insight == appI18n.T(context.Background(), "ImpulsiveInsight") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected impulsive insight, got %v", ta.Insights)
	}
}

func TestThinkingAbilityConfidenceCeiling(t *testing.T) {
	s := newTestStore(t)

	// Everything correct and fast: 100 + 5 clamps back to 100.
	var answers []testAnswer
	for i := 0; i < 5; i++ {
		answers = append(answers, testAnswer{model.SubjectPhysics, "optics", "A", true, 40})
	}
	sessID := seedSession(t, s, "user-1", answers)

	m, err := NewCalculator(s).Calculate(context.Background(), sessID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if m.ThinkingAbility.ConfidenceScore != 100 {
		t.Errorf("confidenceScore = %v, want 100", m.ThinkingAbility.ConfidenceScore)
	}
	if m.ThinkingAbility.QuickCorrect != 5 {
		t.Errorf("quickCorrect = %d, want 5", m.ThinkingAbility.QuickCorrect)
	}
}

func TestCalculateAndStoreUpsert(t *testing.T) {
	s := newTestStore(t)

	answers := []testAnswer{
		{model.SubjectPhysics, "optics", "A", true, 70},
		{model.SubjectChemistry, "acids", "B", false, 70},
	}
	sessID := seedSession(t, s, "user-1", answers)

	calc := NewCalculator(s)
	m, elapsed, err := calc.CalculateAndStore(context.Background(), sessID)
	if err != nil {
		t.Fatalf("CalculateAndStore: %v", err)
	}
	if elapsed < 0 {
		t.Errorf("elapsed = %d", elapsed)
	}
	if len(m.Subjects) != 2 {
		t.Fatalf("expected 2 subject breakdowns, got %d", len(m.Subjects))
	}

	// Recalculating must not duplicate the persisted rows.
	if _, _, err := calc.CalculateAndStore(context.Background(), sessID); err != nil {
		t.Fatalf("CalculateAndStore again: %v", err)
	}
	rows, err := s.ListSubjectMetricsBySession(sessID)
	if err != nil {
		t.Fatalf("ListSubjectMetricsBySession: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 metrics rows after recalculation, got %d", len(rows))
	}
}
