package model

import "time"

// Subject identifies one of the fixed exam subjects.
type Subject string

const (
	SubjectPhysics     Subject = "physics"
	SubjectChemistry   Subject = "chemistry"
	SubjectMathematics Subject = "mathematics"
)

// AllSubjects returns the fixed subject list in canonical order.
func AllSubjects() []Subject {
	return []Subject{SubjectPhysics, SubjectChemistry, SubjectMathematics}
}

// SessionStatus represents the lifecycle state of a test session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// TestSession represents one mock-test attempt. It is created by the
// test-taking flow and read-only to the analytics engine.
type TestSession struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	Subjects       []Subject     `json:"subjects"`
	TotalQuestions int           `json:"totalQuestions"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"startedAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
}

// Question represents a question-bank item.
type Question struct {
	ID            string     `json:"id"`
	Subject       Subject    `json:"subject"`
	Difficulty    Difficulty `json:"difficulty"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectOption string     `json:"correctOption"`
	Topic         string     `json:"topic"`
	Subtopic      string     `json:"subtopic"`
	Concepts      []string   `json:"concepts"`
	EstimatedTime int        `json:"estimatedTime"`
}

// Answer represents one user response to one question within a session.
// SelectedOption is nil when the question was left unanswered; IsCorrect
// is meaningful only when an option was selected.
type Answer struct {
	SessionID       string     `json:"sessionId"`
	QuestionID      string     `json:"questionId"`
	SelectedOption  *string    `json:"selectedOption,omitempty"`
	IsCorrect       bool       `json:"isCorrect"`
	TimeSpent       int        `json:"timeSpent"`
	MarkedForReview bool       `json:"markedForReview"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
}

// Answered reports whether an option was actually selected.
func (a Answer) Answered() bool {
	return a.SelectedOption != nil && *a.SelectedOption != ""
}

// SubjectMetrics is the persisted per-(session, subject) performance
// summary produced by the metrics calculator.
type SubjectMetrics struct {
	ID                     string    `json:"id"`
	SessionID              string    `json:"sessionId"`
	UserID                 string    `json:"userId"`
	Subject                Subject   `json:"subject"`
	TotalQuestions         int       `json:"totalQuestions"`
	CorrectAnswers         int       `json:"correctAnswers"`
	AccuracyPercentage     float64   `json:"accuracyPercentage"`
	AverageTimePerQuestion float64   `json:"averageTimePerQuestion"`
	Strengths              []string  `json:"strengths"`
	Weaknesses             []string  `json:"weaknesses"`
	CalculatedAt           time.Time `json:"calculatedAt"`
}

// QuestionImport is used for loading questions from a bank JSON file.
type QuestionImport struct {
	Subject       Subject    `json:"subject"`
	Difficulty    Difficulty `json:"difficulty"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectOption string     `json:"correct_option"`
	Topic         string     `json:"topic"`
	Subtopic      string     `json:"subtopic"`
	Concepts      []string   `json:"concepts"`
	EstimatedTime int        `json:"estimated_time"`
}
