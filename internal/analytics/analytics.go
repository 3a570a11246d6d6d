// Package analytics turns raw per-question answer records into performance
// metrics, longitudinal progress, comparisons, trend predictions, and
// study recommendations. Every component takes its storage dependency
// explicitly; nothing here keeps in-process state between requests.
package analytics

import (
	"fmt"

	"github.com/prepdash/prepdash/internal/model"
)

// Store is the storage collaborator consumed by the analytics components.
// *store.Store satisfies it; tests may substitute their own.
type Store interface {
	GetSession(id string) (model.TestSession, error)
	ListAnswersBySession(sessionID string) ([]model.Answer, error)
	ListQuestionsForSession(sessionID string) ([]model.Question, error)
	UpsertSubjectMetrics(m model.SubjectMetrics) (string, error)
	ListSubjectMetricsByUser(userID string) ([]model.SubjectMetrics, error)
	ListSubjectMetricsBySession(sessionID string) ([]model.SubjectMetrics, error)
	ListSessionsByUserAndStatus(userID string, status model.SessionStatus) ([]model.TestSession, error)
}

// NotFoundError reports a referenced session or user with no data.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ValidationError reports malformed caller input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// StorageError wraps a failure raised by the storage collaborator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ratio returns num/den*100 with an explicit zero-denominator branch so no
// NaN ever propagates out of the engine.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
