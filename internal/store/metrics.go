package store

import (
	"github.com/google/uuid"

	"github.com/prepdash/prepdash/internal/model"
)

// UpsertSubjectMetrics writes one per-(session, subject) metrics row.
// Recalculating a session overwrites the existing row instead of
// appending a duplicate.
func (s *Store) UpsertSubjectMetrics(m model.SubjectMetrics) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO subject_metrics
		   (id, session_id, user_id, subject, total_questions, correct_answers,
		    accuracy_percentage, average_time, strengths, weaknesses, calculated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, subject) DO UPDATE SET
		   total_questions = excluded.total_questions,
		   correct_answers = excluded.correct_answers,
		   accuracy_percentage = excluded.accuracy_percentage,
		   average_time = excluded.average_time,
		   strengths = excluded.strengths,
		   weaknesses = excluded.weaknesses,
		   calculated_at = excluded.calculated_at`,
		m.ID, m.SessionID, m.UserID, m.Subject, m.TotalQuestions, m.CorrectAnswers,
		m.AccuracyPercentage, m.AverageTimePerQuestion,
		marshalStrings(m.Strengths), marshalStrings(m.Weaknesses), m.CalculatedAt,
	)
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// ListSubjectMetricsByUser returns all of a user's metrics rows, ascending
// by calculation time.
func (s *Store) ListSubjectMetricsByUser(userID string) ([]model.SubjectMetrics, error) {
	return s.listSubjectMetrics(`user_id = ?`, userID)
}

// ListSubjectMetricsBySession returns the metrics rows for one session.
func (s *Store) ListSubjectMetricsBySession(sessionID string) ([]model.SubjectMetrics, error) {
	return s.listSubjectMetrics(`session_id = ?`, sessionID)
}

func (s *Store) listSubjectMetrics(where string, arg any) ([]model.SubjectMetrics, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, user_id, subject, total_questions, correct_answers,
		        accuracy_percentage, average_time, strengths, weaknesses, calculated_at
		 FROM subject_metrics WHERE `+where+` ORDER BY calculated_at ASC, subject ASC`, arg,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var metrics []model.SubjectMetrics
	for rows.Next() {
		var m model.SubjectMetrics
		var strengths, weaknesses string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Subject, &m.TotalQuestions, &m.CorrectAnswers,
			&m.AccuracyPercentage, &m.AverageTimePerQuestion, &strengths, &weaknesses, &m.CalculatedAt); err != nil {
			return nil, err
		}
		m.Strengths = unmarshalStrings(strengths)
		m.Weaknesses = unmarshalStrings(weaknesses)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
