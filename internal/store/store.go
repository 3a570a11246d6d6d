package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prepdash/prepdash/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks storage connectivity for health probes.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS test_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		subjects TEXT NOT NULL DEFAULT '[]',
		total_questions INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		text TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		correct_option TEXT NOT NULL,
		topic TEXT NOT NULL,
		subtopic TEXT NOT NULL DEFAULT '',
		concepts TEXT NOT NULL DEFAULT '[]',
		estimated_time INTEGER NOT NULL DEFAULT 60
	);

	CREATE TABLE IF NOT EXISTS session_questions (
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES test_sessions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		selected_option TEXT,
		is_correct INTEGER NOT NULL DEFAULT 0,
		time_spent INTEGER NOT NULL DEFAULT 0,
		marked_for_review INTEGER NOT NULL DEFAULT 0,
		answered_at DATETIME,
		PRIMARY KEY (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES test_sessions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS subject_metrics (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		total_questions INTEGER NOT NULL DEFAULT 0,
		correct_answers INTEGER NOT NULL DEFAULT 0,
		accuracy_percentage REAL NOT NULL DEFAULT 0,
		average_time REAL NOT NULL DEFAULT 0,
		strengths TEXT NOT NULL DEFAULT '[]',
		weaknesses TEXT NOT NULL DEFAULT '[]',
		calculated_at DATETIME NOT NULL,
		UNIQUE (session_id, subject),
		FOREIGN KEY (session_id) REFERENCES test_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS import_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// marshalStrings encodes a string list for a JSON TEXT column.
// nil encodes as an empty list, never as SQL NULL.
func marshalStrings(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	if len(list) == 0 {
		return nil
	}
	return list
}

func marshalSubjects(subjects []model.Subject) string {
	list := make([]string, len(subjects))
	for i, s := range subjects {
		list[i] = string(s)
	}
	return marshalStrings(list)
}

func unmarshalSubjects(raw string) []model.Subject {
	list := unmarshalStrings(raw)
	if list == nil {
		return nil
	}
	subjects := make([]model.Subject, len(list))
	for i, s := range list {
		subjects[i] = model.Subject(s)
	}
	return subjects
}

// CreateSession creates a test session and assigns the given questions to it.
func (s *Store) CreateSession(userID string, subjects []model.Subject, questionIDs []string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.Exec(
		`INSERT INTO test_sessions (id, user_id, subjects, total_questions, status, started_at)
		 VALUES (?, ?, ?, ?, 'active', ?)`,
		id, userID, marshalSubjects(subjects), len(questionIDs), time.Now(),
	)
	if err != nil {
		return "", err
	}

	for i, qID := range questionIDs {
		_, err := tx.Exec(
			`INSERT INTO session_questions (session_id, question_id, position) VALUES (?, ?, ?)`,
			id, qID, i,
		)
		if err != nil {
			return "", err
		}
	}

	return id, tx.Commit()
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id string) (model.TestSession, error) {
	var sess model.TestSession
	var subjects string
	err := s.db.QueryRow(
		`SELECT id, user_id, subjects, total_questions, status, started_at, completed_at
		 FROM test_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &subjects, &sess.TotalQuestions, &sess.Status, &sess.StartedAt, &sess.CompletedAt)
	if err != nil {
		return sess, err
	}
	sess.Subjects = unmarshalSubjects(subjects)
	return sess, nil
}

// UpdateSessionStatus updates the session status. Completing a session also
// stamps completed_at.
func (s *Store) UpdateSessionStatus(id string, status model.SessionStatus) error {
	query := `UPDATE test_sessions SET status = ? WHERE id = ?`
	args := []any{status, id}
	if status == model.StatusCompleted {
		query = `UPDATE test_sessions SET status = ?, completed_at = ? WHERE id = ?`
		args = []any{status, time.Now(), id}
	}
	_, err := s.db.Exec(query, args...)
	return err
}

// ListSessionsByUserAndStatus returns a user's sessions with the given
// status, ascending by start time.
func (s *Store) ListSessionsByUserAndStatus(userID string, status model.SessionStatus) ([]model.TestSession, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, subjects, total_questions, status, started_at, completed_at
		 FROM test_sessions WHERE user_id = ? AND status = ? ORDER BY started_at ASC`,
		userID, status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.TestSession
	for rows.Next() {
		var sess model.TestSession
		var subjects string
		if err := rows.Scan(&sess.ID, &sess.UserID, &subjects, &sess.TotalQuestions, &sess.Status, &sess.StartedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		sess.Subjects = unmarshalSubjects(subjects)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// InsertQuestion stores a question, generating an ID when none is set.
func (s *Store) InsertQuestion(q model.Question) (string, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO questions (id, subject, difficulty, text, options, correct_option, topic, subtopic, concepts, estimated_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Subject, q.Difficulty, q.Text, marshalStrings(q.Options), q.CorrectOption,
		q.Topic, q.Subtopic, marshalStrings(q.Concepts), q.EstimatedTime,
	)
	if err != nil {
		return "", err
	}
	return q.ID, nil
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id string) (model.Question, error) {
	var q model.Question
	var options, concepts string
	err := s.db.QueryRow(
		`SELECT id, subject, difficulty, text, options, correct_option, topic, subtopic, concepts, estimated_time
		 FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.Subject, &q.Difficulty, &q.Text, &options, &q.CorrectOption, &q.Topic, &q.Subtopic, &concepts, &q.EstimatedTime)
	if err != nil {
		return q, err
	}
	q.Options = unmarshalStrings(options)
	q.Concepts = unmarshalStrings(concepts)
	return q, nil
}

// ListQuestionsForSession returns the questions assigned to a session,
// joined through the assignment relation in assignment order.
func (s *Store) ListQuestionsForSession(sessionID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT q.id, q.subject, q.difficulty, q.text, q.options, q.correct_option, q.topic, q.subtopic, q.concepts, q.estimated_time
		 FROM questions q
		 JOIN session_questions sq ON sq.question_id = q.id
		 WHERE sq.session_id = ?
		 ORDER BY sq.position`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options, concepts string
		if err := rows.Scan(&q.ID, &q.Subject, &q.Difficulty, &q.Text, &options, &q.CorrectOption, &q.Topic, &q.Subtopic, &concepts, &q.EstimatedTime); err != nil {
			return nil, err
		}
		q.Options = unmarshalStrings(options)
		q.Concepts = unmarshalStrings(concepts)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListQuestionsBySubject returns all bank questions for a subject.
func (s *Store) ListQuestionsBySubject(subject model.Subject) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, subject, difficulty, text, options, correct_option, topic, subtopic, concepts, estimated_time
		 FROM questions WHERE subject = ?`, subject,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options, concepts string
		if err := rows.Scan(&q.ID, &q.Subject, &q.Difficulty, &q.Text, &options, &q.CorrectOption, &q.Topic, &q.Subtopic, &concepts, &q.EstimatedTime); err != nil {
			return nil, err
		}
		q.Options = unmarshalStrings(options)
		q.Concepts = unmarshalStrings(concepts)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// SaveAnswer upserts one answer row for a (session, question) pair.
func (s *Store) SaveAnswer(a model.Answer) error {
	_, err := s.db.Exec(
		`INSERT INTO answers (session_id, question_id, selected_option, is_correct, time_spent, marked_for_review, answered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, question_id) DO UPDATE SET
		   selected_option = excluded.selected_option,
		   is_correct = excluded.is_correct,
		   time_spent = excluded.time_spent,
		   marked_for_review = excluded.marked_for_review,
		   answered_at = excluded.answered_at`,
		a.SessionID, a.QuestionID, a.SelectedOption, a.IsCorrect, a.TimeSpent, a.MarkedForReview, a.AnsweredAt,
	)
	return err
}

// ListAnswersBySession returns all answers recorded for a session.
func (s *Store) ListAnswersBySession(sessionID string) ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT session_id, question_id, selected_option, is_correct, time_spent, marked_for_review, answered_at
		 FROM answers WHERE session_id = ?`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.SessionID, &a.QuestionID, &a.SelectedOption, &a.IsCorrect, &a.TimeSpent, &a.MarkedForReview, &a.AnsweredAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// QuestionCount returns the number of questions in the bank.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
