package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prepdash/prepdash/internal/event"
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

func newTestServer(t *testing.T) (*store.Store, *httptest.Server) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("newTestServer: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := New(s, event.NopPublisher{})
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	h.Routes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return s, ts
}

func seedAnsweredSession(t *testing.T, s *store.Store, userID string) string {
	t.Helper()

	var questionIDs []string
	for i := 0; i < 4; i++ {
		qID, err := s.InsertQuestion(model.Question{
			Subject:       model.SubjectPhysics,
			Difficulty:    model.DifficultyMedium,
			Text:          "q",
			Options:       []string{"A", "B"},
			CorrectOption: "A",
			Topic:         "optics",
			EstimatedTime: 90,
		})
		if err != nil {
			t.Fatalf("seed question: %v", err)
		}
		questionIDs = append(questionIDs, qID)
	}

	sessID, err := s.CreateSession(userID, []model.Subject{model.SubjectPhysics}, questionIDs)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	now := time.Now()
	selected := "A"
	for i, qID := range questionIDs {
		a := model.Answer{
			SessionID:      sessID,
			QuestionID:     qID,
			SelectedOption: &selected,
			IsCorrect:      i < 3, // 3 of 4 correct
			TimeSpent:      80,
			AnsweredAt:     &now,
		}
		if err := s.SaveAnswer(a); err != nil {
			t.Fatalf("seed answer: %v", err)
		}
	}
	return sessID
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeError(t *testing.T, resp *http.Response) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env
}

func TestCalculateEndpoint(t *testing.T) {
	s, ts := newTestServer(t)
	sessID := seedAnsweredSession(t, s, "user-1")

	resp, err := http.Post(ts.URL+"/calculate/"+sessID, "application/json", nil)
	if err != nil {
		t.Fatalf("POST /calculate: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		SessionID          string  `json:"sessionId"`
		AccuracyPercentage float64 `json:"accuracyPercentage"`
		AnsweredQuestions  int     `json:"answeredQuestions"`
		CalculationTimeMs  int64   `json:"calculationTimeMs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.SessionID != sessID {
		t.Errorf("sessionId = %q, want %q", body.SessionID, sessID)
	}
	if body.AccuracyPercentage != 75 {
		t.Errorf("accuracyPercentage = %v, want 75", body.AccuracyPercentage)
	}
	if body.CalculationTimeMs < 0 {
		t.Errorf("calculationTimeMs = %d", body.CalculationTimeMs)
	}

	// The calculation must have persisted a physics metrics row.
	rows, err := s.ListSubjectMetricsBySession(sessID)
	if err != nil {
		t.Fatalf("ListSubjectMetricsBySession: %v", err)
	}
	if len(rows) != 1 || rows[0].Subject != model.SubjectPhysics {
		t.Errorf("persisted rows = %+v", rows)
	}
}

func TestCalculateNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/calculate/no-such-session", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /calculate: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	env := decodeError(t, resp)
	if env.Error.Code != "NOT_FOUND" {
		t.Errorf("error code = %q, want NOT_FOUND", env.Error.Code)
	}
	if env.Error.RequestID == "" {
		t.Errorf("expected a request id in the error envelope")
	}
	if env.Error.Timestamp == "" {
		t.Errorf("expected a timestamp in the error envelope")
	}
}

func TestCompareValidation(t *testing.T) {
	_, ts := newTestServer(t)

	body := bytes.NewBufferString(`{"testSessionIds":["only-one"]}`)
	resp, err := http.Post(ts.URL+"/compare/user-1", "application/json", body)
	if err != nil {
		t.Fatalf("POST /compare: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	env := decodeError(t, resp)
	if env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error code = %q, want VALIDATION_ERROR", env.Error.Code)
	}
}

func TestCompareBadBody(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/compare/user-1", "application/json", bytes.NewBufferString("not json"))
	if err != nil {
		t.Fatalf("POST /compare: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestProgressEndpointNewUser(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/progress/nobody")
	if err != nil {
		t.Fatalf("GET /progress: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		UserID  string `json:"userId"`
		Overall struct {
			TotalTests int `json:"totalTests"`
		} `json:"overall"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.UserID != "nobody" || body.Overall.TotalTests != 0 {
		t.Errorf("unexpected progress body: %+v", body)
	}
}

func TestRecommendationsEndpoint(t *testing.T) {
	s, ts := newTestServer(t)
	sessID := seedAnsweredSession(t, s, "user-1")

	// Calculate and complete so the session enters the user's history.
	resp, err := http.Post(ts.URL+"/calculate/"+sessID, "application/json", nil)
	if err != nil {
		t.Fatalf("POST /calculate: %v", err)
	}
	resp.Body.Close()
	if err := s.UpdateSessionStatus(sessID, model.StatusCompleted); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}

	resp, err = http.Get(ts.URL + "/recommendations/user-1")
	if err != nil {
		t.Fatalf("GET /recommendations: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var recs []model.Recommendation
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, rec := range recs {
		if rec.Type == "" || rec.Priority == "" {
			t.Errorf("incomplete recommendation: %+v", rec)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/health/detailed")
	if err != nil {
		t.Fatalf("GET /health/detailed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("detailed health status = %d, want 200", resp2.StatusCode)
	}
	var body struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "ok" || body.Database != "ok" {
		t.Errorf("detailed health body = %+v", body)
	}
}

func TestTrendsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/trends/nobody")
	if err != nil {
		t.Fatalf("GET /trends: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body model.TrendAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.OverallTrend != model.TrendStable {
		t.Errorf("overallTrend = %q, want stable", body.OverallTrend)
	}
	if body.Prediction.Confidence != model.ConfidenceLow {
		t.Errorf("confidence = %q, want low", body.Prediction.Confidence)
	}
}
