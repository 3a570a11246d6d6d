package analytics

import (
	"context"
	"testing"
)

func TestRecommendationsNoHistory(t *testing.T) {
	s := newTestStore(t)

	recs, err := NewRecommender(NewAggregator(s)).Recommendations(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no recommendations for a new user, got %d", len(recs))
	}
}

func TestRecommendationsStrugglingUser(t *testing.T) {
	s := newTestStore(t)

	// Two tests at a flat 50% with a recurring weakness.
	seedMetricsSession(t, s, "user-1", 20, 10, nil, []string{"optics"})
	seedMetricsSession(t, s, "user-1", 20, 10, nil, []string{"optics"})

	recs, err := NewRecommender(NewAggregator(s)).Recommendations(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}

	byType := make(map[string][]string)
	for _, rec := range recs {
		byType[rec.Type] = append(byType[rec.Type], rec.Priority)
	}

	// Weak-areas rule: one high-priority topic recommendation.
	if got := byType[RecTypeTopic]; len(got) != 1 || got[0] != PriorityHigh {
		t.Errorf("topic recommendations = %v, want one high", got)
	}
	// Physics averages 50%, below the 60% floor.
	if got := byType[RecTypeSubject]; len(got) != 1 || got[0] != PriorityHigh {
		t.Errorf("subject recommendations = %v, want one high", got)
	}
	// Recent accuracy under 70% triggers the strategy rule; scores are
	// perfectly consistent, so the consistency rule stays quiet.
	if got := byType[RecTypeStrategy]; len(got) != 1 || got[0] != PriorityMedium {
		t.Errorf("strategy recommendations = %v, want one medium", got)
	}

	for _, rec := range recs {
		if rec.Title == "" || rec.Description == "" || len(rec.ActionItems) == 0 {
			t.Errorf("incomplete recommendation: %+v", rec)
		}
	}
}

func TestRecommendationsHealthyUser(t *testing.T) {
	s := newTestStore(t)

	// Steady 85% with no recorded weaknesses: no rule should fire.
	seedMetricsSession(t, s, "user-1", 20, 17, []string{"optics"}, nil)
	seedMetricsSession(t, s, "user-1", 20, 17, []string{"optics"}, nil)

	recs, err := NewRecommender(NewAggregator(s)).Recommendations(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no recommendations, got %+v", recs)
	}
}
