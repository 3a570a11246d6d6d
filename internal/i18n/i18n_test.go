package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "ComparisonNeedMore")
	if got != "Take more tests to unlock meaningful comparisons." {
		t.Errorf("T(ComparisonNeedMore) = %q", got)
	}

	got = T(ctx, "RecStrategyTitle")
	if got != "Review your test-taking strategy" {
		t.Errorf("T(RecStrategyTitle) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "ComparisonNeedMore")
	if got != "Пройдите больше тестов, чтобы сравнение стало информативным." {
		t.Errorf("T(ComparisonNeedMore) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "SlowQuestions", 1)
	if got1 != "1 question took more than 2 minutes; tighten up your time management." {
		t.Errorf("Tp(SlowQuestions, 1) = %q", got1)
	}

	got5 := Tp(ctx, "SlowQuestions", 5)
	if got5 != "5 questions took more than 2 minutes; tighten up your time management." {
		t.Errorf("Tp(SlowQuestions, 5) = %q", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "OverallAccuracyImproved", map[string]any{"Delta": "5.0"})
	if got != "Overall accuracy improved by 5.0%" {
		t.Errorf("Td(OverallAccuracyImproved) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}
