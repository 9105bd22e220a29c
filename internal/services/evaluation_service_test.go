package services

import (
	"context"
	"strings"
	"testing"

	"github.com/simulacroapp/simulacro/internal/models"
)

func newEvaluationFixture() (*fakeStore, *EvaluationService) {
	store := newFakeStore()
	sess := testSession("S1", 3)
	sess.Status = models.StatusCompleted
	store.putSession(sess)
	svc := NewEvaluationService(store)
	svc.now = fixedClock(t0)
	return store, svc
}

func validEvaluation() EvaluationInput {
	return EvaluationInput{
		OverallRating:    4,
		ScenarioRating:   5,
		DifficultyRating: 3,
		WouldRecommend:   true,
		Comment:          "muy realista",
	}
}

func TestEvaluationSubmit(t *testing.T) {
	store, svc := newEvaluationFixture()

	eval, err := svc.Submit(context.Background(), "S1", "P1", validEvaluation())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if eval.OverallRating != 4 || !eval.WouldRecommend || !eval.SubmittedAt.Equal(t0) {
		t.Fatalf("evaluation: %+v", eval)
	}
	stored, _ := store.GetEvaluation(context.Background(), "S1", "P1")
	if stored == nil || stored.Comment != "muy realista" {
		t.Fatalf("stored evaluation: %+v", stored)
	}
}

func TestEvaluationSubmitGuards(t *testing.T) {
	store, svc := newEvaluationFixture()

	if _, err := svc.Submit(context.Background(), "S1", "F", validEvaluation()); ReasonOf(err) != ReasonNotParticipant {
		t.Fatalf("facilitator reason = %q, want NOT_PARTICIPANT", ReasonOf(err))
	}

	store.sessions["S1"].Status = models.StatusActive
	_, err := svc.Submit(context.Background(), "S1", "P1", validEvaluation())
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConflict || se.Message != "la sesión aún no finaliza" {
		t.Fatalf("active session: %v", err)
	}
	store.sessions["S1"].Status = models.StatusCompleted

	for _, in := range []EvaluationInput{
		{OverallRating: 0, ScenarioRating: 3, DifficultyRating: 3},
		{OverallRating: 3, ScenarioRating: 6, DifficultyRating: 3},
		{OverallRating: 3, ScenarioRating: 3, DifficultyRating: -1},
	} {
		if _, err := svc.Submit(context.Background(), "S1", "P1", in); err == nil {
			t.Fatalf("rating out of range accepted: %+v", in)
		}
	}
}

func TestEvaluationCommentTruncated(t *testing.T) {
	store, svc := newEvaluationFixture()

	in := validEvaluation()
	in.Comment = strings.Repeat("ñ", 1500)
	if _, err := svc.Submit(context.Background(), "S1", "P1", in); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	stored, _ := store.GetEvaluation(context.Background(), "S1", "P1")
	if got := len([]rune(stored.Comment)); got != 1000 {
		t.Fatalf("comment runes = %d, want 1000", got)
	}
}

func TestEvaluationDuplicateConflicts(t *testing.T) {
	_, svc := newEvaluationFixture()

	if _, err := svc.Submit(context.Background(), "S1", "P1", validEvaluation()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := svc.Submit(context.Background(), "S1", "P1", validEvaluation()); ReasonOf(err) != ReasonAlreadySubmitted {
		t.Fatalf("reason = %q, want ALREADY_SUBMITTED", ReasonOf(err))
	}
}

func TestEvaluationGetByRole(t *testing.T) {
	_, svc := newEvaluationFixture()

	in := validEvaluation()
	if _, err := svc.Submit(context.Background(), "S1", "P1", in); err != nil {
		t.Fatalf("seed P1: %v", err)
	}
	in.OverallRating = 2
	in.WouldRecommend = false
	if _, err := svc.Submit(context.Background(), "S1", "P2", in); err != nil {
		t.Fatalf("seed P2: %v", err)
	}

	report, err := svc.Get(context.Background(), "S1", "F")
	if err != nil {
		t.Fatalf("facilitator get: %v", err)
	}
	if len(report.Evaluations) != 2 || report.Stats == nil || report.Own != nil {
		t.Fatalf("facilitator report: %+v", report)
	}

	own, err := svc.Get(context.Background(), "S1", "P1")
	if err != nil {
		t.Fatalf("participant get: %v", err)
	}
	if own.Own == nil || own.Own.UserID != "P1" || own.Evaluations != nil {
		t.Fatalf("participant report: %+v", own)
	}

	// A participant who has not evaluated yet gets an empty report.
	pending, err := svc.Get(context.Background(), "S1", "P3")
	if err != nil || pending.Own != nil {
		t.Fatalf("pending report: %v %+v", err, pending)
	}
}

func TestAggregate(t *testing.T) {
	evals := []*models.Evaluation{
		{OverallRating: 5, ScenarioRating: 4, DifficultyRating: 3, WouldRecommend: true},
		{OverallRating: 4, ScenarioRating: 4, DifficultyRating: 2, WouldRecommend: true},
		{OverallRating: 2, ScenarioRating: 3, DifficultyRating: 5, WouldRecommend: false},
	}
	stats := Aggregate(evals)
	if stats.Count != 3 {
		t.Fatalf("count = %d", stats.Count)
	}
	if stats.AvgOverall != 3.7 || stats.AvgScenario != 3.7 || stats.AvgDifficulty != 3.3 {
		t.Fatalf("averages: %+v", stats)
	}
	if stats.RecommendPct != 67 {
		t.Fatalf("recommend pct = %d, want 67", stats.RecommendPct)
	}
	want := []int{0, 1, 0, 1, 1}
	for i, n := range want {
		if stats.OverallHistogram[i] != n {
			t.Fatalf("histogram = %v, want %v", stats.OverallHistogram, want)
		}
	}
}

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil)
	if stats.Count != 0 || stats.AvgOverall != 0 || stats.RecommendPct != 0 {
		t.Fatalf("empty stats: %+v", stats)
	}
	if len(stats.OverallHistogram) != 5 {
		t.Fatalf("histogram length = %d, want 5", len(stats.OverallHistogram))
	}
}
