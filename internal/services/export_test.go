package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/simulacroapp/simulacro/internal/models"
)

func TestExportResponsesCSV(t *testing.T) {
	later := t0.Add(time.Minute)
	responses := []*models.Response{
		{
			UserID: "P2", RoundID: "r0", QuestionID: "q2",
			Answer:    models.AnswerValue{Type: models.QuestionTrueFalse, Bool: boolPtr(true)},
			IsCorrect: true, PointsEarned: 5, PointsPossible: 5, SubmittedAt: later,
		},
		{
			UserID: "P1", RoundID: "r0", QuestionID: "q1",
			Answer:    models.AnswerValue{Type: models.QuestionMultipleChoice, Choice: intPtr(2)},
			IsCorrect: true, PointsEarned: 10, PointsPossible: 10, SubmittedAt: t0,
		},
	}
	nicknames := map[string]string{"P1": "jugadorP1"}

	data, err := ExportResponsesCSV(responses, nicknames)
	if err != nil {
		t.Fatalf("ExportResponsesCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d: %q", len(lines), lines)
	}
	if lines[0] != "participant,round_id,question_id,answer,is_correct,points_earned,points_possible,submitted_at" {
		t.Fatalf("header = %q", lines[0])
	}
	// Rows come out in submission order; unknown users fall back to the ID.
	if !strings.HasPrefix(lines[1], "jugadorP1,r0,q1,2,true,10,10,") {
		t.Fatalf("first row = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "P2,r0,q2,true,") {
		t.Fatalf("second row = %q", lines[2])
	}
	if !strings.HasSuffix(lines[1], t0.UTC().Format(time.RFC3339)) {
		t.Fatalf("timestamp format: %q", lines[1])
	}
}

func TestExportEvaluationsCSV(t *testing.T) {
	evals := []*models.Evaluation{
		{UserID: "P2", OverallRating: 3, ScenarioRating: 4, DifficultyRating: 2, WouldRecommend: false, Comment: "regular", SubmittedAt: t0},
		{UserID: "P1", OverallRating: 5, ScenarioRating: 5, DifficultyRating: 3, WouldRecommend: true, Comment: "útil, muy realista", SubmittedAt: t0},
	}
	data, err := ExportEvaluationsCSV(evals, map[string]string{"P1": "jugadorP1", "P2": "jugadorP2"})
	if err != nil {
		t.Fatalf("ExportEvaluationsCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d: %q", len(lines), lines)
	}
	// Sorted by participant; the comma in the comment gets quoted.
	if !strings.HasPrefix(lines[1], `jugadorP1,5,5,3,true,"útil, muy realista",`) {
		t.Fatalf("first row = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "jugadorP2,3,4,2,false,regular,") {
		t.Fatalf("second row = %q", lines[2])
	}
}

func TestAnswerCell(t *testing.T) {
	cases := []struct {
		answer models.AnswerValue
		want   string
	}{
		{models.AnswerValue{Type: models.QuestionMultipleChoice, Choice: intPtr(1)}, "1"},
		{models.AnswerValue{Type: models.QuestionTrueFalse, Bool: boolPtr(false)}, "false"},
		{models.AnswerValue{Type: models.QuestionNumeric, Number: floatPtr(2.5)}, "2.5"},
		{models.AnswerValue{Type: models.QuestionMatching, Pairs: []models.MatchPair{
			{Left: "a", Right: "x"}, {Left: "b", Right: "y"},
		}}, "a=x | b=y"},
		{models.AnswerValue{Type: models.QuestionOrdering, Order: []string{"uno", "dos"}}, "uno | dos"},
		{models.AnswerValue{Type: models.QuestionMultipleChoice}, ""},
	}
	for _, c := range cases {
		if got := answerCell(c.answer); got != c.want {
			t.Fatalf("answerCell(%+v) = %q, want %q", c.answer, got, c.want)
		}
	}
}

func TestExportCSVService(t *testing.T) {
	store := newFakeStore()
	store.putSession(testSession("S1", 1))
	store.responses[respKey("S1", "P1", "r0", "q1")] = &models.Response{
		SessionID: "S1", UserID: "P1", RoundID: "r0", QuestionID: "q1",
		Answer:      models.AnswerValue{Type: models.QuestionMultipleChoice, Choice: intPtr(0)},
		SubmittedAt: t0,
	}
	svc := NewExportService(store)

	res, err := svc.ExportCSV(context.Background(), "S1", "F", "")
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if res.Filename != "respuestas-S1.csv" || res.ContentType != "text/csv; charset=utf-8" {
		t.Fatalf("result meta: %+v", res)
	}
	if !strings.Contains(string(res.Data), "jugadorP1,r0,q1,0,") {
		t.Fatalf("csv body: %q", res.Data)
	}

	res, err = svc.ExportCSV(context.Background(), "S1", "F", "evaluations")
	if err != nil || res.Filename != "evaluaciones-S1.csv" {
		t.Fatalf("evaluations export: %v %+v", err, res)
	}

	if _, err := svc.ExportCSV(context.Background(), "S1", "P1", ""); ReasonOf(err) != ReasonNotFacilitator {
		t.Fatalf("reason = %q, want NOT_FACILITATOR", ReasonOf(err))
	}
	if _, err := svc.ExportCSV(context.Background(), "S1", "F", "pdf"); err == nil {
		t.Fatal("unknown kind accepted")
	}
}
