package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/simulacroapp/simulacro/internal/models"
)

// ExportResponsesCSV renders graded responses in long format, one row per
// answer. Rows are ordered by submission time for stable output.
func ExportResponsesCSV(responses []*models.Response, nicknames map[string]string) ([]byte, error) {
	sorted := make([]*models.Response, len(responses))
	copy(sorted, responses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
	})

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{
		"participant", "round_id", "question_id", "answer",
		"is_correct", "points_earned", "points_possible", "submitted_at",
	})
	for _, r := range sorted {
		name := nicknames[r.UserID]
		if name == "" {
			name = r.UserID
		}
		rec := []string{
			name,
			r.RoundID,
			r.QuestionID,
			answerCell(r.Answer),
			strconv.FormatBool(r.IsCorrect),
			ftoa(r.PointsEarned),
			ftoa(r.PointsPossible),
			r.SubmittedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportEvaluationsCSV renders one row per submitted evaluation, sorted by
// participant for stable output.
func ExportEvaluationsCSV(evals []*models.Evaluation, nicknames map[string]string) ([]byte, error) {
	sorted := make([]*models.Evaluation, len(evals))
	copy(sorted, evals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UserID < sorted[j].UserID
	})

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{
		"participant", "overall_rating", "scenario_rating", "difficulty_rating",
		"would_recommend", "comment", "submitted_at",
	})
	for _, e := range sorted {
		name := nicknames[e.UserID]
		if name == "" {
			name = e.UserID
		}
		rec := []string{
			name,
			strconv.Itoa(e.OverallRating),
			strconv.Itoa(e.ScenarioRating),
			strconv.Itoa(e.DifficultyRating),
			strconv.FormatBool(e.WouldRecommend),
			e.Comment,
			e.SubmittedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// answerCell flattens a tagged answer into a single CSV cell. Compound
// answers use a pipe separator; csv.Writer quotes when needed.
func answerCell(a models.AnswerValue) string {
	switch a.Type {
	case models.QuestionMultipleChoice:
		if a.Choice != nil {
			return strconv.Itoa(*a.Choice)
		}
	case models.QuestionTrueFalse:
		if a.Bool != nil {
			return strconv.FormatBool(*a.Bool)
		}
	case models.QuestionNumeric:
		if a.Number != nil {
			return ftoa(*a.Number)
		}
	case models.QuestionMatching:
		parts := make([]string, 0, len(a.Pairs))
		for _, p := range a.Pairs {
			parts = append(parts, p.Left+"="+p.Right)
		}
		return strings.Join(parts, " | ")
	case models.QuestionOrdering:
		return strings.Join(a.Order, " | ")
	}
	return ""
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
