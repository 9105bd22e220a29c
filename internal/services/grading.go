package services

import (
	"encoding/json"
	"fmt"

	"github.com/simulacroapp/simulacro/internal/models"
)

// ParseAnswer decodes a raw submitted payload into the tagged answer shape
// dictated by the question type.
func ParseAnswer(q *models.Question, raw json.RawMessage) (models.AnswerValue, error) {
	ans := models.AnswerValue{Type: q.Type}
	if len(raw) == 0 {
		return ans, NewInvalidError("la respuesta es obligatoria")
	}
	switch q.Type {
	case models.QuestionMultipleChoice:
		var idx int
		if err := json.Unmarshal(raw, &idx); err != nil {
			return ans, NewInvalidError("la respuesta debe ser el índice de una opción")
		}
		if idx < 0 || idx >= len(q.Options) {
			return ans, NewInvalidError(fmt.Sprintf("la opción debe estar entre 0 y %d", len(q.Options)-1))
		}
		ans.Choice = &idx
	case models.QuestionTrueFalse:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return ans, NewInvalidError("la respuesta debe ser verdadero o falso")
		}
		ans.Bool = &b
	case models.QuestionNumeric:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return ans, NewInvalidError("la respuesta debe ser un número")
		}
		ans.Number = &n
	case models.QuestionMatching:
		var pairs []models.MatchPair
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return ans, NewInvalidError("la respuesta debe ser una lista de pares")
		}
		if len(pairs) == 0 {
			return ans, NewInvalidError("la respuesta debe incluir al menos un par")
		}
		ans.Pairs = pairs
	case models.QuestionOrdering:
		var order []string
		if err := json.Unmarshal(raw, &order); err != nil {
			return ans, NewInvalidError("la respuesta debe ser una lista ordenada de elementos")
		}
		if len(order) == 0 {
			return ans, NewInvalidError("la respuesta debe incluir al menos un elemento")
		}
		ans.Order = order
	default:
		return ans, NewInvalidError("tipo de pregunta no soportado")
	}
	return ans, nil
}

// GradeAnswer scores a parsed answer against the question's hidden key. It is
// a pure function of (key, answer): identical inputs always produce identical
// results. The key never travels back to the caller.
func GradeAnswer(q *models.Question, ans models.AnswerValue) (correct bool, earned float64, err error) {
	if q.Key == nil {
		return false, 0, NewInternalError("la pregunta no tiene clave de respuesta")
	}
	switch q.Type {
	case models.QuestionMultipleChoice:
		if ans.Choice == nil || q.Key.Choice == nil {
			return false, 0, NewInvalidError("respuesta incompleta")
		}
		if *ans.Choice == *q.Key.Choice {
			return true, q.Points, nil
		}
		return false, 0, nil
	case models.QuestionTrueFalse:
		if ans.Bool == nil || q.Key.Bool == nil {
			return false, 0, NewInvalidError("respuesta incompleta")
		}
		if *ans.Bool == *q.Key.Bool {
			return true, q.Points, nil
		}
		return false, 0, nil
	case models.QuestionNumeric:
		if ans.Number == nil || q.Key.Number == nil {
			return false, 0, NewInvalidError("respuesta incompleta")
		}
		// Exact equality, mirroring the authored keys. No tolerance.
		if *ans.Number == *q.Key.Number {
			return true, q.Points, nil
		}
		return false, 0, nil
	case models.QuestionMatching:
		return gradeMatching(q, ans)
	case models.QuestionOrdering:
		return gradeOrdering(q, ans)
	}
	return false, 0, NewInvalidError("tipo de pregunta no soportado")
}

// gradeMatching awards partial credit: points scale with the number of key
// pairs the submission reproduces.
func gradeMatching(q *models.Question, ans models.AnswerValue) (bool, float64, error) {
	if len(q.Key.Pairs) == 0 {
		return false, 0, NewInternalError("la clave de emparejamiento está vacía")
	}
	submitted := make(map[string]string, len(ans.Pairs))
	for _, p := range ans.Pairs {
		submitted[p.Left] = p.Right
	}
	matched := 0
	for _, p := range q.Key.Pairs {
		if submitted[p.Left] == p.Right {
			matched++
		}
	}
	total := len(q.Key.Pairs)
	earned := q.Points * float64(matched) / float64(total)
	return matched == total, earned, nil
}

// gradeOrdering awards partial credit per correctly placed item.
func gradeOrdering(q *models.Question, ans models.AnswerValue) (bool, float64, error) {
	if len(q.Key.Order) == 0 {
		return false, 0, NewInternalError("la clave de ordenamiento está vacía")
	}
	placed := 0
	for i, id := range q.Key.Order {
		if i < len(ans.Order) && ans.Order[i] == id {
			placed++
		}
	}
	total := len(q.Key.Order)
	earned := q.Points * float64(placed) / float64(total)
	return placed == total, earned, nil
}
