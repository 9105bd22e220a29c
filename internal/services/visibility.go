package services

import (
	"context"

	"github.com/simulacroapp/simulacro/internal/models"
)

// ProjectScenario returns the role-appropriate view of a scenario for a
// session. Facilitators see it untouched. Everyone else sees only the rounds
// already reached and, per question, the display fields of its type — never
// the answer key, the justification or the facilitator notes.
func ProjectScenario(sc *models.Scenario, sess *models.Session, role string) *models.Scenario {
	if role == models.RoleFacilitator {
		return sc
	}
	limit := sess.CurrentRound + 1
	if limit > len(sc.Rounds) {
		limit = len(sc.Rounds)
	}
	out := &models.Scenario{
		ID:          sc.ID,
		Category:    sc.Category,
		Type:        sc.Type,
		Title:       sc.Title,
		Description: sc.Description,
		Rounds:      make([]models.Round, 0, limit),
	}
	for i := 0; i < limit; i++ {
		r := sc.Rounds[i]
		round := models.Round{
			ID:        r.ID,
			Title:     r.Title,
			Narrative: r.Narrative,
			Questions: make([]models.Question, 0, len(r.Questions)),
		}
		for _, q := range r.Questions {
			round.Questions = append(round.Questions, projectQuestion(q))
		}
		out.Rounds = append(out.Rounds, round)
	}
	return out
}

func projectQuestion(q models.Question) models.Question {
	stripped := models.Question{
		ID:     q.ID,
		Type:   q.Type,
		Text:   q.Text,
		Points: q.Points,
	}
	switch q.Type {
	case models.QuestionMultipleChoice:
		stripped.Options = q.Options
	case models.QuestionMatching:
		stripped.LeftColumn = q.LeftColumn
		stripped.RightColumn = q.RightColumn
	case models.QuestionOrdering:
		stripped.Items = q.Items
	}
	return stripped
}

// ScenarioService resolves the visible scenario for a session viewer.
type ScenarioService struct {
	store interface {
		GetSession(ctx context.Context, id string) (*models.Session, error)
	}
	catalog ScenarioCatalog
}

func NewScenarioService(store ParticipantStore, catalog ScenarioCatalog) *ScenarioService {
	return &ScenarioService{store: store, catalog: catalog}
}

// Visible returns the projection for the caller's role. Any embedded record
// in accepted state qualifies as a viewer.
func (s *ScenarioService) Visible(ctx context.Context, sessionID, callerID string) (*models.Scenario, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("sesión no encontrada")
	}
	rec, err := requireRole(sess, callerID, models.RoleFacilitator, models.RoleParticipant, models.RoleObserver)
	if err != nil {
		return nil, err
	}
	scenario, err := readScenario(ctx, s.catalog, sess.Scenario.ID)
	if err != nil {
		return nil, err
	}
	return ProjectScenario(scenario, sess, rec.Role), nil
}
