package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/simulacroapp/simulacro/internal/models"
)

// ResponseStore persists graded answers. InsertResponse reports false when
// the (session, user, round, question) uniqueness constraint rejected the
// row, which is the backstop against check-then-insert races.
type ResponseStore interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetResponse(ctx context.Context, sessionID, userID, roundID, questionID string) (*models.Response, error)
	InsertResponse(ctx context.Context, r *models.Response) (bool, error)
	ListResponsesBySession(ctx context.Context, sessionID, roundID string) ([]*models.Response, error)
	ListResponsesByUser(ctx context.Context, sessionID, userID string) ([]*models.Response, error)
}

// AnswerService validates, grades and persists one answer per question per
// participant.
type AnswerService struct {
	store   ResponseStore
	catalog ScenarioCatalog
	now     func() time.Time
	idGen   func() string
}

func NewAnswerService(store ResponseStore, catalog ScenarioCatalog) *AnswerService {
	return &AnswerService{
		store:   store,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
		idGen:   func() string { return shortID(12) },
	}
}

// Submit grades one answer. Only accepted participants submit; facilitators
// and observers are rejected. The second submission for the same question is
// a conflict whether it is caught by the pre-check or by the store's
// uniqueness constraint, and the first grading stays immutable.
func (s *AnswerService) Submit(ctx context.Context, sessionID, userID, roundID, questionID string, raw json.RawMessage) (*models.Response, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireRole(sess, userID, models.RoleParticipant); err != nil {
		return nil, err
	}
	if sess.Status != models.StatusActive {
		return nil, NewConflictError("la sesión no está activa")
	}
	scenario, err := readScenario(ctx, s.catalog, sess.Scenario.ID)
	if err != nil {
		return nil, err
	}
	roundIdx := scenario.RoundIndex(roundID)
	if roundIdx < 0 {
		return nil, NewNotFoundError("ronda no encontrada")
	}
	if roundIdx > sess.CurrentRound {
		return nil, NewInvalidError("la ronda aún no está disponible")
	}
	question := scenario.Question(roundID, questionID)
	if question == nil {
		return nil, NewNotFoundError("pregunta no encontrada")
	}

	if existing, err := s.store.GetResponse(ctx, sessionID, userID, roundID, questionID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, conflictReason(ReasonAlreadySubmitted, "ya respondiste esta pregunta")
	}

	ans, err := ParseAnswer(question, raw)
	if err != nil {
		return nil, err
	}
	correct, earned, err := GradeAnswer(question, ans)
	if err != nil {
		return nil, err
	}
	resp := &models.Response{
		ID:             s.idGen(),
		SessionID:      sessionID,
		UserID:         userID,
		RoundID:        roundID,
		QuestionID:     questionID,
		Answer:         ans,
		IsCorrect:      correct,
		PointsEarned:   earned,
		PointsPossible: question.Points,
		SubmittedAt:    s.now(),
	}
	ok, err := s.store.InsertResponse(ctx, resp)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflictReason(ReasonAlreadySubmitted, "ya respondiste esta pregunta")
	}
	return resp, nil
}

// ResponseList is the role-shaped read model: facilitators get everything,
// participants only their own rows.
type ResponseList struct {
	All []*models.Response `json:"responses,omitempty"`
	Own []*models.Response `json:"own,omitempty"`
}

// List returns responses per the caller's role. Observers have no responses
// and no business reading anyone else's, so they are rejected.
func (s *AnswerService) List(ctx context.Context, sessionID, callerID, roundID string) (*ResponseList, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec, err := requireRole(sess, callerID, models.RoleFacilitator, models.RoleParticipant)
	if err != nil {
		return nil, err
	}
	if rec.Role == models.RoleFacilitator {
		all, err := s.store.ListResponsesBySession(ctx, sessionID, roundID)
		if err != nil {
			return nil, err
		}
		return &ResponseList{All: all}, nil
	}
	own, err := s.store.ListResponsesByUser(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}
	if roundID != "" {
		filtered := own[:0]
		for _, r := range own {
			if r.RoundID == roundID {
				filtered = append(filtered, r)
			}
		}
		own = filtered
	}
	return &ResponseList{Own: own}, nil
}

func (s *AnswerService) getSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("sesión no encontrada")
	}
	return sess, nil
}
