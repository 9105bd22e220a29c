package services

import (
	"context"
	"fmt"
	"time"

	"github.com/simulacroapp/simulacro/internal/models"
)

// fakeStore implements every store contract in this package over plain maps.
// Guarded updates mirror the production semantics: false when the guard did
// not hold.
type fakeStore struct {
	sessions    map[string]*models.Session
	responses   map[string]*models.Response
	evaluations map[string]map[string]*models.Evaluation
	users       map[string]*models.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:    map[string]*models.Session{},
		responses:   map[string]*models.Response{},
		evaluations: map[string]map[string]*models.Evaluation{},
		users:       map[string]*models.User{},
	}
}

func respKey(sessionID, userID, roundID, questionID string) string {
	return sessionID + "/" + userID + "/" + roundID + "/" + questionID
}

func copySession(s *models.Session) *models.Session {
	cp := *s
	cp.Participants = append([]models.ParticipantRecord(nil), s.Participants...)
	return &cp
}

func (s *fakeStore) putSession(sess *models.Session) { s.sessions[sess.ID] = copySession(sess) }

func (s *fakeStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		return copySession(sess), nil
	}
	return nil, nil
}

func (s *fakeStore) InsertSession(ctx context.Context, sess *models.Session) (bool, error) {
	if _, exists := s.sessions[sess.ID]; exists {
		return false, nil
	}
	if sess.AccessCode != "" {
		if used, _ := s.AccessCodeInUse(context.Background(), sess.AccessCode); used {
			return false, nil
		}
	}
	s.putSession(sess)
	return true, nil
}

func (s *fakeStore) ListSessionsForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	out := []*models.Session{}
	for _, sess := range s.sessions {
		if sess.Participant(userID) != nil {
			out = append(out, copySession(sess))
		}
	}
	return out, nil
}

func (s *fakeStore) FindSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	for _, sess := range s.sessions {
		if sess.AccessCode == code && sess.Status != models.StatusCompleted {
			return copySession(sess), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SetSessionStatus(ctx context.Context, id, status string, trainingTimer models.TimerState, startedAt, completedAt *time.Time) error {
	sess, ok := s.sessions[id]
	if !ok {
		return NewNotFoundError("sesión no encontrada")
	}
	sess.Status = status
	sess.TrainingTimer = trainingTimer
	sess.StartedAt = startedAt
	sess.CompletedAt = completedAt
	return nil
}

func (s *fakeStore) SetCurrentRound(ctx context.Context, id string, round int, roundTimer models.TimerState) error {
	sess, ok := s.sessions[id]
	if !ok {
		return NewNotFoundError("sesión no encontrada")
	}
	sess.CurrentRound = round
	sess.RoundTimer = roundTimer
	return nil
}

func (s *fakeStore) SetRoundTimer(ctx context.Context, id string, t models.TimerState) error {
	sess, ok := s.sessions[id]
	if !ok {
		return NewNotFoundError("sesión no encontrada")
	}
	sess.RoundTimer = t
	return nil
}

func (s *fakeStore) AppendParticipant(ctx context.Context, sessionID string, rec models.ParticipantRecord) (bool, error) {
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Participant(rec.UserID) != nil {
		return false, nil
	}
	if rec.Status == models.ParticipantAccepted && sess.AcceptedCount() >= sess.MaxParticipants {
		return false, nil
	}
	sess.Participants = append(sess.Participants, rec)
	return true, nil
}

func (s *fakeStore) UpdateParticipantStatus(ctx context.Context, sessionID, userID, fromStatus, toStatus string, respondedAt time.Time) (bool, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	rec := sess.Participant(userID)
	if rec == nil || rec.Status != fromStatus {
		return false, nil
	}
	if toStatus == models.ParticipantAccepted && sess.AcceptedCount() >= sess.MaxParticipants {
		return false, nil
	}
	rec.Status = toStatus
	rec.RespondedAt = &respondedAt
	if toStatus == models.ParticipantAccepted && rec.JoinedAt == nil {
		rec.JoinedAt = &respondedAt
	}
	return true, nil
}

func (s *fakeStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	if _, exists := s.sessions[id]; !exists {
		return false, nil
	}
	delete(s.sessions, id)
	delete(s.evaluations, id)
	return true, nil
}

func (s *fakeStore) AccessCodeInUse(ctx context.Context, code string) (bool, error) {
	for _, sess := range s.sessions {
		if sess.AccessCode == code && sess.Status != models.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) GetResponse(ctx context.Context, sessionID, userID, roundID, questionID string) (*models.Response, error) {
	if r, ok := s.responses[respKey(sessionID, userID, roundID, questionID)]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) InsertResponse(ctx context.Context, r *models.Response) (bool, error) {
	key := respKey(r.SessionID, r.UserID, r.RoundID, r.QuestionID)
	if _, exists := s.responses[key]; exists {
		return false, nil
	}
	cp := *r
	s.responses[key] = &cp
	return true, nil
}

func (s *fakeStore) ListResponsesBySession(ctx context.Context, sessionID, roundID string) ([]*models.Response, error) {
	out := []*models.Response{}
	for _, r := range s.responses {
		if r.SessionID != sessionID {
			continue
		}
		if roundID != "" && r.RoundID != roundID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) ListResponsesByUser(ctx context.Context, sessionID, userID string) ([]*models.Response, error) {
	out := []*models.Response{}
	for _, r := range s.responses {
		if r.SessionID == sessionID && r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) GetEvaluation(ctx context.Context, sessionID, userID string) (*models.Evaluation, error) {
	if e, ok := s.evaluations[sessionID][userID]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) InsertEvaluation(ctx context.Context, e *models.Evaluation) (bool, error) {
	if s.evaluations[e.SessionID] == nil {
		s.evaluations[e.SessionID] = map[string]*models.Evaluation{}
	}
	if _, exists := s.evaluations[e.SessionID][e.UserID]; exists {
		return false, nil
	}
	cp := *e
	s.evaluations[e.SessionID][e.UserID] = &cp
	return true, nil
}

func (s *fakeStore) ListEvaluationsBySession(ctx context.Context, sessionID string) ([]*models.Evaluation, error) {
	out := []*models.Evaluation{}
	for _, e := range s.evaluations[sessionID] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) AddUser(ctx context.Context, u *models.User) error {
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *fakeStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindUserByNickname(ctx context.Context, nickname string) (*models.User, error) {
	for _, u := range s.users {
		if u.Nickname == nickname {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// staleReadStore answers the first `reads` session lookups from a frozen
// snapshot while writes keep landing on the wrapped store. It reproduces
// callers whose capacity pre-check ran against state that another writer has
// since changed.
type staleReadStore struct {
	*fakeStore
	snapshot *models.Session
	reads    int
}

func (s *staleReadStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if s.reads > 0 && s.snapshot != nil && s.snapshot.ID == id {
		s.reads--
		return copySession(s.snapshot), nil
	}
	return s.fakeStore.GetSession(ctx, id)
}

// fakeCatalog serves scenarios from a map.
type fakeCatalog map[string]*models.Scenario

func (c fakeCatalog) ReadScenario(ctx context.Context, id string) (*models.Scenario, error) {
	return c[id], nil
}

func intPtr(i int) *int           { return &i }
func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

// testScenario builds a three-round scenario exercising every question type.
func testScenario() *models.Scenario {
	return &models.Scenario{
		ID:               "SC1",
		Category:         "phishing",
		Type:             "incident_response",
		Title:            "Escenario de prueba",
		Description:      "descripción",
		FacilitatorNotes: "notas internas",
		Rounds: []models.Round{
			{
				ID:        "r0",
				Title:     "Ronda 0",
				Narrative: "narrativa 0",
				Questions: []models.Question{
					{
						ID: "q1", Type: models.QuestionMultipleChoice, Text: "elige", Points: 10,
						Options:       []string{"a", "b", "c"},
						Key:           &models.AnswerValue{Type: models.QuestionMultipleChoice, Choice: intPtr(2)},
						Justification: "porque sí",
					},
					{
						ID: "q2", Type: models.QuestionTrueFalse, Text: "¿v o f?", Points: 5,
						Key: &models.AnswerValue{Type: models.QuestionTrueFalse, Bool: boolPtr(true)},
					},
				},
			},
			{
				ID:        "r1",
				Title:     "Ronda 1",
				Narrative: "narrativa 1",
				Questions: []models.Question{
					{
						ID: "q3", Type: models.QuestionNumeric, Text: "¿cuánto?", Points: 5,
						Key: &models.AnswerValue{Type: models.QuestionNumeric, Number: floatPtr(4)},
					},
					{
						ID: "q4", Type: models.QuestionMatching, Text: "relaciona", Points: 12,
						LeftColumn:  []string{"a", "b", "c"},
						RightColumn: []string{"x", "y"},
						Key: &models.AnswerValue{Type: models.QuestionMatching, Pairs: []models.MatchPair{
							{Left: "a", Right: "x"}, {Left: "b", Right: "y"}, {Left: "c", Right: "x"},
						}},
					},
				},
			},
			{
				ID:        "r2",
				Title:     "Ronda 2",
				Narrative: "narrativa 2",
				Questions: []models.Question{
					{
						ID: "q5", Type: models.QuestionOrdering, Text: "ordena", Points: 10,
						Items: []models.OrderingItem{{ID: "uno", Text: "1"}, {ID: "dos", Text: "2"}, {ID: "tres", Text: "3"}, {ID: "cuatro", Text: "4"}},
						Key:   &models.AnswerValue{Type: models.QuestionOrdering, Order: []string{"uno", "dos", "tres", "cuatro"}},
					},
				},
			},
		},
	}
}

// testSession builds a session over testScenario with a facilitator F and
// accepted participants P1..Pn.
func testSession(id string, participants int) *models.Session {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	sess := &models.Session{
		ID:              id,
		Name:            "Sesión de prueba",
		CreatorID:       "F",
		Scenario:        models.ScenarioRef{ID: "SC1", Title: "Escenario de prueba"},
		AccessType:      models.AccessOpen,
		MaxParticipants: 10,
		Status:          models.StatusActive,
		TrainingTimer:   NewTimer(),
		RoundTimer:      NewTimer(),
		CreatedAt:       now,
		Participants: []models.ParticipantRecord{{
			UserID: "F", Nickname: "facilitadora", Role: models.RoleFacilitator,
			Status: models.ParticipantAccepted, JoinedAt: &now, RespondedAt: &now,
		}},
	}
	for i := 1; i <= participants; i++ {
		uid := fmt.Sprintf("P%d", i)
		sess.Participants = append(sess.Participants, models.ParticipantRecord{
			UserID: uid, Nickname: "jugador" + uid, Role: models.RoleParticipant,
			Status: models.ParticipantAccepted, JoinedAt: &now, RespondedAt: &now,
		})
	}
	return sess
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
