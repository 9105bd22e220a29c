package api

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/simulacroapp/simulacro/internal/models"
	"github.com/simulacroapp/simulacro/internal/services"
)

type responseKey struct {
	sessionID, userID, roundID, questionID string
}

// MemoryStore is a mutex-guarded in-memory Store used by tests and as the
// dev fallback when no database is configured. Its guarded updates mirror
// the Mongo semantics: the bool result is false when the guard did not hold.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*models.Session
	responses   map[responseKey]*models.Response
	evaluations map[string]map[string]*models.Evaluation
	users       map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    map[string]*models.Session{},
		responses:   map[responseKey]*models.Response{},
		evaluations: map[string]map[string]*models.Evaluation{},
		users:       map[string]*models.User{},
	}
}

// cloneSession hands callers their own participants slice so reads never
// alias store state.
func cloneSession(s *models.Session) *models.Session {
	out := *s
	out.Participants = append([]models.ParticipantRecord(nil), s.Participants...)
	return &out
}

func (s *MemoryStore) AddUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindUserByNickname(ctx context.Context, nickname string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Nickname == nickname {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) InsertSession(ctx context.Context, sess *models.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return false, nil
	}
	if sess.AccessCode != "" && s.codeInUseLocked(sess.AccessCode) {
		return false, nil
	}
	s.sessions[sess.ID] = cloneSession(sess)
	return true, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.sessions[id]
	if sess == nil {
		return nil, nil
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) ListSessionsForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Session{}
	for _, sess := range s.sessions {
		if sess.Participant(userID) != nil {
			out = append(out, cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FindSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.AccessCode == code && sess.Status != models.StatusCompleted {
			return cloneSession(sess), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SetSessionStatus(ctx context.Context, id, status string, trainingTimer models.TimerState, startedAt, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	if sess == nil {
		return services.NewNotFoundError("sesión no encontrada")
	}
	sess.Status = status
	sess.TrainingTimer = trainingTimer
	sess.StartedAt = startedAt
	sess.CompletedAt = completedAt
	return nil
}

func (s *MemoryStore) SetCurrentRound(ctx context.Context, id string, round int, roundTimer models.TimerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	if sess == nil {
		return services.NewNotFoundError("sesión no encontrada")
	}
	sess.CurrentRound = round
	sess.RoundTimer = roundTimer
	return nil
}

func (s *MemoryStore) SetRoundTimer(ctx context.Context, id string, t models.TimerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	if sess == nil {
		return services.NewNotFoundError("sesión no encontrada")
	}
	sess.RoundTimer = t
	return nil
}

func (s *MemoryStore) AppendParticipant(ctx context.Context, sessionID string, rec models.ParticipantRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil || sess.Participant(rec.UserID) != nil {
		return false, nil
	}
	// An accepted record consumes a slot, so the append is guarded by
	// capacity under the same lock.
	if rec.Status == models.ParticipantAccepted && sess.AcceptedCount() >= sess.MaxParticipants {
		return false, nil
	}
	sess.Participants = append(sess.Participants, rec)
	return true, nil
}

func (s *MemoryStore) UpdateParticipantStatus(ctx context.Context, sessionID, userID, fromStatus, toStatus string, respondedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	if sess == nil {
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

func (s *MemoryStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; !exists {
		return false, nil
	}
	delete(s.sessions, id)
	for k := range s.responses {
		if k.sessionID == id {
			delete(s.responses, k)
		}
	}
	delete(s.evaluations, id)
	return true, nil
}

func (s *MemoryStore) AccessCodeInUse(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codeInUseLocked(code), nil
}

func (s *MemoryStore) codeInUseLocked(code string) bool {
	for _, sess := range s.sessions {
		if sess.AccessCode == code && sess.Status != models.StatusCompleted {
			return true
		}
	}
	return false
}

func (s *MemoryStore) GetResponse(ctx context.Context, sessionID, userID, roundID, questionID string) (*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.responses[responseKey{sessionID, userID, roundID, questionID}]
	if r == nil {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) InsertResponse(ctx context.Context, r *models.Response) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := responseKey{r.SessionID, r.UserID, r.RoundID, r.QuestionID}
	if _, exists := s.responses[key]; exists {
		return false, nil
	}
	cp := *r
	s.responses[key] = &cp
	return true, nil
}

func (s *MemoryStore) ListResponsesBySession(ctx context.Context, sessionID, roundID string) ([]*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
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
	sortResponses(out)
	return out, nil
}

func (s *MemoryStore) ListResponsesByUser(ctx context.Context, sessionID, userID string) ([]*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Response{}
	for _, r := range s.responses {
		if r.SessionID == sessionID && r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortResponses(out)
	return out, nil
}

func sortResponses(rs []*models.Response) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].SubmittedAt.Equal(rs[j].SubmittedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].SubmittedAt.Before(rs[j].SubmittedAt)
	})
}

func (s *MemoryStore) GetEvaluation(ctx context.Context, sessionID, userID string) (*models.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.evaluations[sessionID][userID]
	if e == nil {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) InsertEvaluation(ctx context.Context, e *models.Evaluation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *MemoryStore) ListEvaluationsBySession(ctx context.Context, sessionID string) ([]*models.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Evaluation{}
	for _, e := range s.evaluations[sessionID] {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
