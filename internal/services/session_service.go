package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simulacroapp/simulacro/internal/models"
)

const (
	minParticipants = 1
	maxParticipants = 500
)

// SessionStore is the persistence contract of the session lifecycle. Insert
// returns false when the access code lost the commit-time uniqueness race;
// write calls touch only the fields they own so concurrent facilitator
// actions cannot clobber each other.
type SessionStore interface {
	InsertSession(ctx context.Context, sess *models.Session) (bool, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessionsForUser(ctx context.Context, userID string) ([]*models.Session, error)
	FindSessionByCode(ctx context.Context, code string) (*models.Session, error)
	SetSessionStatus(ctx context.Context, id, status string, trainingTimer models.TimerState, startedAt, completedAt *time.Time) error
	AppendParticipant(ctx context.Context, sessionID string, rec models.ParticipantRecord) (bool, error)
	UpdateParticipantStatus(ctx context.Context, sessionID, userID, fromStatus, toStatus string, respondedAt time.Time) (bool, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	AccessCodeInUse(ctx context.Context, code string) (bool, error)
}

// SessionService owns session lifecycle: creation, join, status transitions
// (which drive the training timer) and deletion.
type SessionService struct {
	store   SessionStore
	catalog ScenarioCatalog
	gate    *AccessGate
	now     func() time.Time
	idGen   func() string
}

func NewSessionService(store SessionStore, catalog ScenarioCatalog) *SessionService {
	return &SessionService{
		store:   store,
		catalog: catalog,
		gate:    NewAccessGate(store),
		now:     func() time.Time { return time.Now().UTC() },
		idGen:   func() string { return shortID(12) },
	}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// CreateSessionInput carries the sanitized request payload.
type CreateSessionInput struct {
	Name            string
	Description     string
	ScenarioID      string
	AccessType      string
	AccessCode      string
	MaxParticipants int
}

// CreateSession validates the input, resolves the scenario, settles the
// access code and inserts the session with the creator embedded as an
// accepted facilitator.
func (s *SessionService) CreateSession(ctx context.Context, creator *models.User, in CreateSessionInput) (*models.Session, error) {
	if creator == nil {
		return nil, NewUnauthorizedError("autenticación requerida")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, NewInvalidError("el nombre es obligatorio")
	}
	if in.AccessType != models.AccessOpen && in.AccessType != models.AccessCode {
		return nil, NewInvalidError("el tipo de acceso debe ser open o code")
	}
	if in.MaxParticipants < minParticipants || in.MaxParticipants > maxParticipants {
		return nil, NewInvalidError("el máximo de participantes debe estar entre 1 y 500")
	}
	scenario, err := readScenario(ctx, s.catalog, in.ScenarioID)
	if err != nil {
		return nil, err
	}
	if len(scenario.Rounds) == 0 {
		return nil, NewInvalidError("el escenario no tiene rondas")
	}

	code := ""
	switch in.AccessType {
	case models.AccessCode:
		if in.AccessCode != "" {
			if err := s.gate.Validate(ctx, in.AccessCode); err != nil {
				return nil, err
			}
			code = in.AccessCode
		} else {
			code, err = s.gate.Generate(ctx)
			if err != nil {
				return nil, err
			}
		}
	default:
		if in.AccessCode != "" {
			return nil, NewInvalidError("una sesión abierta no lleva código de acceso")
		}
	}

	now := s.now()
	sess := &models.Session{
		ID:              s.idGen(),
		Name:            strings.TrimSpace(in.Name),
		Description:     strings.TrimSpace(in.Description),
		CreatorID:       creator.ID,
		Scenario:        scenario.Ref(),
		AccessType:      in.AccessType,
		AccessCode:      code,
		MaxParticipants: in.MaxParticipants,
		Status:          models.StatusNotStarted,
		CurrentRound:    0,
		TrainingTimer:   NewTimer(),
		RoundTimer:      NewTimer(),
		Participants: []models.ParticipantRecord{{
			UserID:      creator.ID,
			Nickname:    creator.Nickname,
			Role:        models.RoleFacilitator,
			Status:      models.ParticipantAccepted,
			JoinedAt:    &now,
			RespondedAt: &now,
		}},
		CreatedAt: now,
	}
	ok, err := s.store.InsertSession(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Commit-time uniqueness lost against a concurrent create; the
		// caller can retry with a fresh code.
		return nil, NewConflictError("el código de acceso ya está en uso")
	}
	return sess, nil
}

// Get returns the session for any user with an embedded record. Non
// facilitators never see the access code.
func (s *SessionService) Get(ctx context.Context, sessionID, callerID string) (*models.Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec := sess.Participant(callerID)
	if rec == nil {
		return nil, forbiddenReason(ReasonNotInvited, "no participas en esta sesión")
	}
	if rec.Role != models.RoleFacilitator {
		redacted := *sess
		redacted.AccessCode = ""
		return &redacted, nil
	}
	return sess, nil
}

// ListForUser returns every session holding a record for the user.
func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := s.store.ListSessionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i, sess := range sessions {
		if rec := sess.Participant(userID); rec == nil || rec.Role != models.RoleFacilitator {
			redacted := *sess
			redacted.AccessCode = ""
			sessions[i] = &redacted
		}
	}
	return sessions, nil
}

var statusTransitions = map[string][]string{
	models.StatusNotStarted: {models.StatusActive},
	models.StatusActive:     {models.StatusPaused, models.StatusCompleted},
	models.StatusPaused:     {models.StatusActive, models.StatusCompleted},
	models.StatusCompleted:  {},
}

func transitionAllowed(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateStatus is the facilitator's lifecycle control and the only driver of
// the training timer: activating starts it, pausing and completing pause it.
func (s *SessionService) UpdateStatus(ctx context.Context, sessionID, callerID, status string) (*models.Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireRole(sess, callerID, models.RoleFacilitator); err != nil {
		return nil, err
	}
	if status == sess.Status {
		return sess, nil
	}
	if !transitionAllowed(sess.Status, status) {
		return nil, NewInvalidError("transición de estado inválida: " + sess.Status + " → " + status)
	}

	now := s.now()
	timer := sess.TrainingTimer
	startedAt := sess.StartedAt
	completedAt := sess.CompletedAt
	switch status {
	case models.StatusActive:
		timer = StartTimer(timer, now)
		if startedAt == nil {
			startedAt = &now
		}
	case models.StatusPaused:
		timer = PauseTimer(timer, now)
	case models.StatusCompleted:
		timer = PauseTimer(timer, now)
		completedAt = &now
	}
	if err := s.store.SetSessionStatus(ctx, sessionID, status, timer, startedAt, completedAt); err != nil {
		return nil, err
	}
	sess.Status = status
	sess.TrainingTimer = timer
	sess.StartedAt = startedAt
	sess.CompletedAt = completedAt
	return sess, nil
}

// JoinOpen enrolls the caller into an open session as an accepted
// participant.
func (s *SessionService) JoinOpen(ctx context.Context, sessionID string, user *models.User) (*models.Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.AccessType != models.AccessOpen {
		return nil, NewForbiddenError("la sesión requiere código de acceso")
	}
	return s.join(ctx, sess, user)
}

// JoinByCode enrolls the caller into the non-completed session gated by code.
// Any unmatched code fails with the same generic message so callers cannot
// probe which codes exist.
func (s *SessionService) JoinByCode(ctx context.Context, code string, user *models.User) (*models.Session, error) {
	if !s.gate.ValidFormat(code) {
		return nil, NewInvalidError("código inválido")
	}
	sess, err := s.store.FindSessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewInvalidError("código inválido")
	}
	return s.join(ctx, sess, user)
}

func (s *SessionService) join(ctx context.Context, sess *models.Session, user *models.User) (*models.Session, error) {
	if user == nil {
		return nil, NewUnauthorizedError("autenticación requerida")
	}
	if sess.Status == models.StatusCompleted {
		return nil, NewConflictError("la sesión ya finalizó")
	}
	now := s.now()
	if rec := sess.Participant(user.ID); rec != nil {
		switch rec.Status {
		case models.ParticipantDeclined:
			return nil, forbiddenReason(ReasonUserDeclined, "rechazaste participar en esta sesión")
		case models.ParticipantAccepted:
			return nil, conflictReason(ReasonAlreadyAccepted, "ya participas en la sesión")
		}
		// Pending invitation: joining accepts it.
		if sess.AcceptedCount() >= sess.MaxParticipants {
			return nil, trainingFull()
		}
		ok, err := s.store.UpdateParticipantStatus(ctx, sess.ID, user.ID, models.ParticipantPending, models.ParticipantAccepted, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			cur, err := s.getSession(ctx, sess.ID)
			if err != nil {
				return nil, err
			}
			if cur.AcceptedCount() >= cur.MaxParticipants {
				return nil, trainingFull()
			}
			return nil, NewConflictError("la invitación ya fue respondida")
		}
		return s.getSession(ctx, sess.ID)
	}
	if sess.AcceptedCount() >= sess.MaxParticipants {
		return nil, trainingFull()
	}
	rec := models.ParticipantRecord{
		UserID:      user.ID,
		Nickname:    user.Nickname,
		Role:        models.RoleParticipant,
		Status:      models.ParticipantAccepted,
		JoinedAt:    &now,
		RespondedAt: &now,
	}
	ok, err := s.store.AppendParticipant(ctx, sess.ID, rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := s.getSession(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		if cur.Participant(user.ID) != nil {
			return nil, conflictReason(ReasonAlreadyAccepted, "ya tienes un registro en la sesión")
		}
		return nil, trainingFull()
	}
	return s.getSession(ctx, sess.ID)
}

// Delete removes the session and, by cascade, its responses and evaluations.
// Only the creating facilitator may delete.
func (s *SessionService) Delete(ctx context.Context, sessionID, callerID string) error {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := requireRole(sess, callerID, models.RoleFacilitator); err != nil {
		return err
	}
	if sess.CreatorID != callerID {
		return forbiddenReason(ReasonNotFacilitator, "solo el creador puede eliminar la sesión")
	}
	ok, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("sesión no encontrada")
	}
	return nil
}

func (s *SessionService) getSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("sesión no encontrada")
	}
	return sess, nil
}
