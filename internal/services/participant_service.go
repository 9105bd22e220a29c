package services

import (
	"context"
	"time"

	"github.com/simulacroapp/simulacro/internal/models"
)

// Invitation responses.
const (
	RespondAccept  = "accept"
	RespondDecline = "decline"
)

// ParticipantStore abstracts the persistence required by the registry. The
// mutating calls are guarded single-document updates: the bool result is
// false when the guard did not hold. The guard covers the record's prior
// status (or absence, for appends) and, whenever the write would land an
// accepted record, the session's remaining capacity, so two concurrent
// accepts cannot both take the last slot.
type ParticipantStore interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	FindUserByNickname(ctx context.Context, nickname string) (*models.User, error)
	AppendParticipant(ctx context.Context, sessionID string, rec models.ParticipantRecord) (bool, error)
	UpdateParticipantStatus(ctx context.Context, sessionID, userID, fromStatus, toStatus string, respondedAt time.Time) (bool, error)
}

// ParticipantService owns the invitation/membership state machine. It is also
// the single source of truth for role authorization: every mutating operation
// elsewhere resolves the caller through requireRole.
type ParticipantService struct {
	store ParticipantStore
	now   func() time.Time
}

func NewParticipantService(store ParticipantStore) *ParticipantService {
	return &ParticipantService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// requireRole returns the caller's accepted participant record when it holds
// one of the allowed roles, and the role-appropriate authorization error
// otherwise.
func requireRole(s *models.Session, userID string, roles ...string) (*models.ParticipantRecord, error) {
	facilitatorOnly := len(roles) == 1 && roles[0] == models.RoleFacilitator
	rec := s.Participant(userID)
	if rec == nil || rec.Status != models.ParticipantAccepted {
		if facilitatorOnly {
			return nil, forbiddenReason(ReasonNotFacilitator, "solo el facilitador puede realizar esta acción")
		}
		return nil, forbiddenReason(ReasonNotInvited, "no participas en esta sesión")
	}
	for _, role := range roles {
		if rec.Role == role {
			return rec, nil
		}
	}
	if facilitatorOnly {
		return nil, forbiddenReason(ReasonNotFacilitator, "solo el facilitador puede realizar esta acción")
	}
	return nil, forbiddenReason(ReasonNotParticipant, "tu rol no permite esta acción")
}

func validRole(role string) bool {
	switch role {
	case models.RoleFacilitator, models.RoleParticipant, models.RoleObserver:
		return true
	}
	return false
}

func trainingFull() error {
	return conflictReason(ReasonTrainingFull, "la capacitación ya alcanzó el máximo de participantes")
}

// conflictForExisting maps a pre-existing record to its conflict reason.
func conflictForExisting(rec *models.ParticipantRecord) error {
	switch rec.Status {
	case models.ParticipantPending:
		return conflictReason(ReasonAlreadyPending, "el usuario ya tiene una invitación pendiente")
	case models.ParticipantAccepted:
		return conflictReason(ReasonAlreadyAccepted, "el usuario ya participa en la sesión")
	default:
		return conflictReason(ReasonUserDeclined, "el usuario rechazó participar en esta sesión")
	}
}

// Invite adds a pending record for the user known by nickname. Only accepted
// facilitators may invite; a declined user can never be re-invited.
func (s *ParticipantService) Invite(ctx context.Context, sessionID, invitedBy, nickname, role string) (*models.ParticipantRecord, error) {
	if !validRole(role) {
		return nil, NewInvalidError("rol inválido")
	}
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireRole(sess, invitedBy, models.RoleFacilitator); err != nil {
		return nil, err
	}
	user, err := s.store.FindUserByNickname(ctx, nickname)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NewNotFoundError("usuario no encontrado")
	}
	if rec := sess.Participant(user.ID); rec != nil {
		return nil, conflictForExisting(rec)
	}
	rec := models.ParticipantRecord{
		UserID:   user.ID,
		Nickname: user.Nickname,
		Role:     role,
		Status:   models.ParticipantPending,
	}
	ok, err := s.store.AppendParticipant(ctx, sessionID, rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race against another append for the same user.
		return nil, conflictReason(ReasonAlreadyPending, "el usuario ya tiene un registro en la sesión")
	}
	return &rec, nil
}

// Respond resolves a pending invitation. Accepting checks capacity; declining
// does not.
func (s *ParticipantService) Respond(ctx context.Context, sessionID, userID, action string) (*models.Session, error) {
	if action != RespondAccept && action != RespondDecline {
		return nil, NewInvalidError("la acción debe ser accept o decline")
	}
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec := sess.Participant(userID)
	if rec == nil {
		return nil, forbiddenReason(ReasonNotInvited, "no tienes una invitación para esta sesión")
	}
	switch rec.Status {
	case models.ParticipantAccepted:
		return nil, conflictReason(ReasonAlreadyAccepted, "ya aceptaste la invitación")
	case models.ParticipantDeclined:
		return nil, conflictReason(ReasonAlreadyDeclined, "ya rechazaste la invitación")
	}
	target := models.ParticipantDeclined
	if action == RespondAccept {
		if sess.AcceptedCount() >= sess.MaxParticipants {
			return nil, trainingFull()
		}
		target = models.ParticipantAccepted
	}
	ok, err := s.store.UpdateParticipantStatus(ctx, sessionID, userID, models.ParticipantPending, target, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// The guard fails either because the invitation was resolved
		// concurrently or because another accept took the last slot.
		cur, err := s.getSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if target == models.ParticipantAccepted && cur.AcceptedCount() >= cur.MaxParticipants {
			return nil, trainingFull()
		}
		return nil, NewConflictError("la invitación ya fue respondida")
	}
	return s.getSession(ctx, sessionID)
}

// AddDirect is the facilitator-side add: same conflict rules as Invite, but
// the record lands accepted immediately, so capacity applies.
func (s *ParticipantService) AddDirect(ctx context.Context, sessionID, facilitatorID, nickname, role string) (*models.ParticipantRecord, error) {
	if !validRole(role) {
		return nil, NewInvalidError("rol inválido")
	}
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireRole(sess, facilitatorID, models.RoleFacilitator); err != nil {
		return nil, err
	}
	user, err := s.store.FindUserByNickname(ctx, nickname)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NewNotFoundError("usuario no encontrado")
	}
	if rec := sess.Participant(user.ID); rec != nil {
		return nil, conflictForExisting(rec)
	}
	if sess.AcceptedCount() >= sess.MaxParticipants {
		return nil, trainingFull()
	}
	now := s.now()
	rec := models.ParticipantRecord{
		UserID:      user.ID,
		Nickname:    user.Nickname,
		Role:        role,
		Status:      models.ParticipantAccepted,
		JoinedAt:    &now,
		RespondedAt: &now,
	}
	ok, err := s.store.AppendParticipant(ctx, sessionID, rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := s.getSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if existing := cur.Participant(user.ID); existing != nil {
			return nil, conflictForExisting(existing)
		}
		return nil, trainingFull()
	}
	return &rec, nil
}

func (s *ParticipantService) getSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("sesión no encontrada")
	}
	return sess, nil
}
