package services

import (
	"context"
	"fmt"
	"time"

	"github.com/simulacroapp/simulacro/internal/models"
)

// Round actions.
const (
	RoundActionNext     = "next"
	RoundActionPrevious = "previous"
	RoundActionSet      = "set"
)

// RoundStore persists round and round-timer changes as single field-set
// updates so two quick facilitator actions cannot lose each other's writes.
type RoundStore interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	SetCurrentRound(ctx context.Context, id string, round int, roundTimer models.TimerState) error
	SetRoundTimer(ctx context.Context, id string, t models.TimerState) error
}

// RoundService advances, rewinds or sets the current round and controls the
// facilitator-managed round timer.
type RoundService struct {
	store   RoundStore
	catalog ScenarioCatalog
	now     func() time.Time
}

func NewRoundService(store RoundStore, catalog ScenarioCatalog) *RoundService {
	return &RoundService{
		store:   store,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RoundProgress is returned by Advance. Round carries the full definition,
// keys included, because only facilitators reach this operation.
type RoundProgress struct {
	CurrentRound int           `json:"current_round"`
	TotalRounds  int           `json:"total_rounds"`
	Changed      bool          `json:"changed"`
	Round        *models.Round `json:"round_data"`
	RoundTimer   TimerView     `json:"round_timer"`
}

// Advance applies next/previous/set. next and previous clamp at the scenario
// bounds; set validates its target. Landing on the current round is an
// idempotent success that leaves the round timer untouched; any actual change
// restarts it.
func (s *RoundService) Advance(ctx context.Context, sessionID, callerID, action string, round *int) (*RoundProgress, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireRole(sess, callerID, models.RoleFacilitator); err != nil {
		return nil, err
	}
	scenario, err := readScenario(ctx, s.catalog, sess.Scenario.ID)
	if err != nil {
		return nil, err
	}
	total := len(scenario.Rounds)
	if total == 0 {
		return nil, NewInternalError("el escenario no tiene rondas")
	}

	target := sess.CurrentRound
	switch action {
	case RoundActionNext:
		if target < total-1 {
			target++
		}
	case RoundActionPrevious:
		if target > 0 {
			target--
		}
	case RoundActionSet:
		if round == nil {
			return nil, NewInvalidError("la ronda es obligatoria para la acción set")
		}
		if *round < 0 || *round >= total {
			return nil, NewInvalidError(fmt.Sprintf("ronda inválida: debe ser un número de 0 a %d", total-1))
		}
		target = *round
	default:
		return nil, NewInvalidError("la acción debe ser next, previous o set")
	}

	now := s.now()
	timer := sess.RoundTimer
	changed := target != sess.CurrentRound
	if changed {
		timer = RestartTimer(now)
		if err := s.store.SetCurrentRound(ctx, sessionID, target, timer); err != nil {
			return nil, err
		}
	}
	return &RoundProgress{
		CurrentRound: target,
		TotalRounds:  total,
		Changed:      changed,
		Round:        &scenario.Rounds[target],
		RoundTimer:   ViewTimer(timer, now),
	}, nil
}

// ControlTimer applies a facilitator start/pause/reset to the round timer.
func (s *RoundService) ControlTimer(ctx context.Context, sessionID, callerID, action string) (*TimerView, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireRole(sess, callerID, models.RoleFacilitator); err != nil {
		return nil, err
	}
	now := s.now()
	timer := sess.RoundTimer
	switch action {
	case TimerActionStart:
		timer = StartTimer(timer, now)
	case TimerActionPause:
		timer = PauseTimer(timer, now)
	case TimerActionReset:
		timer = ResetTimer()
	default:
		return nil, NewInvalidError("la acción debe ser start, pause o reset")
	}
	if err := s.store.SetRoundTimer(ctx, sessionID, timer); err != nil {
		return nil, err
	}
	view := ViewTimer(timer, now)
	return &view, nil
}

func (s *RoundService) getSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("sesión no encontrada")
	}
	return sess, nil
}
