package services

import (
	"time"

	"github.com/simulacroapp/simulacro/internal/models"
)

// Timer actions accepted by the round-timer endpoint.
const (
	TimerActionStart = "start"
	TimerActionPause = "pause"
	TimerActionReset = "reset"
)

// NewTimer returns the initial timer state: paused with nothing accumulated.
func NewTimer() models.TimerState {
	return models.TimerState{IsPaused: true}
}

func timerRunning(t models.TimerState) bool {
	return !t.IsPaused && t.StartedAt != nil
}

// StartTimer resumes a paused timer. No-op when already running.
func StartTimer(t models.TimerState, now time.Time) models.TimerState {
	if timerRunning(t) {
		return t
	}
	t.StartedAt = &now
	t.IsPaused = false
	return t
}

// PauseTimer folds the running span into ElapsedMS. No-op when paused.
func PauseTimer(t models.TimerState, now time.Time) models.TimerState {
	if !timerRunning(t) {
		return t
	}
	t.ElapsedMS += now.Sub(*t.StartedAt).Milliseconds()
	t.IsPaused = true
	t.StartedAt = nil
	return t
}

// ResetTimer zeroes the accumulator and leaves the timer paused.
func ResetTimer() models.TimerState {
	return models.TimerState{IsPaused: true}
}

// RestartTimer zeroes the accumulator and starts counting from now. Rounds
// begin their timer this way on every actual round change.
func RestartTimer(now time.Time) models.TimerState {
	return models.TimerState{StartedAt: &now, IsPaused: false}
}

// TimerElapsedMS is the display value: the accumulator plus the open span of
// a running timer. It never mutates state.
func TimerElapsedMS(t models.TimerState, now time.Time) int64 {
	if !timerRunning(t) {
		return t.ElapsedMS
	}
	return t.ElapsedMS + now.Sub(*t.StartedAt).Milliseconds()
}

// TimerView is the read model returned by timer and session endpoints.
type TimerView struct {
	ElapsedMS int64      `json:"elapsed_time_ms"`
	IsPaused  bool       `json:"is_paused"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// ViewTimer snapshots a timer at now.
func ViewTimer(t models.TimerState, now time.Time) TimerView {
	return TimerView{
		ElapsedMS: TimerElapsedMS(t, now),
		IsPaused:  !timerRunning(t),
		StartedAt: t.StartedAt,
	}
}
