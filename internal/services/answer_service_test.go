package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/simulacroapp/simulacro/internal/models"
)

func newAnswerFixture() (*fakeStore, *AnswerService) {
	store := newFakeStore()
	store.putSession(testSession("S1", 2))
	svc := NewAnswerService(store, fakeCatalog{"SC1": testScenario()})
	svc.now = fixedClock(t0)
	return store, svc
}

func TestSubmitGradesAndPersists(t *testing.T) {
	store, svc := newAnswerFixture()

	resp, err := svc.Submit(context.Background(), "S1", "P1", "r0", "q1", json.RawMessage("2"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !resp.IsCorrect || resp.PointsEarned != 10 || resp.PointsPossible != 10 {
		t.Fatalf("grading: %+v", resp)
	}
	if !resp.SubmittedAt.Equal(t0) {
		t.Fatalf("submitted_at = %v", resp.SubmittedAt)
	}
	stored, _ := store.GetResponse(context.Background(), "S1", "P1", "r0", "q1")
	if stored == nil || stored.PointsEarned != 10 {
		t.Fatalf("stored response: %+v", stored)
	}

	wrong, err := svc.Submit(context.Background(), "S1", "P2", "r0", "q2", json.RawMessage("false"))
	if err != nil {
		t.Fatalf("Submit wrong: %v", err)
	}
	if wrong.IsCorrect || wrong.PointsEarned != 0 || wrong.PointsPossible != 5 {
		t.Fatalf("wrong answer grading: %+v", wrong)
	}
}

func TestSubmitDuplicateKeepsOriginal(t *testing.T) {
	store, svc := newAnswerFixture()

	first, err := svc.Submit(context.Background(), "S1", "P1", "r0", "q1", json.RawMessage("2"))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err = svc.Submit(context.Background(), "S1", "P1", "r0", "q1", json.RawMessage("0"))
	if ReasonOf(err) != ReasonAlreadySubmitted {
		t.Fatalf("reason = %q, want ALREADY_SUBMITTED", ReasonOf(err))
	}
	stored, _ := store.GetResponse(context.Background(), "S1", "P1", "r0", "q1")
	if stored.ID != first.ID || !stored.IsCorrect {
		t.Fatalf("original grading changed: %+v", stored)
	}
}

func TestSubmitRoleAndStateGuards(t *testing.T) {
	store, svc := newAnswerFixture()

	if _, err := svc.Submit(context.Background(), "S1", "F", "r0", "q1", json.RawMessage("2")); ReasonOf(err) != ReasonNotParticipant {
		t.Fatalf("facilitator reason = %q, want NOT_PARTICIPANT", ReasonOf(err))
	}

	store.sessions["S1"].Participants = append(store.sessions["S1"].Participants, models.ParticipantRecord{
		UserID: "O1", Nickname: "observadora", Role: models.RoleObserver, Status: models.ParticipantAccepted,
	})
	if _, err := svc.Submit(context.Background(), "S1", "O1", "r0", "q1", json.RawMessage("2")); ReasonOf(err) != ReasonNotParticipant {
		t.Fatalf("observer reason = %q, want NOT_PARTICIPANT", ReasonOf(err))
	}

	store.sessions["S1"].Status = models.StatusPaused
	_, err := svc.Submit(context.Background(), "S1", "P1", "r0", "q1", json.RawMessage("2"))
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConflict || se.Message != "la sesión no está activa" {
		t.Fatalf("paused session: %v", err)
	}
}

func TestSubmitRoundAvailability(t *testing.T) {
	store, svc := newAnswerFixture()

	_, err := svc.Submit(context.Background(), "S1", "P1", "r1", "q3", json.RawMessage("4"))
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid || se.Message != "la ronda aún no está disponible" {
		t.Fatalf("future round: %v", err)
	}

	// Earlier rounds stay open after the session moves on.
	store.sessions["S1"].CurrentRound = 2
	if _, err := svc.Submit(context.Background(), "S1", "P1", "r0", "q1", json.RawMessage("2")); err != nil {
		t.Fatalf("past round: %v", err)
	}

	_, err = svc.Submit(context.Background(), "S1", "P1", "r9", "q1", json.RawMessage("2"))
	if se, _ := AsServiceError(err); se == nil || se.Code != ErrorNotFound {
		t.Fatalf("unknown round: %v", err)
	}
	_, err = svc.Submit(context.Background(), "S1", "P1", "r0", "q9", json.RawMessage("2"))
	if se, _ := AsServiceError(err); se == nil || se.Code != ErrorNotFound {
		t.Fatalf("unknown question: %v", err)
	}
}

func TestSubmitPartialCredit(t *testing.T) {
	store, svc := newAnswerFixture()
	store.sessions["S1"].CurrentRound = 1

	raw := json.RawMessage(`[{"left":"a","right":"x"},{"left":"b","right":"y"},{"left":"c","right":"z"}]`)
	resp, err := svc.Submit(context.Background(), "S1", "P1", "r1", "q4", raw)
	if err != nil {
		t.Fatalf("Submit matching: %v", err)
	}
	if resp.IsCorrect || resp.PointsEarned != 8 {
		t.Fatalf("matching partial credit: %+v", resp)
	}
}

func TestListShapesByRole(t *testing.T) {
	_, svc := newAnswerFixture()

	if _, err := svc.Submit(context.Background(), "S1", "P1", "r0", "q1", json.RawMessage("2")); err != nil {
		t.Fatalf("seed P1: %v", err)
	}
	if _, err := svc.Submit(context.Background(), "S1", "P2", "r0", "q2", json.RawMessage("true")); err != nil {
		t.Fatalf("seed P2: %v", err)
	}

	asFacilitator, err := svc.List(context.Background(), "S1", "F", "")
	if err != nil {
		t.Fatalf("facilitator list: %v", err)
	}
	if len(asFacilitator.All) != 2 || asFacilitator.Own != nil {
		t.Fatalf("facilitator shape: %+v", asFacilitator)
	}

	asParticipant, err := svc.List(context.Background(), "S1", "P1", "")
	if err != nil {
		t.Fatalf("participant list: %v", err)
	}
	if len(asParticipant.Own) != 1 || asParticipant.Own[0].UserID != "P1" || asParticipant.All != nil {
		t.Fatalf("participant shape: %+v", asParticipant)
	}

	filtered, err := svc.List(context.Background(), "S1", "P1", "r1")
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered.Own) != 0 {
		t.Fatalf("round filter leaked rows: %+v", filtered)
	}

	if _, err := svc.List(context.Background(), "S1", "ajeno", ""); ReasonOf(err) != ReasonNotInvited {
		t.Fatalf("outsider reason = %q, want NOT_INVITED", ReasonOf(err))
	}
}

func TestListRejectsObservers(t *testing.T) {
	store, svc := newAnswerFixture()
	store.sessions["S1"].Participants = append(store.sessions["S1"].Participants, models.ParticipantRecord{
		UserID: "O1", Nickname: "observadora", Role: models.RoleObserver, Status: models.ParticipantAccepted,
	})
	if _, err := svc.List(context.Background(), "S1", "O1", ""); err == nil {
		t.Fatal("observer list accepted")
	}
}
