package api

import "github.com/simulacroapp/simulacro/internal/services"

// Store is the full persistence surface of the engine: the union of every
// service's narrow contract. The Mongo store implements it in production;
// the in-memory store backs tests and the dev fallback.
type Store interface {
	services.AuthStore
	services.SessionStore
	services.ParticipantStore
	services.RoundStore
	services.ResponseStore
	services.EvaluationStore
}

var _ Store = (*MemoryStore)(nil)
