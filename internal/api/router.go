package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/simulacroapp/simulacro/internal/middleware"
	"github.com/simulacroapp/simulacro/internal/models"
	"github.com/simulacroapp/simulacro/internal/services"
)

// Router wires the engine services to the HTTP surface. Handlers are thin:
// decode, resolve the caller from the auth claims, delegate, encode.
type Router struct {
	auth         *services.AuthService
	sessions     *services.SessionService
	participants *services.ParticipantService
	rounds       *services.RoundService
	answers      *services.AnswerService
	evaluations  *services.EvaluationService
	scenarios    *services.ScenarioService
	exports      *services.ExportService
}

func NewRouter(store Store, catalog services.ScenarioCatalog) *Router {
	return &Router{
		auth:         services.NewAuthService(store, middleware.SignToken),
		sessions:     services.NewSessionService(store, catalog),
		participants: services.NewParticipantService(store),
		rounds:       services.NewRoundService(store, catalog),
		answers:      services.NewAnswerService(store, catalog),
		evaluations:  services.NewEvaluationService(store),
		scenarios:    services.NewScenarioService(store, catalog),
		exports:      services.NewExportService(store),
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", rt.handleRegister) // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)       // POST
	mux.HandleFunc("/api/sessions", rt.handleSessions)      // GET, POST
	mux.HandleFunc("/api/sessions/join", rt.handleJoinByCode)
	mux.HandleFunc("/api/sessions/", rt.handleSessionScoped)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var statusByCode = map[services.ErrorCode]int{
	services.ErrorInvalid:      http.StatusBadRequest,
	services.ErrorUnauthorized: http.StatusUnauthorized,
	services.ErrorForbidden:    http.StatusForbidden,
	services.ErrorNotFound:     http.StatusNotFound,
	services.ErrorConflict:     http.StatusConflict,
	services.ErrorInternal:     http.StatusInternalServerError,
}

// writeError maps the service taxonomy to transport status. Unclassified
// errors surface as a generic 500 so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status, found := statusByCode[se.Code]
		if !found {
			status = http.StatusInternalServerError
		}
		body := map[string]any{"error": se.Message, "code": string(se.Code)}
		if se.Reason != "" {
			body["reason"] = se.Reason
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "error interno", "code": "internal"})
}

// caller builds the lightweight user carried by the JWT claims.
func caller(r *http.Request) *models.User {
	c, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return nil
	}
	return &models.User{ID: c.UID, Nickname: c.Nickname}
}

func requireCaller(w http.ResponseWriter, r *http.Request) *models.User {
	u := caller(r)
	if u == nil {
		writeError(w, services.NewUnauthorizedError("autenticación requerida"))
	}
	return u
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, services.NewInvalidError("cuerpo JSON inválido"))
		return false
	}
	return true
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Nickname string `json:"nickname"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := rt.auth.Register(r.Context(), req.Nickname, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"token": res.Token, "user_id": res.UserID, "nickname": res.Nickname})
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := rt.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "user_id": res.UserID, "nickname": res.Nickname})
}

// GET /api/sessions — sessions the caller belongs to
// POST /api/sessions — create
func (rt *Router) handleSessions(w http.ResponseWriter, r *http.Request) {
	u := requireCaller(w, r)
	if u == nil {
		return
	}
	switch r.Method {
	case http.MethodGet:
		out, err := rt.sessions.ListForUser(r.Context(), u.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
	case http.MethodPost:
		var req struct {
			Name            string `json:"name"`
			Description     string `json:"description"`
			ScenarioID      string `json:"scenario_id"`
			AccessType      string `json:"access_type"`
			AccessCode      string `json:"access_code"`
			MaxParticipants int    `json:"max_participants"`
		}
		if !decode(w, r, &req) {
			return
		}
		sess, err := rt.sessions.CreateSession(r.Context(), u, services.CreateSessionInput{
			Name:            req.Name,
			Description:     req.Description,
			ScenarioID:      req.ScenarioID,
			AccessType:      req.AccessType,
			AccessCode:      req.AccessCode,
			MaxParticipants: req.MaxParticipants,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/sessions/join — { code }
func (rt *Router) handleJoinByCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	u := requireCaller(w, r)
	if u == nil {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := rt.sessions.JoinByCode(r.Context(), req.Code, u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleSessionScoped dispatches /api/sessions/{id}[/sub] by hand, the same
// way the rest of the API splits paths.
func (rt *Router) handleSessionScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	u := requireCaller(w, r)
	if u == nil {
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		rt.handleSession(w, r, u, id)
		return
	}
	switch parts[1] {
	case "status":
		rt.handleStatus(w, r, u, id)
	case "participants":
		rt.handleParticipants(w, r, u, id)
	case "respond":
		rt.handleRespond(w, r, u, id)
	case "join":
		rt.handleJoinOpen(w, r, u, id)
	case "rounds":
		rt.handleRounds(w, r, u, id)
	case "timer":
		rt.handleTimer(w, r, u, id)
	case "responses":
		rt.handleResponses(w, r, u, id)
	case "evaluations":
		rt.handleEvaluations(w, r, u, id)
	case "scenario":
		rt.handleScenario(w, r, u, id)
	case "export":
		rt.handleExport(w, r, u, id)
	default:
		http.NotFound(w, r)
	}
}

// GET|DELETE /api/sessions/{id}
func (rt *Router) handleSession(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	switch r.Method {
	case http.MethodGet:
		sess, err := rt.sessions.Get(r.Context(), id, u.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case http.MethodDelete:
		if err := rt.sessions.Delete(r.Context(), id, u.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// PUT /api/sessions/{id}/status — { status }
func (rt *Router) handleStatus(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := rt.sessions.UpdateStatus(r.Context(), id, u.ID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// POST /api/sessions/{id}/participants — { nickname, role, direct? }
func (rt *Router) handleParticipants(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Nickname string `json:"nickname"`
		Role     string `json:"role"`
		Direct   bool   `json:"direct"`
	}
	if !decode(w, r, &req) {
		return
	}
	var rec *models.ParticipantRecord
	var err error
	if req.Direct {
		rec, err = rt.participants.AddDirect(r.Context(), id, u.ID, req.Nickname, req.Role)
	} else {
		rec, err = rt.participants.Invite(r.Context(), id, u.ID, req.Nickname, req.Role)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// POST /api/sessions/{id}/respond — { action: accept|decline }
func (rt *Router) handleRespond(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := rt.participants.Respond(r.Context(), id, u.ID, req.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// POST /api/sessions/{id}/join — open sessions only
func (rt *Router) handleJoinOpen(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, err := rt.sessions.JoinOpen(r.Context(), id, u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// POST /api/sessions/{id}/rounds — { action: next|previous|set, round? }
func (rt *Router) handleRounds(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Action string `json:"action"`
		Round  *int   `json:"round"`
	}
	if !decode(w, r, &req) {
		return
	}
	progress, err := rt.rounds.Advance(r.Context(), id, u.ID, req.Action, req.Round)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// POST /api/sessions/{id}/timer — { action: start|pause|reset }
func (rt *Router) handleTimer(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := rt.rounds.ControlTimer(r.Context(), id, u.ID, req.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/sessions/{id}/responses — { round_id, question_id, answer }
// GET  /api/sessions/{id}/responses?round_id=...
func (rt *Router) handleResponses(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			RoundID    string          `json:"round_id"`
			QuestionID string          `json:"question_id"`
			Answer     json.RawMessage `json:"answer"`
		}
		if !decode(w, r, &req) {
			return
		}
		resp, err := rt.answers.Submit(r.Context(), id, u.ID, req.RoundID, req.QuestionID, req.Answer)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	case http.MethodGet:
		list, err := rt.answers.List(r.Context(), id, u.ID, r.URL.Query().Get("round_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/sessions/{id}/evaluations — ratings payload
// GET  /api/sessions/{id}/evaluations
func (rt *Router) handleEvaluations(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			OverallRating    int    `json:"overall_rating"`
			ScenarioRating   int    `json:"scenario_rating"`
			DifficultyRating int    `json:"difficulty_rating"`
			WouldRecommend   bool   `json:"would_recommend"`
			Comment          string `json:"comment"`
		}
		if !decode(w, r, &req) {
			return
		}
		eval, err := rt.evaluations.Submit(r.Context(), id, u.ID, services.EvaluationInput{
			OverallRating:    req.OverallRating,
			ScenarioRating:   req.ScenarioRating,
			DifficultyRating: req.DifficultyRating,
			WouldRecommend:   req.WouldRecommend,
			Comment:          req.Comment,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, eval)
	case http.MethodGet:
		report, err := rt.evaluations.Get(r.Context(), id, u.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/sessions/{id}/scenario — role-projected view
func (rt *Router) handleScenario(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sc, err := rt.scenarios.Visible(r.Context(), id, u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// GET /api/sessions/{id}/export?kind=responses|evaluations
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request, u *models.User, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res, err := rt.exports.ExportCSV(r.Context(), id, u.ID, r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
	_, _ = w.Write(res.Data)
}
