package services

import (
	"context"
	"math"
	"time"

	"github.com/simulacroapp/simulacro/internal/models"
)

const maxCommentRunes = 1000

// EvaluationStore persists post-completion ratings. InsertEvaluation reports
// false when the (session, user) uniqueness constraint rejected the row.
type EvaluationStore interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetEvaluation(ctx context.Context, sessionID, userID string) (*models.Evaluation, error)
	InsertEvaluation(ctx context.Context, e *models.Evaluation) (bool, error)
	ListEvaluationsBySession(ctx context.Context, sessionID string) ([]*models.Evaluation, error)
}

// EvaluationService collects one rating per participant after completion and
// aggregates them for facilitators.
type EvaluationService struct {
	store EvaluationStore
	now   func() time.Time
	idGen func() string
}

func NewEvaluationService(store EvaluationStore) *EvaluationService {
	return &EvaluationService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

// EvaluationInput carries the sanitized rating payload.
type EvaluationInput struct {
	OverallRating    int
	ScenarioRating   int
	DifficultyRating int
	WouldRecommend   bool
	Comment          string
}

func validRating(r int) bool { return r >= 1 && r <= 5 }

// Submit stores the caller's evaluation. Only accepted participants of a
// completed session may evaluate, exactly once; duplicates conflict instead
// of overwriting.
func (s *EvaluationService) Submit(ctx context.Context, sessionID, userID string, in EvaluationInput) (*models.Evaluation, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireRole(sess, userID, models.RoleParticipant); err != nil {
		return nil, err
	}
	if sess.Status != models.StatusCompleted {
		return nil, NewConflictError("la sesión aún no finaliza")
	}
	if !validRating(in.OverallRating) || !validRating(in.ScenarioRating) || !validRating(in.DifficultyRating) {
		return nil, NewInvalidError("las calificaciones deben ser números enteros entre 1 y 5")
	}
	comment := in.Comment
	if runes := []rune(comment); len(runes) > maxCommentRunes {
		comment = string(runes[:maxCommentRunes])
	}

	if existing, err := s.store.GetEvaluation(ctx, sessionID, userID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, conflictReason(ReasonAlreadySubmitted, "ya enviaste tu evaluación")
	}

	eval := &models.Evaluation{
		ID:               s.idGen(),
		SessionID:        sessionID,
		UserID:           userID,
		OverallRating:    in.OverallRating,
		ScenarioRating:   in.ScenarioRating,
		DifficultyRating: in.DifficultyRating,
		WouldRecommend:   in.WouldRecommend,
		Comment:          comment,
		SubmittedAt:      s.now(),
	}
	ok, err := s.store.InsertEvaluation(ctx, eval)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflictReason(ReasonAlreadySubmitted, "ya enviaste tu evaluación")
	}
	return eval, nil
}

// EvaluationStats summarizes all submitted evaluations of a session.
type EvaluationStats struct {
	Count            int     `json:"count"`
	AvgOverall       float64 `json:"avg_overall"`
	AvgScenario      float64 `json:"avg_scenario"`
	AvgDifficulty    float64 `json:"avg_difficulty"`
	RecommendPct     int     `json:"recommend_pct"`
	OverallHistogram []int   `json:"overall_histogram"`
}

// EvaluationReport is the role-shaped read model.
type EvaluationReport struct {
	Evaluations []*models.Evaluation `json:"evaluations,omitempty"`
	Stats       *EvaluationStats     `json:"stats,omitempty"`
	Own         *models.Evaluation   `json:"own,omitempty"`
}

// Get returns the facilitator summary or the caller's own evaluation.
func (s *EvaluationService) Get(ctx context.Context, sessionID, callerID string) (*EvaluationReport, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec, err := requireRole(sess, callerID, models.RoleFacilitator, models.RoleParticipant)
	if err != nil {
		return nil, err
	}
	if rec.Role == models.RoleFacilitator {
		evals, err := s.store.ListEvaluationsBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &EvaluationReport{Evaluations: evals, Stats: Aggregate(evals)}, nil
	}
	own, err := s.store.GetEvaluation(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}
	return &EvaluationReport{Own: own}, nil
}

// Aggregate computes one-decimal rating averages, the rounded recommend
// percentage and a zero-filled histogram over overall ratings 1–5.
func Aggregate(evals []*models.Evaluation) *EvaluationStats {
	stats := &EvaluationStats{OverallHistogram: make([]int, 5)}
	if len(evals) == 0 {
		return stats
	}
	var overall, scenario, difficulty, recommends int
	for _, e := range evals {
		overall += e.OverallRating
		scenario += e.ScenarioRating
		difficulty += e.DifficultyRating
		if e.WouldRecommend {
			recommends++
		}
		if e.OverallRating >= 1 && e.OverallRating <= 5 {
			stats.OverallHistogram[e.OverallRating-1]++
		}
	}
	n := float64(len(evals))
	stats.Count = len(evals)
	stats.AvgOverall = round1(float64(overall) / n)
	stats.AvgScenario = round1(float64(scenario) / n)
	stats.AvgDifficulty = round1(float64(difficulty) / n)
	stats.RecommendPct = int(math.Round(100 * float64(recommends) / n))
	return stats
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func (s *EvaluationService) getSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("sesión no encontrada")
	}
	return sess, nil
}
