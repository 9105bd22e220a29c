package models

import "time"

// Roles a user can hold inside a training session.
const (
	RoleFacilitator = "facilitator"
	RoleParticipant = "participant"
	RoleObserver    = "observer"
)

// Participant invitation states. Declined is terminal: a declined user can
// never re-enter the same session.
const (
	ParticipantPending  = "pending"
	ParticipantAccepted = "accepted"
	ParticipantDeclined = "declined"
)

// Session lifecycle states.
const (
	StatusNotStarted = "not_started"
	StatusActive     = "active"
	StatusPaused     = "paused"
	StatusCompleted  = "completed"
)

// Session access types.
const (
	AccessOpen = "open"
	AccessCode = "code"
)

// TimerState is the persisted shape shared by the training and round timers.
// ElapsedMS advances only on pause/reset; the display value of a running
// timer is ElapsedMS + (now - StartedAt), computed on read.
type TimerState struct {
	StartedAt *time.Time `bson:"started_at" json:"started_at"`
	ElapsedMS int64      `bson:"elapsed_time_ms" json:"elapsed_time_ms"`
	IsPaused  bool       `bson:"is_paused" json:"is_paused"`
}

// ScenarioRef is the denormalized scenario summary embedded in a session.
type ScenarioRef struct {
	ID          string `bson:"id" json:"id"`
	Category    string `bson:"category" json:"category"`
	Type        string `bson:"type" json:"type"`
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`
}

// ParticipantRecord is a (user, role, status) tuple embedded in a session.
type ParticipantRecord struct {
	UserID      string     `bson:"user_id" json:"user_id"`
	Nickname    string     `bson:"nickname" json:"nickname"`
	Role        string     `bson:"role" json:"role"`
	Status      string     `bson:"status" json:"status"`
	JoinedAt    *time.Time `bson:"joined_at" json:"joined_at"`
	RespondedAt *time.Time `bson:"responded_at" json:"responded_at"`
}

// Session is the root aggregate: one running instance of a training exercise.
// Responses and evaluations are sibling aggregates keyed by session and die
// with it.
type Session struct {
	ID              string              `bson:"_id" json:"id"`
	Name            string              `bson:"name" json:"name"`
	Description     string              `bson:"description" json:"description"`
	CreatorID       string              `bson:"creator_id" json:"creator_id"`
	Scenario        ScenarioRef         `bson:"scenario" json:"scenario"`
	AccessType      string              `bson:"access_type" json:"access_type"`
	AccessCode      string              `bson:"access_code,omitempty" json:"access_code,omitempty"`
	MaxParticipants int                 `bson:"max_participants" json:"max_participants"`
	Status          string              `bson:"status" json:"status"`
	CurrentRound    int                 `bson:"current_round" json:"current_round"`
	TrainingTimer   TimerState          `bson:"training_timer" json:"training_timer"`
	RoundTimer      TimerState          `bson:"round_timer" json:"round_timer"`
	Participants    []ParticipantRecord `bson:"participants" json:"participants"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	StartedAt       *time.Time          `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt     *time.Time          `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Participant returns the embedded record for userID, or nil.
func (s *Session) Participant(userID string) *ParticipantRecord {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// AcceptedCount reports how many participants have accepted, regardless of role.
func (s *Session) AcceptedCount() int {
	n := 0
	for i := range s.Participants {
		if s.Participants[i].Status == ParticipantAccepted {
			n++
		}
	}
	return n
}

// Response is one graded answer to one question by one user. The store
// enforces uniqueness on (session, user, round, question); grading is
// immutable after the first insert.
type Response struct {
	ID             string      `bson:"_id" json:"id"`
	SessionID      string      `bson:"session_id" json:"session_id"`
	UserID         string      `bson:"user_id" json:"user_id"`
	RoundID        string      `bson:"round_id" json:"round_id"`
	QuestionID     string      `bson:"question_id" json:"question_id"`
	Answer         AnswerValue `bson:"answer" json:"answer"`
	IsCorrect      bool        `bson:"is_correct" json:"is_correct"`
	PointsEarned   float64     `bson:"points_earned" json:"points_earned"`
	PointsPossible float64     `bson:"points_possible" json:"points_possible"`
	SubmittedAt    time.Time   `bson:"submitted_at" json:"submitted_at"`
}

// Evaluation is one post-completion rating per (session, user); the store
// enforces the uniqueness.
type Evaluation struct {
	ID               string    `bson:"_id" json:"id"`
	SessionID        string    `bson:"session_id" json:"session_id"`
	UserID           string    `bson:"user_id" json:"user_id"`
	OverallRating    int       `bson:"overall_rating" json:"overall_rating"`
	ScenarioRating   int       `bson:"scenario_rating" json:"scenario_rating"`
	DifficultyRating int       `bson:"difficulty_rating" json:"difficulty_rating"`
	WouldRecommend   bool      `bson:"would_recommend" json:"would_recommend"`
	Comment          string    `bson:"comment,omitempty" json:"comment,omitempty"`
	SubmittedAt      time.Time `bson:"submitted_at" json:"submitted_at"`
}

// User is an account that can create or join sessions.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Nickname  string    `bson:"nickname" json:"nickname"`
	Email     string    `bson:"email" json:"email"`
	PassHash  []byte    `bson:"pass_hash" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
