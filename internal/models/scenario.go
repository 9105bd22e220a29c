package models

// Question types supported by the grader.
const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionTrueFalse      = "true_false"
	QuestionNumeric        = "numeric"
	QuestionMatching       = "matching"
	QuestionOrdering       = "ordering"
)

// MatchPair links a left-column entry to a right-column entry of a matching
// question.
type MatchPair struct {
	Left  string `bson:"left" json:"left"`
	Right string `bson:"right" json:"right"`
}

// AnswerValue is a tagged union: Type selects which single payload field is
// populated. It doubles as the hidden answer key of a question.
type AnswerValue struct {
	Type   string      `bson:"type" json:"type"`
	Choice *int        `bson:"choice,omitempty" json:"choice,omitempty"`
	Bool   *bool       `bson:"bool,omitempty" json:"bool,omitempty"`
	Number *float64    `bson:"number,omitempty" json:"number,omitempty"`
	Pairs  []MatchPair `bson:"pairs,omitempty" json:"pairs,omitempty"`
	Order  []string    `bson:"order,omitempty" json:"order,omitempty"`
}

// OrderingItem is one entry a participant must place in sequence.
type OrderingItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is one graded prompt inside a round. Key and Justification are
// facilitator-only and must never reach other roles.
type Question struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Text          string         `json:"text"`
	Points        float64        `json:"points"`
	Options       []string       `json:"options,omitempty"`
	LeftColumn    []string       `json:"left_column,omitempty"`
	RightColumn   []string       `json:"right_column,omitempty"`
	Items         []OrderingItem `json:"items,omitempty"`
	Key           *AnswerValue   `json:"key,omitempty"`
	Justification string         `json:"justification,omitempty"`
}

// Round is one step of a scenario with its own narrative and questions.
type Round struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Narrative string     `json:"narrative,omitempty"`
	Questions []Question `json:"questions"`
}

// Scenario is an externally authored incident narrative served read-only by
// the catalog. FacilitatorNotes is internal material.
type Scenario struct {
	ID               string  `json:"id"`
	Category         string  `json:"category"`
	Type             string  `json:"type"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	FacilitatorNotes string  `json:"facilitator_notes,omitempty"`
	Rounds           []Round `json:"rounds"`
}

// Ref returns the summary embedded into sessions that use this scenario.
func (sc *Scenario) Ref() ScenarioRef {
	return ScenarioRef{
		ID:          sc.ID,
		Category:    sc.Category,
		Type:        sc.Type,
		Title:       sc.Title,
		Description: sc.Description,
	}
}

// Question finds a question by round and question ID.
func (sc *Scenario) Question(roundID, questionID string) *Question {
	for ri := range sc.Rounds {
		if sc.Rounds[ri].ID != roundID {
			continue
		}
		for qi := range sc.Rounds[ri].Questions {
			if sc.Rounds[ri].Questions[qi].ID == questionID {
				return &sc.Rounds[ri].Questions[qi]
			}
		}
	}
	return nil
}

// RoundIndex returns the position of roundID inside the scenario, or -1.
func (sc *Scenario) RoundIndex(roundID string) int {
	for i := range sc.Rounds {
		if sc.Rounds[i].ID == roundID {
			return i
		}
	}
	return -1
}
