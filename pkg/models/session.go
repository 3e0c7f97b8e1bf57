package models

import "time"

// SessionState represents the current phase of a planning conversation.
type SessionState string

const (
	// StateAwaitingGoal indicates the session is waiting for the initial goal.
	StateAwaitingGoal SessionState = "awaiting_goal"
	// StateClarifying indicates the session is in a clarification round.
	StateClarifying SessionState = "clarifying"
	// StatePlanning indicates task decomposition is in progress.
	StatePlanning SessionState = "planning"
	// StateScheduling indicates sprint packaging is in progress.
	StateScheduling SessionState = "scheduling"
	// StateComplete indicates the session produced a final plan.
	StateComplete SessionState = "complete"
	// StateFailed indicates the session failed permanently.
	StateFailed SessionState = "failed"
)

// Valid returns true if the state is a known value.
func (s SessionState) Valid() bool {
	switch s {
	case StateAwaitingGoal, StateClarifying, StatePlanning,
		StateScheduling, StateComplete, StateFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are accepted.
func (s SessionState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// ClarificationQuestion is a question produced by an agent to resolve
// ambiguity in the stated goal. The engine never invents questions.
type ClarificationQuestion struct {
	// Text is the question presented to the user.
	Text string `json:"text"`
	// Required indicates whether planning should wait for an answer.
	Required bool `json:"required"`
}

// ClarificationExchange records one completed question/answer round.
type ClarificationExchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ConversationSession is the durable state of one planning conversation.
// It is mutated exclusively by the conversation state machine; stores
// only persist and retrieve serialized snapshots.
type ConversationSession struct {
	// ID is the opaque session identifier.
	ID string `json:"id"`
	// State is the current conversation phase.
	State SessionState `json:"state"`
	// Goal is the user's stated goal.
	Goal string `json:"goal"`
	// Clarifications is the ordered question/answer history.
	Clarifications []ClarificationExchange `json:"clarifications,omitempty"`
	// ClarificationCount is the number of completed clarification rounds.
	ClarificationCount int `json:"clarification_count"`
	// PendingQuestion is the question awaiting an answer, if any.
	PendingQuestion *ClarificationQuestion `json:"pending_question,omitempty"`
	// Tasks is the working task set accumulated during planning.
	Tasks []Task `json:"tasks,omitempty"`
	// Plan is the final plan, set when the session completes.
	Plan *Plan `json:"plan,omitempty"`
	// LastInput is the most recently processed input, kept for
	// replay de-duplication.
	LastInput string `json:"last_input,omitempty"`
	// LastError records the failure reason for failed sessions.
	LastError string `json:"last_error,omitempty"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the session was last stepped.
	UpdatedAt time.Time `json:"updated_at"`
	// ExpiresAt is when the session becomes eligible for expiry.
	ExpiresAt time.Time `json:"expires_at"`
}
