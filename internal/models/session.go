// Package models defines the session and intervention entities for the orchestrator.
package models

import (
	"errors"
	"strings"
	"time"
)

// SessionStatus represents the lifecycle status of a guided intervention session.
type SessionStatus string

const (
	// SessionStatusActive indicates the session is in progress.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusCompleted indicates the session finished all plan questions.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusExited indicates the user ended the session early.
	SessionStatusExited SessionStatus = "exited"
)

// CompletionType records how a session reached its terminal state.
type CompletionType string

const (
	// CompletionTypeCompleted indicates natural completion of the full plan.
	CompletionTypeCompleted CompletionType = "completed"
	// CompletionTypeEarlyExit indicates a user-initiated early exit.
	CompletionTypeEarlyExit CompletionType = "early_exit"
)

// IsValidSessionStatus checks if the given session status is supported.
func IsValidSessionStatus(s SessionStatus) bool {
	switch s {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusExited:
		return true
	default:
		return false
	}
}

// Intervention describes one guided reflection exercise available to users.
// Rows are immutable at session-run time; they are created out of band.
type Intervention struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Prompt              string    `json:"prompt"`               // free-text therapeutic instruction used to derive questions
	CompletionIndicator string    `json:"completion_indicator"` // descriptive only, not mechanically evaluated
	CreatedAt           time.Time `json:"created_at"`
}

// SessionProgress is the single durable record for one user's attempt at an
// intervention. Every request re-derives its position from this record.
type SessionProgress struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"user_id"`
	InterventionID       string         `json:"intervention_id"`
	Status               SessionStatus  `json:"status"`
	CurrentQuestionIndex int            `json:"current_question_index"`
	QuestionPlan         []string       `json:"question_plan"` // fixed once generated for this session instance
	Responses            []string       `json:"responses"`
	StartedAt            time.Time      `json:"started_at"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	ExitedAt             *time.Time     `json:"exited_at,omitempty"`
	CompletionType       CompletionType `json:"completion_type,omitempty"`
	ExitReason           string         `json:"exit_reason,omitempty"`
}

// TotalQuestions returns the length of the session's question plan.
func (s *SessionProgress) TotalQuestions() int {
	return len(s.QuestionPlan)
}

// IsTerminal reports whether the session reached a terminal state.
func (s *SessionProgress) IsTerminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusExited
}

// SessionResponse is the append-only audit record for one user answer.
type SessionResponse struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	ResponseText string    `json:"response_text"`
	CompletedAt  time.Time `json:"completed_at"`
}

// InterventionFeedback is the optional post-completion rating for a session.
type InterventionFeedback struct {
	ID             string    `json:"id"`
	InterventionID string    `json:"intervention_id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Rating         int       `json:"rating"`
	FeedbackText   string    `json:"feedback_text,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TriggerContext captures why an intervention was offered to a user, recorded
// when consent resolves and read back when the session starts.
type TriggerContext struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	InterventionID string    `json:"intervention_id"`
	Reason         string    `json:"reason"`
	Context        string    `json:"context,omitempty"` // snapshot of surrounding conversation
	CreatedAt      time.Time `json:"created_at"`
}

// InterventionHistory is the chat-visible history row for one offered
// intervention; finalize stamps its completed_at when the loop closes.
type InterventionHistory struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	InterventionID string     `json:"intervention_id"`
	OfferedAt      time.Time  `json:"offered_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// User is the identity record resolved from an API token. Account management
// itself lives outside this service.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	APIToken  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Session action constants for the combined session endpoint.
const (
	SessionActionStart   = "start"
	SessionActionRespond = "respond"
)

// SessionActionRequest is the payload for the combined start/respond endpoint.
type SessionActionRequest struct {
	Action         string `json:"action"`
	InterventionID string `json:"intervention_id,omitempty"`
	ProgressID     string `json:"progress_id,omitempty"`
	UserResponse   string `json:"user_response,omitempty"`
}

// Validate performs structural validation on a SessionActionRequest.
func (r *SessionActionRequest) Validate() error {
	switch r.Action {
	case SessionActionStart:
		if r.InterventionID == "" {
			return ErrMissingInterventionID
		}
	case SessionActionRespond:
		if r.ProgressID == "" {
			return ErrMissingProgressID
		}
		if strings.TrimSpace(r.UserResponse) == "" {
			return ErrEmptyUserResponse
		}
		if len(r.UserResponse) > MaxUserResponseLength {
			return ErrUserResponseTooLong
		}
	default:
		return ErrInvalidSessionAction
	}
	return nil
}

// ExitRequest is the payload for user-initiated early exit.
type ExitRequest struct {
	ProgressID string `json:"progress_id"`
	ExitReason string `json:"exit_reason,omitempty"`
}

// Validate performs structural validation on an ExitRequest.
func (r *ExitRequest) Validate() error {
	if r.ProgressID == "" {
		return ErrMissingProgressID
	}
	if len(r.ExitReason) > MaxExitReasonLength {
		return ErrExitReasonTooLong
	}
	return nil
}

// FeedbackRequest is the payload for post-completion feedback submission.
type FeedbackRequest struct {
	SessionID    string `json:"session_id"`
	Rating       int    `json:"rating"`
	FeedbackText string `json:"feedback_text,omitempty"`
}

// Validate performs structural validation on a FeedbackRequest.
func (r *FeedbackRequest) Validate() error {
	if r.SessionID == "" {
		return ErrMissingSessionID
	}
	if r.Rating < MinFeedbackRating || r.Rating > MaxFeedbackRating {
		return ErrInvalidRating
	}
	return nil
}

// FinalizeRequest is the payload for the idempotent feedback-loop close.
type FinalizeRequest struct {
	InterventionID string `json:"intervention_id"`
}

// Validate performs structural validation on a FinalizeRequest.
func (r *FinalizeRequest) Validate() error {
	if r.InterventionID == "" {
		return ErrMissingInterventionID
	}
	return nil
}

// InterventionCreateRequest is the admin payload for catalog entries.
type InterventionCreateRequest struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	Prompt              string `json:"prompt"`
	CompletionIndicator string `json:"completion_indicator,omitempty"`
}

// Validate performs structural validation on an InterventionCreateRequest.
func (r *InterventionCreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New("prompt is required")
	}
	return nil
}

// SessionTurnResult is the caller-facing result of a start or respond turn.
type SessionTurnResult struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	ProgressID           string `json:"progress_id"`
	InterventionName     string `json:"intervention_name,omitempty"`
	CurrentQuestionIndex int    `json:"current_question_index"`
	TotalQuestions       int    `json:"total_questions"`
	IsComplete           bool   `json:"is_complete"`
}

// FinalizeResult is the caller-facing result of a finalize call.
type FinalizeResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	AlreadyFinalized bool   `json:"already_finalized,omitempty"`
}
