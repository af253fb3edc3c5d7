// Package models defines the core data structures for the money coaching
// intervention orchestrator.
//
// It includes the session and intervention entities, the consent contract,
// request/response payloads, and shared validation, which are used across modules.
package models

import "errors"

// Validation constants for input validation
const (
	// MinPlanQuestions is the minimum number of questions in a session plan
	MinPlanQuestions = 4
	// MaxPlanQuestions is the maximum number of questions in a session plan
	MaxPlanQuestions = 5
	// MaxUserResponseLength is the maximum allowed length for a user response
	MaxUserResponseLength = 4096
	// MaxExitReasonLength is the maximum allowed length for an early-exit reason
	MaxExitReasonLength = 500
	// MinFeedbackRating is the lowest accepted feedback rating
	MinFeedbackRating = 1
	// MaxFeedbackRating is the highest accepted feedback rating
	MaxFeedbackRating = 5
)

// Error variables for better error handling and testability
var (
	ErrInterventionNotFound    = errors.New("intervention not found")
	ErrSessionNotFound         = errors.New("session not found")
	ErrNotSessionOwner         = errors.New("session does not belong to caller")
	ErrActiveSessionExists     = errors.New("an active session already exists for this intervention")
	ErrSessionAlreadyCompleted = errors.New("session is already completed")
	ErrSessionAlreadyExited    = errors.New("session was already exited")
	ErrSessionNotCompleted     = errors.New("session is not completed")
	ErrEmptyUserResponse       = errors.New("user_response cannot be empty")
	ErrUserResponseTooLong     = errors.New("user_response exceeds maximum length")
	ErrExitReasonTooLong       = errors.New("exit_reason exceeds maximum length")
	ErrInvalidRating           = errors.New("rating must be between 1 and 5")
	ErrFeedbackAlreadyExists   = errors.New("feedback was already submitted for this session")
	ErrMissingInterventionID   = errors.New("intervention_id is required")
	ErrMissingProgressID       = errors.New("progress_id is required")
	ErrMissingSessionID        = errors.New("session_id is required")
	ErrInvalidSessionAction    = errors.New("action must be 'start' or 'respond'")
	ErrInvalidConsentKind      = errors.New("invalid consent outcome kind")
	ErrMissingConsentPreview   = errors.New("intervention_preview is required for this consent kind")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Convenience functions for common response patterns

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Recorded creates a recorded API response.
func Recorded() APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		Build()
}

// RecordedWithMessage creates a recorded API response with a message.
func RecordedWithMessage(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		WithMessage(message).
		Build()
}
