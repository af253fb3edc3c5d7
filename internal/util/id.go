package util

import "github.com/google/uuid"

// NewID returns a prefixed unique identifier, e.g. "sess_537f...".
func NewID(prefix string) string {
	return prefix + uuid.NewString()
}

// NewSessionID generates a session progress identifier.
func NewSessionID() string { return NewID("sess_") }

// NewResponseID generates a session response identifier.
func NewResponseID() string { return NewID("resp_") }

// NewFeedbackID generates a feedback record identifier.
func NewFeedbackID() string { return NewID("fb_") }

// NewTriggerID generates a trigger context identifier.
func NewTriggerID() string { return NewID("trg_") }

// NewHistoryID generates an intervention history identifier.
func NewHistoryID() string { return NewID("hist_") }

// NewInterventionID generates an intervention catalog identifier.
func NewInterventionID() string { return NewID("iv_") }
