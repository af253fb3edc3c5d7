// Package models defines the consent contract shared with the chat turn handler.
package models

// ConsentKind enumerates the possible outcomes of one consent-gated chat turn.
type ConsentKind string

const (
	// ConsentKindNone indicates no intervention signal was detected.
	ConsentKindNone ConsentKind = "none"
	// ConsentKindRequest indicates a first offer with an intervention preview.
	ConsentKindRequest ConsentKind = "consent_request"
	// ConsentKindAwaiting indicates a re-prompt after an ambiguous reply.
	ConsentKindAwaiting ConsentKind = "awaiting_consent"
	// ConsentKindAccepted indicates consent was affirmed for a resolved intervention.
	ConsentKindAccepted ConsentKind = "accepted"
)

// IsValidConsentKind checks if the given consent kind is supported.
func IsValidConsentKind(k ConsentKind) bool {
	switch k {
	case ConsentKindNone, ConsentKindRequest, ConsentKindAwaiting, ConsentKindAccepted:
		return true
	default:
		return false
	}
}

// InterventionPreview is the offer summary shown to the user before consent.
type InterventionPreview struct {
	InterventionID string `json:"intervention_id"`
	Name           string `json:"name"`
	Reason         string `json:"reason,omitempty"` // why this intervention was surfaced
	Focus          string `json:"focus,omitempty"`
}

// ConsentOutcome is the sum-typed result of the upstream consent gate. The
// orchestrator never infers consent itself; it only starts a session once it
// is handed an accepted outcome with a resolved intervention id.
type ConsentOutcome struct {
	Kind           ConsentKind          `json:"kind"`
	Preview        *InterventionPreview `json:"intervention_preview,omitempty"`
	InterventionID string               `json:"intervention_id,omitempty"`
	Reason         string               `json:"reason,omitempty"`
	Context        string               `json:"conversation_context,omitempty"`
}

// Validate checks the outcome's shape against its kind.
func (c *ConsentOutcome) Validate() error {
	if !IsValidConsentKind(c.Kind) {
		return ErrInvalidConsentKind
	}
	switch c.Kind {
	case ConsentKindRequest, ConsentKindAwaiting:
		if c.Preview == nil || c.Preview.InterventionID == "" {
			return ErrMissingConsentPreview
		}
	case ConsentKindAccepted:
		if c.InterventionID == "" {
			return ErrMissingInterventionID
		}
	}
	return nil
}
