package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// encodeStrings marshals a string slice for a TEXT column. A nil slice is
// stored as an empty JSON array so scans round-trip cleanly.
func encodeStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", fmt.Errorf("failed to encode string list: %w", err)
	}
	return string(b), nil
}

// decodeStrings unmarshals a TEXT column back into a string slice.
func decodeStrings(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	var ss []string
	if err := json.Unmarshal([]byte(s), &ss); err != nil {
		return nil, fmt.Errorf("failed to decode string list: %w", err)
	}
	return ss, nil
}

// isUniqueViolation reports whether err is a uniqueness-constraint failure
// from either backend. Covers go-sqlite3 ("UNIQUE constraint failed") and
// lib/pq ("duplicate key value violates unique constraint").
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSessionProgress scans one session_progress row.
func scanSessionProgress(row rowScanner) (*models.SessionProgress, error) {
	var sp models.SessionProgress
	var planJSON string
	var responsesJSON, completionType, exitReason sql.NullString
	var completedAt, exitedAt sql.NullTime
	err := row.Scan(
		&sp.ID, &sp.UserID, &sp.InterventionID, &sp.Status, &sp.CurrentQuestionIndex,
		&planJSON, &responsesJSON, &sp.StartedAt, &completedAt, &exitedAt,
		&completionType, &exitReason,
	)
	if err != nil {
		return nil, err
	}
	sp.QuestionPlan, err = decodeStrings(planJSON)
	if err != nil {
		return nil, fmt.Errorf("scan session progress %s: %w", sp.ID, err)
	}
	sp.Responses, err = decodeStrings(responsesJSON.String)
	if err != nil {
		return nil, fmt.Errorf("scan session progress %s: %w", sp.ID, err)
	}
	sp.CompletionType = models.CompletionType(completionType.String)
	sp.ExitReason = exitReason.String
	if completedAt.Valid {
		sp.CompletedAt = &completedAt.Time
	}
	if exitedAt.Valid {
		sp.ExitedAt = &exitedAt.Time
	}
	return &sp, nil
}

// scanInterventionHistory scans one intervention_history row.
func scanInterventionHistory(row rowScanner) (*models.InterventionHistory, error) {
	var h models.InterventionHistory
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&h.ID, &h.UserID, &h.InterventionID, &h.OfferedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		h.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		h.CompletedAt = &completedAt.Time
	}
	return &h, nil
}
