// Package store provides storage backends for the intervention orchestrator.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

func (s *SQLiteStore) SaveIntervention(iv models.Intervention) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO interventions (id, name, description, prompt, completion_indicator, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.Name, iv.Description, iv.Prompt, iv.CompletionIndicator, iv.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveIntervention failed", "error", err, "interventionID", iv.ID)
		return fmt.Errorf("failed to save intervention %s: %w", iv.ID, err)
	}
	slog.Debug("SQLiteStore SaveIntervention succeeded", "interventionID", iv.ID)
	return nil
}

func (s *SQLiteStore) GetIntervention(id string) (*models.Intervention, error) {
	var iv models.Intervention
	err := s.db.QueryRow(`SELECT id, name, description, prompt, completion_indicator, created_at
		FROM interventions WHERE id = ?`, id).Scan(
		&iv.ID, &iv.Name, &iv.Description, &iv.Prompt, &iv.CompletionIndicator, &iv.CreatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetIntervention not found", "interventionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetIntervention failed", "error", err, "interventionID", id)
		return nil, fmt.Errorf("failed to get intervention %s: %w", id, err)
	}
	return &iv, nil
}

func (s *SQLiteStore) ListInterventions() ([]models.Intervention, error) {
	rows, err := s.db.Query(`SELECT id, name, description, prompt, completion_indicator, created_at
		FROM interventions ORDER BY created_at`)
	if err != nil {
		slog.Error("SQLiteStore ListInterventions query failed", "error", err)
		return nil, fmt.Errorf("failed to query interventions: %w", err)
	}
	defer rows.Close()

	var interventions []models.Intervention
	for rows.Next() {
		var iv models.Intervention
		if err := rows.Scan(&iv.ID, &iv.Name, &iv.Description, &iv.Prompt, &iv.CompletionIndicator, &iv.CreatedAt); err != nil {
			slog.Error("SQLiteStore ListInterventions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan intervention row: %w", err)
		}
		interventions = append(interventions, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intervention rows: %w", err)
	}
	slog.Debug("SQLiteStore ListInterventions succeeded", "count", len(interventions))
	return interventions, nil
}

func (s *SQLiteStore) CreateSessionProgress(sp models.SessionProgress) error {
	planJSON, err := encodeStrings(sp.QuestionPlan)
	if err != nil {
		return err
	}
	responsesJSON, err := encodeStrings(sp.Responses)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO session_progress
		(id, user_id, intervention_id, status, current_question_index, question_plan, responses, started_at, completed_at, exited_at, completion_type, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.UserID, sp.InterventionID, sp.Status, sp.CurrentQuestionIndex,
		planJSON, responsesJSON, sp.StartedAt, sp.CompletedAt, sp.ExitedAt,
		nilIfEmpty(string(sp.CompletionType)), nilIfEmpty(sp.ExitReason))
	if err != nil {
		if isUniqueViolation(err) {
			slog.Warn("SQLiteStore CreateSessionProgress active session exists", "userID", sp.UserID, "interventionID", sp.InterventionID)
			return models.ErrActiveSessionExists
		}
		slog.Error("SQLiteStore CreateSessionProgress failed", "error", err, "sessionID", sp.ID)
		return fmt.Errorf("failed to create session progress %s: %w", sp.ID, err)
	}
	slog.Debug("SQLiteStore CreateSessionProgress succeeded", "sessionID", sp.ID, "userID", sp.UserID)
	return nil
}

const sessionProgressColumns = `id, user_id, intervention_id, status, current_question_index,
	question_plan, responses, started_at, completed_at, exited_at, completion_type, exit_reason`

func (s *SQLiteStore) GetSessionProgress(id string) (*models.SessionProgress, error) {
	row := s.db.QueryRow(`SELECT `+sessionProgressColumns+` FROM session_progress WHERE id = ?`, id)
	sp, err := scanSessionProgress(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSessionProgress not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSessionProgress failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to get session progress %s: %w", id, err)
	}
	return sp, nil
}

func (s *SQLiteStore) GetActiveSessionProgress(userID, interventionID string) (*models.SessionProgress, error) {
	row := s.db.QueryRow(`SELECT `+sessionProgressColumns+` FROM session_progress
		WHERE user_id = ? AND intervention_id = ? AND status = ?`,
		userID, interventionID, models.SessionStatusActive)
	sp, err := scanSessionProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetActiveSessionProgress failed", "error", err, "userID", userID, "interventionID", interventionID)
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return sp, nil
}

func (s *SQLiteStore) GetLatestCompletedSession(userID, interventionID string) (*models.SessionProgress, error) {
	row := s.db.QueryRow(`SELECT `+sessionProgressColumns+` FROM session_progress
		WHERE user_id = ? AND intervention_id = ? AND status = ?
		ORDER BY completed_at DESC LIMIT 1`,
		userID, interventionID, models.SessionStatusCompleted)
	sp, err := scanSessionProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLatestCompletedSession failed", "error", err, "userID", userID, "interventionID", interventionID)
		return nil, fmt.Errorf("failed to get latest completed session: %w", err)
	}
	return sp, nil
}

func (s *SQLiteStore) UpdateSessionProgress(sp models.SessionProgress) error {
	planJSON, err := encodeStrings(sp.QuestionPlan)
	if err != nil {
		return err
	}
	responsesJSON, err := encodeStrings(sp.Responses)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE session_progress SET
		status = ?, current_question_index = ?, question_plan = ?, responses = ?,
		completed_at = ?, exited_at = ?, completion_type = ?, exit_reason = ?
		WHERE id = ?`,
		sp.Status, sp.CurrentQuestionIndex, planJSON, responsesJSON,
		sp.CompletedAt, sp.ExitedAt, nilIfEmpty(string(sp.CompletionType)), nilIfEmpty(sp.ExitReason),
		sp.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateSessionProgress failed", "error", err, "sessionID", sp.ID)
		return fmt.Errorf("failed to update session progress %s: %w", sp.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrSessionNotFound
	}
	slog.Debug("SQLiteStore UpdateSessionProgress succeeded", "sessionID", sp.ID, "status", sp.Status, "index", sp.CurrentQuestionIndex)
	return nil
}

func (s *SQLiteStore) AddSessionResponse(r models.SessionResponse) error {
	_, err := s.db.Exec(`INSERT INTO session_responses (id, session_id, response_text, completed_at)
		VALUES (?, ?, ?, ?)`, r.ID, r.SessionID, r.ResponseText, r.CompletedAt)
	if err != nil {
		slog.Error("SQLiteStore AddSessionResponse failed", "error", err, "sessionID", r.SessionID)
		return fmt.Errorf("failed to insert session response for %s: %w", r.SessionID, err)
	}
	slog.Debug("SQLiteStore AddSessionResponse succeeded", "sessionID", r.SessionID)
	return nil
}

func (s *SQLiteStore) ListSessionResponses(sessionID string) ([]models.SessionResponse, error) {
	rows, err := s.db.Query(`SELECT id, session_id, response_text, completed_at
		FROM session_responses WHERE session_id = ? ORDER BY completed_at`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore ListSessionResponses query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query session responses: %w", err)
	}
	defer rows.Close()

	var responses []models.SessionResponse
	for rows.Next() {
		var r models.SessionResponse
		if err := rows.Scan(&r.ID, &r.SessionID, &r.ResponseText, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session response row: %w", err)
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session response rows: %w", err)
	}
	return responses, nil
}

func (s *SQLiteStore) AddFeedback(f models.InterventionFeedback) error {
	_, err := s.db.Exec(`INSERT INTO intervention_feedback (id, intervention_id, session_id, user_id, rating, feedback_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.InterventionID, f.SessionID, f.UserID, f.Rating, nilIfEmpty(f.FeedbackText), f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrFeedbackAlreadyExists
		}
		slog.Error("SQLiteStore AddFeedback failed", "error", err, "sessionID", f.SessionID)
		return fmt.Errorf("failed to insert feedback for session %s: %w", f.SessionID, err)
	}
	slog.Debug("SQLiteStore AddFeedback succeeded", "sessionID", f.SessionID, "rating", f.Rating)
	return nil
}

func (s *SQLiteStore) GetFeedbackBySession(sessionID string) (*models.InterventionFeedback, error) {
	var f models.InterventionFeedback
	var feedbackText sql.NullString
	err := s.db.QueryRow(`SELECT id, intervention_id, session_id, user_id, rating, feedback_text, created_at
		FROM intervention_feedback WHERE session_id = ?`, sessionID).Scan(
		&f.ID, &f.InterventionID, &f.SessionID, &f.UserID, &f.Rating, &feedbackText, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetFeedbackBySession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get feedback for session %s: %w", sessionID, err)
	}
	f.FeedbackText = feedbackText.String
	return &f, nil
}

func (s *SQLiteStore) SaveTriggerContext(t models.TriggerContext) error {
	_, err := s.db.Exec(`INSERT INTO intervention_triggers (id, user_id, intervention_id, reason, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.InterventionID, t.Reason, nilIfEmpty(t.Context), t.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveTriggerContext failed", "error", err, "userID", t.UserID)
		return fmt.Errorf("failed to save trigger context: %w", err)
	}
	slog.Debug("SQLiteStore SaveTriggerContext succeeded", "userID", t.UserID, "interventionID", t.InterventionID)
	return nil
}

func (s *SQLiteStore) GetLatestTriggerContext(userID, interventionID string) (*models.TriggerContext, error) {
	var t models.TriggerContext
	var context sql.NullString
	err := s.db.QueryRow(`SELECT id, user_id, intervention_id, reason, context, created_at
		FROM intervention_triggers WHERE user_id = ? AND intervention_id = ?
		ORDER BY created_at DESC LIMIT 1`, userID, interventionID).Scan(
		&t.ID, &t.UserID, &t.InterventionID, &t.Reason, &context, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLatestTriggerContext failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get trigger context: %w", err)
	}
	t.Context = context.String
	return &t, nil
}

func (s *SQLiteStore) SaveInterventionHistory(h models.InterventionHistory) error {
	_, err := s.db.Exec(`INSERT INTO intervention_history (id, user_id, intervention_id, offered_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.UserID, h.InterventionID, h.OfferedAt, h.StartedAt, h.CompletedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveInterventionHistory failed", "error", err, "userID", h.UserID)
		return fmt.Errorf("failed to save intervention history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetOpenInterventionHistory(userID, interventionID string) (*models.InterventionHistory, error) {
	row := s.db.QueryRow(`SELECT id, user_id, intervention_id, offered_at, started_at, completed_at
		FROM intervention_history WHERE user_id = ? AND intervention_id = ? AND completed_at IS NULL
		ORDER BY offered_at DESC LIMIT 1`, userID, interventionID)
	h, err := scanInterventionHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOpenInterventionHistory failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get open intervention history: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) UpdateInterventionHistory(h models.InterventionHistory) error {
	_, err := s.db.Exec(`UPDATE intervention_history SET started_at = ?, completed_at = ? WHERE id = ?`,
		h.StartedAt, h.CompletedAt, h.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateInterventionHistory failed", "error", err, "historyID", h.ID)
		return fmt.Errorf("failed to update intervention history %s: %w", h.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO users (id, name, api_token, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, nilIfEmpty(u.Name), u.APIToken, u.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByToken(token string) (*models.User, error) {
	var u models.User
	var name sql.NullString
	err := s.db.QueryRow(`SELECT id, name, api_token, created_at FROM users WHERE api_token = ?`, token).Scan(
		&u.ID, &name, &u.APIToken, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByToken failed", "error", err)
		return nil, fmt.Errorf("failed to look up user by token: %w", err)
	}
	u.Name = name.String
	return &u, nil
}
