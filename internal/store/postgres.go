// Package store provides storage backends for the intervention orchestrator.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

func (s *PostgresStore) SaveIntervention(iv models.Intervention) error {
	_, err := s.db.Exec(`INSERT INTO interventions (id, name, description, prompt, completion_indicator, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = $2, description = $3, prompt = $4, completion_indicator = $5`,
		iv.ID, iv.Name, iv.Description, iv.Prompt, iv.CompletionIndicator, iv.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveIntervention failed", "error", err, "interventionID", iv.ID)
		return fmt.Errorf("failed to save intervention %s: %w", iv.ID, err)
	}
	slog.Debug("PostgresStore SaveIntervention succeeded", "interventionID", iv.ID)
	return nil
}

func (s *PostgresStore) GetIntervention(id string) (*models.Intervention, error) {
	var iv models.Intervention
	err := s.db.QueryRow(`SELECT id, name, description, prompt, completion_indicator, created_at
		FROM interventions WHERE id = $1`, id).Scan(
		&iv.ID, &iv.Name, &iv.Description, &iv.Prompt, &iv.CompletionIndicator, &iv.CreatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetIntervention not found", "interventionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetIntervention failed", "error", err, "interventionID", id)
		return nil, fmt.Errorf("failed to get intervention %s: %w", id, err)
	}
	return &iv, nil
}

func (s *PostgresStore) ListInterventions() ([]models.Intervention, error) {
	rows, err := s.db.Query(`SELECT id, name, description, prompt, completion_indicator, created_at
		FROM interventions ORDER BY created_at`)
	if err != nil {
		slog.Error("PostgresStore ListInterventions query failed", "error", err)
		return nil, fmt.Errorf("failed to query interventions: %w", err)
	}
	defer rows.Close()

	var interventions []models.Intervention
	for rows.Next() {
		var iv models.Intervention
		if err := rows.Scan(&iv.ID, &iv.Name, &iv.Description, &iv.Prompt, &iv.CompletionIndicator, &iv.CreatedAt); err != nil {
			slog.Error("PostgresStore ListInterventions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan intervention row: %w", err)
		}
		interventions = append(interventions, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intervention rows: %w", err)
	}
	slog.Debug("PostgresStore ListInterventions succeeded", "count", len(interventions))
	return interventions, nil
}

func (s *PostgresStore) CreateSessionProgress(sp models.SessionProgress) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sp.ID, sp.UserID, sp.InterventionID, sp.Status, sp.CurrentQuestionIndex,
		planJSON, responsesJSON, sp.StartedAt, sp.CompletedAt, sp.ExitedAt,
		nilIfEmpty(string(sp.CompletionType)), nilIfEmpty(sp.ExitReason))
	if err != nil {
		if isUniqueViolation(err) {
			slog.Warn("PostgresStore CreateSessionProgress active session exists", "userID", sp.UserID, "interventionID", sp.InterventionID)
			return models.ErrActiveSessionExists
		}
		slog.Error("PostgresStore CreateSessionProgress failed", "error", err, "sessionID", sp.ID)
		return fmt.Errorf("failed to create session progress %s: %w", sp.ID, err)
	}
	slog.Debug("PostgresStore CreateSessionProgress succeeded", "sessionID", sp.ID, "userID", sp.UserID)
	return nil
}

func (s *PostgresStore) GetSessionProgress(id string) (*models.SessionProgress, error) {
	row := s.db.QueryRow(`SELECT `+sessionProgressColumns+` FROM session_progress WHERE id = $1`, id)
	sp, err := scanSessionProgress(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSessionProgress not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSessionProgress failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to get session progress %s: %w", id, err)
	}
	return sp, nil
}

func (s *PostgresStore) GetActiveSessionProgress(userID, interventionID string) (*models.SessionProgress, error) {
	row := s.db.QueryRow(`SELECT `+sessionProgressColumns+` FROM session_progress
		WHERE user_id = $1 AND intervention_id = $2 AND status = $3`,
		userID, interventionID, models.SessionStatusActive)
	sp, err := scanSessionProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetActiveSessionProgress failed", "error", err, "userID", userID, "interventionID", interventionID)
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return sp, nil
}

func (s *PostgresStore) GetLatestCompletedSession(userID, interventionID string) (*models.SessionProgress, error) {
	row := s.db.QueryRow(`SELECT `+sessionProgressColumns+` FROM session_progress
		WHERE user_id = $1 AND intervention_id = $2 AND status = $3
		ORDER BY completed_at DESC LIMIT 1`,
		userID, interventionID, models.SessionStatusCompleted)
	sp, err := scanSessionProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLatestCompletedSession failed", "error", err, "userID", userID, "interventionID", interventionID)
		return nil, fmt.Errorf("failed to get latest completed session: %w", err)
	}
	return sp, nil
}

func (s *PostgresStore) UpdateSessionProgress(sp models.SessionProgress) error {
	planJSON, err := encodeStrings(sp.QuestionPlan)
	if err != nil {
		return err
	}
	responsesJSON, err := encodeStrings(sp.Responses)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE session_progress SET
		status = $1, current_question_index = $2, question_plan = $3, responses = $4,
		completed_at = $5, exited_at = $6, completion_type = $7, exit_reason = $8
		WHERE id = $9`,
		sp.Status, sp.CurrentQuestionIndex, planJSON, responsesJSON,
		sp.CompletedAt, sp.ExitedAt, nilIfEmpty(string(sp.CompletionType)), nilIfEmpty(sp.ExitReason),
		sp.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateSessionProgress failed", "error", err, "sessionID", sp.ID)
		return fmt.Errorf("failed to update session progress %s: %w", sp.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrSessionNotFound
	}
	slog.Debug("PostgresStore UpdateSessionProgress succeeded", "sessionID", sp.ID, "status", sp.Status, "index", sp.CurrentQuestionIndex)
	return nil
}

func (s *PostgresStore) AddSessionResponse(r models.SessionResponse) error {
	_, err := s.db.Exec(`INSERT INTO session_responses (id, session_id, response_text, completed_at)
		VALUES ($1, $2, $3, $4)`, r.ID, r.SessionID, r.ResponseText, r.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore AddSessionResponse failed", "error", err, "sessionID", r.SessionID)
		return fmt.Errorf("failed to insert session response for %s: %w", r.SessionID, err)
	}
	slog.Debug("PostgresStore AddSessionResponse succeeded", "sessionID", r.SessionID)
	return nil
}

func (s *PostgresStore) ListSessionResponses(sessionID string) ([]models.SessionResponse, error) {
	rows, err := s.db.Query(`SELECT id, session_id, response_text, completed_at
		FROM session_responses WHERE session_id = $1 ORDER BY completed_at`, sessionID)
	if err != nil {
		slog.Error("PostgresStore ListSessionResponses query failed", "error", err, "sessionID", sessionID)
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

func (s *PostgresStore) AddFeedback(f models.InterventionFeedback) error {
	_, err := s.db.Exec(`INSERT INTO intervention_feedback (id, intervention_id, session_id, user_id, rating, feedback_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.InterventionID, f.SessionID, f.UserID, f.Rating, nilIfEmpty(f.FeedbackText), f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrFeedbackAlreadyExists
		}
		slog.Error("PostgresStore AddFeedback failed", "error", err, "sessionID", f.SessionID)
		return fmt.Errorf("failed to insert feedback for session %s: %w", f.SessionID, err)
	}
	slog.Debug("PostgresStore AddFeedback succeeded", "sessionID", f.SessionID, "rating", f.Rating)
	return nil
}

func (s *PostgresStore) GetFeedbackBySession(sessionID string) (*models.InterventionFeedback, error) {
	var f models.InterventionFeedback
	var feedbackText sql.NullString
	err := s.db.QueryRow(`SELECT id, intervention_id, session_id, user_id, rating, feedback_text, created_at
		FROM intervention_feedback WHERE session_id = $1`, sessionID).Scan(
		&f.ID, &f.InterventionID, &f.SessionID, &f.UserID, &f.Rating, &feedbackText, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetFeedbackBySession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get feedback for session %s: %w", sessionID, err)
	}
	f.FeedbackText = feedbackText.String
	return &f, nil
}

func (s *PostgresStore) SaveTriggerContext(t models.TriggerContext) error {
	_, err := s.db.Exec(`INSERT INTO intervention_triggers (id, user_id, intervention_id, reason, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.InterventionID, t.Reason, nilIfEmpty(t.Context), t.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveTriggerContext failed", "error", err, "userID", t.UserID)
		return fmt.Errorf("failed to save trigger context: %w", err)
	}
	slog.Debug("PostgresStore SaveTriggerContext succeeded", "userID", t.UserID, "interventionID", t.InterventionID)
	return nil
}

func (s *PostgresStore) GetLatestTriggerContext(userID, interventionID string) (*models.TriggerContext, error) {
	var t models.TriggerContext
	var context sql.NullString
	err := s.db.QueryRow(`SELECT id, user_id, intervention_id, reason, context, created_at
		FROM intervention_triggers WHERE user_id = $1 AND intervention_id = $2
		ORDER BY created_at DESC LIMIT 1`, userID, interventionID).Scan(
		&t.ID, &t.UserID, &t.InterventionID, &t.Reason, &context, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLatestTriggerContext failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get trigger context: %w", err)
	}
	t.Context = context.String
	return &t, nil
}

func (s *PostgresStore) SaveInterventionHistory(h models.InterventionHistory) error {
	_, err := s.db.Exec(`INSERT INTO intervention_history (id, user_id, intervention_id, offered_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ID, h.UserID, h.InterventionID, h.OfferedAt, h.StartedAt, h.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore SaveInterventionHistory failed", "error", err, "userID", h.UserID)
		return fmt.Errorf("failed to save intervention history: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOpenInterventionHistory(userID, interventionID string) (*models.InterventionHistory, error) {
	row := s.db.QueryRow(`SELECT id, user_id, intervention_id, offered_at, started_at, completed_at
		FROM intervention_history WHERE user_id = $1 AND intervention_id = $2 AND completed_at IS NULL
		ORDER BY offered_at DESC LIMIT 1`, userID, interventionID)
	h, err := scanInterventionHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOpenInterventionHistory failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get open intervention history: %w", err)
	}
	return h, nil
}

func (s *PostgresStore) UpdateInterventionHistory(h models.InterventionHistory) error {
	_, err := s.db.Exec(`UPDATE intervention_history SET started_at = $1, completed_at = $2 WHERE id = $3`,
		h.StartedAt, h.CompletedAt, h.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateInterventionHistory failed", "error", err, "historyID", h.ID)
		return fmt.Errorf("failed to update intervention history %s: %w", h.ID, err)
	}
	return nil
}

func (s *PostgresStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, name, api_token, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = $2, api_token = $3`,
		u.ID, nilIfEmpty(u.Name), u.APIToken, u.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetUserByToken(token string) (*models.User, error) {
	var u models.User
	var name sql.NullString
	err := s.db.QueryRow(`SELECT id, name, api_token, created_at FROM users WHERE api_token = $1`, token).Scan(
		&u.ID, &name, &u.APIToken, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserByToken failed", "error", err)
		return nil, fmt.Errorf("failed to look up user by token: %w", err)
	}
	u.Name = name.String
	return &u, nil
}
