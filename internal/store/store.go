// Package store provides storage backends for the intervention orchestrator.
//
// It includes an in-memory store for tests, plus SQLite and PostgreSQL stores
// behind one interface. The session_progress table is the single source of
// truth between requests.
package store

import (
	"strings"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
)

// Store defines the persistence operations used by the orchestrator.
//
// Lookup methods return (nil, nil) when no matching record exists.
type Store interface {
	// Intervention catalog
	SaveIntervention(iv models.Intervention) error
	GetIntervention(id string) (*models.Intervention, error)
	ListInterventions() ([]models.Intervention, error)

	// Session progress (single source of truth between requests)
	CreateSessionProgress(sp models.SessionProgress) error
	GetSessionProgress(id string) (*models.SessionProgress, error)
	GetActiveSessionProgress(userID, interventionID string) (*models.SessionProgress, error)
	GetLatestCompletedSession(userID, interventionID string) (*models.SessionProgress, error)
	UpdateSessionProgress(sp models.SessionProgress) error

	// Response audit trail (append-only, best-effort)
	AddSessionResponse(r models.SessionResponse) error
	ListSessionResponses(sessionID string) ([]models.SessionResponse, error)

	// Post-completion feedback
	AddFeedback(f models.InterventionFeedback) error
	GetFeedbackBySession(sessionID string) (*models.InterventionFeedback, error)

	// Trigger context recorded by the consent gate
	SaveTriggerContext(t models.TriggerContext) error
	GetLatestTriggerContext(userID, interventionID string) (*models.TriggerContext, error)

	// Chat-visible intervention history
	SaveInterventionHistory(h models.InterventionHistory) error
	GetOpenInterventionHistory(userID, interventionID string) (*models.InterventionHistory, error)
	UpdateInterventionHistory(h models.InterventionHistory) error

	// Identity lookup
	SaveUser(u models.User) error
	GetUserByToken(token string) (*models.User, error)

	Close() error
}

// Opts holds configuration for constructing a store backend.
type Opts struct {
	// DSN is the database connection string: a file path for SQLite or a
	// postgres:// / key=value DSN for PostgreSQL.
	DSN string
	// Driver selects the backend ("sqlite3" or "postgres").
	Driver string
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN configures an SQLite store backed by the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// WithPostgresDSN configures a PostgreSQL store with the given DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" based on its shape.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// New constructs the store selected by the provided options. With no options
// it returns an in-memory store, which keeps no state across restarts.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.Driver {
	case "postgres":
		return NewPostgresStore(opts...)
	case "sqlite3":
		return NewSQLiteStore(opts...)
	default:
		return NewInMemoryStore(), nil
	}
}
