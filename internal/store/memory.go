// Package store provides storage backends for the intervention orchestrator.
//
// This file implements an in-memory store used in tests and when no DSN is
// configured.
package store

import (
	"sync"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
)

// InMemoryStore keeps all records in process memory. It enforces the same
// one-active-session invariant as the SQL backends via a pre-insert check.
type InMemoryStore struct {
	mu            sync.RWMutex
	interventions map[string]models.Intervention
	sessions      map[string]models.SessionProgress
	responses     []models.SessionResponse
	feedback      map[string]models.InterventionFeedback // keyed by session ID
	triggers      []models.TriggerContext
	history       map[string]models.InterventionHistory
	users         map[string]models.User // keyed by API token
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		interventions: make(map[string]models.Intervention),
		sessions:      make(map[string]models.SessionProgress),
		feedback:      make(map[string]models.InterventionFeedback),
		history:       make(map[string]models.InterventionHistory),
		users:         make(map[string]models.User),
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) SaveIntervention(iv models.Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interventions[iv.ID] = iv
	return nil
}

func (s *InMemoryStore) GetIntervention(id string) (*models.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interventions[id]
	if !ok {
		return nil, nil
	}
	return &iv, nil
}

func (s *InMemoryStore) ListInterventions() ([]models.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Intervention, 0, len(s.interventions))
	for _, iv := range s.interventions {
		out = append(out, iv)
	}
	return out, nil
}

// copySession deep-copies the slices so callers cannot mutate stored state.
func copySession(sp models.SessionProgress) models.SessionProgress {
	sp.QuestionPlan = append([]string(nil), sp.QuestionPlan...)
	sp.Responses = append([]string(nil), sp.Responses...)
	return sp
}

func (s *InMemoryStore) CreateSessionProgress(sp models.SessionProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.UserID == sp.UserID && existing.InterventionID == sp.InterventionID &&
			existing.Status == models.SessionStatusActive {
			return models.ErrActiveSessionExists
		}
	}
	s.sessions[sp.ID] = copySession(sp)
	return nil
}

func (s *InMemoryStore) GetSessionProgress(id string) (*models.SessionProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	out := copySession(sp)
	return &out, nil
}

func (s *InMemoryStore) GetActiveSessionProgress(userID, interventionID string) (*models.SessionProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sp := range s.sessions {
		if sp.UserID == userID && sp.InterventionID == interventionID && sp.Status == models.SessionStatusActive {
			out := copySession(sp)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetLatestCompletedSession(userID, interventionID string) (*models.SessionProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.SessionProgress
	for _, sp := range s.sessions {
		if sp.UserID != userID || sp.InterventionID != interventionID || sp.Status != models.SessionStatusCompleted {
			continue
		}
		if latest == nil || (sp.CompletedAt != nil && latest.CompletedAt != nil && sp.CompletedAt.After(*latest.CompletedAt)) {
			out := copySession(sp)
			latest = &out
		}
	}
	return latest, nil
}

func (s *InMemoryStore) UpdateSessionProgress(sp models.SessionProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sp.ID]; !ok {
		return models.ErrSessionNotFound
	}
	s.sessions[sp.ID] = copySession(sp)
	return nil
}

func (s *InMemoryStore) AddSessionResponse(r models.SessionResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *InMemoryStore) ListSessionResponses(sessionID string) ([]models.SessionResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SessionResponse
	for _, r := range s.responses {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AddFeedback(f models.InterventionFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.feedback[f.SessionID]; ok {
		return models.ErrFeedbackAlreadyExists
	}
	s.feedback[f.SessionID] = f
	return nil
}

func (s *InMemoryStore) GetFeedbackBySession(sessionID string) (*models.InterventionFeedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.feedback[sessionID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *InMemoryStore) SaveTriggerContext(t models.TriggerContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, t)
	return nil
}

func (s *InMemoryStore) GetLatestTriggerContext(userID, interventionID string) (*models.TriggerContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.triggers) - 1; i >= 0; i-- {
		t := s.triggers[i]
		if t.UserID == userID && t.InterventionID == interventionID {
			return &t, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) SaveInterventionHistory(h models.InterventionHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[h.ID] = h
	return nil
}

func (s *InMemoryStore) GetOpenInterventionHistory(userID, interventionID string) (*models.InterventionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.InterventionHistory
	for _, h := range s.history {
		if h.UserID != userID || h.InterventionID != interventionID || h.CompletedAt != nil {
			continue
		}
		if latest == nil || h.OfferedAt.After(latest.OfferedAt) {
			copied := h
			latest = &copied
		}
	}
	return latest, nil
}

func (s *InMemoryStore) UpdateInterventionHistory(h models.InterventionHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[h.ID] = h
	return nil
}

func (s *InMemoryStore) SaveUser(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.APIToken] = u
	return nil
}

func (s *InMemoryStore) GetUserByToken(token string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[token]
	if !ok {
		return nil, nil
	}
	return &u, nil
}
