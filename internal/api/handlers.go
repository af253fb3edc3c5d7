// Package api provides the HTTP handlers for the orchestrator endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/util"
)

// genericFailureMessage is shown for any fatal internal error; no internal
// detail is exposed to callers.
const genericFailureMessage = "Something went wrong. Please try again."

// writeDomainError maps the orchestrator's error taxonomy to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInterventionNotFound),
		errors.Is(err, models.ErrSessionNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, models.ErrNotSessionOwner):
		writeJSONResponse(w, http.StatusForbidden, models.Error("Session does not belong to caller"))
	case errors.Is(err, models.ErrActiveSessionExists),
		errors.Is(err, models.ErrSessionAlreadyCompleted),
		errors.Is(err, models.ErrSessionAlreadyExited),
		errors.Is(err, models.ErrSessionNotCompleted),
		errors.Is(err, models.ErrFeedbackAlreadyExists):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	case errors.Is(err, models.ErrEmptyUserResponse),
		errors.Is(err, models.ErrUserResponseTooLong),
		errors.Is(err, models.ErrExitReasonTooLong),
		errors.Is(err, models.ErrInvalidRating):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	default:
		slog.Error("handler internal error", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(genericFailureMessage))
	}
}

// sessionActionHandler handles the combined start/respond endpoint
// (POST /api/v1/session).
func (s *Server) sessionActionHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("sessionActionHandler invoked", "method", r.Method, "userID", user.ID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.SessionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("sessionActionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("sessionActionHandler: validation failed", "error", err, "action", req.Action)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	var result *models.SessionTurnResult
	var err error
	switch req.Action {
	case models.SessionActionStart:
		result, err = s.orch.Start(r.Context(), user.ID, req.InterventionID)
	case models.SessionActionRespond:
		result, err = s.orch.Respond(r.Context(), user.ID, req.ProgressID, req.UserResponse)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// exitHandler handles user-initiated early exit (POST /api/v1/session/exit).
// A failed exit write is surfaced so the user is never told their exit was
// confirmed when it was not.
func (s *Server) exitHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("exitHandler invoked", "method", r.Method, "userID", user.ID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ExitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.orch.Exit(r.Context(), user.ID, req.ProgressID, req.ExitReason); err != nil {
		if errors.Is(err, models.ErrSessionAlreadyExited) {
			// Benign repeat: the exit they asked for already happened.
			writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session already exited", nil))
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session exited", nil))
}

// feedbackHandler handles post-completion feedback submission
// (POST /api/v1/session/feedback).
func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("feedbackHandler invoked", "method", r.Method, "userID", user.ID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.orch.SubmitFeedback(r.Context(), user.ID, req); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.RecordedWithMessage("Feedback recorded"))
}

// finalizeHandler closes the feedback loop for a completed session
// (POST /api/v1/session/finalize). Idempotent.
func (s *Server) finalizeHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("finalizeHandler invoked", "method", r.Method, "userID", user.ID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result, err := s.orch.Finalize(r.Context(), user.ID, req.InterventionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// consentHandler records the resolved outcome of one consent-gated chat turn
// (POST /api/v1/consent). The orchestrator never infers consent itself; it
// only accepts the chat layer's already-resolved outcome.
func (s *Server) consentHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("consentHandler invoked", "method", r.Method, "userID", user.ID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var outcome models.ConsentOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := outcome.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.orch.RecordConsent(r.Context(), user.ID, outcome); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Recorded())
}

// interventionsHandler lists the catalog (GET) or creates an entry (POST).
// Catalog rows are immutable at session-run time; creation is out of band
// relative to any running session.
func (s *Server) interventionsHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("interventionsHandler invoked", "method", r.Method, "userID", user.ID)

	switch r.Method {
	case http.MethodGet:
		interventions, err := s.st.ListInterventions()
		if err != nil {
			slog.Error("interventionsHandler: list failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error(genericFailureMessage))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(interventions))
	case http.MethodPost:
		var req models.InterventionCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := req.Validate(); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		iv := models.Intervention{
			ID:                  util.NewInterventionID(),
			Name:                strings.TrimSpace(req.Name),
			Description:         strings.TrimSpace(req.Description),
			Prompt:              strings.TrimSpace(req.Prompt),
			CompletionIndicator: strings.TrimSpace(req.CompletionIndicator),
			CreatedAt:           time.Now(),
		}
		if err := s.st.SaveIntervention(iv); err != nil {
			slog.Error("interventionsHandler: save failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error(genericFailureMessage))
			return
		}
		slog.Info("interventionsHandler: intervention created", "interventionID", iv.ID, "name", iv.Name)
		writeJSONResponse(w, http.StatusCreated, models.Success(iv))
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// getSessionHandler returns the caller's session record
// (GET /api/v1/session/{id}).
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	slog.Debug("getSessionHandler invoked", "method", r.Method, "userID", user.ID)

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	progressID := strings.TrimPrefix(r.URL.Path, "/api/v1/session/")
	if progressID == "" || strings.Contains(progressID, "/") {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing session ID"))
		return
	}

	sp, err := s.orch.GetSession(r.Context(), user.ID, progressID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sp))
}
