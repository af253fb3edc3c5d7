package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/genai"
	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/store"
	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/util"
)

// Orchestrator drives guided intervention sessions across stateless request
// invocations. All cross-request state lives in the store: every operation
// re-derives the session position from a single durable record at the top of
// the request and persists it before returning. No operation is safe to run
// concurrently against the same session id; callers serialize turns per
// session.
type Orchestrator struct {
	st        store.Store
	plans     *PlanGenerator
	followUps *FollowUpGenerator
}

// NewOrchestrator creates the session orchestrator. genaiClient may be nil,
// in which case all plans and follow-ups come from the deterministic
// fallbacks.
func NewOrchestrator(st store.Store, genaiClient genai.ClientInterface) *Orchestrator {
	return &Orchestrator{
		st:        st,
		plans:     NewPlanGenerator(genaiClient),
		followUps: NewFollowUpGenerator(genaiClient),
	}
}

// Start begins a new session for the given user and intervention. It fails
// with models.ErrActiveSessionExists when an active session for the pair
// already exists; duplicates are never created silently.
func (o *Orchestrator) Start(ctx context.Context, userID, interventionID string) (*models.SessionTurnResult, error) {
	slog.Debug("Orchestrator.Start", "userID", userID, "interventionID", interventionID)

	iv, err := o.st.GetIntervention(interventionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up intervention: %w", err)
	}
	if iv == nil {
		return nil, models.ErrInterventionNotFound
	}

	existing, err := o.st.GetActiveSessionProgress(userID, interventionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active session: %w", err)
	}
	if existing != nil {
		return nil, models.ErrActiveSessionExists
	}

	// Most recent trigger context recorded by the consent gate; generic
	// context when none was recorded.
	var triggerReason, conversationContext string
	trigger, err := o.st.GetLatestTriggerContext(userID, interventionID)
	if err != nil {
		slog.Warn("Orchestrator.Start: trigger context lookup failed, using generic context", "error", err, "userID", userID)
	} else if trigger != nil {
		triggerReason = trigger.Reason
		conversationContext = trigger.Context
	}

	plan := o.plans.GeneratePlan(ctx, *iv, triggerReason, conversationContext)

	now := time.Now()
	sp := models.SessionProgress{
		ID:                   util.NewSessionID(),
		UserID:               userID,
		InterventionID:       interventionID,
		Status:               models.SessionStatusActive,
		CurrentQuestionIndex: 0,
		QuestionPlan:         plan,
		Responses:            []string{},
		StartedAt:            now,
	}
	if err := o.st.CreateSessionProgress(sp); err != nil {
		if errors.Is(err, models.ErrActiveSessionExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	o.stampHistoryStarted(userID, interventionID, now)

	welcome := fmt.Sprintf("%s\n\n%s\n\nQuestion 1 of %d: %s", iv.Name, iv.Description, len(plan), plan[0])
	slog.Info("Orchestrator.Start: session started", "sessionID", sp.ID, "userID", userID, "interventionID", interventionID, "questions", len(plan))
	return &models.SessionTurnResult{
		Success:              true,
		Message:              welcome,
		ProgressID:           sp.ID,
		InterventionName:     iv.Name,
		CurrentQuestionIndex: 0,
		TotalQuestions:       len(plan),
		IsComplete:           false,
	}, nil
}

// Respond processes one user answer, advances the session position, and
// returns the follow-up or closing message. The response audit write is
// best-effort; the session-state update is required to succeed.
func (o *Orchestrator) Respond(ctx context.Context, userID, progressID, userResponse string) (*models.SessionTurnResult, error) {
	slog.Debug("Orchestrator.Respond", "userID", userID, "progressID", progressID)

	trimmed := strings.TrimSpace(userResponse)
	if trimmed == "" {
		return nil, models.ErrEmptyUserResponse
	}
	if len(trimmed) > models.MaxUserResponseLength {
		return nil, models.ErrUserResponseTooLong
	}

	sp, err := o.loadOwnedSession(userID, progressID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(sp); err != nil {
		return nil, err
	}

	// Audit append is best-effort: losing a row of the trail is preferable
	// to blocking the user's conversation.
	audit := models.SessionResponse{
		ID:           util.NewResponseID(),
		SessionID:    sp.ID,
		ResponseText: trimmed,
		CompletedAt:  time.Now(),
	}
	if err := o.st.AddSessionResponse(audit); err != nil {
		slog.Warn("Orchestrator.Respond: response audit write failed, continuing", "error", err, "sessionID", sp.ID)
	}

	answeredIndex := sp.CurrentQuestionIndex
	terminal := answeredIndex >= len(sp.QuestionPlan)-1
	sp.Responses = append(sp.Responses, trimmed)

	var interventionPrompt string
	if iv, err := o.st.GetIntervention(sp.InterventionID); err == nil && iv != nil {
		interventionPrompt = iv.Prompt
	}

	message := o.followUps.Generate(ctx, FollowUpInput{
		InterventionPrompt: interventionPrompt,
		Questions:          sp.QuestionPlan,
		Responses:          sp.Responses,
		AnsweredIndex:      answeredIndex,
		Terminal:           terminal,
	})

	sp.CurrentQuestionIndex = answeredIndex + 1
	if terminal {
		now := time.Now()
		sp.Status = models.SessionStatusCompleted
		sp.CompletedAt = &now
		sp.CompletionType = models.CompletionTypeCompleted
	}

	// The session-state update must succeed: silently advancing the client
	// past what storage reflects would desynchronize the protocol.
	if err := o.st.UpdateSessionProgress(*sp); err != nil {
		return nil, fmt.Errorf("failed to persist session progress: %w", err)
	}

	slog.Info("Orchestrator.Respond: turn processed", "sessionID", sp.ID, "index", sp.CurrentQuestionIndex, "complete", terminal)
	return &models.SessionTurnResult{
		Success:              true,
		Message:              message,
		ProgressID:           sp.ID,
		CurrentQuestionIndex: sp.CurrentQuestionIndex,
		TotalQuestions:       sp.TotalQuestions(),
		IsComplete:           terminal,
	}, nil
}

// Exit terminates an active session early at the user's request. A failed
// write is surfaced so the caller never assumes an unconfirmed exit.
func (o *Orchestrator) Exit(ctx context.Context, userID, progressID, exitReason string) error {
	slog.Debug("Orchestrator.Exit", "userID", userID, "progressID", progressID)

	sp, err := o.loadOwnedSession(userID, progressID)
	if err != nil {
		return err
	}
	if err := requireActive(sp); err != nil {
		return err
	}

	now := time.Now()
	sp.Status = models.SessionStatusExited
	sp.CompletionType = models.CompletionTypeEarlyExit
	sp.ExitedAt = &now
	sp.ExitReason = strings.TrimSpace(exitReason)

	if err := o.st.UpdateSessionProgress(*sp); err != nil {
		return fmt.Errorf("failed to persist early exit: %w", err)
	}
	slog.Info("Orchestrator.Exit: session exited", "sessionID", sp.ID, "userID", userID)
	return nil
}

// SubmitFeedback records the optional post-completion rating. Feedback must
// reference a completed session owned by the caller, at most once.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, userID string, req models.FeedbackRequest) error {
	sp, err := o.loadOwnedSession(userID, req.SessionID)
	if err != nil {
		return err
	}
	if sp.Status != models.SessionStatusCompleted {
		return models.ErrSessionNotCompleted
	}
	existing, err := o.st.GetFeedbackBySession(sp.ID)
	if err != nil {
		return fmt.Errorf("failed to check existing feedback: %w", err)
	}
	if existing != nil {
		return models.ErrFeedbackAlreadyExists
	}
	f := models.InterventionFeedback{
		ID:             util.NewFeedbackID(),
		InterventionID: sp.InterventionID,
		SessionID:      sp.ID,
		UserID:         userID,
		Rating:         req.Rating,
		FeedbackText:   strings.TrimSpace(req.FeedbackText),
		CreatedAt:      time.Now(),
	}
	if err := o.st.AddFeedback(f); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	slog.Info("Orchestrator.SubmitFeedback: feedback recorded", "sessionID", sp.ID, "rating", req.Rating)
	return nil
}

// Finalize closes the feedback loop for the user's latest completed session
// of the intervention. It is idempotent: repeat calls succeed as no-ops.
// Feedback is never a gate on closure.
func (o *Orchestrator) Finalize(ctx context.Context, userID, interventionID string) (*models.FinalizeResult, error) {
	slog.Debug("Orchestrator.Finalize", "userID", userID, "interventionID", interventionID)

	iv, err := o.st.GetIntervention(interventionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up intervention: %w", err)
	}
	if iv == nil {
		return nil, models.ErrInterventionNotFound
	}

	sp, err := o.st.GetLatestCompletedSession(userID, interventionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up completed session: %w", err)
	}
	if sp == nil {
		return nil, models.ErrSessionNotFound
	}

	// Stamp the outstanding history row if one exists. Its absence means a
	// prior finalize already closed the loop.
	h, err := o.st.GetOpenInterventionHistory(userID, interventionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up intervention history: %w", err)
	}
	if h == nil {
		return &models.FinalizeResult{
			Success:          true,
			Message:          "Session already completed.",
			AlreadyFinalized: true,
		}, nil
	}

	now := time.Now()
	h.CompletedAt = &now
	if err := o.st.UpdateInterventionHistory(*h); err != nil {
		return nil, fmt.Errorf("failed to stamp intervention history: %w", err)
	}
	slog.Info("Orchestrator.Finalize: session finalized", "sessionID", sp.ID, "userID", userID)
	return &models.FinalizeResult{Success: true, Message: "Session completed."}, nil
}

// RecordConsent persists the outcome of one consent-gated chat turn. Only an
// accepted outcome creates durable state: the trigger context read back at
// start, plus an open history row if none exists.
func (o *Orchestrator) RecordConsent(ctx context.Context, userID string, outcome models.ConsentOutcome) error {
	if outcome.Kind != models.ConsentKindAccepted {
		slog.Debug("Orchestrator.RecordConsent: non-accepted outcome, nothing to persist", "kind", outcome.Kind, "userID", userID)
		return nil
	}

	iv, err := o.st.GetIntervention(outcome.InterventionID)
	if err != nil {
		return fmt.Errorf("failed to look up intervention: %w", err)
	}
	if iv == nil {
		return models.ErrInterventionNotFound
	}

	now := time.Now()
	trigger := models.TriggerContext{
		ID:             util.NewTriggerID(),
		UserID:         userID,
		InterventionID: outcome.InterventionID,
		Reason:         outcome.Reason,
		Context:        outcome.Context,
		CreatedAt:      now,
	}
	if err := o.st.SaveTriggerContext(trigger); err != nil {
		return fmt.Errorf("failed to save trigger context: %w", err)
	}

	h, err := o.st.GetOpenInterventionHistory(userID, outcome.InterventionID)
	if err != nil {
		return fmt.Errorf("failed to look up intervention history: %w", err)
	}
	if h == nil {
		if err := o.st.SaveInterventionHistory(models.InterventionHistory{
			ID:             util.NewHistoryID(),
			UserID:         userID,
			InterventionID: outcome.InterventionID,
			OfferedAt:      now,
		}); err != nil {
			return fmt.Errorf("failed to save intervention history: %w", err)
		}
	}
	slog.Info("Orchestrator.RecordConsent: consent recorded", "userID", userID, "interventionID", outcome.InterventionID)
	return nil
}

// GetSession returns the caller's session record.
func (o *Orchestrator) GetSession(ctx context.Context, userID, progressID string) (*models.SessionProgress, error) {
	return o.loadOwnedSession(userID, progressID)
}

// loadOwnedSession fetches a session and verifies ownership.
func (o *Orchestrator) loadOwnedSession(userID, progressID string) (*models.SessionProgress, error) {
	sp, err := o.st.GetSessionProgress(progressID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if sp == nil {
		return nil, models.ErrSessionNotFound
	}
	if sp.UserID != userID {
		return nil, models.ErrNotSessionOwner
	}
	return sp, nil
}

// requireActive distinguishes the two terminal states so callers can treat
// already-completed as a benign idempotent case rather than a hard failure.
func requireActive(sp *models.SessionProgress) error {
	switch sp.Status {
	case models.SessionStatusActive:
		return nil
	case models.SessionStatusCompleted:
		return models.ErrSessionAlreadyCompleted
	case models.SessionStatusExited:
		return models.ErrSessionAlreadyExited
	default:
		return fmt.Errorf("unknown session status %q", sp.Status)
	}
}

// stampHistoryStarted marks the open history row as started. Best-effort:
// history is chat-facing telemetry, not session state.
func (o *Orchestrator) stampHistoryStarted(userID, interventionID string, now time.Time) {
	h, err := o.st.GetOpenInterventionHistory(userID, interventionID)
	if err != nil || h == nil {
		if err != nil {
			slog.Warn("Orchestrator: history lookup failed", "error", err, "userID", userID)
		}
		return
	}
	if h.StartedAt != nil {
		return
	}
	h.StartedAt = &now
	if err := o.st.UpdateInterventionHistory(*h); err != nil {
		slog.Warn("Orchestrator: history start stamp failed", "error", err, "historyID", h.ID)
	}
}
