package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/store"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	iv := models.Intervention{
		ID:          "iv_envy",
		Name:        "Envy Exploration",
		Description: "A short exercise for working through financial envy.",
		Prompt:      "Guide the user through exploring envy about others' finances",
		CreatedAt:   time.Now(),
	}
	if err := st.SaveIntervention(iv); err != nil {
		t.Fatalf("failed to seed intervention: %v", err)
	}
	return NewOrchestrator(st, nil), st
}

func TestStartSession(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	res, err := orch.Start(context.Background(), "user-1", "iv_envy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.IsComplete {
		t.Errorf("unexpected result flags: %+v", res)
	}
	if res.ProgressID == "" {
		t.Error("expected a progress ID")
	}
	if res.TotalQuestions != 5 {
		t.Errorf("expected 5 questions from fallback plan, got %d", res.TotalQuestions)
	}
	if !strings.Contains(res.Message, "Envy Exploration") {
		t.Errorf("welcome message missing intervention name: %q", res.Message)
	}
	if !strings.Contains(res.Message, "Question 1 of 5:") {
		t.Errorf("welcome message missing first question header: %q", res.Message)
	}
}

func TestStartUnknownIntervention(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	_, err := orch.Start(context.Background(), "user-1", "iv_missing")
	if !errors.Is(err, models.ErrInterventionNotFound) {
		t.Errorf("expected ErrInterventionNotFound, got %v", err)
	}
}

func TestStartDuplicateActiveRejected(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	if _, err := orch.Start(context.Background(), "user-1", "iv_envy"); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	_, err := orch.Start(context.Background(), "user-1", "iv_envy")
	if !errors.Is(err, models.ErrActiveSessionExists) {
		t.Errorf("expected ErrActiveSessionExists, got %v", err)
	}
}

func TestStartAllowedAfterTerminal(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	res, err := orch.Start(context.Background(), "user-1", "iv_envy")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := orch.Exit(context.Background(), "user-1", res.ProgressID, "not now"); err != nil {
		t.Fatalf("exit failed: %v", err)
	}
	if _, err := orch.Start(context.Background(), "user-1", "iv_envy"); err != nil {
		t.Errorf("start after exit should succeed, got %v", err)
	}
}

func TestFullSessionCompletion(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	res, err := orch.Start(ctx, "user-1", "iv_envy")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	progressID := res.ProgressID
	total := res.TotalQuestions

	for i := 0; i < total; i++ {
		res, err = orch.Respond(ctx, "user-1", progressID, fmt.Sprintf("answer %d", i+1))
		if err != nil {
			t.Fatalf("respond %d failed: %v", i+1, err)
		}
		if res.CurrentQuestionIndex != i+1 {
			t.Errorf("respond %d: index %d, want %d", i+1, res.CurrentQuestionIndex, i+1)
		}
		last := i == total-1
		if res.IsComplete != last {
			t.Errorf("respond %d: IsComplete=%v, want %v", i+1, res.IsComplete, last)
		}
		if !last && !strings.Contains(res.Message, fmt.Sprintf("Question %d of %d:", i+2, total)) {
			t.Errorf("respond %d: next question header missing from %q", i+1, res.Message)
		}
	}
	if res.Message != staticClosing {
		t.Errorf("expected static closing on final turn, got %q", res.Message)
	}

	sp, err := orch.GetSession(ctx, "user-1", progressID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if sp.Status != models.SessionStatusCompleted {
		t.Errorf("status %q, want completed", sp.Status)
	}
	if sp.CompletionType != models.CompletionTypeCompleted {
		t.Errorf("completion type %q, want completed", sp.CompletionType)
	}
	if sp.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
	if len(sp.Responses) != total {
		t.Errorf("stored %d responses, want %d", len(sp.Responses), total)
	}
}

func TestRespondAppendsAuditTrail(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()
	res, _ := orch.Start(ctx, "user-1", "iv_envy")
	for i := 0; i < res.TotalQuestions; i++ {
		if _, err := orch.Respond(ctx, "user-1", res.ProgressID, fmt.Sprintf("answer %d", i+1)); err != nil {
			t.Fatalf("respond failed: %v", err)
		}
	}
	trail, err := st.ListSessionResponses(res.ProgressID)
	if err != nil {
		t.Fatalf("audit trail lookup failed: %v", err)
	}
	if len(trail) != res.TotalQuestions {
		t.Fatalf("audit trail has %d rows, want %d", len(trail), res.TotalQuestions)
	}
	if trail[0].ResponseText != "answer 1" {
		t.Errorf("first audit row %q", trail[0].ResponseText)
	}
}

func TestRespondAfterTerminalRejected(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	res, _ := orch.Start(ctx, "user-1", "iv_envy")
	for i := 0; i < res.TotalQuestions; i++ {
		if _, err := orch.Respond(ctx, "user-1", res.ProgressID, "answer"); err != nil {
			t.Fatalf("respond failed: %v", err)
		}
	}
	_, err := orch.Respond(ctx, "user-1", res.ProgressID, "one more")
	if !errors.Is(err, models.ErrSessionAlreadyCompleted) {
		t.Errorf("expected ErrSessionAlreadyCompleted, got %v", err)
	}
}

func TestEarlyExit(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	res, _ := orch.Start(ctx, "user-1", "iv_envy")

	// Answer two questions, then bail.
	for i := 0; i < 2; i++ {
		if _, err := orch.Respond(ctx, "user-1", res.ProgressID, "answer"); err != nil {
			t.Fatalf("respond failed: %v", err)
		}
	}
	if err := orch.Exit(ctx, "user-1", res.ProgressID, "too personal"); err != nil {
		t.Fatalf("exit failed: %v", err)
	}

	sp, err := orch.GetSession(ctx, "user-1", res.ProgressID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if sp.Status != models.SessionStatusExited {
		t.Errorf("status %q, want exited", sp.Status)
	}
	if sp.CompletionType != models.CompletionTypeEarlyExit {
		t.Errorf("completion type %q, want early_exit", sp.CompletionType)
	}
	if sp.ExitReason != "too personal" {
		t.Errorf("exit reason %q", sp.ExitReason)
	}
	if sp.ExitedAt == nil {
		t.Error("ExitedAt not stamped")
	}
	if sp.CurrentQuestionIndex != 2 {
		t.Errorf("exit must not advance the index: got %d", sp.CurrentQuestionIndex)
	}

	_, err = orch.Respond(ctx, "user-1", res.ProgressID, "late answer")
	if !errors.Is(err, models.ErrSessionAlreadyExited) {
		t.Errorf("expected ErrSessionAlreadyExited, got %v", err)
	}
	if err := orch.Exit(ctx, "user-1", res.ProgressID, "again"); !errors.Is(err, models.ErrSessionAlreadyExited) {
		t.Errorf("repeat exit: expected ErrSessionAlreadyExited, got %v", err)
	}
}

func TestRespondEmptyRejectedWithoutMutation(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	res, _ := orch.Start(ctx, "user-1", "iv_envy")

	for _, bad := range []string{"", "   ", "\n\t"} {
		if _, err := orch.Respond(ctx, "user-1", res.ProgressID, bad); !errors.Is(err, models.ErrEmptyUserResponse) {
			t.Errorf("input %q: expected ErrEmptyUserResponse, got %v", bad, err)
		}
	}

	sp, _ := orch.GetSession(ctx, "user-1", res.ProgressID)
	if sp.CurrentQuestionIndex != 0 || len(sp.Responses) != 0 {
		t.Errorf("rejected input mutated session: index=%d responses=%d", sp.CurrentQuestionIndex, len(sp.Responses))
	}
}

func TestRespondTooLongRejected(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	res, _ := orch.Start(ctx, "user-1", "iv_envy")
	long := strings.Repeat("a", models.MaxUserResponseLength+1)
	if _, err := orch.Respond(ctx, "user-1", res.ProgressID, long); !errors.Is(err, models.ErrUserResponseTooLong) {
		t.Errorf("expected ErrUserResponseTooLong, got %v", err)
	}
}

func TestSessionOwnershipEnforced(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	res, _ := orch.Start(ctx, "user-1", "iv_envy")

	if _, err := orch.Respond(ctx, "user-2", res.ProgressID, "hi"); !errors.Is(err, models.ErrNotSessionOwner) {
		t.Errorf("respond: expected ErrNotSessionOwner, got %v", err)
	}
	if err := orch.Exit(ctx, "user-2", res.ProgressID, ""); !errors.Is(err, models.ErrNotSessionOwner) {
		t.Errorf("exit: expected ErrNotSessionOwner, got %v", err)
	}
	if _, err := orch.GetSession(ctx, "user-2", res.ProgressID); !errors.Is(err, models.ErrNotSessionOwner) {
		t.Errorf("get: expected ErrNotSessionOwner, got %v", err)
	}
}

func TestFeedbackRequiresCompletedSession(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	res, _ := orch.Start(ctx, "user-1", "iv_envy")

	err := orch.SubmitFeedback(ctx, "user-1", models.FeedbackRequest{SessionID: res.ProgressID, Rating: 4})
	if !errors.Is(err, models.ErrSessionNotCompleted) {
		t.Errorf("expected ErrSessionNotCompleted for active session, got %v", err)
	}

	for i := 0; i < res.TotalQuestions; i++ {
		if _, err := orch.Respond(ctx, "user-1", res.ProgressID, "answer"); err != nil {
			t.Fatalf("respond failed: %v", err)
		}
	}

	if err := orch.SubmitFeedback(ctx, "user-1", models.FeedbackRequest{SessionID: res.ProgressID, Rating: 4, FeedbackText: "helpful"}); err != nil {
		t.Fatalf("feedback on completed session failed: %v", err)
	}
	err = orch.SubmitFeedback(ctx, "user-1", models.FeedbackRequest{SessionID: res.ProgressID, Rating: 5})
	if !errors.Is(err, models.ErrFeedbackAlreadyExists) {
		t.Errorf("expected ErrFeedbackAlreadyExists on repeat, got %v", err)
	}
}

func TestFeedbackRejectedForExitedSession(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	res, _ := orch.Start(ctx, "user-1", "iv_envy")
	if err := orch.Exit(ctx, "user-1", res.ProgressID, ""); err != nil {
		t.Fatalf("exit failed: %v", err)
	}
	err := orch.SubmitFeedback(ctx, "user-1", models.FeedbackRequest{SessionID: res.ProgressID, Rating: 3})
	if !errors.Is(err, models.ErrSessionNotCompleted) {
		t.Errorf("expected ErrSessionNotCompleted for exited session, got %v", err)
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()

	// Consent creates the open history row that finalize later stamps.
	err := orch.RecordConsent(ctx, "user-1", models.ConsentOutcome{
		Kind:           models.ConsentKindAccepted,
		InterventionID: "iv_envy",
		Reason:         "comparing yourself to a friend",
	})
	if err != nil {
		t.Fatalf("consent failed: %v", err)
	}

	res, _ := orch.Start(ctx, "user-1", "iv_envy")
	for i := 0; i < res.TotalQuestions; i++ {
		if _, err := orch.Respond(ctx, "user-1", res.ProgressID, "answer"); err != nil {
			t.Fatalf("respond failed: %v", err)
		}
	}

	fr, err := orch.Finalize(ctx, "user-1", "iv_envy")
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if !fr.Success || fr.AlreadyFinalized {
		t.Errorf("first finalize: %+v", fr)
	}

	fr, err = orch.Finalize(ctx, "user-1", "iv_envy")
	if err != nil {
		t.Fatalf("repeat finalize failed: %v", err)
	}
	if !fr.Success || !fr.AlreadyFinalized {
		t.Errorf("repeat finalize should be a no-op success: %+v", fr)
	}
}

func TestFinalizeWithoutCompletedSession(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	_, err := orch.Finalize(context.Background(), "user-1", "iv_envy")
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestConsentFeedsTriggerContextIntoPlan(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	// An intervention whose prompt matches no fallback keyword forces the
	// generic plan, which anchors on the recorded trigger reason.
	iv := models.Intervention{
		ID:        "iv_plain",
		Name:      "Open Reflection",
		Prompt:    "an open reflective exercise",
		CreatedAt: time.Now(),
	}
	if err := st.SaveIntervention(iv); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	err := orch.RecordConsent(ctx, "user-1", models.ConsentOutcome{
		Kind:           models.ConsentKindAccepted,
		InterventionID: "iv_plain",
		Reason:         "worry about an upcoming bill",
	})
	if err != nil {
		t.Fatalf("consent failed: %v", err)
	}

	res, err := orch.Start(ctx, "user-1", "iv_plain")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !strings.Contains(res.Message, "worry about an upcoming bill") {
		t.Errorf("trigger reason not threaded into plan: %q", res.Message)
	}
}

func TestConsentNonAcceptedPersistsNothing(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	preview := &models.InterventionPreview{InterventionID: "iv_envy", Name: "Envy Exploration"}
	for _, kind := range []models.ConsentKind{models.ConsentKindRequest, models.ConsentKindAwaiting} {
		if err := orch.RecordConsent(ctx, "user-1", models.ConsentOutcome{Kind: kind, Preview: preview}); err != nil {
			t.Fatalf("kind %q: unexpected error: %v", kind, err)
		}
	}

	trigger, err := st.GetLatestTriggerContext("user-1", "iv_envy")
	if err != nil {
		t.Fatalf("trigger lookup failed: %v", err)
	}
	if trigger != nil {
		t.Error("non-accepted outcome must not persist trigger context")
	}
	h, err := st.GetOpenInterventionHistory("user-1", "iv_envy")
	if err != nil {
		t.Fatalf("history lookup failed: %v", err)
	}
	if h != nil {
		t.Error("non-accepted outcome must not create history")
	}
}

func TestIndexNeverExceedsPlanLength(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	res, _ := orch.Start(ctx, "user-1", "iv_envy")
	total := res.TotalQuestions
	for i := 0; i < total; i++ {
		res, _ = orch.Respond(ctx, "user-1", res.ProgressID, "answer")
	}
	if res.CurrentQuestionIndex != total {
		t.Errorf("terminal index %d, want %d", res.CurrentQuestionIndex, total)
	}
	sp, _ := orch.GetSession(ctx, "user-1", res.ProgressID)
	if sp.CurrentQuestionIndex > len(sp.QuestionPlan) {
		t.Errorf("index %d exceeds plan length %d", sp.CurrentQuestionIndex, len(sp.QuestionPlan))
	}
}
