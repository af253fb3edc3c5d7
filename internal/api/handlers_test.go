package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/store"
)

const testToken = "tok-user-1"

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SaveUser(models.User{ID: "user-1", Name: "Jordan", APIToken: testToken, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	if err := st.SaveUser(models.User{ID: "user-2", Name: "Sam", APIToken: "tok-user-2", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
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
	srv := NewServer(st, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body interface{}) (*http.Response, models.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	var apiResp models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp, apiResp
}

func resultField(t *testing.T, apiResp models.APIResponse, key string) interface{} {
	t.Helper()
	m, ok := apiResp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is not an object: %+v", apiResp.Result)
	}
	return m[key]
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)
	paths := []string{
		"/api/v1/interventions",
		"/api/v1/consent",
		"/api/v1/session",
		"/api/v1/session/exit",
		"/api/v1/session/feedback",
		"/api/v1/session/finalize",
		"/api/v1/session/sess_x",
	}
	for _, p := range paths {
		resp, _ := doJSON(t, ts, http.MethodPost, p, "", map[string]string{})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s without token: status %d, want 401", p, resp.StatusCode)
		}
		resp, _ = doJSON(t, ts, http.MethodPost, p, "tok-unknown", map[string]string{})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s with unknown token: status %d, want 401", p, resp.StatusCode)
		}
	}
}

func TestListInterventions(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, apiResp := doJSON(t, ts, http.MethodGet, "/api/v1/interventions", testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	list, ok := apiResp.Result.([]interface{})
	if !ok || len(list) != 1 {
		t.Errorf("expected 1 intervention, got %+v", apiResp.Result)
	}
}

func TestCreateIntervention(t *testing.T) {
	ts, st := newTestServer(t)
	resp, apiResp := doJSON(t, ts, http.MethodPost, "/api/v1/interventions", testToken, models.InterventionCreateRequest{
		Name:   "Purchase Review",
		Prompt: "review a recent impulse purchase",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d, want 201", resp.StatusCode)
	}
	id, _ := resultField(t, apiResp, "id").(string)
	if id == "" {
		t.Fatal("no intervention id in response")
	}
	iv, err := st.GetIntervention(id)
	if err != nil || iv == nil {
		t.Errorf("created intervention not persisted: (%v, %v)", iv, err)
	}

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/interventions", testToken, models.InterventionCreateRequest{Name: "No Prompt"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing prompt: status %d, want 400", resp.StatusCode)
	}
}

func startSession(t *testing.T, ts *httptest.Server, token string) (string, int) {
	t.Helper()
	resp, apiResp := doJSON(t, ts, http.MethodPost, "/api/v1/session", token, models.SessionActionRequest{
		Action:         models.SessionActionStart,
		InterventionID: "iv_envy",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d, want 200 (%+v)", resp.StatusCode, apiResp)
	}
	progressID, _ := resultField(t, apiResp, "progress_id").(string)
	total, _ := resultField(t, apiResp, "total_questions").(float64)
	if progressID == "" || total == 0 {
		t.Fatalf("start result incomplete: %+v", apiResp.Result)
	}
	return progressID, int(total)
}

func TestSessionFullFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	progressID, total := startSession(t, ts, testToken)

	var last models.APIResponse
	for i := 0; i < total; i++ {
		resp, apiResp := doJSON(t, ts, http.MethodPost, "/api/v1/session", testToken, models.SessionActionRequest{
			Action:       models.SessionActionRespond,
			ProgressID:   progressID,
			UserResponse: "an honest answer",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("respond %d: status %d (%+v)", i+1, resp.StatusCode, apiResp)
		}
		last = apiResp
	}
	if complete, _ := resultField(t, last, "is_complete").(bool); !complete {
		t.Errorf("final turn not marked complete: %+v", last.Result)
	}

	// Terminal session rejects further answers.
	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/session", testToken, models.SessionActionRequest{
		Action:       models.SessionActionRespond,
		ProgressID:   progressID,
		UserResponse: "one more",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("respond after completion: status %d, want 409", resp.StatusCode)
	}

	// Feedback and finalize close out the completed session.
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/session/feedback", testToken, models.FeedbackRequest{
		SessionID: progressID,
		Rating:    4,
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("feedback: status %d, want 200", resp.StatusCode)
	}
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/session/feedback", testToken, models.FeedbackRequest{
		SessionID: progressID,
		Rating:    5,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("repeat feedback: status %d, want 409", resp.StatusCode)
	}
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/session/finalize", testToken, models.FinalizeRequest{InterventionID: "iv_envy"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("finalize: status %d, want 200", resp.StatusCode)
	}
	resp, apiResp := doJSON(t, ts, http.MethodPost, "/api/v1/session/finalize", testToken, models.FinalizeRequest{InterventionID: "iv_envy"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("repeat finalize: status %d, want 200 (%+v)", resp.StatusCode, apiResp)
	}
}

func TestSessionStartConflicts(t *testing.T) {
	ts, _ := newTestServer(t)
	startSession(t, ts, testToken)

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/session", testToken, models.SessionActionRequest{
		Action:         models.SessionActionStart,
		InterventionID: "iv_envy",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate start: status %d, want 409", resp.StatusCode)
	}

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/session", testToken, models.SessionActionRequest{
		Action:         models.SessionActionStart,
		InterventionID: "iv_missing",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown intervention: status %d, want 404", resp.StatusCode)
	}
}

func TestSessionValidationErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	progressID, _ := startSession(t, ts, testToken)

	cases := []struct {
		name string
		body models.SessionActionRequest
	}{
		{"unknown action", models.SessionActionRequest{Action: "pause", ProgressID: progressID}},
		{"start without intervention", models.SessionActionRequest{Action: models.SessionActionStart}},
		{"respond without progress id", models.SessionActionRequest{Action: models.SessionActionRespond, UserResponse: "hi"}},
		{"respond with blank answer", models.SessionActionRequest{Action: models.SessionActionRespond, ProgressID: progressID, UserResponse: "   "}},
		{"respond over length", models.SessionActionRequest{Action: models.SessionActionRespond, ProgressID: progressID, UserResponse: strings.Repeat("a", models.MaxUserResponseLength+1)}},
	}
	for _, c := range cases {
		resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/session", testToken, c.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", c.name, resp.StatusCode)
		}
	}
}

func TestSessionExitEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	progressID, _ := startSession(t, ts, testToken)

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/session/exit", testToken, models.ExitRequest{
		ProgressID: progressID,
		ExitReason: "too personal",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("exit: status %d, want 200", resp.StatusCode)
	}

	// Repeating the exit is benign.
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/session/exit", testToken, models.ExitRequest{ProgressID: progressID})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("repeat exit: status %d, want 200", resp.StatusCode)
	}

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/session", testToken, models.SessionActionRequest{
		Action:       models.SessionActionRespond,
		ProgressID:   progressID,
		UserResponse: "still here",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("respond after exit: status %d, want 409", resp.StatusCode)
	}
}

func TestSessionOwnershipAcrossUsers(t *testing.T) {
	ts, _ := newTestServer(t)
	progressID, _ := startSession(t, ts, testToken)

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/session", "tok-user-2", models.SessionActionRequest{
		Action:       models.SessionActionRespond,
		ProgressID:   progressID,
		UserResponse: "not mine",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-user respond: status %d, want 403", resp.StatusCode)
	}
	resp, _ = doJSON(t, ts, http.MethodGet, "/api/v1/session/"+progressID, "tok-user-2", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-user get: status %d, want 403", resp.StatusCode)
	}
}

func TestGetSessionEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	progressID, _ := startSession(t, ts, testToken)

	resp, apiResp := doJSON(t, ts, http.MethodGet, "/api/v1/session/"+progressID, testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session: status %d", resp.StatusCode)
	}
	if status, _ := resultField(t, apiResp, "status").(string); status != string(models.SessionStatusActive) {
		t.Errorf("session status %q, want active", status)
	}

	resp, _ = doJSON(t, ts, http.MethodGet, "/api/v1/session/sess_missing", testToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", resp.StatusCode)
	}
}

func TestConsentEndpoint(t *testing.T) {
	ts, st := newTestServer(t)

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/consent", testToken, models.ConsentOutcome{
		Kind:           models.ConsentKindAccepted,
		InterventionID: "iv_envy",
		Reason:         "comparing yourself to a friend",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("consent: status %d, want 200", resp.StatusCode)
	}
	trigger, err := st.GetLatestTriggerContext("user-1", "iv_envy")
	if err != nil || trigger == nil {
		t.Errorf("accepted consent did not persist trigger context: (%v, %v)", trigger, err)
	}

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/consent", testToken, models.ConsentOutcome{
		Kind: models.ConsentKindAccepted,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("accepted without intervention id: status %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/consent", testToken, models.ConsentOutcome{
		Kind: models.ConsentKindNone,
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("none outcome: status %d, want 200", resp.StatusCode)
	}
}

func TestMethodGuards(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, p := range []string{"/api/v1/session", "/api/v1/session/exit", "/api/v1/session/feedback", "/api/v1/session/finalize", "/api/v1/consent"} {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+p, nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: status %d, want 405", p, resp.StatusCode)
		}
	}
}
