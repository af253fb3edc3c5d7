package flow

import (
	"strings"
	"testing"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
)

func TestFallbackPlanEnvyKeyword(t *testing.T) {
	plan := FallbackPlan("Guide the user through exploring envy about a friend's lifestyle", "")
	if len(plan) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(plan))
	}
	want := fallbackTechniques[0].questions
	for i, q := range plan {
		if q != want[i] {
			t.Errorf("question %d mismatch: got %q, want %q", i, q, want[i])
		}
	}
}

func TestFallbackPlanKeywordMatching(t *testing.T) {
	cases := []struct {
		prompt string
		name   string
	}{
		{"Review a recent impulse purchase with the user", "purchase-motivation review"},
		{"Walk through the user's earliest money memory from childhood", "childhood money memory"},
		{"Help the user examine guilt about spending on themselves", "self-permission framing"},
		{"Rank the user's money values into a hierarchy", "values-hierarchy ranking"},
		{"Unpack why the user keeps putting off their budget review", "procrastination reframing"},
		{"Explore the money story the user inherited from their parents", "family-narrative rewriting"},
	}
	for _, c := range cases {
		plan := FallbackPlan(c.prompt, "")
		var want []string
		for _, tech := range fallbackTechniques {
			if tech.name == c.name {
				want = tech.questions
			}
		}
		if want == nil {
			t.Fatalf("no technique named %q", c.name)
		}
		if len(plan) != len(want) || plan[0] != want[0] {
			t.Errorf("prompt %q did not select technique %q", c.prompt, c.name)
		}
	}
}

func TestFallbackPlanGenericUsesTriggerReason(t *testing.T) {
	plan := FallbackPlan("an unrecognized technique", "stress about rent")
	if len(plan) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(plan))
	}
	if !strings.Contains(plan[0], "stress about rent") {
		t.Errorf("generic plan should anchor on trigger reason, got %q", plan[0])
	}
}

func TestFallbackPlanGenericDefaultFocus(t *testing.T) {
	plan := FallbackPlan("no keywords here", "  ")
	if !strings.Contains(plan[0], "this pattern in your relationship with money") {
		t.Errorf("expected default focus in first question, got %q", plan[0])
	}
}

func TestFallbackPlanLengthsInRange(t *testing.T) {
	for _, tech := range fallbackTechniques {
		n := len(tech.questions)
		if n < models.MinPlanQuestions || n > models.MaxPlanQuestions {
			t.Errorf("technique %q has %d questions, out of range", tech.name, n)
		}
		for i, q := range tech.questions {
			if strings.TrimSpace(q) == "" {
				t.Errorf("technique %q has empty question at %d", tech.name, i)
			}
		}
	}
}

func TestFallbackPlanReturnsCopy(t *testing.T) {
	a := FallbackPlan("envy", "")
	a[0] = "mutated"
	b := FallbackPlan("envy", "")
	if b[0] == "mutated" {
		t.Error("FallbackPlan returned a shared slice")
	}
}
