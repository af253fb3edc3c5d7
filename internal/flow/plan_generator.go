package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/genai"
	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
	"github.com/openai/openai-go"
)

// planSystemPrompt instructs the model to emit a strict JSON array of
// questions. Anything outside the array is stripped before parsing.
const planSystemPrompt = `You are a thoughtful money coach designing a short guided reflection exercise.

Given a therapeutic technique description and the reason it was offered, write the questions for one session.

Rules:
- Write exactly 4 or 5 questions.
- Questions must be specific to the technique's declared focus, never generic money advice.
- Order them from surface-level observation to deeper reflection.
- Each question is one or two sentences, addressed directly to the user.
- Output ONLY a JSON array of strings. No numbering, no commentary, no markdown fences.`

// PlanGenerator derives a session question plan from an intervention's
// free-text therapeutic prompt, with a deterministic fallback when the
// generation service is unavailable or returns malformed output.
type PlanGenerator struct {
	genaiClient genai.ClientInterface
}

// NewPlanGenerator creates a plan generator. A nil client disables the AI
// path entirely; the fallback tables then produce every plan.
func NewPlanGenerator(client genai.ClientInterface) *PlanGenerator {
	return &PlanGenerator{genaiClient: client}
}

// GeneratePlan returns the ordered question plan for one session instance.
// It is total: any generation failure falls through to FallbackPlan.
func (pg *PlanGenerator) GeneratePlan(ctx context.Context, iv models.Intervention, triggerReason, conversationContext string) []string {
	if pg.genaiClient == nil {
		slog.Debug("PlanGenerator: no GenAI client, using fallback", "interventionID", iv.ID)
		return FallbackPlan(iv.Prompt, triggerReason)
	}

	userPrompt := fmt.Sprintf("Technique: %s\n\nInstruction: %s", iv.Name, iv.Prompt)
	if triggerReason != "" {
		userPrompt += fmt.Sprintf("\n\nWhy it was offered: %s", triggerReason)
	}
	if conversationContext != "" {
		userPrompt += fmt.Sprintf("\n\nRecent conversation context: %s", conversationContext)
	}

	raw, err := pg.genaiClient.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(planSystemPrompt),
		openai.UserMessage(userPrompt),
	})
	if err != nil {
		slog.Warn("PlanGenerator: generation failed, using fallback", "error", err, "interventionID", iv.ID)
		return FallbackPlan(iv.Prompt, triggerReason)
	}

	plan, err := parseQuestionArray(raw)
	if err != nil {
		slog.Warn("PlanGenerator: malformed output, using fallback", "error", err, "interventionID", iv.ID)
		return FallbackPlan(iv.Prompt, triggerReason)
	}
	slog.Debug("PlanGenerator: plan generated", "interventionID", iv.ID, "questions", len(plan))
	return plan
}

// parseQuestionArray extracts a JSON array of question strings from raw model
// output, trimming any wrapper text around the outermost bracketed array.
func parseQuestionArray(raw string) ([]string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no bracketed array in output")
	}
	var questions []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &questions); err != nil {
		return nil, fmt.Errorf("invalid question array: %w", err)
	}
	if len(questions) < models.MinPlanQuestions || len(questions) > models.MaxPlanQuestions {
		return nil, fmt.Errorf("question count %d out of range", len(questions))
	}
	for i, q := range questions {
		questions[i] = strings.TrimSpace(q)
		if questions[i] == "" {
			return nil, fmt.Errorf("empty question at index %d", i)
		}
	}
	return questions, nil
}
