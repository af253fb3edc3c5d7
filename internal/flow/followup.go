package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/genai"
	"github.com/openai/openai-go"
)

// Static fallback lines used whenever generation fails. They guarantee
// forward progress under total AI unavailability.
const (
	staticAcknowledgment = "Thank you for sharing that."
	staticClosing        = "Thank you for walking through this whole exercise. Take a moment to notice what came up for you along the way. You can return to these reflections whenever you need them."
)

const followUpSystemPrompt = `You are a warm, grounded money coach guiding a user through a reflection exercise.

Write a one-or-two sentence empathetic acknowledgment of the user's latest answer. Be specific to what they said. Do not give advice. Do not ask any question. Output only the acknowledgment text.`

const closingSystemPrompt = `You are a warm, grounded money coach. The user has just answered the final question of a guided reflection exercise.

Write a short closing message (two or three sentences) that acknowledges their final answer and the overall journey through the exercise. Do not ask any further question. Output only the message text.`

// FollowUpInput carries everything needed to produce the next turn's message.
type FollowUpInput struct {
	InterventionPrompt string
	Questions          []string // the full ordered plan
	Responses          []string // includes the latest response as the last element
	AnsweredIndex      int      // index of the question just answered
	Terminal           bool
}

// FollowUpGenerator produces the transition or closing message for each turn.
type FollowUpGenerator struct {
	genaiClient genai.ClientInterface
}

// NewFollowUpGenerator creates a follow-up generator. A nil client makes
// every message use the static fallback.
func NewFollowUpGenerator(client genai.ClientInterface) *FollowUpGenerator {
	return &FollowUpGenerator{genaiClient: client}
}

// Generate returns the user-facing message for the turn. It is total: it
// never fails, substituting static text on any generation error. For
// non-terminal turns the next plan question is appended programmatically and
// verbatim, so the plan is always followed regardless of model output.
func (fg *FollowUpGenerator) Generate(ctx context.Context, in FollowUpInput) string {
	if in.Terminal {
		return fg.closingMessage(ctx, in)
	}
	ack := fg.acknowledgment(ctx, in)
	nextQuestion := in.Questions[in.AnsweredIndex+1]
	return fmt.Sprintf("%s\n\nQuestion %d of %d: %s", ack, in.AnsweredIndex+2, len(in.Questions), nextQuestion)
}

func (fg *FollowUpGenerator) acknowledgment(ctx context.Context, in FollowUpInput) string {
	if fg.genaiClient == nil {
		return staticAcknowledgment
	}
	msg, err := fg.genaiClient.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(followUpSystemPrompt),
		openai.UserMessage(historyTranscript(in)),
	})
	if err != nil || strings.TrimSpace(msg) == "" {
		slog.Warn("FollowUpGenerator: acknowledgment generation failed, using static text", "error", err)
		return staticAcknowledgment
	}
	return strings.TrimSpace(msg)
}

func (fg *FollowUpGenerator) closingMessage(ctx context.Context, in FollowUpInput) string {
	if fg.genaiClient == nil {
		return staticClosing
	}
	msg, err := fg.genaiClient.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(closingSystemPrompt),
		openai.UserMessage(historyTranscript(in)),
	})
	if err != nil || strings.TrimSpace(msg) == "" {
		slog.Warn("FollowUpGenerator: closing generation failed, using static text", "error", err)
		return staticClosing
	}
	return strings.TrimSpace(msg)
}

// historyTranscript renders the question/answer history for the model.
func historyTranscript(in FollowUpInput) string {
	var b strings.Builder
	if in.InterventionPrompt != "" {
		fmt.Fprintf(&b, "Exercise focus: %s\n\n", in.InterventionPrompt)
	}
	for i, q := range in.Questions {
		if i > in.AnsweredIndex {
			break
		}
		fmt.Fprintf(&b, "Q%d: %s\n", i+1, q)
		if i < len(in.Responses) {
			fmt.Fprintf(&b, "A%d: %s\n", i+1, in.Responses[i])
		}
	}
	return b.String()
}
