package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func followUpInput(answered int, terminal bool) FollowUpInput {
	return FollowUpInput{
		InterventionPrompt: "Explore envy",
		Questions:          []string{"Q1?", "Q2?", "Q3?", "Q4?", "Q5?"},
		Responses:          []string{"first answer"},
		AnsweredIndex:      answered,
		Terminal:           terminal,
	}
}

func TestGenerateAppendsNextQuestionVerbatim(t *testing.T) {
	fg := NewFollowUpGenerator(&mockGenAIClient{response: "That sounds really hard."})
	msg := fg.Generate(context.Background(), followUpInput(0, false))
	want := "That sounds really hard.\n\nQuestion 2 of 5: Q2?"
	if msg != want {
		t.Errorf("got %q, want %q", msg, want)
	}
}

func TestGenerateStaticAcknowledgmentOnError(t *testing.T) {
	fg := NewFollowUpGenerator(&mockGenAIClient{err: errors.New("timeout")})
	msg := fg.Generate(context.Background(), followUpInput(2, false))
	if !strings.HasPrefix(msg, staticAcknowledgment) {
		t.Errorf("expected static acknowledgment prefix, got %q", msg)
	}
	if !strings.Contains(msg, "Question 4 of 5: Q4?") {
		t.Errorf("next question missing or altered: %q", msg)
	}
}

func TestGenerateNilClientIsTotal(t *testing.T) {
	fg := NewFollowUpGenerator(nil)
	msg := fg.Generate(context.Background(), followUpInput(0, false))
	if !strings.HasPrefix(msg, staticAcknowledgment) {
		t.Errorf("expected static acknowledgment, got %q", msg)
	}
}

func TestGenerateTerminalClosing(t *testing.T) {
	fg := NewFollowUpGenerator(&mockGenAIClient{response: "You did meaningful work today."})
	msg := fg.Generate(context.Background(), followUpInput(4, true))
	if msg != "You did meaningful work today." {
		t.Errorf("got %q", msg)
	}
	if strings.Contains(msg, "Question") {
		t.Errorf("terminal message must not pose a next question: %q", msg)
	}
}

func TestGenerateTerminalStaticClosingOnError(t *testing.T) {
	fg := NewFollowUpGenerator(&mockGenAIClient{err: errors.New("timeout")})
	msg := fg.Generate(context.Background(), followUpInput(4, true))
	if msg != staticClosing {
		t.Errorf("expected static closing, got %q", msg)
	}
}
