// Package flow implements the guided intervention session logic: question
// plan generation, turn progression, follow-up messages, and terminal
// resolution.
package flow

import (
	"fmt"
	"strings"
)

// fallbackTechnique pairs prompt keywords with a canned question sequence for
// one named therapeutic technique. Sequences run from surface-level to
// reflective depth.
type fallbackTechnique struct {
	name      string
	keywords  []string
	questions []string
}

// fallbackTechniques is matched in order; the first keyword hit wins.
var fallbackTechniques = []fallbackTechnique{
	{
		name:     "envy exploration",
		keywords: []string{"envy", "envious", "jealous", "comparison", "comparing"},
		questions: []string{
			"When you notice envy about someone else's money or lifestyle, what do you usually see or hear first?",
			"What specifically about their situation feels out of reach for you right now?",
			"How does your body feel in that moment of comparison, and what do you usually do next?",
			"What might that envy be pointing to that you genuinely value for yourself?",
			"What is one small step toward that value you could take this week, independent of anyone else's life?",
		},
	},
	{
		name:     "purchase-motivation review",
		keywords: []string{"purchase", "buying", "impulse", "shopping", "bought"},
		questions: []string{
			"Think of a recent purchase that still sits oddly with you. What was it?",
			"What was happening in your day right before you decided to buy it?",
			"What did you hope the purchase would change about how you felt?",
			"Looking back, did it deliver that feeling, and for how long?",
			"What need was underneath that moment, and what else could meet it?",
		},
	},
	{
		name:     "childhood money memory",
		keywords: []string{"childhood", "memory", "earliest", "grew up", "growing up"},
		questions: []string{
			"What is your earliest clear memory involving money?",
			"Who was there, and what did you learn from watching them?",
			"How did money feel in your home growing up: safe, scarce, secret, something else?",
			"Which of those early lessons still shows up in how you handle money today?",
			"If you could gently update one of those lessons, what would the new version say?",
		},
	},
	{
		name:     "self-permission framing",
		keywords: []string{"permission", "allow", "deserve", "guilt", "guilty"},
		questions: []string{
			"What is something you keep telling yourself you can't spend on, even though you could afford it?",
			"Whose voice does that rule sound like when you hear it in your head?",
			"What are you afraid would happen if you gave yourself permission?",
			"When has spending on yourself actually worked out well?",
			"What would a fair, kind permission slip for this look like, in your own words?",
		},
	},
	{
		name:     "values-hierarchy ranking",
		keywords: []string{"values", "priorit", "ranking", "hierarchy", "what matters"},
		questions: []string{
			"If you list the last five things you spent real money on, what were they?",
			"Which of those felt most aligned with who you want to be?",
			"Which felt least aligned, and what pulled you toward it anyway?",
			"If you had to rank your top three money values, what would they be?",
			"What is one upcoming expense you could re-shape to match your top value?",
		},
	},
	{
		name:     "procrastination reframing",
		keywords: []string{"procrastinat", "avoid", "putting off", "delay", "postpone"},
		questions: []string{
			"What money task have you been putting off the longest?",
			"What happens in the moment you think about starting it?",
			"What is the story you tell yourself about why it can wait?",
			"What would the first two minutes of doing it actually involve?",
			"What might future-you thank you for doing before this week ends?",
		},
	},
	{
		name:     "family-narrative rewriting",
		keywords: []string{"family", "narrative", "story", "inherited", "parents"},
		questions: []string{
			"What is the story your family told about money, in one sentence?",
			"How did you see that story play out in everyday decisions?",
			"Where do you notice yourself living out the same story now?",
			"Which part of that story do you want to keep, and which part no longer fits?",
			"How would you write the next chapter of your money story for yourself?",
		},
	},
}

// FallbackPlan returns a deterministic question plan derived from the
// intervention prompt and trigger reason. It is total: it always returns a
// non-empty plan of five questions and never fails.
func FallbackPlan(prompt, triggerReason string) []string {
	lower := strings.ToLower(prompt)
	for _, t := range fallbackTechniques {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return append([]string(nil), t.questions...)
			}
		}
	}
	return genericPlan(triggerReason)
}

// genericPlan is the last-resort sequence when no technique keyword matches.
// It still anchors on the trigger reason so questions stay situation-aware.
func genericPlan(triggerReason string) []string {
	focus := strings.TrimSpace(triggerReason)
	if focus == "" {
		focus = "this pattern in your relationship with money"
	}
	return []string{
		fmt.Sprintf("What was happening recently when you noticed %s coming up?", focus),
		"What thoughts or feelings usually arrive with it?",
		"What do you typically do when that happens, and how does it leave you feeling afterward?",
		"What would you like to feel instead in those moments?",
		"What is one small, concrete experiment you could try the next time it shows up?",
	}
}
