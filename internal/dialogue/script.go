package dialogue

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/garywanggali/think-first/internal/reasoning"
)

const (
	scriptTopicMarker = "[DEMO]"
	scriptTopic       = scriptTopicMarker + " Relativity"

	scriptPhrase   = "what is general relativity"
	scriptQuestion = "Why is there gravity?"
)

var scriptKeywords = []string{"gravity", "relativity"}

// scriptFrame is one numbered step of the relativity walkthrough. Steps
// with a prompt emit an image; the challenge step carries a fill-in.
type scriptFrame struct {
	prompt    string
	text      string
	challenge *reasoning.Challenge
}

const scriptHook = "Let's forget the complicated formulas. Imagine we are about to build a universe from scratch. Ready?"

// indexed by step, the hook being step 0
var scriptFrames = []scriptFrame{
	1: {
		prompt: "Minimalist abstract art. An infinite, perfectly flat white grid lines on light gray background. 2D plane. Nothing else. Clean, scientific style.",
		text:   "Step one: this is the universe at the start, a perfectly flat and empty space.\n\n**Question**: if you roll a marble forward across this perfectly flat surface, how does it move? Does it stop, or go straight forever?",
	},
	2: {
		prompt: "Minimalist 3D render. A heavy, dark matte sphere sitting in the center of a white grid. The grid lines bend and sink deeply underneath the sphere's weight, creating a funnel shape or gravity well. High contrast.",
		text:   "Now we put a very heavy star, like the sun, in the middle.\n\n**Observe**: look closely at the grid around it. What changed? What happened to the stage that used to be flat?",
	},
	3: {
		prompt: "Minimalist physics diagram. Top-down view. A large central mass distorting the grid. A small marble is rolling past it. The path of the marble curves towards the center, following the bent grid lines. Dashed line showing the path.",
		text:   "Here comes the key moment. A small asteroid flies past. It wants to keep going straight, but the ground has sunk in.\n\n**Think**: what does its path look like? Does it look like the sun is 'pulling' it in, or is it just following a curved road?",
	},
	4: {
		text: "Exactly. That is Einstein's insight: there is no invisible 'pull'. The asteroid is only trying to go straight through curved space.",
		challenge: &reasoning.Challenge{
			Question:      "Gravity is not a force but the curvature of ___.",
			CorrectAnswer: "spacetime",
			Hint:          "Time and space...",
		},
	},
}

const scriptClosing = "You now hold the core of general relativity: **matter tells spacetime how to curve, and spacetime tells matter how to move**.\n\nThat is why we no longer need 'gravity' as a force; geometry is enough."

var scriptReview = FinalReview{
	Summary:      "By building a model of space, you found that gravity is geometry.",
	ThinkingPath: []PathStage{{Stage: "Done", Description: "Relativity walkthrough completed"}},
	Advice:       "Next time you see an apple fall, imagine the slide that space itself has become.",
}

// scriptTrigger reports whether an opening question selects the scripted
// walkthrough, returning the question to log.
func scriptTrigger(text string) (string, bool) {
	norm := normalizePhrase(text)
	if strings.Contains(norm, scriptPhrase) {
		return scriptQuestion, true
	}
	for _, kw := range scriptKeywords {
		if strings.Contains(norm, kw) {
			return text, true
		}
	}
	return "", false
}

// normalizePhrase lowercases and drops punctuation, collapsing spaces.
func normalizePhrase(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func (s *Service) startScript(ctx context.Context, t *turn, question string) (*Outcome, error) {
	c := t.c
	c.Topic = scriptTopic
	c.Mode = ModeScripted
	c.Phase = PhaseVisualLoop

	t.user = &Interaction{ConversationID: c.ConversationID, Kind: KindQuestion, Text: question, ArtifactRef: t.imageRef()}
	reply := &Interaction{ConversationID: c.ConversationID, Kind: KindAIFeedback, Text: scriptHook}

	err := s.repo.WithTx(ctx, func(tx *Repo) error {
		if err := tx.SaveConversation(ctx, c); err != nil {
			return err
		}
		if err := tx.AppendInteraction(ctx, t.user); err != nil {
			return err
		}
		return tx.AppendInteraction(ctx, reply)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("scripted walkthrough started", zap.String("conversation_id", c.ConversationID))
	return s.outcome(c, reply, scriptHook), nil
}

// continueScript advances the walkthrough. The step is the number of
// system turns logged so far; classification is never consulted.
func (s *Service) continueScript(ctx context.Context, t *turn) (*Outcome, error) {
	c := t.c
	if c.Mode != ModeScripted {
		c.Mode = ModeScripted
		if err := s.repo.SaveConversation(ctx, c); err != nil {
			return nil, err
		}
	}

	step, err := s.repo.CountByKind(ctx, c.ConversationID, aiKinds...)
	if err != nil {
		return nil, err
	}

	t.user = &Interaction{ConversationID: c.ConversationID, Kind: KindInterpretation, Text: t.text, ArtifactRef: t.imageRef()}
	if err := s.repo.AppendInteraction(ctx, t.user); err != nil {
		return nil, err
	}

	if step <= 0 {
		return s.feedback(ctx, t, scriptHook)
	}
	if int(step) >= len(scriptFrames) {
		return s.complete(ctx, t, scriptClosing, scriptReview)
	}

	f := scriptFrames[step]
	if f.challenge != nil {
		return s.verifyUnderstanding(ctx, t, reasoning.Classification{
			Intent:    reasoning.IntentVerify,
			GuideText: f.text,
			Challenge: f.challenge,
		})
	}
	return s.visualStep(ctx, t, reasoning.Classification{
		Intent:            reasoning.IntentHasIdea,
		Tool:              reasoning.ToolImage,
		VisualDescription: f.prompt,
		GuideText:         f.text,
	}, f.prompt, f.text)
}
