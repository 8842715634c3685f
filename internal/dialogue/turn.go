package dialogue

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garywanggali/think-first/internal/artifact"
	"github.com/garywanggali/think-first/internal/reasoning"
)

const (
	StatusSuccess = "success"
	StatusNoRetry = "no_need_to_retry"

	ReplyAlreadyComplete = "Thinking is already complete."
	DefaultProbe         = "Got it. Before we go any further: what is your first idea or intuition about this question?"
	GatewayFallback      = "I lost my train of thought for a moment. Could you say that again, maybe in different words?"
	NotUnderstood        = "I don't quite understand. Try describing how the image relates to your question."

	imageOnlyText      = "[The user uploaded an image]"
	mechanicalGuide    = "Never mind. Try to imagine what happens if we change one condition..."
	defaultFollowUp    = "What do you think would happen if we changed just one condition?"
	defaultPlotGuide   = "Here is the graph of a function. Try adjusting its parameters: what happens?"
	defaultImageGuide  = "Here is a visual clue made for you. Look at it carefully: what do you see, and how does it connect to your question?"
	defaultNextGuide   = "Interesting reading. Now look at the next image; it reveals a deeper layer."
	defaultVerifyGuide = "Looks like you have caught the key point. Here is a quick check of your understanding."
	defaultHint        = "Take another close look."
	finishPrompt       = "You have finished the whole visual journey. Now sum it up in one sentence: %s (This is the last step, give your own definition.)"

	synthesisSummary = "Through observation and reasoning, you reached the conclusion yourself."
	thresholdSummary = "You read the visual clues correctly, one after another, and reached the conclusion."
	thresholdAdvice  = "Next time, try to put the whole chain into one sentence of your own."
	thresholdLead    = "That's it, you have connected all the clues."

	plotDescPrefix = "DESMOS: "
)

// TurnInput is one learner submission. Image is optional.
type TurnInput struct {
	Text  string
	Image *artifact.Image
}

type Outcome struct {
	Status         string            `json:"status"`
	Reply          string            `json:"reply"`
	ArtifactRef    string            `json:"artifact_ref,omitempty"`
	PlotExpression string            `json:"plot_expression,omitempty"`
	Challenge      *ChallengePayload `json:"challenge,omitempty"`
	Review         *FinalReview      `json:"review,omitempty"`
	Phase          Phase             `json:"phase"`
	// InteractionID is the last system turn written, 0 when none.
	InteractionID uint64 `json:"interaction_id,omitempty"`
}

// turn carries per-call state through the phase handlers.
type turn struct {
	c     *Conversation
	text  string
	image *artifact.Image
	user  *Interaction
}

func (t *turn) imageRef() string {
	if t.image == nil {
		return ""
	}
	return t.image.Ref
}

// analyzePrompt is the learner text, unless it only stands in for an image.
func (t *turn) analyzePrompt() string {
	if t.text == imageOnlyText {
		return ""
	}
	return t.text
}

// ProcessTurn runs one learner turn end to end under the conversation lock.
func (s *Service) ProcessTurn(ctx context.Context, userID uint64, conversationID string, in TurnInput) (*Outcome, error) {
	var out *Outcome
	err := s.withConversation(ctx, userID, conversationID, func(c *Conversation) error {
		var err error
		out, err = s.process(ctx, c, in)
		return err
	})
	return out, err
}

func (s *Service) process(ctx context.Context, c *Conversation, in TurnInput) (*Outcome, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Image == nil {
		return nil, fmt.Errorf("%w: text or image required", ErrInvalidRequest)
	}
	if text == "" {
		text = imageOnlyText
	}

	if c.Completed {
		return &Outcome{Status: StatusSuccess, Reply: ReplyAlreadyComplete, Phase: c.Phase}, nil
	}

	t := &turn{c: c, text: text, image: in.Image}

	if c.Phase == PhaseInitialProbe {
		if question, ok := scriptTrigger(text); ok {
			return s.startScript(ctx, t, question)
		}
	}
	if c.Mode == ModeScripted || strings.HasPrefix(c.Topic, scriptTopicMarker) {
		return s.continueScript(ctx, t)
	}

	switch c.Phase {
	case PhaseInitialProbe:
		return s.initialProbe(ctx, t)
	case PhaseVisualLoop:
		return s.visualLoop(ctx, t)
	case PhaseReview:
		return s.finalSynthesis(ctx, t)
	}
	return nil, fmt.Errorf("conversation %s: invalid phase %q", c.ConversationID, c.Phase)
}

func (s *Service) initialProbe(ctx context.Context, t *turn) (*Outcome, error) {
	c := t.c
	t.user = &Interaction{
		ConversationID: c.ConversationID,
		Kind:           KindQuestion,
		Text:           t.text,
		ArtifactRef:    t.imageRef(),
	}
	if err := s.repo.AppendInteraction(ctx, t.user); err != nil {
		return nil, err
	}

	var answer string
	if t.image != nil {
		analysis := s.artifacts.AnalyzeImage(ctx, *t.image, t.analyzePrompt())
		answer = fmt.Sprintf("I looked at the image you uploaded. Here is what I see: %s\n\nBased on this, what would you like to explore further?", analysis)
	} else {
		probe, err := s.reasoner.OpeningProbe(ctx, t.text)
		if err != nil || strings.TrimSpace(probe) == "" {
			s.gatewayFailed(c, "opening_probe", err)
			probe = DefaultProbe
		}
		answer = probe
	}

	c.Topic = truncateRunes(t.text, s.topicMaxRunes)
	c.Phase = PhaseVisualLoop
	if c.Mode == "" {
		c.Mode = ModeSocratic
	}

	reply := &Interaction{ConversationID: c.ConversationID, Kind: KindAIFeedback, Text: answer}
	err := s.repo.WithTx(ctx, func(tx *Repo) error {
		if err := tx.AppendInteraction(ctx, reply); err != nil {
			return err
		}
		return tx.SaveConversation(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return s.outcome(c, reply, answer), nil
}

func (s *Service) visualLoop(ctx context.Context, t *turn) (*Outcome, error) {
	c := t.c

	prev, err := s.repo.LastInteraction(ctx, c.ConversationID)
	if err != nil {
		return nil, err
	}
	kind := KindInterpretation
	if prev != nil && prev.Kind == KindAIFeedback {
		kind = KindProbeAnswer
	}

	t.user = &Interaction{
		ConversationID: c.ConversationID,
		Kind:           kind,
		Text:           t.text,
		ArtifactRef:    t.imageRef(),
	}
	if err := s.repo.AppendInteraction(ctx, t.user); err != nil {
		return nil, err
	}

	if t.image != nil {
		analysis := s.artifacts.AnalyzeImage(ctx, *t.image, t.analyzePrompt())
		return s.feedback(ctx, t, analysis)
	}

	window, err := s.repo.RecentInteractions(ctx, c.ConversationID, s.windowSize)
	if err != nil {
		return nil, err
	}
	cls, err := s.reasoner.Classify(ctx, reasoning.ClassifyRequest{
		Topic:    c.Topic,
		UserText: t.text,
		Context:  contextWindow(window),
	})
	if err != nil {
		s.gatewayFailed(c, "classify", err)
		return s.feedback(ctx, t, GatewayFallback)
	}

	s.log.Debug("turn classified",
		zap.String("conversation_id", c.ConversationID),
		zap.String("intent", string(cls.Intent)),
		zap.String("tool", string(cls.Tool)),
		zap.Bool("legacy", cls.Legacy))

	switch cls.Intent {
	case reasoning.IntentProbeDeeper:
		return s.probeDeeper(ctx, t, cls)
	case reasoning.IntentHasIdea:
		thought := t.text
		if cls.Legacy {
			thought = "Concept of " + c.Topic
		}
		return s.visualStep(ctx, t, cls, thought, defaultImageGuide)
	case reasoning.IntentVerify:
		return s.verifyUnderstanding(ctx, t, cls)
	case reasoning.IntentFinish:
		return s.finish(ctx, t)
	case reasoning.IntentExplainingImage:
		return s.explainingImage(ctx, t, cls)
	default:
		return s.feedback(ctx, t, NotUnderstood)
	}
}

func (s *Service) probeDeeper(ctx context.Context, t *turn, cls reasoning.Classification) (*Outcome, error) {
	guide := cls.GuideText
	if guide == "" || guide == mechanicalGuide {
		q, err := s.reasoner.FollowUpProbe(ctx, t.c.Topic, t.text)
		if err != nil || strings.TrimSpace(q) == "" {
			s.gatewayFailed(t.c, "follow_up_probe", err)
			q = defaultFollowUp
		}
		guide = q
	}
	return s.feedback(ctx, t, guide)
}

// visualStep emits the next artifact: a plot when the backend asked for one
// with an expression, otherwise a synthesized image.
func (s *Service) visualStep(ctx context.Context, t *turn, cls reasoning.Classification, thought, fallbackGuide string) (*Outcome, error) {
	c := t.c

	if cls.Tool == reasoning.ToolPlot && cls.PlotExpression != "" {
		guide := orDefault(cls.GuideText, defaultPlotGuide)
		in := &Interaction{
			ConversationID: c.ConversationID,
			Kind:           KindAIImage,
			Text:           guide,
			ArtifactDesc:   plotDescPrefix + cls.PlotExpression,
		}
		if err := s.repo.AppendInteraction(ctx, in); err != nil {
			return nil, err
		}
		out := s.outcome(c, in, guide)
		out.PlotExpression = cls.PlotExpression
		return out, nil
	}

	desc := cls.VisualDescription
	if desc == "" {
		d, err := s.reasoner.VisualDescription(ctx, c.Topic, thought)
		if err != nil || strings.TrimSpace(d) == "" {
			s.gatewayFailed(c, "visual_description", err)
			d = thought
		}
		desc = d
	}

	ref := s.artifacts.SynthesizeImage(ctx, desc)
	if ref == "" {
		ref = artifact.PlaceholderError
	}
	if artifact.IsPlaceholder(ref) {
		s.log.Warn("artifact placeholder used", zap.String("conversation_id", c.ConversationID), zap.String("ref", ref))
	}

	guide := orDefault(cls.GuideText, fallbackGuide)
	in := &Interaction{
		ConversationID: c.ConversationID,
		Kind:           KindAIImage,
		Text:           guide,
		ArtifactRef:    ref,
		ArtifactDesc:   desc,
	}
	if err := s.repo.AppendInteraction(ctx, in); err != nil {
		return nil, err
	}
	out := s.outcome(c, in, guide)
	out.ArtifactRef = ref
	return out, nil
}

func (s *Service) verifyUnderstanding(ctx context.Context, t *turn, cls reasoning.Classification) (*Outcome, error) {
	guide := orDefault(cls.GuideText, defaultVerifyGuide)
	if cls.Challenge == nil {
		return s.feedback(ctx, t, guide)
	}

	payload := NewChallengePayload(*cls.Challenge)
	full, err := EncodeChallenge(guide, payload)
	if err != nil {
		return nil, err
	}

	in := &Interaction{ConversationID: t.c.ConversationID, Kind: KindAIFeedback, Text: guide}
	err = s.repo.WithTx(ctx, func(tx *Repo) error {
		if err := tx.AppendInteraction(ctx, in); err != nil {
			return err
		}
		return tx.UpdateText(ctx, in.ID, full)
	})
	if err != nil {
		return nil, err
	}
	in.Text = full

	out := s.outcome(t.c, in, guide)
	out.Challenge = &payload
	return out, nil
}

func (s *Service) finish(ctx context.Context, t *turn) (*Outcome, error) {
	c := t.c
	c.Phase = PhaseReview
	text := fmt.Sprintf(finishPrompt, c.Topic)

	in := &Interaction{ConversationID: c.ConversationID, Kind: KindAIFeedback, Text: text}
	err := s.repo.WithTx(ctx, func(tx *Repo) error {
		if err := tx.SaveConversation(ctx, c); err != nil {
			return err
		}
		return tx.AppendInteraction(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	return s.outcome(c, in, text), nil
}

func (s *Service) explainingImage(ctx context.Context, t *turn, cls reasoning.Classification) (*Outcome, error) {
	if !cls.Passed() {
		return s.feedback(ctx, t, orDefault(cls.Hint, defaultHint))
	}

	// the learner's interpretation of the previous artifact
	if err := s.repo.MarkPassed(ctx, t.user.ID); err != nil {
		return nil, err
	}
	t.user.Passed = true

	passed, err := s.repo.CountPassed(ctx, t.c.ConversationID)
	if err != nil {
		return nil, err
	}
	if s.policy.Complete(passed) {
		return s.completeFromPasses(ctx, t, cls)
	}
	return s.visualStep(ctx, t, cls, "Next step after: "+t.text, defaultNextGuide)
}

func (s *Service) completeFromPasses(ctx context.Context, t *turn, cls reasoning.Classification) (*Outcome, error) {
	log, err := s.repo.ListInteractions(ctx, t.c.ConversationID)
	if err != nil {
		return nil, err
	}
	path := make([]PathStage, 0, 4)
	for _, in := range log {
		if in.Passed && in.Kind.UserAuthored() {
			path = append(path, PathStage{
				Stage:       fmt.Sprintf("Insight %d", len(path)+1),
				Description: in.Text,
			})
		}
	}
	fr := FinalReview{
		Summary:      thresholdSummary,
		ThinkingPath: path,
		Advice:       orDefault(cls.Feedback, thresholdAdvice),
	}
	return s.complete(ctx, t, thresholdLead, fr)
}

func (s *Service) finalSynthesis(ctx context.Context, t *turn) (*Outcome, error) {
	t.user = &Interaction{ConversationID: t.c.ConversationID, Kind: KindSynthesis, Text: t.text}
	if err := s.repo.AppendInteraction(ctx, t.user); err != nil {
		return nil, err
	}
	fr := FinalReview{
		Summary:      synthesisSummary,
		ThinkingPath: []PathStage{{Stage: "Done", Description: "User synthesized the answer."}},
		Advice:       fmt.Sprintf("Your summary, '%s', captures the core. Keep this power of observation.", t.text),
	}
	return s.complete(ctx, t, "", fr)
}

// complete writes the single Review, the closing turn and the terminal
// conversation state in one transaction.
func (s *Service) complete(ctx context.Context, t *turn, lead string, fr FinalReview) (*Outcome, error) {
	c := t.c
	rv, err := newReview(c.ConversationID, fr)
	if err != nil {
		return nil, err
	}
	text, err := EncodeFinalReview(lead, fr)
	if err != nil {
		return nil, err
	}

	c.Phase = PhaseReview
	c.Completed = true
	in := &Interaction{ConversationID: c.ConversationID, Kind: KindReview, Text: text}

	err = s.repo.WithTx(ctx, func(tx *Repo) error {
		if err := tx.CreateReview(ctx, rv); err != nil {
			return err
		}
		if err := tx.AppendInteraction(ctx, in); err != nil {
			return err
		}
		return tx.SaveConversation(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("conversation completed",
		zap.String("conversation_id", c.ConversationID),
		zap.Int("thinking_path", len(fr.ThinkingPath)))

	out := s.outcome(c, in, text)
	out.Review = &fr
	return out, nil
}

// feedback logs an ai_feedback turn with text.
func (s *Service) feedback(ctx context.Context, t *turn, text string) (*Outcome, error) {
	in := &Interaction{ConversationID: t.c.ConversationID, Kind: KindAIFeedback, Text: text}
	if err := s.repo.AppendInteraction(ctx, in); err != nil {
		return nil, err
	}
	return s.outcome(t.c, in, text), nil
}

func (s *Service) outcome(c *Conversation, in *Interaction, reply string) *Outcome {
	out := &Outcome{Status: StatusSuccess, Reply: reply, Phase: c.Phase}
	if in != nil {
		out.InteractionID = in.ID
	}
	return out
}

func (s *Service) gatewayFailed(c *Conversation, op string, err error) {
	s.log.Warn("reasoning gateway gave no usable result",
		zap.String("conversation_id", c.ConversationID),
		zap.String("op", op),
		zap.Error(err))
}

// contextWindow renders log entries as "kind: text" lines for the backend.
func contextWindow(entries []Interaction) string {
	var b strings.Builder
	for i, in := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		body := VisibleText(in.Text)
		if body == "" {
			body = in.ArtifactDesc
		}
		fmt.Fprintf(&b, "%s: %s", in.Kind, body)
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
