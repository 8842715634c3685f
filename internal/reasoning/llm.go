package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garywanggali/think-first/internal/ai"
)

const classifyPrompt = `You are a visual storyteller and Socratic tutor.
Guide the learner to the answer through a sequence of visual scenes and
questions. Never state the final answer.

Decide the next step from the learner's input and the context:
- "probe_deeper": the learner has no idea yet; ask one simple, intuitive question in visual_guide_text.
- "has_idea": the learner offered a concrete thought; pick a visual tool.
- "explaining_image": the learner is interpreting the last image; grade it pass or fail.
- "verify_understanding": the learner seems to have the key point; emit a fill-in-the-blank check.
- "finish": the reasoning chain is complete.

Tools: "image_generation" for nature, life, history and non-math abstractions;
"desmos" for functions and geometry, with a LaTeX expression in desmos_latex.

RETURN JSON ONLY:
{
  "intent": "probe_deeper" | "has_idea" | "explaining_image" | "verify_understanding" | "finish",
  "tool": "image_generation" | "desmos",
  "desmos_latex": "y=x^2",
  "fill_in_the_blank": {"question": "... ___ ...", "correct_answer": "...", "hint": "..."},
  "evaluation": "pass" | "fail",
  "feedback": "short feedback",
  "next_step_hint": "hint if failed",
  "visual_prompt": "English prompt for the image model",
  "visual_guide_text": "guide text shown to the learner"
}`

const visualPrompt = `You are a visual thinking expert. Turn the abstract thought into a
concrete, metaphorical scene. Nature and real life: cinematic, photorealistic.
Academic, abstract, logic or math: minimalist, schematic, infographic, clean lines.
OUTPUT ONLY THE VISUAL DESCRIPTION IN ENGLISH.`

const openingPrompt = `You are a Socratic thinking mentor. The learner just asked a question.
Acknowledge it and ask whether they already have a first idea or intuition.
Do not answer the question. Warm, professional, under 100 words.`

// LLM implements Gateway over a chat-completion provider.
type LLM struct {
	provider ai.Provider
	timeout  time.Duration
}

var _ Gateway = (*LLM)(nil)

func NewLLM(provider ai.Provider, timeout time.Duration) *LLM {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLM{provider: provider, timeout: timeout}
}

func (g *LLM) Classify(ctx context.Context, req ClassifyRequest) (Classification, error) {
	user := fmt.Sprintf("Context History:\n%s\n\nCurrent Question: %s\nUser Input: %s", req.Context, req.Topic, req.UserText)
	raw, err := g.complete(ctx, true, classifyPrompt, user)
	if err != nil {
		return Classification{Intent: IntentUnknown, Tool: ToolImage}, err
	}
	return ParseClassification(raw), nil
}

func (g *LLM) OpeningProbe(ctx context.Context, userText string) (string, error) {
	return g.complete(ctx, false, openingPrompt, "User Question: "+userText)
}

func (g *LLM) VisualDescription(ctx context.Context, topic, thought string) (string, error) {
	return g.complete(ctx, false, visualPrompt, fmt.Sprintf("Question: %s\nCurrent Thought to Visualize: %s", topic, thought))
}

func (g *LLM) FollowUpProbe(ctx context.Context, topic, userText string) (string, error) {
	user := fmt.Sprintf(`Context: the learner says %q (they don't know yet).
Current topic: %s
Ask one simple, intuitive question that helps them guess.
Do not say "never mind" or "let's imagine". Just ask the question.`, userText, topic)
	return g.complete(ctx, false, "", user)
}

func (g *LLM) complete(ctx context.Context, jsonMode bool, system, user string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msgs := make([]ai.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, ai.Message{Role: "system", Content: system})
	}
	msgs = append(msgs, ai.Message{Role: "user", Content: user})

	var (
		out string
		err error
	)
	if jp, ok := g.provider.(ai.JSONProvider); ok && jsonMode {
		out, err = jp.ChatJSON(cctx, msgs)
	} else {
		out, err = g.provider.Chat(cctx, msgs)
	}
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
