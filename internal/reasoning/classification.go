package reasoning

import (
	"encoding/json"
	"strings"
)

type Intent string

const (
	IntentProbeDeeper     Intent = "probe_deeper"
	IntentHasIdea         Intent = "has_idea"
	IntentVerify          Intent = "verify_understanding"
	IntentFinish          Intent = "finish"
	IntentExplainingImage Intent = "explaining_image"
	IntentUnknown         Intent = "unknown"
)

// intentNoIdea is the first-generation vocabulary for "learner has no idea".
// It is accepted and handled as has_idea with a topic-concept thought.
const intentNoIdea = "no_idea"

type Tool string

const (
	ToolImage Tool = "image_generation"
	ToolPlot  Tool = "desmos"
)

const EvaluationPass = "pass"

// Challenge is a fill-in-the-blank comprehension check.
type Challenge struct {
	Question      string `json:"question"`
	CorrectAnswer string `json:"correct_answer"`
	Hint          string `json:"hint"`
}

type Classification struct {
	Intent Intent
	// Legacy is set when the backend answered with the deprecated no_idea.
	Legacy bool

	Tool              Tool
	VisualDescription string
	PlotExpression    string
	Challenge         *Challenge
	Evaluation        string
	Feedback          string
	Hint              string
	GuideText         string
}

func (c Classification) Passed() bool {
	return strings.EqualFold(strings.TrimSpace(c.Evaluation), EvaluationPass)
}

// wire shape the backend is prompted to return
type classificationWire struct {
	Intent          string     `json:"intent"`
	Tool            string     `json:"tool"`
	DesmosLatex     string     `json:"desmos_latex"`
	Evaluation      string     `json:"evaluation"`
	Feedback        string     `json:"feedback"`
	NextStepHint    string     `json:"next_step_hint"`
	VisualPrompt    string     `json:"visual_prompt"`
	VisualGuideText string     `json:"visual_guide_text"`
	FillInTheBlank  *Challenge `json:"fill_in_the_blank"`
}

// ParseClassification decodes a backend reply. Markdown code fences are
// stripped first; anything that still is not a JSON object yields IntentUnknown.
func ParseClassification(raw string) Classification {
	body := stripFences(raw)

	var w classificationWire
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return Classification{Intent: IntentUnknown, Tool: ToolImage}
	}

	intent, legacy := NormalizeIntent(w.Intent)
	c := Classification{
		Intent:            intent,
		Legacy:            legacy,
		Tool:              normalizeTool(w.Tool),
		VisualDescription: strings.TrimSpace(w.VisualPrompt),
		PlotExpression:    strings.TrimSpace(w.DesmosLatex),
		Evaluation:        strings.TrimSpace(w.Evaluation),
		Feedback:          strings.TrimSpace(w.Feedback),
		Hint:              strings.TrimSpace(w.NextStepHint),
		GuideText:         strings.TrimSpace(w.VisualGuideText),
	}
	if w.FillInTheBlank != nil && w.FillInTheBlank.Question != "" {
		ch := *w.FillInTheBlank
		c.Challenge = &ch
	}
	return c
}

// NormalizeIntent maps a raw intent string onto the canonical vocabulary.
func NormalizeIntent(s string) (Intent, bool) {
	switch v := Intent(strings.ToLower(strings.TrimSpace(s))); v {
	case IntentProbeDeeper, IntentHasIdea, IntentVerify, IntentFinish, IntentExplainingImage:
		return v, false
	case intentNoIdea:
		return IntentHasIdea, true
	default:
		return IntentUnknown, false
	}
}

func normalizeTool(s string) Tool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ToolPlot), "desmos_calculator":
		return ToolPlot
	default:
		return ToolImage
	}
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}
