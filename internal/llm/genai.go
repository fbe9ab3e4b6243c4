package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"loreweaver/internal/store"
)

var _ Provider = (*GenAIProvider)(nil)

// GenAIProvider dispatches all four capabilities to the Gemini API.
// Structured capabilities request JSON output and parse it strictly;
// a malformed payload is reported as a provider error.
type GenAIProvider struct {
	name   string
	client *genai.Client
	model  string
}

func NewGenAIProvider(ctx context.Context, name, apiKey, model string) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: API key is required", name)
	}
	if model == "" {
		return nil, fmt.Errorf("provider %s: model is required", name)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("provider %s: creating client: %w", name, err)
	}

	return &GenAIProvider{name: name, client: client, model: model}, nil
}

func (p *GenAIProvider) Name() string { return p.name }

func (p *GenAIProvider) Supports(Capability) bool { return true }

const planSystemPrompt = `You are a story planner. Given the story context and a
scene prompt, produce a scene outline as a single JSON object with keys:
"intent_summary" (one sentence describing the scene's dramatic intent),
"target_emotional_shift" (the emotional change the scene should land),
"required_beats" (array of concrete story beats), "entering_characters",
"exiting_characters", and "key_items" (arrays of names). Respond with JSON
only, no prose.`

const executeSystemPrompt = `You are a prose writer. Write the scene described
by the outline, staying strictly consistent with the story context: character
psychology and current state, world rules, and established timeline facts.
Write immersive narrative prose only. Do not summarize, do not add headings.`

const critiqueSystemPrompt = `You are a continuity critic. Evaluate the scene
draft against the character states, world rules, and timeline digest. Respond
with a single JSON object: {"approved": bool, "metrics":
{"trait_adherence_score": number in [0,1], "temporal_continuity_flags":
integer count of contradictions with established facts,
"state_drift_detected": array of short descriptors for unrecorded state
changes the scene implies}, "justification": string, "new_world_rules":
array of {"category": one of magic/physics/politics/custom, "rule_text":
the rule, "active_scope": "global", "location:<name>", or
"scenes:<from>-<to>"} for durable rules of the world this scene
establishes for the first time, empty when none}. Score trait adherence
against core psychology, not current mood. Respond with JSON only.`

const synthesizeSystemPrompt = `You are a story archivist. Given numbered scene
summaries and character states, consolidate them. Respond with a single JSON
object: {"state_corrections": [{"character": name, "set": {key: value}}],
"summaries": [{"scene_id": id, "summary": improved one-paragraph summary}]}.
Only include corrections for states the scenes clearly contradict, and only
rewrite summaries that omit consequential facts. Respond with JSON only.`

func (p *GenAIProvider) Plan(ctx context.Context, req PlanRequest) (*Outline, error) {
	var prompt strings.Builder
	prompt.WriteString(req.Context)
	prompt.WriteString("\n\n## Scene Prompt\n")
	prompt.WriteString(req.UserPrompt)

	raw, err := p.generate(ctx, planSystemPrompt, prompt.String(), true)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	outline, err := parseOutline(raw)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	return outline, nil
}

func (p *GenAIProvider) Execute(ctx context.Context, req ExecuteRequest) (string, error) {
	var prompt strings.Builder
	prompt.WriteString(req.Context)
	prompt.WriteString("\n\n## Scene Outline\n")
	prompt.WriteString("Intent: " + req.Outline.IntentSummary + "\n")
	prompt.WriteString("Emotional shift: " + req.Outline.TargetEmotionalShift + "\n")
	for _, beat := range req.Outline.RequiredBeats {
		prompt.WriteString("- " + beat + "\n")
	}
	if req.CorrectiveFeedback != "" {
		prompt.WriteString("\n## Corrections Required\n")
		prompt.WriteString("A previous draft was rejected. Fix these problems:\n")
		prompt.WriteString(req.CorrectiveFeedback)
		prompt.WriteString("\n")
	}

	text, err := p.generate(ctx, executeSystemPrompt, prompt.String(), false)
	if err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("execute: empty scene text")
	}
	return text, nil
}

func (p *GenAIProvider) Critique(ctx context.Context, req CritiqueRequest) (*store.CriticReport, error) {
	var prompt strings.Builder
	prompt.WriteString("## Character States\n")
	prompt.WriteString(req.StateSnapshot)
	prompt.WriteString("\n\n## Timeline Digest\n")
	prompt.WriteString(req.TimelineDigest)
	prompt.WriteString("\n\n## Scene Draft\n")
	prompt.WriteString(req.SceneText)

	raw, err := p.generate(ctx, critiqueSystemPrompt, prompt.String(), true)
	if err != nil {
		return nil, fmt.Errorf("critique: %w", err)
	}

	report, err := parseCriticReport(raw)
	if err != nil {
		return nil, fmt.Errorf("critique: %w", err)
	}
	return report, nil
}

func (p *GenAIProvider) Synthesize(ctx context.Context, req SynthesizeRequest) (*SynthesisResult, error) {
	raw, err := p.generate(ctx, synthesizeSystemPrompt, req.RawHistory, true)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	result, err := parseSynthesis(raw)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return result, nil
}

func (p *GenAIProvider) generate(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	if jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("generating content: empty response")
	}
	return text, nil
}
