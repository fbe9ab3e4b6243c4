// Package llm defines the closed capability surface the pipeline consumes
// and routes each capability to a configured provider. Providers are
// interchangeable backends; none is required to support every capability.
package llm

import (
	"context"
	"errors"

	"loreweaver/internal/store"
)

type Capability string

const (
	CapabilityPlan       Capability = "plan"
	CapabilityExecute    Capability = "execute"
	CapabilityCritique   Capability = "critique"
	CapabilitySynthesize Capability = "synthesize"
)

var ErrUnsupportedCapability = errors.New("unsupported capability")

// Outline is the planner's structured result. IntentSummary doubles as the
// retrieval query for semantic memory during execution.
type Outline struct {
	IntentSummary        string   `json:"intent_summary"`
	TargetEmotionalShift string   `json:"target_emotional_shift"`
	RequiredBeats        []string `json:"required_beats"`
	EnteringCharacters   []string `json:"entering_characters"`
	ExitingCharacters    []string `json:"exiting_characters"`
	KeyItems             []string `json:"key_items"`
}

type PlanRequest struct {
	Context    string
	UserPrompt string
}

type ExecuteRequest struct {
	Context            string
	Outline            Outline
	CorrectiveFeedback string
}

type CritiqueRequest struct {
	SceneText      string
	StateSnapshot  string
	TimelineDigest string
}

type SynthesizeRequest struct {
	RawHistory string
}

type SynthesisResult struct {
	StateCorrections []StateCorrection `json:"state_corrections"`
	Summaries        []SceneSummary    `json:"summaries"`
}

type StateCorrection struct {
	Character string         `json:"character"`
	Set       map[string]any `json:"set"`
}

type SceneSummary struct {
	SceneID string `json:"scene_id"`
	Summary string `json:"summary"`
}

type Provider interface {
	Name() string
	Supports(capability Capability) bool

	Plan(ctx context.Context, req PlanRequest) (*Outline, error)
	Execute(ctx context.Context, req ExecuteRequest) (string, error)
	Critique(ctx context.Context, req CritiqueRequest) (*store.CriticReport, error)
	Synthesize(ctx context.Context, req SynthesizeRequest) (*SynthesisResult, error)
}
