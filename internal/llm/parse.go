package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"loreweaver/internal/store"
)

// stripFences removes a markdown code fence wrapper if the model emitted
// one despite being asked for raw JSON.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func parseOutline(raw string) (*Outline, error) {
	var outline Outline
	if err := json.Unmarshal([]byte(stripFences(raw)), &outline); err != nil {
		return nil, fmt.Errorf("parsing outline: %w", err)
	}
	if strings.TrimSpace(outline.IntentSummary) == "" {
		return nil, fmt.Errorf("parsing outline: intent_summary is empty")
	}
	if outline.RequiredBeats == nil {
		outline.RequiredBeats = []string{}
	}
	if outline.EnteringCharacters == nil {
		outline.EnteringCharacters = []string{}
	}
	if outline.ExitingCharacters == nil {
		outline.ExitingCharacters = []string{}
	}
	if outline.KeyItems == nil {
		outline.KeyItems = []string{}
	}
	return &outline, nil
}

func parseCriticReport(raw string) (*store.CriticReport, error) {
	var report store.CriticReport
	if err := json.Unmarshal([]byte(stripFences(raw)), &report); err != nil {
		return nil, fmt.Errorf("parsing critic report: %w", err)
	}

	if report.Metrics.TraitAdherenceScore < 0 {
		report.Metrics.TraitAdherenceScore = 0
	}
	if report.Metrics.TraitAdherenceScore > 1 {
		report.Metrics.TraitAdherenceScore = 1
	}
	if report.Metrics.TemporalContinuityFlags < 0 {
		report.Metrics.TemporalContinuityFlags = 0
	}
	if report.Metrics.StateDriftDetected == nil {
		report.Metrics.StateDriftDetected = []string{}
	}
	return &report, nil
}

func parseSynthesis(raw string) (*SynthesisResult, error) {
	var result SynthesisResult
	if err := json.Unmarshal([]byte(stripFences(raw)), &result); err != nil {
		return nil, fmt.Errorf("parsing synthesis result: %w", err)
	}
	if result.StateCorrections == nil {
		result.StateCorrections = []StateCorrection{}
	}
	if result.Summaries == nil {
		result.Summaries = []SceneSummary{}
	}
	return &result, nil
}
