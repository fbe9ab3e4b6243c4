package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"loreweaver/internal/config"
	"loreweaver/internal/pipeline"
	"loreweaver/internal/store"
)

type GenerateSceneInput struct {
	ProjectID          string   `json:"project_id" jsonschema:"project to generate in"`
	Prompt             string   `json:"prompt" jsonschema:"what should happen in the scene"`
	Location           string   `json:"location,omitempty" jsonschema:"where the scene takes place"`
	Characters         []string `json:"characters,omitempty" jsonschema:"active character names; empty means the whole cast"`
	CorrectiveFeedback string   `json:"corrective_feedback,omitempty" jsonschema:"feedback from a previously rejected draft"`
}

// FailureOutput mirrors the pipeline failure taxonomy so callers can
// distinguish a bad request from a rejected draft or an unreachable store.
type FailureOutput struct {
	Kind   string              `json:"kind"`
	Detail string              `json:"detail"`
	Draft  string              `json:"draft,omitempty"`
	Report *store.CriticReport `json:"report,omitempty"`
}

type GenerateSceneOutput struct {
	SceneID       string              `json:"scene_id,omitempty"`
	SceneText     string              `json:"scene_text,omitempty"`
	SequenceIndex int                 `json:"sequence_index,omitempty"`
	CriticReport  *store.CriticReport `json:"critic_report,omitempty"`
	LocationUsed  string              `json:"location_used,omitempty"`
	Failure       *FailureOutput      `json:"failure,omitempty"`
}

type FetchScenesInput struct {
	ProjectID    string `json:"project_id" jsonschema:"project to read"`
	FromSequence int    `json:"from_sequence,omitempty" jsonschema:"first sequence index to include"`
	ToSequence   int    `json:"to_sequence,omitempty" jsonschema:"last sequence index to include"`
}

type SceneOutput struct {
	ID            string              `json:"id"`
	SequenceIndex int                 `json:"sequence_index"`
	Prompt        string              `json:"prompt"`
	SceneText     string              `json:"scene_text"`
	Location      string              `json:"location"`
	CriticReport  *store.CriticReport `json:"critic_report,omitempty"`
	CreatedAt     string              `json:"created_at"`
}

type FetchScenesOutput struct {
	Scenes []SceneOutput `json:"scenes"`
}

type DeleteSceneInput struct {
	ProjectID string `json:"project_id" jsonschema:"project to delete from"`
	SceneID   string `json:"scene_id" jsonschema:"scene to delete"`
}

type DeleteSceneOutput struct {
	RemovedSequenceIndex int `json:"removed_sequence_index"`
}

type SeedCharacterInput struct {
	Name           string            `json:"name" jsonschema:"character name"`
	CorePsychology string            `json:"core_psychology" jsonschema:"immutable psychological core"`
	CurrentState   map[string]any    `json:"current_state,omitempty" jsonschema:"initial mutable state"`
	Relationships  map[string]string `json:"relationships,omitempty" jsonschema:"relationship kind to character name"`
}

type SeedWorldRuleInput struct {
	Category    string `json:"category" jsonschema:"magic, physics, politics, or custom"`
	RuleText    string `json:"rule_text" jsonschema:"the rule"`
	ActiveScope string `json:"active_scope,omitempty" jsonschema:"global, location:<name>, or scenes:<from>-<to>"`
}

type InitializeStoryInput struct {
	Name        string               `json:"name" jsonschema:"story name"`
	Description string               `json:"description,omitempty" jsonschema:"story description"`
	Characters  []SeedCharacterInput `json:"characters" jsonschema:"initial cast"`
	WorldRules  []SeedWorldRuleInput `json:"world_rules,omitempty" jsonschema:"initial world rules"`
}

type InitializeStoryOutput struct {
	ProjectID string `json:"project_id"`
}

type ListProjectsInput struct{}

type ProjectOutput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type ListProjectsOutput struct {
	Projects []ProjectOutput `json:"projects"`
}

type StoryStateInput struct {
	ProjectID string `json:"project_id" jsonschema:"project to inspect"`
	Location  string `json:"location,omitempty" jsonschema:"evaluate rule scope at this location"`
}

type CharacterStateOutput struct {
	Name           string            `json:"name"`
	CorePsychology string            `json:"core_psychology"`
	CurrentState   map[string]any    `json:"current_state"`
	Relationships  map[string]string `json:"relationships"`
}

type WorldRuleOutput struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	RuleText    string `json:"rule_text"`
	ActiveScope string `json:"active_scope"`
}

type DeactivateRuleInput struct {
	ProjectID string `json:"project_id" jsonschema:"project owning the rule"`
	RuleID    string `json:"rule_id" jsonschema:"rule to deactivate"`
}

type DeactivateRuleOutput struct {
	RuleID string `json:"rule_id"`
}

type StoryStateOutput struct {
	NextSequenceIndex int                    `json:"next_sequence_index"`
	Characters        []CharacterStateOutput `json:"characters"`
	RulesInScope      []WorldRuleOutput      `json:"rules_in_scope"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "generate_scene",
		Description: "Generate, critique, and commit the next scene of a story",
	}, s.handleGenerateScene)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "fetch_scenes",
		Description: "Fetch committed scenes in chronological order",
	}, s.handleFetchScenes)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "delete_scene",
		Description: "Delete a committed scene and renumber the timeline",
	}, s.handleDeleteScene)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "initialize_story",
		Description: "Create a project with its initial cast and world rules",
	}, s.handleInitializeStory)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_projects",
		Description: "List story projects",
	}, s.handleListProjects)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "story_state",
		Description: "Current character state and world rules in scope",
	}, s.handleStoryState)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "deactivate_rule",
		Description: "Deactivate a world rule so future scenes ignore it",
	}, s.handleDeactivateRule)
}

// handleGenerateScene reports pipeline failures inside the output payload
// so callers keep the kind, the rejected draft, and the critic report.
func (s *Server) handleGenerateScene(ctx context.Context, req *sdk.CallToolRequest, input GenerateSceneInput) (*sdk.CallToolResult, GenerateSceneOutput, error) {
	result, err := s.generator.GenerateScene(ctx, pipeline.Request{
		ProjectID:          input.ProjectID,
		Prompt:             input.Prompt,
		Location:           input.Location,
		CharacterNames:     input.Characters,
		CorrectiveFeedback: input.CorrectiveFeedback,
	})
	if err != nil {
		failure, ok := pipeline.AsFailure(err)
		if !ok {
			return nil, GenerateSceneOutput{}, err
		}
		return nil, GenerateSceneOutput{Failure: &FailureOutput{
			Kind:   string(failure.Kind),
			Detail: failure.Detail,
			Draft:  failure.Draft,
			Report: failure.Report,
		}}, nil
	}

	return nil, GenerateSceneOutput{
		SceneID:       result.SceneID,
		SceneText:     result.SceneText,
		SequenceIndex: result.SequenceIndex,
		CriticReport:  result.Report,
		LocationUsed:  result.LocationUsed,
	}, nil
}

func (s *Server) handleFetchScenes(ctx context.Context, req *sdk.CallToolRequest, input FetchScenesInput) (*sdk.CallToolResult, FetchScenesOutput, error) {
	if input.ProjectID == "" {
		return nil, FetchScenesOutput{}, fmt.Errorf("project_id is required")
	}

	scenes, err := s.structured.ListScenes(ctx, input.ProjectID)
	if err != nil {
		return nil, FetchScenesOutput{}, err
	}

	output := make([]SceneOutput, 0, len(scenes))
	for _, scene := range scenes {
		if input.FromSequence > 0 && scene.SequenceIndex < input.FromSequence {
			continue
		}
		if input.ToSequence > 0 && scene.SequenceIndex > input.ToSequence {
			continue
		}
		output = append(output, sceneOutputFromStore(scene))
	}
	return nil, FetchScenesOutput{Scenes: output}, nil
}

func (s *Server) handleDeleteScene(ctx context.Context, req *sdk.CallToolRequest, input DeleteSceneInput) (*sdk.CallToolResult, DeleteSceneOutput, error) {
	if input.ProjectID == "" || input.SceneID == "" {
		return nil, DeleteSceneOutput{}, fmt.Errorf("project_id and scene_id are required")
	}

	seq, err := s.updater.DeleteScene(ctx, input.ProjectID, input.SceneID)
	if err != nil {
		return nil, DeleteSceneOutput{}, err
	}
	return nil, DeleteSceneOutput{RemovedSequenceIndex: seq}, nil
}

func (s *Server) handleInitializeStory(ctx context.Context, req *sdk.CallToolRequest, input InitializeStoryInput) (*sdk.CallToolResult, InitializeStoryOutput, error) {
	seed := config.StorySeed{
		Version:     1,
		Name:        input.Name,
		Description: input.Description,
	}
	for _, character := range input.Characters {
		seed.Characters = append(seed.Characters, config.SeedCharacter{
			Name:           character.Name,
			CorePsychology: character.CorePsychology,
			CurrentState:   character.CurrentState,
			Relationships:  character.Relationships,
		})
	}
	for _, rule := range input.WorldRules {
		seed.WorldRules = append(seed.WorldRules, config.SeedWorldRule{
			Category:    rule.Category,
			RuleText:    rule.RuleText,
			ActiveScope: rule.ActiveScope,
		})
	}

	projectID, err := s.updater.InitializeStory(ctx, seed)
	if err != nil {
		return nil, InitializeStoryOutput{}, err
	}
	return nil, InitializeStoryOutput{ProjectID: projectID}, nil
}

func (s *Server) handleListProjects(ctx context.Context, req *sdk.CallToolRequest, input ListProjectsInput) (*sdk.CallToolResult, ListProjectsOutput, error) {
	projects, err := s.structured.ListProjects(ctx)
	if err != nil {
		return nil, ListProjectsOutput{}, err
	}

	output := make([]ProjectOutput, 0, len(projects))
	for _, project := range projects {
		output = append(output, ProjectOutput{
			ID:          project.ID,
			Name:        project.Name,
			Description: project.Description,
			CreatedAt:   project.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil, ListProjectsOutput{Projects: output}, nil
}

func (s *Server) handleStoryState(ctx context.Context, req *sdk.CallToolRequest, input StoryStateInput) (*sdk.CallToolResult, StoryStateOutput, error) {
	if input.ProjectID == "" {
		return nil, StoryStateOutput{}, fmt.Errorf("project_id is required")
	}
	if _, err := s.structured.GetProject(ctx, input.ProjectID); err != nil {
		return nil, StoryStateOutput{}, err
	}

	characters, err := s.structured.ListCharacters(ctx, input.ProjectID, false)
	if err != nil {
		return nil, StoryStateOutput{}, err
	}
	rules, err := s.structured.ListWorldRules(ctx, input.ProjectID, true)
	if err != nil {
		return nil, StoryStateOutput{}, err
	}
	maxSeq, err := s.structured.MaxSequenceIndex(ctx, input.ProjectID)
	if err != nil {
		return nil, StoryStateOutput{}, err
	}
	nextSeq := maxSeq + 1

	output := StoryStateOutput{
		NextSequenceIndex: nextSeq,
		Characters:        make([]CharacterStateOutput, 0, len(characters)),
		RulesInScope:      make([]WorldRuleOutput, 0, len(rules)),
	}
	for _, character := range characters {
		output.Characters = append(output.Characters, CharacterStateOutput{
			Name:           character.Name,
			CorePsychology: character.CorePsychology,
			CurrentState:   character.CurrentState,
			Relationships:  character.Relationships,
		})
	}
	for _, rule := range rules {
		if !store.RuleInScope(rule, input.Location, nextSeq) {
			continue
		}
		output.RulesInScope = append(output.RulesInScope, WorldRuleOutput{
			ID:          rule.ID,
			Category:    rule.Category,
			RuleText:    rule.RuleText,
			ActiveScope: rule.ActiveScope,
		})
	}
	return nil, output, nil
}

func (s *Server) handleDeactivateRule(ctx context.Context, req *sdk.CallToolRequest, input DeactivateRuleInput) (*sdk.CallToolResult, DeactivateRuleOutput, error) {
	if input.ProjectID == "" || input.RuleID == "" {
		return nil, DeactivateRuleOutput{}, fmt.Errorf("project_id and rule_id are required")
	}
	if err := s.structured.DeactivateWorldRule(ctx, input.ProjectID, input.RuleID); err != nil {
		return nil, DeactivateRuleOutput{}, err
	}
	return nil, DeactivateRuleOutput{RuleID: input.RuleID}, nil
}

func sceneOutputFromStore(scene store.Scene) SceneOutput {
	return SceneOutput{
		ID:            scene.ID,
		SequenceIndex: scene.SequenceIndex,
		Prompt:        scene.Prompt,
		SceneText:     scene.SceneText,
		Location:      scene.Location,
		CriticReport:  scene.CriticReport,
		CreatedAt:     scene.CreatedAt.Format(time.RFC3339),
	}
}
