// Package validate audits a project's stores against the engine's
// structural invariants. It reports what it finds and repairs nothing.
package validate

import (
	"context"
	"fmt"
	"sort"

	"loreweaver/internal/episodic"
	"loreweaver/internal/store"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const (
	codeSequenceGap          = "sequence_gap"
	codeDuplicateSequence    = "duplicate_sequence"
	codePrerequisiteMissing  = "prerequisite_missing"
	codePrerequisiteNotPrior = "prerequisite_not_prior"
	codeSceneEventMismatch   = "scene_event_mismatch"
	codeEpisodicMissing      = "episodic_missing"
	codeEpisodicOrphaned     = "episodic_orphaned"
	codeEpisodicOutOfStep    = "episodic_out_of_step"
	codeRetiredParticipant   = "retired_participant"
)

type Issue struct {
	Severity Severity
	Code     string
	Message  string
	SceneID  string
	Sequence int
}

type Report struct {
	Issues []Issue
}

func (r *Report) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Run audits one project: gapless sequence, causal prerequisites strictly
// earlier and existing, scene/event pairing, episodic/timeline bijection,
// and retired characters appearing in participant sets.
func Run(ctx context.Context, structured store.Store, ep episodic.Store, projectID string) (*Report, error) {
	if _, err := structured.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("loading project: %w", err)
	}

	events, err := structured.ListTimeline(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing timeline: %w", err)
	}
	scenes, err := structured.ListScenes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing scenes: %w", err)
	}
	records, err := ep.ListForProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing episodic records: %w", err)
	}
	characters, err := structured.ListCharacters(ctx, projectID, true)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}

	issues := make([]Issue, 0)
	issues = append(issues, checkSequence(events)...)
	issues = append(issues, checkPrerequisites(events)...)
	issues = append(issues, checkScenePairing(events, scenes)...)
	issues = append(issues, checkEpisodic(events, records)...)
	issues = append(issues, checkRetired(events, characters)...)

	return &Report{Issues: issues}, nil
}

func checkSequence(events []store.TimelineEvent) []Issue {
	var issues []Issue
	seen := make(map[int]string, len(events))
	maxSeq := 0
	for _, event := range events {
		if prior, dup := seen[event.SequenceIndex]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeDuplicateSequence,
				Message:  fmt.Sprintf("sequence %d claimed by %s and %s", event.SequenceIndex, prior, event.ID),
				SceneID:  event.ID,
				Sequence: event.SequenceIndex,
			})
		}
		seen[event.SequenceIndex] = event.ID
		if event.SequenceIndex > maxSeq {
			maxSeq = event.SequenceIndex
		}
	}
	for seq := 1; seq <= maxSeq; seq++ {
		if _, ok := seen[seq]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeSequenceGap,
				Message:  fmt.Sprintf("no timeline event at sequence %d", seq),
				Sequence: seq,
			})
		}
	}
	return issues
}

func checkPrerequisites(events []store.TimelineEvent) []Issue {
	var issues []Issue
	sequences := make(map[string]int, len(events))
	for _, event := range events {
		sequences[event.ID] = event.SequenceIndex
	}
	for _, event := range events {
		for _, prereq := range event.CausalPrerequisites {
			prereqSeq, ok := sequences[prereq]
			if !ok {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Code:     codePrerequisiteMissing,
					Message:  fmt.Sprintf("event %s cites missing prerequisite %s", event.ID, prereq),
					SceneID:  event.ID,
					Sequence: event.SequenceIndex,
				})
				continue
			}
			if prereqSeq >= event.SequenceIndex {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Code:     codePrerequisiteNotPrior,
					Message:  fmt.Sprintf("event %s cites prerequisite %s at sequence %d, not strictly earlier", event.ID, prereq, prereqSeq),
					SceneID:  event.ID,
					Sequence: event.SequenceIndex,
				})
			}
		}
	}
	return issues
}

func checkScenePairing(events []store.TimelineEvent, scenes []store.Scene) []Issue {
	var issues []Issue
	sceneBySeq := make(map[int]store.Scene, len(scenes))
	for _, scene := range scenes {
		sceneBySeq[scene.SequenceIndex] = scene
	}
	for _, event := range events {
		scene, ok := sceneBySeq[event.SequenceIndex]
		if !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeSceneEventMismatch,
				Message:  fmt.Sprintf("event %s at sequence %d has no scene row", event.ID, event.SequenceIndex),
				SceneID:  event.ID,
				Sequence: event.SequenceIndex,
			})
			continue
		}
		if scene.ID != event.ID {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeSceneEventMismatch,
				Message:  fmt.Sprintf("sequence %d pairs scene %s with event %s", event.SequenceIndex, scene.ID, event.ID),
				SceneID:  scene.ID,
				Sequence: event.SequenceIndex,
			})
		}
		delete(sceneBySeq, event.SequenceIndex)
	}
	orphaned := make([]store.Scene, 0, len(sceneBySeq))
	for _, scene := range sceneBySeq {
		orphaned = append(orphaned, scene)
	}
	sort.Slice(orphaned, func(i, j int) bool { return orphaned[i].SequenceIndex < orphaned[j].SequenceIndex })
	for _, scene := range orphaned {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     codeSceneEventMismatch,
			Message:  fmt.Sprintf("scene %s at sequence %d has no timeline event", scene.ID, scene.SequenceIndex),
			SceneID:  scene.ID,
			Sequence: scene.SequenceIndex,
		})
	}
	return issues
}

func checkEpisodic(events []store.TimelineEvent, records []episodic.Record) []Issue {
	var issues []Issue
	recordByScene := make(map[string]episodic.Record, len(records))
	for _, record := range records {
		recordByScene[record.SceneID] = record
	}
	for _, event := range events {
		record, ok := recordByScene[event.ID]
		if !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeEpisodicMissing,
				Message:  fmt.Sprintf("event %s has no episodic record", event.ID),
				SceneID:  event.ID,
				Sequence: event.SequenceIndex,
			})
			continue
		}
		if record.SequenceIndex != event.SequenceIndex {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeEpisodicOutOfStep,
				Message:  fmt.Sprintf("episodic record %s at sequence %d, event at %d", event.ID, record.SequenceIndex, event.SequenceIndex),
				SceneID:  event.ID,
				Sequence: event.SequenceIndex,
			})
		}
		delete(recordByScene, event.ID)
	}
	leftover := make([]episodic.Record, 0, len(recordByScene))
	for _, record := range recordByScene {
		leftover = append(leftover, record)
	}
	sort.Slice(leftover, func(i, j int) bool { return leftover[i].SequenceIndex < leftover[j].SequenceIndex })
	for _, record := range leftover {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     codeEpisodicOrphaned,
			Message:  fmt.Sprintf("episodic record %s has no timeline event", record.SceneID),
			SceneID:  record.SceneID,
			Sequence: record.SequenceIndex,
		})
	}
	return issues
}

func checkRetired(events []store.TimelineEvent, characters []store.Character) []Issue {
	retired := make(map[string]string)
	for _, character := range characters {
		if character.Retired {
			retired[character.ID] = character.Name
		}
	}
	if len(retired) == 0 {
		return nil
	}

	var issues []Issue
	for _, event := range events {
		for _, participant := range event.ParticipantIDs {
			name, isRetired := retired[participant]
			if !isRetired {
				continue
			}
			issues = append(issues, Issue{
				Severity: SeverityWarn,
				Code:     codeRetiredParticipant,
				Message:  fmt.Sprintf("retired character %s participates in event %s", name, event.ID),
				SceneID:  event.ID,
				Sequence: event.SequenceIndex,
			})
		}
	}
	return issues
}
