package store

import "time"

type Project struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

type Character struct {
	ID             string
	ProjectID      string
	Name           string
	CorePsychology string
	CurrentState   map[string]any
	Relationships  map[string]string
	Retired        bool
	CreatedAt      time.Time
}

type WorldRule struct {
	ID          string
	ProjectID   string
	Category    string
	RuleText    string
	ActiveScope string
	Active      bool
}

type TimelineEvent struct {
	ID                  string
	ProjectID           string
	SequenceIndex       int
	Location            string
	ParticipantIDs      []string
	Summary             string
	CausalPrerequisites []string
}

type Scene struct {
	ID            string
	ProjectID     string
	SequenceIndex int
	Prompt        string
	SceneText     string
	CriticReport  *CriticReport
	Location      string
	CreatedAt     time.Time
}

type CriticReport struct {
	Approved      bool           `json:"approved"`
	Metrics       CriticMetrics  `json:"metrics"`
	Justification string         `json:"justification"`
	NewWorldRules []DetectedRule `json:"new_world_rules,omitempty"`
}

// DetectedRule is a durable world rule the critic noticed a scene
// establishing. The updater promotes well-formed ones into world_rules
// inside the commit transaction.
type DetectedRule struct {
	Category    string `json:"category"`
	RuleText    string `json:"rule_text"`
	ActiveScope string `json:"active_scope"`
}

type CriticMetrics struct {
	TraitAdherenceScore     float64  `json:"trait_adherence_score"`
	TemporalContinuityFlags int      `json:"temporal_continuity_flags"`
	StateDriftDetected      []string `json:"state_drift_detected"`
}

// StatePatch merges keys into a character's current_state. A nil value
// removes the key.
type StatePatch struct {
	CharacterID string
	Set         map[string]any
}

type CommitInput struct {
	ProjectID           string
	SceneID             string
	Location            string
	ParticipantIDs      []string
	Summary             string
	CausalPrerequisites []string
	Prompt              string
	SceneText           string
	Report              CriticReport
	StatePatches        []StatePatch
	NewRules            []WorldRule
}
