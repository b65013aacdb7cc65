package domain

// MergeStrategy is carried on Update decisions as a directive for the
// hierarchical memory engine (spec §4.6).
type MergeStrategy string

const (
	MergeReplace    MergeStrategy = "replace"
	MergeAppend     MergeStrategy = "append"
	MergeDedup      MergeStrategy = "merge"
	MergePrioritize MergeStrategy = "prioritize"
)

// DecisionKind tags the variant of a Decision.
type DecisionKind string

const (
	DecisionAdd    DecisionKind = "add"
	DecisionUpdate DecisionKind = "update"
	DecisionDelete DecisionKind = "delete"
	DecisionMerge  DecisionKind = "merge"
	DecisionNoOp   DecisionKind = "noop"
)

// Decision is a transient, proposed mutation over memory state (spec §3.1,
// §4.6). Only the fields relevant to Kind are populated.
type Decision struct {
	Kind       DecisionKind `json:"kind"`
	Confidence float64      `json:"confidence"`

	// Add
	Content    string         `json:"content,omitempty"`
	Importance float64        `json:"importance,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Update / Delete / Merge target(s)
	MemoryID string `json:"memory_id,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// Update
	NewContent    string        `json:"new_content,omitempty"`
	MergeStrategy MergeStrategy `json:"merge_strategy,omitempty"`

	// Merge
	PrimaryID     string   `json:"primary_id,omitempty"`
	SecondaryIDs  []string `json:"secondary_ids,omitempty"`
	MergedContent string   `json:"merged_content,omitempty"`

	AffectedMemoryIDs []string `json:"affected_memory_ids,omitempty"`
}
