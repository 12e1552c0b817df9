package main

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIEntity is a JSON-friendly entity representation.
type CLIEntity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Signature string `json:"signature,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
}

// CLISearchHit is one ranked search result with its score breakdown.
type CLISearchHit struct {
	Entity     CLIEntity         `json:"entity"`
	Score      float64           `json:"score"`
	Components CLIScoreBreakdown `json:"components"`
}

// CLIScoreBreakdown is the per-signal contribution to a search score.
type CLIScoreBreakdown struct {
	TextSimilarity    float64 `json:"text_similarity"`
	GraphRelationship float64 `json:"graph_relationship"`
	RecencyBoost      float64 `json:"recency_boost"`
	FrequencyBoost    float64 `json:"frequency_boost"`
	PatternBoost      float64 `json:"pattern_boost"`
}

// CLIRelationship is one hop of a graph path. Names are filled in when the
// endpoints resolve to known entities.
type CLIRelationship struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name,omitempty"`
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name,omitempty"`
	Kind       string `json:"kind"`
}

// CLIStatus summarizes the workspace index.
type CLIStatus struct {
	Workspace     string `json:"workspace"`
	Snapshot      string `json:"snapshot"`
	SnapshotSize  int64  `json:"snapshot_size,omitempty"`
	State         string `json:"state"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	IndexedFiles  int    `json:"indexed_files"`
	Repositories  int    `json:"repositories"`
}
