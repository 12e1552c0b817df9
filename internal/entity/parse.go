package entity

import "fmt"

// ParseError records one recoverable failure inside an extraction pass.
// Parse errors are data, never raised: a file that fails to parse still
// produces a well-formed ParseResult.
type ParseError struct {
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (e ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Stage, e.Line, e.Message)
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return e.Message
}

// ParseResult is the per-file output of extraction, immutable once returned.
// Success=false means the result carries nothing the graph should apply,
// though entities found before the failure are still listed.
type ParseResult struct {
	FilePath      string         `json:"filePath"`
	Language      string         `json:"language"`
	Entities      []CodeEntity   `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Errors        []ParseError   `json:"errors,omitempty"`
	Success       bool           `json:"success"`
}

// NewParseResult returns an empty successful result for a file.
func NewParseResult(filePath, language string) *ParseResult {
	return &ParseResult{
		FilePath:      filePath,
		Language:      language,
		Entities:      []CodeEntity{},
		Relationships: []Relationship{},
		Success:       true,
	}
}

// AddError records a failure and marks the result unsuccessful.
func (r *ParseResult) AddError(stage, message string, line int) {
	r.Errors = append(r.Errors, ParseError{Stage: stage, Message: message, Line: line})
	r.Success = false
}

// AddEntity appends an entity to the result.
func (r *ParseResult) AddEntity(e CodeEntity) {
	r.Entities = append(r.Entities, e)
}

// AddRelationship appends a relationship, skipping duplicates of a triple
// already present in the result.
func (r *ParseResult) AddRelationship(rel Relationship) {
	key := rel.TripleKey()
	for _, existing := range r.Relationships {
		if existing.TripleKey() == key {
			return
		}
	}
	r.Relationships = append(r.Relationships, rel)
}

// EntityByID returns the entity with the given id, or nil.
func (r *ParseResult) EntityByID(id string) *CodeEntity {
	for i := range r.Entities {
		if r.Entities[i].ID == id {
			return &r.Entities[i]
		}
	}
	return nil
}
