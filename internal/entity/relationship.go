package entity

// RelKind classifies a Relationship.
type RelKind string

const (
	RelCalls      RelKind = "calls"
	RelImports    RelKind = "imports"
	RelExports    RelKind = "exports"
	RelExtends    RelKind = "extends"
	RelImplements RelKind = "implements"
	RelUses       RelKind = "uses"
	RelDefines    RelKind = "defines"
	RelReturns    RelKind = "returns"
	RelParameter  RelKind = "parameter"
	RelContains   RelKind = "contains"
)

// RelKinds lists every valid relationship kind.
var RelKinds = []RelKind{
	RelCalls, RelImports, RelExports, RelExtends, RelImplements,
	RelUses, RelDefines, RelReturns, RelParameter, RelContains,
}

// TargetKind discriminates the three TargetRef variants.
type TargetKind string

const (
	// TargetEntity is a resolved reference to an entity by id.
	TargetEntity TargetKind = "entity"
	// TargetSymbol is an unresolved reference to a symbol by name.
	TargetSymbol TargetKind = "symbol"
	// TargetModule is a reference to a module or import path.
	TargetModule TargetKind = "module"
)

// TargetRef is the target of a relationship: a resolved entity id, an
// unresolved symbol name, or a module path. Exactly one payload field is set
// according to Kind.
type TargetRef struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
	Name string     `json:"name,omitempty"`
	Path string     `json:"path,omitempty"`
}

// EntityRef returns a resolved reference to the entity with the given id.
func EntityRef(id string) TargetRef {
	return TargetRef{Kind: TargetEntity, ID: id}
}

// SymbolRef returns an unresolved reference to a symbol name.
func SymbolRef(name string) TargetRef {
	return TargetRef{Kind: TargetSymbol, Name: name}
}

// ModuleRef returns a reference to a module or import path.
func ModuleRef(path string) TargetRef {
	return TargetRef{Kind: TargetModule, Path: path}
}

// Resolved reports whether the target is a resolved entity reference.
func (t TargetRef) Resolved() bool {
	return t.Kind == TargetEntity
}

// Key returns a stable adjacency key, unique across the three variants.
func (t TargetRef) Key() string {
	switch t.Kind {
	case TargetEntity:
		return "e:" + t.ID
	case TargetSymbol:
		return "s:" + t.Name
	case TargetModule:
		return "m:" + t.Path
	}
	return ""
}

// Display returns the human-readable form of the target: the entity id for
// resolved targets, otherwise the symbol name or module path.
func (t TargetRef) Display() string {
	switch t.Kind {
	case TargetEntity:
		return t.ID
	case TargetSymbol:
		return t.Name
	case TargetModule:
		return t.Path
	}
	return ""
}

// EntityKey returns the adjacency key for a resolved entity id. It matches
// TargetRef.Key for the TargetEntity variant.
func EntityKey(id string) string {
	return "e:" + id
}

// Relationship is a typed, directed link from a source entity to a target.
// The target may be unresolved when it cannot be located within the parsed
// file.
type Relationship struct {
	SourceID string            `json:"sourceId"`
	Target   TargetRef         `json:"target"`
	Type     RelKind           `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewRelationship builds a relationship from source to target.
func NewRelationship(sourceID string, target TargetRef, kind RelKind) Relationship {
	return Relationship{SourceID: sourceID, Target: target, Type: kind}
}

// TripleKey identifies the relationship by its (source, target, type) triple.
// The graph deduplicates edges on this key.
func (r Relationship) TripleKey() string {
	return r.SourceID + "\x00" + r.Target.Key() + "\x00" + string(r.Type)
}
