// Package entity defines the code entity and relationship model shared by the
// extractor, the knowledge graph, and the query layers. Entities are produced
// by per-language extraction, owned by the graph once added, and referenced
// (never copied back) by search and context aggregation.
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Kind classifies a CodeEntity.
type Kind string

const (
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
	KindVariable  Kind = "variable"
	KindImport    Kind = "import"
	KindExport    Kind = "export"
	KindMethod    Kind = "method"
	KindProperty  Kind = "property"
	KindEnum      Kind = "enum"
	KindNamespace Kind = "namespace"
	KindModule    Kind = "module"
)

// Kinds lists every valid entity kind.
var Kinds = []Kind{
	KindFunction, KindClass, KindInterface, KindType, KindVariable,
	KindImport, KindExport, KindMethod, KindProperty, KindEnum,
	KindNamespace, KindModule,
}

// CodeEntity is a named, located code element extracted from a source file.
// Nested entities (methods, properties) carry ParentID pointing at their
// enclosing entity. Metadata holds informational key/value pairs; well-known
// keys are "exported", "receiver", "async", and "default".
type CodeEntity struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        Kind              `json:"type"`
	FilePath    string            `json:"filePath"`
	StartLine   int               `json:"startLine"`
	EndLine     int               `json:"endLine"`
	StartColumn int               `json:"startColumn"`
	EndColumn   int               `json:"endColumn"`
	Signature   string            `json:"signature,omitempty"`
	Docstring   string            `json:"docstring,omitempty"`
	ParentID    string            `json:"parentId,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MakeID derives the deterministic entity id from the identifying tuple.
// Identical (filePath, kind, name, startLine) always yields the identical id.
func MakeID(filePath string, kind Kind, name string, startLine int) string {
	h := sha256.New()
	h.Write([]byte(filePath))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(startLine)))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Merge folds non-zero fields of other into e. Positions always follow the
// newer value; metadata merges key-wise with other winning collisions.
func (e *CodeEntity) Merge(other *CodeEntity) {
	if other.Name != "" {
		e.Name = other.Name
	}
	if other.Type != "" {
		e.Type = other.Type
	}
	if other.FilePath != "" {
		e.FilePath = other.FilePath
	}
	if other.StartLine != 0 || other.EndLine != 0 {
		e.StartLine = other.StartLine
		e.EndLine = other.EndLine
		e.StartColumn = other.StartColumn
		e.EndColumn = other.EndColumn
	}
	if other.Signature != "" {
		e.Signature = other.Signature
	}
	if other.Docstring != "" {
		e.Docstring = other.Docstring
	}
	if other.ParentID != "" {
		e.ParentID = other.ParentID
	}
	if len(other.Metadata) > 0 {
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, len(other.Metadata))
		}
		for k, v := range other.Metadata {
			e.Metadata[k] = v
		}
	}
}

// Clone returns a deep copy of e.
func (e *CodeEntity) Clone() *CodeEntity {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
