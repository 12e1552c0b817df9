package arbor

import (
	"github.com/jward/arbor/internal/aggregate"
	"github.com/jward/arbor/internal/entity"
	"github.com/jward/arbor/internal/graph"
	"github.com/jward/arbor/internal/history"
	"github.com/jward/arbor/internal/pipeline"
	"github.com/jward/arbor/internal/search"
	"github.com/jward/arbor/internal/workspace"
)

// Public type aliases for the internal data model. These are Go type aliases
// (=), identical to the internal types at compile time. External consumers
// use these names; no conversion is needed.

type (
	Entity       = entity.CodeEntity
	Kind         = entity.Kind
	Relationship = entity.Relationship
	RelKind      = entity.RelKind
	TargetRef    = entity.TargetRef
	ParseResult  = entity.ParseResult
	ParseError   = entity.ParseError

	Graph           = graph.Graph
	Query           = graph.Query
	Direction       = graph.Direction
	TraverseOptions = graph.TraverseOptions
	TraverseResult  = graph.TraverseResult
	TraverseNode    = graph.TraverseNode

	Change     = pipeline.Change
	ChangeKind = pipeline.ChangeKind
	State      = pipeline.State
	Status     = pipeline.Status

	SearchOptions    = search.Options
	SearchResult     = search.Result
	SearchWeights    = search.Weights
	SearchComponents = search.Components

	Context       = aggregate.Context
	RelatedGroup  = aggregate.RelatedGroup
	SimilarEntity = aggregate.SimilarEntity

	Commit      = history.Commit
	Contributor = history.Contributor

	Repository = workspace.Repository
	Link       = workspace.Link
)

// Entity kinds.
const (
	KindFunction  = entity.KindFunction
	KindClass     = entity.KindClass
	KindInterface = entity.KindInterface
	KindType      = entity.KindType
	KindVariable  = entity.KindVariable
	KindImport    = entity.KindImport
	KindExport    = entity.KindExport
	KindMethod    = entity.KindMethod
	KindProperty  = entity.KindProperty
	KindEnum      = entity.KindEnum
	KindNamespace = entity.KindNamespace
	KindModule    = entity.KindModule
)

// Relationship kinds.
const (
	RelCalls      = entity.RelCalls
	RelImports    = entity.RelImports
	RelExports    = entity.RelExports
	RelExtends    = entity.RelExtends
	RelImplements = entity.RelImplements
	RelUses       = entity.RelUses
	RelDefines    = entity.RelDefines
	RelReturns    = entity.RelReturns
	RelParameter  = entity.RelParameter
	RelContains   = entity.RelContains
)

// Pipeline states and change kinds.
const (
	StateUninitialized = pipeline.StateUninitialized
	StateInitializing  = pipeline.StateInitializing
	StateReady         = pipeline.StateReady
	StateIndexing      = pipeline.StateIndexing
	StatePaused        = pipeline.StatePaused
	StateError         = pipeline.StateError

	ChangeModified = pipeline.ChangeModified
	ChangeSaved    = pipeline.ChangeSaved
	ChangeDeleted  = pipeline.ChangeDeleted
)

// Traversal directions.
const (
	DirectionOut  = graph.DirectionOut
	DirectionIn   = graph.DirectionIn
	DirectionBoth = graph.DirectionBoth
)

// Constructors and helpers re-exported for building graph data directly.
var (
	MakeID          = entity.MakeID
	EntityRef       = entity.EntityRef
	SymbolRef       = entity.SymbolRef
	ModuleRef       = entity.ModuleRef
	NewRelationship = entity.NewRelationship
	DefaultWeights  = search.DefaultWeights
)

// Context renderers. RenderJSON is lossless and machine-readable;
// RenderOutline is a compact human-readable view of the same survivors.
var (
	RenderJSON    = aggregate.RenderJSON
	RenderOutline = aggregate.RenderOutline
)
