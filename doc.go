// Package arbor indexes a codebase into a queryable knowledge graph of code
// entities and relationships, keeps the graph current as files change, and
// answers ranked search and bounded context-assembly queries over it. It is
// built for coding assistants that need fast, incrementally maintained
// structural context.
//
// # Pipeline
//
// Arbor watches, or is told about, file changes and runs them through an
// incremental pipeline:
//
//  1. Extract: pattern-based per-language extractors turn one file into
//     entities (functions, classes, methods, imports) and relationships
//     (calls, contains, imports). Extraction never fails hard; errors are
//     recorded per file and partial results are kept.
//
//  2. Commit: the file's previous entities are replaced wholesale in the
//     in-memory graph, and the search index refreshes after every batch.
//
// Edits debounce per file while saves index immediately; deletes apply
// synchronously. A full workspace index runs in fixed-size batches and
// pauses itself under memory pressure.
//
// # Usage
//
// Create an Engine, initialize it over workspace roots, index, and query:
//
//	e := arbor.New(arbor.WithSnapshotPath(".arbor/graph.json"))
//	defer e.Close()
//
//	ctx := context.Background()
//	if err := e.Initialize(ctx, "path/to/project"); err != nil { ... }
//	if err := e.IndexWorkspace(ctx); err != nil { ... }
//
//	results := e.Search("user service", arbor.SearchOptions{Limit: 10})
//	cc, err := e.ContextAt(ctx, "src/services/user.ts", 15)
//
// # Queries
//
// Beyond [Engine.Search] and the context assemblers, the Engine exposes the
// graph directly:
//
//   - [Engine.FindEntities]: glob name query with kind, file, and parent
//     filters.
//   - [Engine.Traverse]: bounded breadth-first walk from an entity over
//     selected relationship kinds.
//   - [Engine.FindPath]: shortest relationship path between two entities.
//   - [Engine.ContextFor] and [Engine.ContextAt]: grouped, scored, and
//     budget-truncated context around an entity or a file position.
//
// # Persistence
//
// The graph lives in memory and persists as a single versioned JSON
// snapshot. A missing snapshot starts empty; a corrupt one fails
// initialization. With AutoSave configured the snapshot is written on
// Close.
package arbor
