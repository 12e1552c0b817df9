package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/history"
	"github.com/spf13/cobra"
)

// --- Helpers ---

// openEngine loads the snapshot for the current workspace into a fresh
// engine. Query commands never reindex and never rewrite the snapshot.
func openEngine() (*arbor.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	root := resolveWorkspaceRoot(cwd)
	snap := resolveSnapshotPath(root)

	if _, err := os.Stat(snap); os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot not found: %s (run 'arbor index' first)", snap)
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	cfg.AutoSave = false
	if flagBudget > 0 {
		cfg.TokenBudget = flagBudget
	}

	logger := newLogger()
	engine := arbor.New(
		arbor.WithConfig(cfg),
		arbor.WithLogger(logger),
		arbor.WithHistory(history.NewGit(root, logger)),
		arbor.WithSnapshotPath(snap),
	)
	if err := engine.Initialize(context.Background(), root); err != nil {
		_ = engine.Close()
		return nil, err
	}
	return engine, nil
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// splitLocation parses a <file>:<line> argument. ok is false when the
// argument has no numeric line suffix, in which case it is an entity id.
func splitLocation(arg string) (file string, line int, ok bool) {
	i := strings.LastIndex(arg, ":")
	if i <= 0 || i == len(arg)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(arg[i+1:])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return arg[:i], n, true
}

// splitKinds parses a comma-separated kind list.
func splitKinds(s string) []arbor.Kind {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	kinds := make([]arbor.Kind, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kinds = append(kinds, arbor.Kind(p))
		}
	}
	return kinds
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// entityToCLI converts an entity to its CLI representation.
func entityToCLI(e *arbor.Entity) CLIEntity {
	return CLIEntity{
		ID:        e.ID,
		Name:      e.Name,
		Kind:      string(e.Type),
		File:      e.FilePath,
		StartLine: e.StartLine,
		EndLine:   e.EndLine,
		Signature: e.Signature,
		ParentID:  e.ParentID,
	}
}

// hitToCLI converts a search result to its CLI representation.
func hitToCLI(r arbor.SearchResult) CLISearchHit {
	return CLISearchHit{
		Entity: entityToCLI(&r.Entity),
		Score:  r.Score,
		Components: CLIScoreBreakdown{
			TextSimilarity:    r.Components.TextSimilarity,
			GraphRelationship: r.Components.GraphRelationship,
			RecencyBoost:      r.Components.RecencyBoost,
			FrequencyBoost:    r.Components.FrequencyBoost,
			PatternBoost:      r.Components.PatternBoost,
		},
	}
}

// relToCLI converts a path hop, resolving endpoint names where possible.
func relToCLI(engine *arbor.Engine, r arbor.Relationship) CLIRelationship {
	hop := CLIRelationship{
		SourceID: r.SourceID,
		TargetID: r.Target.ID,
		Kind:     string(r.Type),
	}
	if e, err := engine.Entity(r.SourceID); err == nil {
		hop.SourceName = e.Name
	}
	if hop.TargetID == "" {
		hop.TargetName = r.Target.Name
	} else if e, err := engine.Entity(hop.TargetID); err == nil {
		hop.TargetName = e.Name
	}
	return hop
}

// --- Commands ---

var (
	flagSearchLimit int
	flagMinScore    float64
	flagKinds       string
	flagDir         string
	flagAnchor      string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed entities by relevance",
	Long:  "Ranks entities against the query by blending text similarity, graph proximity, recency, reference frequency, and naming patterns.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 20, "maximum results")
	searchCmd.Flags().Float64Var(&flagMinScore, "min-score", 0, "exclude results scoring below this")
	searchCmd.Flags().StringVar(&flagKinds, "kind", "", "comma-separated kind filter (e.g. function,class)")
	searchCmd.Flags().StringVar(&flagDir, "dir", "", "keep only entities under this directory")
	searchCmd.Flags().StringVar(&flagAnchor, "context", "", "entity id anchoring the graph proximity signal")
}

func runSearch(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return outputError("search", err)
	}
	defer engine.Close()

	hits := engine.Search(args[0], arbor.SearchOptions{
		Limit:           flagSearchLimit,
		MinScore:        flagMinScore,
		Kinds:           splitKinds(flagKinds),
		Directory:       flagDir,
		ContextEntityID: flagAnchor,
	})

	cliHits := make([]CLISearchHit, len(hits))
	for i, h := range hits {
		cliHits[i] = hitToCLI(h)
	}

	n := len(cliHits)
	return outputResult(CLIResult{
		Command:    "search",
		Results:    cliHits,
		TotalCount: &n,
	})
}

var flagBudget int

var contextCmd = &cobra.Command{
	Use:   "context <file>:<line> | <entity-id>",
	Short: "Assemble a context document around an entity",
	Long:  "Gathers the focal entity, its related entities grouped by relationship, file imports and exports, similar entities, and recent history, trimmed to the token budget. With --format text the document renders as an outline.",
	Args:  cobra.ExactArgs(1),
	RunE:  runContext,
}

func init() {
	contextCmd.Flags().IntVar(&flagBudget, "budget", 0, "token budget for the document (default from config)")
}

func runContext(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return outputError("context", err)
	}
	defer engine.Close()

	ctx := context.Background()
	var doc *arbor.Context
	if file, line, ok := splitLocation(args[0]); ok {
		abs, err := resolveFilePath(file)
		if err != nil {
			return outputError("context", err)
		}
		doc, err = engine.ContextAt(ctx, abs, line)
		if err != nil {
			return outputError("context", err)
		}
	} else {
		doc, err = engine.ContextFor(ctx, args[0])
		if err != nil {
			return outputError("context", err)
		}
	}

	if flagFormat == "text" {
		fmt.Print(arbor.RenderOutline(doc))
		return nil
	}
	data, err := arbor.RenderJSON(doc)
	if err != nil {
		return outputError("context", err)
	}
	fmt.Printf("%s\n", data)
	return nil
}

var (
	flagEntKind   string
	flagEntFile   string
	flagEntParent string
	flagEntLimit  int
)

var entitiesCmd = &cobra.Command{
	Use:   "entities [pattern]",
	Short: "List indexed entities matching a glob pattern",
	Long:  "Matches entity names against a glob pattern (* and ? wildcards). Without a pattern, lists everything.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEntities,
}

func init() {
	entitiesCmd.Flags().StringVar(&flagEntKind, "kind", "", "keep only entities of this kind")
	entitiesCmd.Flags().StringVar(&flagEntFile, "file", "", "keep only entities from this file")
	entitiesCmd.Flags().StringVar(&flagEntParent, "parent", "", "keep only children of this entity id")
	entitiesCmd.Flags().IntVar(&flagEntLimit, "limit", 50, "maximum results")
}

func runEntities(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return outputError("entities", err)
	}
	defer engine.Close()

	pattern := "*"
	if len(args) > 0 {
		pattern = args[0]
	}

	list, err := engine.FindEntities(arbor.Query{
		Name:     pattern,
		Kind:     arbor.Kind(flagEntKind),
		FilePath: flagEntFile,
		ParentID: flagEntParent,
		Limit:    flagEntLimit,
	})
	if err != nil {
		return outputError("entities", err)
	}

	cliEnts := make([]CLIEntity, len(list))
	for i, e := range list {
		cliEnts[i] = entityToCLI(e)
	}

	n := len(cliEnts)
	return outputResult(CLIResult{
		Command:    "entities",
		Results:    cliEnts,
		TotalCount: &n,
	})
}

var pathCmd = &cobra.Command{
	Use:   "path <source-id> <target-id>",
	Short: "Find the shortest relationship path between two entities",
	Args:  cobra.ExactArgs(2),
	RunE:  runPath,
}

func runPath(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return outputError("path", err)
	}
	defer engine.Close()

	rels := engine.FindPath(args[0], args[1])
	hops := make([]CLIRelationship, len(rels))
	for i, r := range rels {
		hops[i] = relToCLI(engine, r)
	}

	n := len(hops)
	return outputResult(CLIResult{
		Command:    "path",
		Results:    hops,
		TotalCount: &n,
	})
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index state for the current workspace",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return outputError("status", err)
	}
	root := resolveWorkspaceRoot(cwd)
	snap := resolveSnapshotPath(root)

	st := CLIStatus{
		Workspace: root,
		Snapshot:  snap,
		State:     string(arbor.StateUninitialized),
	}

	info, err := os.Stat(snap)
	if os.IsNotExist(err) {
		return outputResult(CLIResult{Command: "status", Results: st})
	}
	if err != nil {
		return outputError("status", err)
	}
	st.SnapshotSize = info.Size()

	engine, err := openEngine()
	if err != nil {
		return outputError("status", err)
	}
	defer engine.Close()

	stats := engine.Stats()
	st.State = string(stats.State)
	st.Entities = stats.Entities
	st.Relationships = stats.Relationships
	st.IndexedFiles = stats.IndexedFiles
	st.Repositories = stats.Repositories

	return outputResult(CLIResult{Command: "status", Results: st})
}
