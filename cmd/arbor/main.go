package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/config"
	"github.com/jward/arbor/internal/history"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagWorkspace string
	flagSnapshot  string
	flagConfig    string
	flagVerbose   bool
	flagFormat    string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "arbor",
	Short:         "Incremental knowledge graph and context engine for codebases",
	Long:          "Arbor indexes source files into an in-memory knowledge graph of entities and relationships, keeps it current as files change, and answers search and context queries over it.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run; prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "workspace root (default: nearest ancestor with .git)")
	rootCmd.PersistentFlags().StringVar(&flagSnapshot, "snapshot", "", "graph snapshot path (default: .arbor/graph.json under the workspace root)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: discover .arbor.yaml walking up from the workspace root)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(statusCmd)
}

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a workspace and save the graph snapshot",
	Long:  "Walks the workspace, extracts entities and relationships from every parsable file, and writes the graph snapshot. Reuses an existing snapshot unless --force is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "discard the existing snapshot and index from scratch")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	root := resolveWorkspaceRoot(targetDir)
	snap := resolveSnapshotPath(root)

	if flagForce {
		if err := os.Remove(snap); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing snapshot for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared snapshot: %s\n", snap)
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	// The command saves explicitly; autosave on Close would write twice.
	cfg.AutoSave = false

	logger := newLogger()
	engine := arbor.New(
		arbor.WithConfig(cfg),
		arbor.WithLogger(logger),
		arbor.WithHistory(history.NewGit(root, logger)),
		arbor.WithSnapshotPath(snap),
	)
	defer engine.Close()

	ctx := context.Background()
	if err := engine.Initialize(ctx, targetDir); err != nil {
		return err
	}
	if err := engine.IndexWorkspace(ctx); err != nil {
		return err
	}
	if err := engine.Save(); err != nil {
		return err
	}

	stats := engine.Stats()
	fmt.Fprintf(os.Stderr, "Indexed %d files (%d entities, %d relationships) in %s\n",
		stats.IndexedFiles, stats.Entities, stats.Relationships,
		time.Since(start).Round(time.Millisecond),
	)
	fmt.Fprintf(os.Stderr, "Snapshot: %s\n", snap)

	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index a workspace and keep the graph current as files change",
	Long:  "Runs a full index, then watches the workspace for file events and applies them incrementally until interrupted. The snapshot is saved on shutdown.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	root := resolveWorkspaceRoot(targetDir)
	snap := resolveSnapshotPath(root)

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	logger := newLogger()
	engine := arbor.New(
		arbor.WithConfig(cfg),
		arbor.WithLogger(logger),
		arbor.WithHistory(history.NewGit(root, logger)),
		arbor.WithSnapshotPath(snap),
	)
	defer engine.Close()

	// Report state transitions, not every progress tick.
	var mu sync.Mutex
	last := arbor.StateUninitialized
	engine.OnStatus(func(st arbor.Status) {
		mu.Lock()
		changed := st.State != last
		last = st.State
		mu.Unlock()
		if changed {
			fmt.Fprintf(os.Stderr, "[%s] %d files, %d entities\n",
				st.State, st.IndexedFiles, st.TotalEntities)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Initialize(ctx, targetDir); err != nil {
		return err
	}
	if err := engine.IndexWorkspace(ctx); err != nil {
		return err
	}
	if err := engine.Watch(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Watching %s (interrupt to stop)\n", targetDir)

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "Shutting down")
	return engine.Close()
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// resolveWorkspaceRoot returns the --workspace flag if given, otherwise the
// nearest ancestor of startDir containing a .git directory, otherwise
// startDir itself.
func resolveWorkspaceRoot(startDir string) string {
	if flagWorkspace != "" {
		if abs, err := filepath.Abs(flagWorkspace); err == nil {
			return abs
		}
		return flagWorkspace
	}
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveSnapshotPath returns the snapshot path from the --snapshot flag or
// the default under the workspace root.
func resolveSnapshotPath(root string) string {
	if flagSnapshot != "" {
		if filepath.IsAbs(flagSnapshot) {
			return flagSnapshot
		}
		return filepath.Join(root, flagSnapshot)
	}
	return filepath.Join(root, ".arbor", "graph.json")
}

// loadConfig reads the --config file, or discovers the nearest .arbor.yaml
// above the workspace root. Absent both, defaults apply.
func loadConfig(root string) (*config.Config, error) {
	if flagConfig != "" {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cfg, _, err := config.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if flagVerbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return l
}
