package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// formatEntitiesText formats CLIEntity results as aligned columns.
func formatEntitiesText(w io.Writer, ents []CLIEntity) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tFILE\tLINES")
	for _, e := range ents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d-%d\n",
			e.ID, e.Name, e.Kind, e.File, e.StartLine, e.EndLine)
	}
	tw.Flush()
}

// formatSearchText formats CLISearchHit results as aligned columns.
func formatSearchText(w io.Writer, hits []CLISearchHit) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tNAME\tKIND\tFILE\tLINE")
	for _, h := range hits {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\t%d\n",
			h.Score, h.Entity.Name, h.Entity.Kind, h.Entity.File, h.Entity.StartLine)
	}
	tw.Flush()
}

// formatPathText formats path hops as one arrow per line.
func formatPathText(w io.Writer, hops []CLIRelationship) {
	for _, h := range hops {
		src := h.SourceName
		if src == "" {
			src = h.SourceID
		}
		dst := h.TargetName
		if dst == "" {
			dst = h.TargetID
		}
		fmt.Fprintf(w, "%s --%s--> %s\n", src, h.Kind, dst)
	}
}

// formatStatusText formats CLIStatus as readable text.
func formatStatusText(w io.Writer, st CLIStatus) {
	fmt.Fprintf(w, "Workspace: %s\n", st.Workspace)
	if st.SnapshotSize > 0 {
		fmt.Fprintf(w, "Snapshot: %s (%d bytes)\n", st.Snapshot, st.SnapshotSize)
	} else {
		fmt.Fprintf(w, "Snapshot: %s (missing)\n", st.Snapshot)
	}
	fmt.Fprintf(w, "State: %s\n", st.State)
	fmt.Fprintf(w, "Entities: %d\n", st.Entities)
	fmt.Fprintf(w, "Relationships: %d\n", st.Relationships)
	fmt.Fprintf(w, "Indexed files: %d\n", st.IndexedFiles)
	fmt.Fprintf(w, "Repositories: %d\n", st.Repositories)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case []CLIEntity:
		formatEntitiesText(w, v)
	case CLIEntity:
		formatEntitiesText(w, []CLIEntity{v})
	case []CLISearchHit:
		formatSearchText(w, v)
	case []CLIRelationship:
		formatPathText(w, v)
	case CLIStatus:
		formatStatusText(w, v)
	case nil:
		// No output for nil results.
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}

	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLIEntity:
		return len(r)
	case []CLISearchHit:
		return len(r)
	case []CLIRelationship:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
