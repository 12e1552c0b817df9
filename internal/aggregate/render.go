package aggregate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RenderJSON serializes the context as indented JSON.
func RenderJSON(c *Context) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// RenderOutline renders the context as a readable outline. Every field that
// survived truncation appears; empty sections are skipped.
func RenderOutline(c *Context) string {
	var b strings.Builder

	f := &c.Focal
	fmt.Fprintf(&b, "%s (%s)\n", f.Name, f.Type)
	fmt.Fprintf(&b, "  %s:%d-%d\n", f.FilePath, f.StartLine, f.EndLine)
	if f.Signature != "" {
		fmt.Fprintf(&b, "  %s\n", f.Signature)
	}
	if f.Docstring != "" {
		fmt.Fprintf(&b, "  %s\n", firstLine(f.Docstring))
	}

	if len(c.RelatedGroups) > 0 {
		b.WriteString("\nRelated:\n")
		for _, g := range c.RelatedGroups {
			fmt.Fprintf(&b, "  %s (%s, relevance %.2f):\n", g.Relationship, g.Direction, g.Relevance)
			for _, e := range g.Entities {
				fmt.Fprintf(&b, "    %s (%s) %s:%d\n", e.Name, e.Type, e.FilePath, e.StartLine)
			}
		}
	}

	if len(c.Imports) > 0 {
		fmt.Fprintf(&b, "\nImports: %s\n", strings.Join(c.Imports, ", "))
	}
	if len(c.Exports) > 0 {
		fmt.Fprintf(&b, "Exports: %s\n", strings.Join(c.Exports, ", "))
	}

	if len(c.SimilarEntities) > 0 {
		b.WriteString("\nSimilar:\n")
		for _, s := range c.SimilarEntities {
			fmt.Fprintf(&b, "  %s (%.2f) %s:%d\n", s.Entity.Name, s.Score, s.Entity.FilePath, s.Entity.StartLine)
		}
	}

	if len(c.History) > 0 {
		b.WriteString("\nHistory:\n")
		for _, commit := range c.History {
			fmt.Fprintf(&b, "  %s %s %s: %s\n",
				commit.Timestamp.Format("2006-01-02"), shortHash(commit.Hash), commit.Author, commit.Subject)
		}
	}
	if len(c.Contributors) > 0 {
		parts := make([]string, 0, len(c.Contributors))
		for _, p := range c.Contributors {
			parts = append(parts, fmt.Sprintf("%s (%d)", p.Name, p.Commits))
		}
		fmt.Fprintf(&b, "\nContributors: %s\n", strings.Join(parts, ", "))
	}

	if len(c.Patterns) > 0 {
		fmt.Fprintf(&b, "\nPatterns: %s\n", strings.Join(c.Patterns, ", "))
	}

	fmt.Fprintf(&b, "\n~%d tokens", c.TokenEstimate)
	if c.WasTruncated {
		b.WriteString(" (truncated)")
	}
	b.WriteString("\n")
	return b.String()
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
