package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/jward/arbor/internal/entity"
)

// lineIndex precomputes line start offsets so passes can convert byte
// offsets to 1-based line/column positions without rescanning.
type lineIndex struct {
	data   []byte
	starts []int // byte offset of each line start
}

func newLineIndex(data []byte) *lineIndex {
	ix := &lineIndex{data: data, starts: []int{0}}
	for off, b := range data {
		// A trailing newline does not open another line.
		if b == '\n' && off+1 < len(data) {
			ix.starts = append(ix.starts, off+1)
		}
	}
	return ix
}

func (ix *lineIndex) lineCount() int {
	return len(ix.starts)
}

// lineOf returns the 1-based line containing the byte offset.
func (ix *lineIndex) lineOf(off int) int {
	lo, hi := 0, len(ix.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if ix.starts[mid] <= off {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

// colOf returns the 1-based column of the byte offset within its line.
func (ix *lineIndex) colOf(off int) int {
	return off - ix.starts[ix.lineOf(off)-1] + 1
}

// lineStart returns the byte offset of the 1-based line.
func (ix *lineIndex) lineStart(line int) int {
	if line < 1 {
		line = 1
	}
	if line > len(ix.starts) {
		line = len(ix.starts)
	}
	return ix.starts[line-1]
}

// lineEnd returns the byte offset just past the 1-based line, excluding the
// newline.
func (ix *lineIndex) lineEnd(line int) int {
	if line >= len(ix.starts) {
		end := len(ix.data)
		if end > 0 && ix.data[end-1] == '\n' {
			end--
		}
		return end
	}
	end := ix.starts[line] - 1
	if end < 0 {
		end = 0
	}
	return end
}

// lineText returns the text of the 1-based line without its newline.
func (ix *lineIndex) lineText(line int) string {
	if line < 1 || line > len(ix.starts) {
		return ""
	}
	return string(ix.data[ix.lineStart(line):ix.lineEnd(line)])
}

// braceBlockEnd finds the line on which the brace block opened at or after
// `from` closes. String literals and comments are skipped so braces inside
// them do not unbalance the count. An unclosed block extends to the last
// line, which keeps malformed input from breaking extraction.
func braceBlockEnd(ix *lineIndex, from int) int {
	data := ix.data
	depth := 0
	opened := false
	for i := from; i < len(data); i++ {
		switch data[i] {
		case '"', '\'', '`':
			quote := data[i]
			for i++; i < len(data); i++ {
				if data[i] == '\\' {
					i++
				} else if data[i] == quote || (data[i] == '\n' && quote != '`') {
					break
				}
			}
		case '/':
			if i+1 < len(data) {
				if data[i+1] == '/' {
					for i < len(data) && data[i] != '\n' {
						i++
					}
				} else if data[i+1] == '*' {
					end := bytes.Index(data[i+2:], []byte("*/"))
					if end < 0 {
						return ix.lineCount()
					}
					i += 2 + end + 1
				}
			}
		case '{':
			depth++
			opened = true
		case '}':
			depth--
			if opened && depth == 0 {
				return ix.lineOf(i)
			}
		}
	}
	return ix.lineCount()
}

// indentBlockEnd finds the last line of an indentation-delimited block whose
// header is at headerLine. The block covers every following line indented
// deeper than the header; trailing blank lines are not counted.
func indentBlockEnd(ix *lineIndex, headerLine int) int {
	base := indentWidth(ix.lineText(headerLine))
	end := headerLine
	for line := headerLine + 1; line <= ix.lineCount(); line++ {
		text := ix.lineText(line)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if indentWidth(text) <= base {
			break
		}
		end = line
	}
	return end
}

// indentWidth counts leading whitespace with tabs as 4 columns.
func indentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 4
		default:
			return w
		}
	}
	return w
}

// identCallRe matches identifier-call syntax: a name directly followed by an
// open paren.
var identCallRe = regexp.MustCompile(`([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)

// callKeywords are identifiers that look like calls but never are.
var callKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "function": true, "func": true, "new": true, "typeof": true,
	"def": true, "print": true, "super": true, "await": true, "yield": true,
	"case": true, "select": true, "defer": true, "go": true, "make": true,
	"len": true, "cap": true, "append": true, "panic": true, "recover": true,
	"delete": true, "copy": true, "range": true, "with": true, "raise": true,
	"assert": true, "lambda": true, "elif": true, "not": true, "in": true,
}

// callable reports whether an entity kind can appear as a call target.
func callable(k entity.Kind) bool {
	return k == entity.KindFunction || k == entity.KindMethod
}

// scanCalls runs the final extraction pass: each function or method body is
// scanned for identifier-call syntax, and a calls edge is emitted for every
// name that resolves to a function or method in the same file. Unresolvable
// names are ignored; cross-file resolution is out of scope.
func scanCalls(res *entity.ParseResult, ix *lineIndex) {
	byName := make(map[string]string)
	for i := range res.Entities {
		e := &res.Entities[i]
		if callable(e.Type) {
			// First definition wins so results stay deterministic when a
			// name repeats.
			if _, ok := byName[e.Name]; !ok {
				byName[e.Name] = e.ID
			}
		}
	}
	if len(byName) == 0 {
		return
	}

	for i := range res.Entities {
		e := &res.Entities[i]
		if !callable(e.Type) {
			continue
		}
		body := ix.data[ix.lineStart(e.StartLine):ix.lineEnd(e.EndLine)]
		for _, m := range identCallRe.FindAllSubmatchIndex(body, -1) {
			name := string(body[m[2]:m[3]])
			if callKeywords[name] {
				continue
			}
			targetID, ok := byName[name]
			if !ok {
				continue
			}
			// Skip the definition itself: the declaration line always
			// contains `name(`.
			line := ix.lineOf(ix.lineStart(e.StartLine) + m[2])
			if name == e.Name && line == e.StartLine {
				continue
			}
			res.AddRelationship(entity.NewRelationship(e.ID, entity.EntityRef(targetID), entity.RelCalls))
		}
	}
}

var identRe = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// typeLike reports whether an entity kind can be the target of a uses edge.
func typeLike(k entity.Kind) bool {
	switch k {
	case entity.KindClass, entity.KindInterface, entity.KindEnum, entity.KindType:
		return true
	}
	return false
}

// scanTypeUses emits uses edges from classes and functions to type-like
// entities named inside their bodies, resolved within the same file only.
func scanTypeUses(res *entity.ParseResult, ix *lineIndex) {
	byName := make(map[string]string)
	for i := range res.Entities {
		e := &res.Entities[i]
		if typeLike(e.Type) {
			if _, ok := byName[e.Name]; !ok {
				byName[e.Name] = e.ID
			}
		}
	}
	if len(byName) == 0 {
		return
	}

	for i := range res.Entities {
		e := &res.Entities[i]
		switch e.Type {
		case entity.KindClass, entity.KindFunction, entity.KindMethod, entity.KindInterface:
		default:
			continue
		}
		body := ix.data[ix.lineStart(e.StartLine):ix.lineEnd(e.EndLine)]
		for _, m := range identRe.FindAllIndex(body, -1) {
			name := string(body[m[0]:m[1]])
			targetID, ok := byName[name]
			if !ok || name == e.Name {
				continue
			}
			res.AddRelationship(entity.NewRelationship(e.ID, entity.EntityRef(targetID), entity.RelUses))
		}
	}
}

// linkModule wires the per-file module entity into the result: a defines
// edge to every top-level entity and an exports edge to every entity marked
// exported.
func linkModule(res *entity.ParseResult, moduleID string) {
	for i := range res.Entities {
		e := &res.Entities[i]
		if e.ID == moduleID || e.Type == entity.KindImport {
			continue
		}
		if e.ParentID == "" {
			res.AddRelationship(entity.NewRelationship(moduleID, entity.EntityRef(e.ID), entity.RelDefines))
		}
		if e.Metadata["exported"] == "true" {
			res.AddRelationship(entity.NewRelationship(moduleID, entity.EntityRef(e.ID), entity.RelExports))
		}
	}
}

// containsEdge links a parent entity to a nested child.
func containsEdge(res *entity.ParseResult, parentID, childID string) {
	res.AddRelationship(entity.NewRelationship(parentID, entity.EntityRef(childID), entity.RelContains))
}

// emitParkedInheritance converts extends/implements names parked in entity
// metadata into edges. Extractors park the clauses during the declaration
// pass because a base named later in the file cannot be resolved until every
// type is known.
func emitParkedInheritance(res *entity.ParseResult) {
	for i := range res.Entities {
		e := &res.Entities[i]
		if ext := e.Metadata["extends"]; ext != "" {
			for _, ref := range typeRefTargets(res, splitIdentifiers(ext)) {
				res.AddRelationship(entity.NewRelationship(e.ID, ref, entity.RelExtends))
			}
			delete(e.Metadata, "extends")
		}
		if impl := e.Metadata["implements"]; impl != "" {
			for _, ref := range typeRefTargets(res, splitIdentifiers(impl)) {
				res.AddRelationship(entity.NewRelationship(e.ID, ref, entity.RelImplements))
			}
			delete(e.Metadata, "implements")
		}
	}
}

// typeRefTargets resolves a list of type names against the file's entities:
// known names become entity references, unknown ones unresolved symbols.
func typeRefTargets(res *entity.ParseResult, names []string) []entity.TargetRef {
	byName := make(map[string]string)
	for i := range res.Entities {
		e := &res.Entities[i]
		if typeLike(e.Type) {
			if _, ok := byName[e.Name]; !ok {
				byName[e.Name] = e.ID
			}
		}
	}
	var refs []entity.TargetRef
	for _, n := range names {
		if id, ok := byName[n]; ok {
			refs = append(refs, entity.EntityRef(id))
		} else {
			refs = append(refs, entity.SymbolRef(n))
		}
	}
	return refs
}

// splitIdentifiers extracts identifier tokens from a fragment such as an
// implements clause or a parameter list.
func splitIdentifiers(fragment string) []string {
	var names []string
	for _, m := range identRe.FindAllString(fragment, -1) {
		names = append(names, m)
	}
	return names
}

// docCommentAbove collects the contiguous comment block ending on the line
// directly above declLine. marker is the line-comment prefix ("//" or "#").
func docCommentAbove(ix *lineIndex, declLine int, marker string) string {
	var lines []string
	for line := declLine - 1; line >= 1; line-- {
		text := strings.TrimSpace(ix.lineText(line))
		if !strings.HasPrefix(text, marker) {
			break
		}
		lines = append([]string{strings.TrimSpace(strings.TrimPrefix(text, marker))}, lines...)
	}
	return strings.Join(lines, "\n")
}
