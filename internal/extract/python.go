package extract

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jward/arbor/internal/entity"
)

// Python extracts entities from Python sources. Blocks are delimited by
// indentation, and public-ness follows the underscore convention.
type Python struct{}

// NewPython returns the Python extractor.
func NewPython() *Python { return &Python{} }

func (l *Python) Name() string { return "python" }

func (l *Python) Extensions() []string { return []string{".py", ".pyi"} }

var (
	pyImportRe     = regexp.MustCompile(`(?m)^import\s+(.+)$`)
	pyFromImportRe = regexp.MustCompile(`(?m)^from\s+([\w.]+)\s+import\s+(.+)$`)
	pyClassRe      = regexp.MustCompile(`(?m)^class\s+([A-Za-z_]\w*)\s*(?:\(([^)]*)\))?\s*:`)
	pyDefRe        = regexp.MustCompile(`(?m)^(async\s+)?def\s+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*(?:->\s*([^:]+))?:`)
	pyMethodRe     = regexp.MustCompile(`(?m)^(\s+)(async\s+)?def\s+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*(?:->\s*([^:]+))?:`)
	pyAssignRe     = regexp.MustCompile(`(?m)^([A-Za-z_]\w*)\s*(?::[^=\n]+)?=[^=]`)
	pyAttrRe       = regexp.MustCompile(`(?m)^(\s+)([A-Za-z_]\w*)\s*(?::[^=\n]+)?=[^=]`)
	pyDecoratorRe  = regexp.MustCompile(`^@([\w.]+)`)
	pyParamTypeRe  = regexp.MustCompile(`:\s*([A-Za-z_]\w*)`)
)

// pyBuiltinTypes are annotation identifiers that never resolve to entities.
var pyBuiltinTypes = map[string]bool{
	"str": true, "int": true, "float": true, "bool": true, "bytes": true,
	"None": true, "dict": true, "list": true, "set": true, "tuple": true,
	"object": true, "Any": true, "Optional": true, "Union": true,
	"List": true, "Dict": true, "Set": true, "Tuple": true, "Callable": true,
	"Iterable": true, "Iterator": true, "Sequence": true, "Mapping": true,
	"self": true, "cls": true,
}

func (l *Python) Extract(filePath string, content []byte) (res *entity.ParseResult) {
	res = entity.NewParseResult(filePath, "python")
	defer func() {
		if rec := recover(); rec != nil {
			res.AddError("extract", recoverMessage(rec), 0)
		}
	}()
	if len(content) == 0 {
		return res
	}
	ix := newLineIndex(content)

	moduleID := l.addModule(res, ix)
	l.scanImports(res, ix)
	classIDs := l.scanClasses(res, ix)
	l.scanFunctions(res, ix)
	for _, classID := range classIDs {
		l.scanClassMembers(res, ix, classID)
	}
	l.scanAssignments(res, ix)
	emitParkedInheritance(res)
	l.emitSignatureEdges(res)
	scanCalls(res, ix)
	scanTypeUses(res, ix)
	linkModule(res, moduleID)
	return res
}

func (l *Python) addModule(res *entity.ParseResult, ix *lineIndex) string {
	name := strings.TrimSuffix(filepath.Base(res.FilePath), filepath.Ext(res.FilePath))
	mod := entity.CodeEntity{
		ID:          entity.MakeID(res.FilePath, entity.KindModule, name, 1),
		Name:        name,
		Type:        entity.KindModule,
		FilePath:    res.FilePath,
		StartLine:   1,
		EndLine:     ix.lineCount(),
		StartColumn: 1,
		Docstring:   pyDocstring(ix, 0),
	}
	res.AddEntity(mod)
	return mod.ID
}

func (l *Python) scanImports(res *entity.ParseResult, ix *lineIndex) {
	add := func(off int, name, source string) {
		line := ix.lineOf(off)
		if name == "" || name == "*" {
			name = filepath.Base(strings.ReplaceAll(source, ".", "/"))
		}
		imp := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindImport, name, line),
			Name:        name,
			Type:        entity.KindImport,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     line,
			StartColumn: ix.colOf(off),
			EndColumn:   len(ix.lineText(line)) + 1,
			Signature:   strings.TrimSpace(ix.lineText(line)),
			Metadata:    map[string]string{"source": source},
		}
		res.AddEntity(imp)
		res.AddRelationship(entity.NewRelationship(imp.ID, entity.ModuleRef(source), entity.RelImports))
	}

	for _, m := range pyImportRe.FindAllSubmatchIndex(ix.data, -1) {
		clause := string(ix.data[m[2]:m[3]])
		for _, seg := range strings.Split(clause, ",") {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				continue
			}
			source, alias := seg, ""
			if i := strings.Index(seg, " as "); i >= 0 {
				source = strings.TrimSpace(seg[:i])
				alias = strings.TrimSpace(seg[i+4:])
			}
			if alias == "" {
				if i := strings.LastIndex(source, "."); i >= 0 {
					alias = source[i+1:]
				} else {
					alias = source
				}
			}
			add(m[2], alias, source)
		}
	}
	for _, m := range pyFromImportRe.FindAllSubmatchIndex(ix.data, -1) {
		source := string(ix.data[m[2]:m[3]])
		clause := strings.Trim(string(ix.data[m[4]:m[5]]), "() \t")
		for _, seg := range strings.Split(clause, ",") {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				continue
			}
			name := seg
			if i := strings.Index(seg, " as "); i >= 0 {
				name = strings.TrimSpace(seg[i+4:])
			}
			add(m[0], name, source)
		}
	}
}

func (l *Python) scanClasses(res *entity.ParseResult, ix *lineIndex) []string {
	var classIDs []string
	for _, m := range pyClassRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[2]:m[3]])
		line := ix.lineOf(m[0])
		end := indentBlockEnd(ix, line)
		e := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindClass, name, line),
			Name:        name,
			Type:        entity.KindClass,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     end,
			StartColumn: ix.colOf(m[0]),
			EndColumn:   len(ix.lineText(end)) + 1,
			Signature:   strings.TrimSuffix(strings.TrimSpace(ix.lineText(line)), ":"),
			Docstring:   pyDocstring(ix, line),
			Metadata:    map[string]string{},
		}
		if m[4] >= 0 {
			bases := pyBaseNames(string(ix.data[m[4]:m[5]]))
			if len(bases) > 0 {
				e.Metadata["extends"] = strings.Join(bases, ", ")
			}
		}
		if pyPublic(name) {
			e.Metadata["exported"] = "true"
		}
		l.attachDecorators(ix, &e)
		res.AddEntity(e)
		classIDs = append(classIDs, e.ID)
	}
	return classIDs
}

func (l *Python) scanFunctions(res *entity.ParseResult, ix *lineIndex) {
	for _, m := range pyDefRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[4]:m[5]])
		line := ix.lineOf(m[0])
		end := indentBlockEnd(ix, line)
		e := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindFunction, name, line),
			Name:        name,
			Type:        entity.KindFunction,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     end,
			StartColumn: ix.colOf(m[0]),
			EndColumn:   len(ix.lineText(end)) + 1,
			Signature:   strings.TrimSuffix(strings.TrimSpace(ix.lineText(line)), ":"),
			Docstring:   pyDocstring(ix, line),
			Metadata:    map[string]string{"params": string(ix.data[m[6]:m[7]])},
		}
		if m[2] >= 0 {
			e.Metadata["async"] = "true"
		}
		if m[8] >= 0 {
			e.Metadata["returns"] = strings.TrimSpace(string(ix.data[m[8]:m[9]]))
		}
		if pyPublic(name) {
			e.Metadata["exported"] = "true"
		}
		l.attachDecorators(ix, &e)
		res.AddEntity(e)
	}
}

// scanClassMembers extracts methods and class attributes of one class.
// Matches inside an earlier method's body are nested definitions and are
// skipped.
func (l *Python) scanClassMembers(res *entity.ParseResult, ix *lineIndex, classID string) {
	class := res.EntityByID(classID)
	if class == nil || class.EndLine <= class.StartLine {
		return
	}
	bodyStart := ix.lineStart(class.StartLine + 1)
	bodyEnd := ix.lineEnd(class.EndLine)
	if bodyStart >= bodyEnd {
		return
	}
	body := ix.data[bodyStart:bodyEnd]

	var methodRanges []lineRange
	for _, m := range pyMethodRe.FindAllSubmatchIndex(body, -1) {
		name := string(body[m[6]:m[7]])
		line := ix.lineOf(bodyStart + m[0])
		if insideRanges(methodRanges, line) {
			continue
		}
		end := indentBlockEnd(ix, line)
		if end > class.EndLine {
			end = class.EndLine
		}
		methodRanges = append(methodRanges, lineRange{start: line, end: end})

		kind := entity.KindMethod
		e := entity.CodeEntity{
			Name:        name,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     end,
			StartColumn: indentWidth(ix.lineText(line)) + 1,
			EndColumn:   len(ix.lineText(end)) + 1,
			Signature:   strings.TrimSuffix(strings.TrimSpace(ix.lineText(line)), ":"),
			Docstring:   pyDocstring(ix, line),
			ParentID:    classID,
			Metadata:    map[string]string{"params": string(body[m[8]:m[9]])},
		}
		if m[4] >= 0 {
			e.Metadata["async"] = "true"
		}
		if m[10] >= 0 {
			e.Metadata["returns"] = strings.TrimSpace(string(body[m[10]:m[11]]))
		}
		if pyPublic(name) {
			e.Metadata["exported"] = "true"
		}
		l.attachDecorators(ix, &e)
		for _, d := range strings.Split(e.Metadata["decorators"], ", ") {
			if d == "property" {
				kind = entity.KindProperty
				break
			}
		}
		e.Type = kind
		e.ID = entity.MakeID(res.FilePath, kind, name, line)
		res.AddEntity(e)
		containsEdge(res, classID, e.ID)
	}

	for _, m := range pyAttrRe.FindAllSubmatchIndex(body, -1) {
		name := string(body[m[4]:m[5]])
		line := ix.lineOf(bodyStart + m[4])
		if insideRanges(methodRanges, line) {
			continue
		}
		e := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindProperty, name, line),
			Name:        name,
			Type:        entity.KindProperty,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     line,
			StartColumn: ix.colOf(bodyStart + m[4]),
			EndColumn:   len(ix.lineText(line)) + 1,
			Signature:   strings.TrimSpace(ix.lineText(line)),
			ParentID:    classID,
		}
		res.AddEntity(e)
		containsEdge(res, classID, e.ID)
	}
}

func (l *Python) scanAssignments(res *entity.ParseResult, ix *lineIndex) {
	claimed := map[int]bool{}
	for i := range res.Entities {
		claimed[res.Entities[i].StartLine] = true
	}
	for _, m := range pyAssignRe.FindAllSubmatchIndex(ix.data, -1) {
		line := ix.lineOf(m[0])
		if claimed[line] {
			continue
		}
		name := string(ix.data[m[2]:m[3]])
		e := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindVariable, name, line),
			Name:        name,
			Type:        entity.KindVariable,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     line,
			StartColumn: 1,
			EndColumn:   len(ix.lineText(line)) + 1,
			Signature:   strings.TrimSpace(ix.lineText(line)),
		}
		if pyPublic(name) {
			e.Metadata = map[string]string{"exported": "true"}
		}
		res.AddEntity(e)
	}
}

func (l *Python) emitSignatureEdges(res *entity.ParseResult) {
	for i := range res.Entities {
		e := &res.Entities[i]
		if !callable(e.Type) {
			continue
		}
		if params := e.Metadata["params"]; params != "" {
			var names []string
			for _, m := range pyParamTypeRe.FindAllStringSubmatch(params, -1) {
				if !pyBuiltinTypes[m[1]] {
					names = append(names, m[1])
				}
			}
			for _, ref := range typeRefTargets(res, names) {
				res.AddRelationship(entity.NewRelationship(e.ID, ref, entity.RelParameter))
			}
		}
		if ret := e.Metadata["returns"]; ret != "" {
			for _, ident := range splitIdentifiers(ret) {
				if pyBuiltinTypes[ident] {
					continue
				}
				for _, ref := range typeRefTargets(res, []string{ident}) {
					res.AddRelationship(entity.NewRelationship(e.ID, ref, entity.RelReturns))
				}
				break
			}
			delete(e.Metadata, "returns")
		}
		delete(e.Metadata, "params")
	}
}

// attachDecorators records the contiguous decorator lines above an entity in
// its metadata.
func (l *Python) attachDecorators(ix *lineIndex, e *entity.CodeEntity) {
	var names []string
	for line := e.StartLine - 1; line >= 1; line-- {
		text := strings.TrimSpace(ix.lineText(line))
		m := pyDecoratorRe.FindStringSubmatch(text)
		if m == nil {
			break
		}
		names = append([]string{m[1]}, names...)
	}
	if len(names) > 0 {
		if e.Metadata == nil {
			e.Metadata = map[string]string{}
		}
		e.Metadata["decorators"] = strings.Join(names, ", ")
	}
}

// pyBaseNames filters a class base list down to real base names.
func pyBaseNames(clause string) []string {
	var bases []string
	for _, seg := range strings.Split(clause, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "object" || strings.HasPrefix(seg, "metaclass") {
			continue
		}
		idents := splitIdentifiers(seg)
		if len(idents) > 0 {
			// Qualified bases like abc.ABC resolve by their final segment.
			bases = append(bases, idents[len(idents)-1])
		}
	}
	return bases
}

// pyDocstring returns the docstring opening directly below headerLine, or
// the module docstring when headerLine is 0. Module docstrings may sit below
// a shebang or coding comment.
func pyDocstring(ix *lineIndex, headerLine int) string {
	line := headerLine + 1
	for line <= ix.lineCount() {
		text := strings.TrimSpace(ix.lineText(line))
		if text == "" || (headerLine == 0 && strings.HasPrefix(text, "#")) {
			line++
			continue
		}
		break
	}
	if line > ix.lineCount() {
		return ""
	}
	text := strings.TrimSpace(ix.lineText(line))
	quote := ""
	switch {
	case strings.HasPrefix(text, `"""`):
		quote = `"""`
	case strings.HasPrefix(text, "'''"):
		quote = "'''"
	default:
		return ""
	}
	rest := text[len(quote):]
	if i := strings.Index(rest, quote); i >= 0 {
		return strings.TrimSpace(rest[:i])
	}
	var parts []string
	if rest != "" {
		parts = append(parts, rest)
	}
	for next := line + 1; next <= ix.lineCount(); next++ {
		t := ix.lineText(next)
		if i := strings.Index(t, quote); i >= 0 {
			parts = append(parts, strings.TrimSpace(t[:i]))
			break
		}
		parts = append(parts, strings.TrimSpace(t))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// pyPublic reports whether a name is public by the underscore convention.
func pyPublic(name string) bool {
	return !strings.HasPrefix(name, "_")
}
