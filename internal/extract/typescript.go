package extract

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jward/arbor/internal/entity"
)

// TypeScript extracts entities from TypeScript and JavaScript sources. One
// implementation covers both: the TS-only constructs simply never match in
// plain JS. Top-level declarations must start at column one; class members
// are found by a dedicated pass over each class body.
type TypeScript struct{}

// NewTypeScript returns the TypeScript/JavaScript extractor.
func NewTypeScript() *TypeScript { return &TypeScript{} }

func (l *TypeScript) Name() string { return "typescript" }

func (l *TypeScript) Extensions() []string {
	return []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}
}

var (
	tsImportRe     = regexp.MustCompile(`(?m)^import\s+(?:type\s+)?([^'";]+?)\s+from\s+['"]([^'"]+)['"]`)
	tsSideImportRe = regexp.MustCompile(`(?m)^import\s+['"]([^'"]+)['"]`)
	tsRequireRe    = regexp.MustCompile(`(?m)^(?:const|let|var)\s+(\{[^}]*\}|[A-Za-z_$][\w$]*)\s*=\s*require\(\s*['"]([^'"]+)['"]\s*\)`)

	tsClassRe     = regexp.MustCompile(`(?m)^(export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)(?:\s+extends\s+([A-Za-z_$][\w$.]*))?(?:\s+implements\s+([^{]+))?`)
	tsInterfaceRe = regexp.MustCompile(`(?m)^(export\s+)?interface\s+([A-Za-z_$][\w$]*)(?:\s+extends\s+([^{]+))?`)
	tsTypeRe      = regexp.MustCompile(`(?m)^(export\s+)?type\s+([A-Za-z_$][\w$]*)(?:<[^=>]*>)?\s*=`)
	tsEnumRe      = regexp.MustCompile(`(?m)^(export\s+)?(?:const\s+)?enum\s+([A-Za-z_$][\w$]*)`)
	tsNamespaceRe = regexp.MustCompile(`(?m)^(export\s+)?namespace\s+([A-Za-z_$][\w$.]*)`)
	tsFunctionRe  = regexp.MustCompile(`(?m)^(export\s+)?(?:default\s+)?(async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(([^)]*)\)\s*(?::\s*([^{]+?))?\s*\{`)
	tsArrowRe     = regexp.MustCompile(`(?m)^(export\s+)?(?:const|let)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(async\s*)?(?:\(([^)]*)\)|[A-Za-z_$][\w$]*)\s*(?::\s*[^=]+?)?\s*=>`)
	tsVariableRe  = regexp.MustCompile(`(?m)^(export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)`)

	tsMethodRe      = regexp.MustCompile(`(?m)^\s*(?:(?:public|private|protected|static|readonly|override|abstract|async|get|set)\s+)*([A-Za-z_$#][\w$]*)\s*(?:<[^>(]*>)?\s*\(([^)]*)\)\s*(?::\s*([^{;]+?))?\s*\{`)
	tsPropertyRe    = regexp.MustCompile(`(?m)^\s*(?:(?:public|private|protected|static|readonly|override)\s+)*([A-Za-z_$#][\w$]*)\s*[?!]?\s*[:=][^=]`)
	tsIfaceMethodRe = regexp.MustCompile(`(?m)^\s+([A-Za-z_$][\w$]*)\s*(?:<[^>(]*>)?\s*\(([^)]*)\)\s*(?::\s*([^;{]+?))?\s*;`)
	tsIfacePropRe   = regexp.MustCompile(`(?m)^\s+(?:readonly\s+)?([A-Za-z_$][\w$]*)\s*\??\s*:\s*[^;]+;`)

	tsExportListRe    = regexp.MustCompile(`(?m)^export\s*\{([^}]*)\}(?:\s*from\s*['"]([^'"]+)['"])?`)
	tsExportDefaultRe = regexp.MustCompile(`(?m)^export\s+default\s+([A-Za-z_$][\w$]*)\s*;?\s*$`)

	tsParamTypeRe  = regexp.MustCompile(`:\s*([A-Za-z_$][\w$]*)`)
	tsReturnTypeRe = regexp.MustCompile(`^\s*([A-Za-z_$][\w$]*)`)
)

// tsBuiltinTypes are annotation identifiers that never resolve to entities.
var tsBuiltinTypes = map[string]bool{
	"string": true, "number": true, "boolean": true, "void": true, "any": true,
	"unknown": true, "never": true, "null": true, "undefined": true,
	"object": true, "symbol": true, "bigint": true, "this": true,
	"Promise": true, "Array": true, "Map": true, "Set": true, "Record": true,
	"Partial": true, "Readonly": true, "Pick": true, "Omit": true,
}

func (l *TypeScript) Extract(filePath string, content []byte) (res *entity.ParseResult) {
	lang := "typescript"
	switch strings.ToLower(filepathExt(filePath)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		lang = "javascript"
	}
	res = entity.NewParseResult(filePath, lang)
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
	classIDs, ifaceIDs := l.scanTypes(res, ix)
	l.scanFunctions(res, ix)
	l.scanVariables(res, ix)
	for _, classID := range classIDs {
		l.scanClassMembers(res, ix, classID)
	}
	for _, ifaceID := range ifaceIDs {
		l.scanInterfaceMembers(res, ix, ifaceID)
	}
	emitParkedInheritance(res)
	l.markExports(res, ix, moduleID)
	l.emitSignatureEdges(res)
	scanCalls(res, ix)
	scanTypeUses(res, ix)
	linkModule(res, moduleID)
	return res
}

// addModule inserts the per-file module entity spanning the whole file.
func (l *TypeScript) addModule(res *entity.ParseResult, ix *lineIndex) string {
	name := strings.TrimSuffix(filepath.Base(res.FilePath), filepathExt(res.FilePath))
	mod := entity.CodeEntity{
		ID:          entity.MakeID(res.FilePath, entity.KindModule, name, 1),
		Name:        name,
		Type:        entity.KindModule,
		FilePath:    res.FilePath,
		StartLine:   1,
		EndLine:     ix.lineCount(),
		StartColumn: 1,
	}
	res.AddEntity(mod)
	return mod.ID
}

func (l *TypeScript) scanImports(res *entity.ParseResult, ix *lineIndex) {
	seen := map[int]bool{}
	add := func(off int, local, source string) {
		line := ix.lineOf(off)
		if seen[line] {
			return
		}
		seen[line] = true
		name := local
		if name == "" {
			name = filepath.Base(source)
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

	for _, m := range tsImportRe.FindAllSubmatchIndex(ix.data, -1) {
		clause := strings.TrimSpace(string(ix.data[m[2]:m[3]]))
		add(m[0], importLocalName(clause), string(ix.data[m[4]:m[5]]))
	}
	for _, m := range tsRequireRe.FindAllSubmatchIndex(ix.data, -1) {
		clause := strings.TrimSpace(string(ix.data[m[2]:m[3]]))
		add(m[0], importLocalName(clause), string(ix.data[m[4]:m[5]]))
	}
	for _, m := range tsSideImportRe.FindAllSubmatchIndex(ix.data, -1) {
		add(m[0], "", string(ix.data[m[2]:m[3]]))
	}
}

// importLocalName reduces an import clause to its first bound name:
// "Foo", "{ a, b }" -> "a", "* as ns" -> "ns".
func importLocalName(clause string) string {
	clause = strings.TrimSpace(clause)
	if strings.HasPrefix(clause, "*") {
		if i := strings.Index(clause, " as "); i >= 0 {
			return strings.TrimSpace(clause[i+4:])
		}
		return ""
	}
	clause = strings.Trim(clause, "{} \t")
	if i := strings.IndexAny(clause, ",:"); i >= 0 {
		clause = clause[:i]
	}
	if i := strings.Index(clause, " as "); i >= 0 {
		clause = clause[i+4:]
	}
	return strings.TrimSpace(clause)
}

// scanTypes extracts classes, interfaces, type aliases, enums, and
// namespaces. Returns the class and interface entity ids for the member
// passes. Inheritance clauses are parked in metadata until every type in the
// file is known.
func (l *TypeScript) scanTypes(res *entity.ParseResult, ix *lineIndex) (classIDs, ifaceIDs []string) {
	for _, m := range tsClassRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[4]:m[5]])
		e := l.blockEntity(res, ix, entity.KindClass, name, m[0])
		if m[2] >= 0 {
			e.Metadata["exported"] = "true"
		}
		if m[6] >= 0 {
			e.Metadata["extends"] = string(ix.data[m[6]:m[7]])
		}
		if m[8] >= 0 {
			e.Metadata["implements"] = strings.TrimSpace(string(ix.data[m[8]:m[9]]))
		}
		res.AddEntity(*e)
		classIDs = append(classIDs, e.ID)
	}
	for _, m := range tsInterfaceRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[4]:m[5]])
		e := l.blockEntity(res, ix, entity.KindInterface, name, m[0])
		if m[2] >= 0 {
			e.Metadata["exported"] = "true"
		}
		if m[6] >= 0 {
			e.Metadata["extends"] = strings.TrimSpace(string(ix.data[m[6]:m[7]]))
		}
		res.AddEntity(*e)
		ifaceIDs = append(ifaceIDs, e.ID)
	}
	for _, m := range tsTypeRe.FindAllSubmatchIndex(ix.data, -1) {
		e := l.lineEntity(res, ix, entity.KindType, string(ix.data[m[4]:m[5]]), m[0])
		if m[2] >= 0 {
			e.Metadata["exported"] = "true"
		}
		res.AddEntity(*e)
	}
	for _, m := range tsEnumRe.FindAllSubmatchIndex(ix.data, -1) {
		e := l.blockEntity(res, ix, entity.KindEnum, string(ix.data[m[4]:m[5]]), m[0])
		if m[2] >= 0 {
			e.Metadata["exported"] = "true"
		}
		res.AddEntity(*e)
	}
	for _, m := range tsNamespaceRe.FindAllSubmatchIndex(ix.data, -1) {
		e := l.blockEntity(res, ix, entity.KindNamespace, string(ix.data[m[4]:m[5]]), m[0])
		if m[2] >= 0 {
			e.Metadata["exported"] = "true"
		}
		res.AddEntity(*e)
	}
	return classIDs, ifaceIDs
}

func (l *TypeScript) scanFunctions(res *entity.ParseResult, ix *lineIndex) {
	for _, m := range tsFunctionRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[6]:m[7]])
		e := l.blockEntity(res, ix, entity.KindFunction, name, m[0])
		if m[2] >= 0 {
			e.Metadata["exported"] = "true"
		}
		if m[4] >= 0 {
			e.Metadata["async"] = "true"
		}
		e.Metadata["params"] = string(ix.data[m[8]:m[9]])
		if m[10] >= 0 {
			e.Metadata["returns"] = strings.TrimSpace(string(ix.data[m[10]:m[11]]))
		}
		res.AddEntity(*e)
	}
	for _, m := range tsArrowRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[4]:m[5]])
		// Expression-bodied arrows have no block to measure.
		line := ix.lineOf(m[0])
		var e *entity.CodeEntity
		if bytes.Contains(ix.data[m[1]:ix.lineEnd(line)], []byte("{")) {
			e = l.blockEntity(res, ix, entity.KindFunction, name, m[0])
		} else {
			e = l.lineEntity(res, ix, entity.KindFunction, name, m[0])
		}
		if m[2] >= 0 {
			e.Metadata["exported"] = "true"
		}
		if m[6] >= 0 {
			e.Metadata["async"] = "true"
		}
		if m[8] >= 0 {
			e.Metadata["params"] = string(ix.data[m[8]:m[9]])
		}
		res.AddEntity(*e)
	}
}

func (l *TypeScript) scanVariables(res *entity.ParseResult, ix *lineIndex) {
	claimed := map[int]bool{}
	for i := range res.Entities {
		claimed[res.Entities[i].StartLine] = true
	}
	for _, m := range tsVariableRe.FindAllSubmatchIndex(ix.data, -1) {
		line := ix.lineOf(m[0])
		if claimed[line] {
			continue
		}
		e := l.lineEntity(res, ix, entity.KindVariable, string(ix.data[m[4]:m[5]]), m[0])
		if m[2] >= 0 {
			e.Metadata["exported"] = "true"
		}
		res.AddEntity(*e)
	}
}

// scanClassMembers extracts methods and properties of one class. Matches
// inside an earlier member's body are skipped, which drops both nested
// callbacks and locals.
func (l *TypeScript) scanClassMembers(res *entity.ParseResult, ix *lineIndex, classID string) {
	class := res.EntityByID(classID)
	if class == nil || class.EndLine <= class.StartLine {
		return
	}
	bodyStart := ix.lineStart(class.StartLine + 1)
	bodyEnd := ix.lineEnd(class.EndLine - 1)
	if bodyStart >= bodyEnd {
		return
	}
	body := ix.data[bodyStart:bodyEnd]

	var methodRanges []lineRange
	methodNames := map[string]bool{}

	for _, m := range tsMethodRe.FindAllSubmatchIndex(body, -1) {
		name := string(body[m[2]:m[3]])
		if callKeywords[name] {
			continue
		}
		line := ix.lineOf(bodyStart + m[2])
		if insideRanges(methodRanges, line) {
			continue
		}
		end := braceBlockEnd(ix, bodyStart+m[0])
		if end > class.EndLine {
			end = class.EndLine
		}
		methodRanges = append(methodRanges, lineRange{start: line, end: end})
		methodNames[name] = true

		e := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindMethod, name, line),
			Name:        name,
			Type:        entity.KindMethod,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     end,
			StartColumn: ix.colOf(bodyStart + m[2]),
			EndColumn:   len(ix.lineText(end)) + 1,
			Signature:   signatureAt(ix, line),
			Docstring:   docCommentAbove(ix, line, "//"),
			ParentID:    classID,
			Metadata:    map[string]string{"params": string(body[m[4]:m[5]])},
		}
		if name == "constructor" {
			e.Metadata["constructor"] = "true"
		}
		if m[6] >= 0 {
			e.Metadata["returns"] = strings.TrimSpace(string(body[m[6]:m[7]]))
		}
		res.AddEntity(e)
		containsEdge(res, classID, e.ID)
	}

	for _, m := range tsPropertyRe.FindAllSubmatchIndex(body, -1) {
		name := string(body[m[2]:m[3]])
		line := ix.lineOf(bodyStart + m[2])
		if callKeywords[name] || methodNames[name] || insideRanges(methodRanges, line) {
			continue
		}
		e := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindProperty, name, line),
			Name:        name,
			Type:        entity.KindProperty,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     line,
			StartColumn: ix.colOf(bodyStart + m[2]),
			EndColumn:   len(ix.lineText(line)) + 1,
			Signature:   signatureAt(ix, line),
			ParentID:    classID,
		}
		res.AddEntity(e)
		containsEdge(res, classID, e.ID)
	}
}

// scanInterfaceMembers extracts method and property signatures from an
// interface body.
func (l *TypeScript) scanInterfaceMembers(res *entity.ParseResult, ix *lineIndex, ifaceID string) {
	iface := res.EntityByID(ifaceID)
	if iface == nil || iface.EndLine <= iface.StartLine {
		return
	}
	bodyStart := ix.lineStart(iface.StartLine + 1)
	bodyEnd := ix.lineEnd(iface.EndLine - 1)
	if bodyStart >= bodyEnd {
		return
	}
	body := ix.data[bodyStart:bodyEnd]

	methodNames := map[string]bool{}
	for _, m := range tsIfaceMethodRe.FindAllSubmatchIndex(body, -1) {
		name := string(body[m[2]:m[3]])
		if callKeywords[name] {
			continue
		}
		methodNames[name] = true
		line := ix.lineOf(bodyStart + m[2])
		e := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindMethod, name, line),
			Name:        name,
			Type:        entity.KindMethod,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     line,
			StartColumn: ix.colOf(bodyStart + m[2]),
			EndColumn:   len(ix.lineText(line)) + 1,
			Signature:   strings.TrimSuffix(strings.TrimSpace(ix.lineText(line)), ";"),
			Docstring:   docCommentAbove(ix, line, "//"),
			ParentID:    ifaceID,
			Metadata:    map[string]string{"params": string(body[m[4]:m[5]])},
		}
		if m[6] >= 0 {
			e.Metadata["returns"] = strings.TrimSpace(string(body[m[6]:m[7]]))
		}
		res.AddEntity(e)
		containsEdge(res, ifaceID, e.ID)
	}
	for _, m := range tsIfacePropRe.FindAllSubmatchIndex(body, -1) {
		name := string(body[m[2]:m[3]])
		if methodNames[name] {
			continue
		}
		line := ix.lineOf(bodyStart + m[2])
		e := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindProperty, name, line),
			Name:        name,
			Type:        entity.KindProperty,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     line,
			StartColumn: ix.colOf(bodyStart + m[2]),
			EndColumn:   len(ix.lineText(line)) + 1,
			Signature:   strings.TrimSuffix(strings.TrimSpace(ix.lineText(line)), ";"),
			ParentID:    ifaceID,
		}
		res.AddEntity(e)
		containsEdge(res, ifaceID, e.ID)
	}
}

// markExports handles export statements: named export lists mark local
// entities, re-export lists produce export entities, and export default
// marks its subject.
func (l *TypeScript) markExports(res *entity.ParseResult, ix *lineIndex, moduleID string) {
	markLocal := func(name string) {
		for i := range res.Entities {
			e := &res.Entities[i]
			if e.Name == name && e.ID != moduleID {
				if e.Metadata == nil {
					e.Metadata = map[string]string{}
				}
				e.Metadata["exported"] = "true"
				return
			}
		}
	}

	for _, m := range tsExportListRe.FindAllSubmatchIndex(ix.data, -1) {
		names := splitIdentifiers(string(ix.data[m[2]:m[3]]))
		if m[4] >= 0 {
			// Re-export: the names come from another module and get their
			// own export entities.
			source := string(ix.data[m[4]:m[5]])
			line := ix.lineOf(m[0])
			for _, name := range names {
				exp := entity.CodeEntity{
					ID:          entity.MakeID(res.FilePath, entity.KindExport, name, line),
					Name:        name,
					Type:        entity.KindExport,
					FilePath:    res.FilePath,
					StartLine:   line,
					EndLine:     line,
					StartColumn: ix.colOf(m[0]),
					Signature:   strings.TrimSpace(ix.lineText(line)),
					Metadata:    map[string]string{"source": source},
				}
				res.AddEntity(exp)
				res.AddRelationship(entity.NewRelationship(exp.ID, entity.ModuleRef(source), entity.RelImports))
				res.AddRelationship(entity.NewRelationship(moduleID, entity.EntityRef(exp.ID), entity.RelExports))
			}
			continue
		}
		for _, name := range names {
			markLocal(name)
		}
	}
	for _, m := range tsExportDefaultRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[2]:m[3]])
		markLocal(name)
	}
}

// emitSignatureEdges turns parked parameter and return annotations into
// parameter and returns edges.
func (l *TypeScript) emitSignatureEdges(res *entity.ParseResult) {
	for i := range res.Entities {
		e := &res.Entities[i]
		if !callable(e.Type) {
			continue
		}
		if params := e.Metadata["params"]; params != "" {
			var names []string
			for _, m := range tsParamTypeRe.FindAllStringSubmatch(params, -1) {
				if !tsBuiltinTypes[m[1]] {
					names = append(names, m[1])
				}
			}
			for _, ref := range typeRefTargets(res, names) {
				res.AddRelationship(entity.NewRelationship(e.ID, ref, entity.RelParameter))
			}
		}
		if ret := e.Metadata["returns"]; ret != "" {
			ret = strings.TrimSpace(strings.TrimPrefix(ret, "Promise<"))
			if m := tsReturnTypeRe.FindStringSubmatch(ret); m != nil && !tsBuiltinTypes[m[1]] {
				for _, ref := range typeRefTargets(res, []string{m[1]}) {
					res.AddRelationship(entity.NewRelationship(e.ID, ref, entity.RelReturns))
				}
			}
			delete(e.Metadata, "returns")
		}
		delete(e.Metadata, "params")
	}
}

// blockEntity builds an entity whose extent runs to the end of its brace
// block.
func (l *TypeScript) blockEntity(res *entity.ParseResult, ix *lineIndex, kind entity.Kind, name string, off int) *entity.CodeEntity {
	line := ix.lineOf(off)
	end := braceBlockEnd(ix, off)
	return &entity.CodeEntity{
		ID:          entity.MakeID(res.FilePath, kind, name, line),
		Name:        name,
		Type:        kind,
		FilePath:    res.FilePath,
		StartLine:   line,
		EndLine:     end,
		StartColumn: ix.colOf(off),
		EndColumn:   len(ix.lineText(end)) + 1,
		Signature:   signatureAt(ix, line),
		Docstring:   docCommentAbove(ix, line, "//"),
		Metadata:    map[string]string{},
	}
}

// lineEntity builds a single-line entity.
func (l *TypeScript) lineEntity(res *entity.ParseResult, ix *lineIndex, kind entity.Kind, name string, off int) *entity.CodeEntity {
	line := ix.lineOf(off)
	return &entity.CodeEntity{
		ID:          entity.MakeID(res.FilePath, kind, name, line),
		Name:        name,
		Type:        kind,
		FilePath:    res.FilePath,
		StartLine:   line,
		EndLine:     line,
		StartColumn: ix.colOf(off),
		EndColumn:   len(ix.lineText(line)) + 1,
		Signature:   signatureAt(ix, line),
		Metadata:    map[string]string{},
	}
}

// lineRange is an inclusive span of source lines.
type lineRange struct{ start, end int }

// insideRanges reports whether line falls inside any recorded member range,
// excluding the header line itself.
func insideRanges(ranges []lineRange, line int) bool {
	for _, r := range ranges {
		if line > r.start && line <= r.end {
			return true
		}
	}
	return false
}

// signatureAt returns the declaration line trimmed of its body opener.
func signatureAt(ix *lineIndex, line int) string {
	text := strings.TrimSpace(ix.lineText(line))
	if i := strings.Index(text, "{"); i > 0 {
		text = strings.TrimSpace(text[:i])
	}
	return text
}

// filepathExt is filepath.Ext; named so the dispatch code reads clearly
// beside LanguageFor.
func filepathExt(path string) string {
	return filepath.Ext(path)
}

func recoverMessage(rec any) string {
	if err, ok := rec.(error); ok {
		return "recovered: " + err.Error()
	}
	return "recovered from panic"
}
