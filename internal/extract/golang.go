package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/jward/arbor/internal/entity"
)

// Golang extracts entities from Go sources. Exported-ness follows the
// language rule: an uppercase first letter marks the entity exported.
type Golang struct{}

// NewGo returns the Go extractor.
func NewGo() *Golang { return &Golang{} }

func (l *Golang) Name() string { return "go" }

func (l *Golang) Extensions() []string { return []string{".go"} }

var (
	goPackageRe     = regexp.MustCompile(`(?m)^package\s+([A-Za-z_]\w*)`)
	goImportRe      = regexp.MustCompile(`(?m)^import\s+(?:([A-Za-z_.]\w*)\s+)?"([^"]+)"`)
	goImportBlockRe = regexp.MustCompile(`(?ms)^import\s*\((.*?)^\)`)
	goImportLineRe  = regexp.MustCompile(`(?m)^\s+(?:([A-Za-z_.]\w*)\s+)?"([^"]+)"`)

	goStructRe    = regexp.MustCompile(`(?m)^type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s+struct\s*\{`)
	goInterfaceRe = regexp.MustCompile(`(?m)^type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s+interface\s*\{`)
	goTypeRe      = regexp.MustCompile(`(?m)^type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s*=?\s+[^\s{]`)
	goFuncRe      = regexp.MustCompile(`(?m)^func\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s*\(([^)]*)\)\s*([^{]*)\{`)
	goMethodRe    = regexp.MustCompile(`(?m)^func\s+\(\s*([A-Za-z_]\w*)?\s*\*?([A-Za-z_]\w*)(?:\[[^\]]*\])?\s*\)\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s*\(([^)]*)\)\s*([^{]*)\{`)
	goVarRe       = regexp.MustCompile(`(?m)^(?:var|const)\s+([A-Za-z_]\w*)`)
	goVarBlockRe  = regexp.MustCompile(`(?ms)^(?:var|const)\s*\((.*?)^\)`)
	goVarLineRe   = regexp.MustCompile(`(?m)^\s+([A-Za-z_]\w*)(?:\s*,\s*[A-Za-z_]\w*)*\s*(?:=|\s|$)`)

	goFieldRe       = regexp.MustCompile(`(?m)^\s+([A-Za-z_]\w*)(?:\s*,\s*([A-Za-z_]\w*))*\s+[\[\]*A-Za-z_]`)
	goIfaceMethodRe = regexp.MustCompile(`(?m)^\s+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*(.*)$`)
)

// goBuiltinTypes are identifiers that never resolve to entities.
var goBuiltinTypes = map[string]bool{
	"bool": true, "byte": true, "complex64": true, "complex128": true,
	"error": true, "float32": true, "float64": true, "int": true,
	"int8": true, "int16": true, "int32": true, "int64": true, "rune": true,
	"string": true, "uint": true, "uint8": true, "uint16": true,
	"uint32": true, "uint64": true, "uintptr": true, "any": true,
	"comparable": true, "struct": true, "interface": true, "map": true,
	"chan": true, "func": true,
}

func (l *Golang) Extract(filePath string, content []byte) (res *entity.ParseResult) {
	res = entity.NewParseResult(filePath, "go")
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
	l.scanTypes(res, ix)
	l.scanFuncs(res, ix)
	l.scanVars(res, ix)
	l.emitSignatureEdges(res)
	scanCalls(res, ix)
	scanTypeUses(res, ix)
	linkModule(res, moduleID)
	return res
}

// addModule inserts the per-file module entity, named after the package
// clause when one exists.
func (l *Golang) addModule(res *entity.ParseResult, ix *lineIndex) string {
	name := strings.TrimSuffix(filepath.Base(res.FilePath), ".go")
	meta := map[string]string{}
	if m := goPackageRe.FindSubmatch(ix.data); m != nil {
		meta["package"] = string(m[1])
	}
	mod := entity.CodeEntity{
		ID:          entity.MakeID(res.FilePath, entity.KindModule, name, 1),
		Name:        name,
		Type:        entity.KindModule,
		FilePath:    res.FilePath,
		StartLine:   1,
		EndLine:     ix.lineCount(),
		StartColumn: 1,
		Metadata:    meta,
	}
	res.AddEntity(mod)
	return mod.ID
}

func (l *Golang) scanImports(res *entity.ParseResult, ix *lineIndex) {
	add := func(off int, alias, path string) {
		line := ix.lineOf(off)
		name := alias
		if name == "" || name == "_" || name == "." {
			name = filepath.Base(path)
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
			Metadata:    map[string]string{"source": path},
		}
		res.AddEntity(imp)
		res.AddRelationship(entity.NewRelationship(imp.ID, entity.ModuleRef(path), entity.RelImports))
	}

	for _, m := range goImportRe.FindAllSubmatchIndex(ix.data, -1) {
		alias := ""
		if m[2] >= 0 {
			alias = string(ix.data[m[2]:m[3]])
		}
		add(m[0], alias, string(ix.data[m[4]:m[5]]))
	}
	for _, blk := range goImportBlockRe.FindAllSubmatchIndex(ix.data, -1) {
		body := ix.data[blk[2]:blk[3]]
		for _, m := range goImportLineRe.FindAllSubmatchIndex(body, -1) {
			alias := ""
			if m[2] >= 0 {
				alias = string(body[m[2]:m[3]])
			}
			add(blk[2]+m[0], alias, string(body[m[4]:m[5]]))
		}
	}
}

// scanTypes extracts struct, interface, and other type declarations along
// with struct fields and interface method sets. Structs map to the class
// kind so one vocabulary covers every language.
func (l *Golang) scanTypes(res *entity.ParseResult, ix *lineIndex) {
	typeLines := map[int]bool{}

	for _, m := range goStructRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[2]:m[3]])
		e := l.declEntity(res, ix, entity.KindClass, name, m[0], braceBlockEnd(ix, m[0]))
		res.AddEntity(*e)
		typeLines[e.StartLine] = true
		l.scanStructFields(res, ix, e)
	}
	for _, m := range goInterfaceRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[2]:m[3]])
		e := l.declEntity(res, ix, entity.KindInterface, name, m[0], braceBlockEnd(ix, m[0]))
		res.AddEntity(*e)
		typeLines[e.StartLine] = true
		l.scanInterfaceMethods(res, ix, e)
	}
	for _, m := range goTypeRe.FindAllSubmatchIndex(ix.data, -1) {
		line := ix.lineOf(m[0])
		if typeLines[line] {
			continue
		}
		name := string(ix.data[m[2]:m[3]])
		e := l.declEntity(res, ix, entity.KindType, name, m[0], line)
		res.AddEntity(*e)
	}
}

func (l *Golang) scanStructFields(res *entity.ParseResult, ix *lineIndex, parent *entity.CodeEntity) {
	if parent.EndLine <= parent.StartLine {
		return
	}
	body := ix.data[ix.lineStart(parent.StartLine+1):ix.lineEnd(parent.EndLine-1)]
	bodyOff := ix.lineStart(parent.StartLine + 1)
	for _, m := range goFieldRe.FindAllSubmatchIndex(body, -1) {
		name := string(body[m[2]:m[3]])
		line := ix.lineOf(bodyOff + m[2])
		f := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindProperty, name, line),
			Name:        name,
			Type:        entity.KindProperty,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     line,
			StartColumn: ix.colOf(bodyOff + m[2]),
			EndColumn:   len(ix.lineText(line)) + 1,
			Signature:   strings.TrimSpace(ix.lineText(line)),
			ParentID:    parent.ID,
		}
		if goExported(name) {
			f.Metadata = map[string]string{"exported": "true"}
		}
		res.AddEntity(f)
		containsEdge(res, parent.ID, f.ID)
	}
}

func (l *Golang) scanInterfaceMethods(res *entity.ParseResult, ix *lineIndex, parent *entity.CodeEntity) {
	if parent.EndLine <= parent.StartLine {
		return
	}
	body := ix.data[ix.lineStart(parent.StartLine+1):ix.lineEnd(parent.EndLine-1)]
	bodyOff := ix.lineStart(parent.StartLine + 1)
	for _, m := range goIfaceMethodRe.FindAllSubmatchIndex(body, -1) {
		name := string(body[m[2]:m[3]])
		line := ix.lineOf(bodyOff + m[2])
		meth := entity.CodeEntity{
			ID:          entity.MakeID(res.FilePath, entity.KindMethod, name, line),
			Name:        name,
			Type:        entity.KindMethod,
			FilePath:    res.FilePath,
			StartLine:   line,
			EndLine:     line,
			StartColumn: ix.colOf(bodyOff + m[2]),
			EndColumn:   len(ix.lineText(line)) + 1,
			Signature:   strings.TrimSpace(ix.lineText(line)),
			Docstring:   docCommentAbove(ix, line, "//"),
			ParentID:    parent.ID,
			Metadata: map[string]string{
				"params":  string(body[m[4]:m[5]]),
				"returns": strings.TrimSpace(string(body[m[6]:m[7]])),
			},
		}
		if goExported(name) {
			meth.Metadata["exported"] = "true"
		}
		res.AddEntity(meth)
		containsEdge(res, parent.ID, meth.ID)
	}
}

func (l *Golang) scanFuncs(res *entity.ParseResult, ix *lineIndex) {
	for _, m := range goMethodRe.FindAllSubmatchIndex(ix.data, -1) {
		recvType := string(ix.data[m[4]:m[5]])
		name := string(ix.data[m[6]:m[7]])
		e := l.declEntity(res, ix, entity.KindMethod, name, m[0], braceBlockEnd(ix, m[0]))
		e.Metadata["receiver"] = recvType
		e.Metadata["params"] = string(ix.data[m[8]:m[9]])
		e.Metadata["returns"] = strings.TrimSpace(string(ix.data[m[10]:m[11]]))
		if parent := entityNamed(res, recvType); parent != nil {
			e.ParentID = parent.ID
		}
		res.AddEntity(*e)
		if e.ParentID != "" {
			containsEdge(res, e.ParentID, e.ID)
		}
	}
	for _, m := range goFuncRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[2]:m[3]])
		e := l.declEntity(res, ix, entity.KindFunction, name, m[0], braceBlockEnd(ix, m[0]))
		e.Metadata["params"] = string(ix.data[m[4]:m[5]])
		e.Metadata["returns"] = strings.TrimSpace(string(ix.data[m[6]:m[7]]))
		res.AddEntity(*e)
	}
}

func (l *Golang) scanVars(res *entity.ParseResult, ix *lineIndex) {
	for _, m := range goVarRe.FindAllSubmatchIndex(ix.data, -1) {
		name := string(ix.data[m[2]:m[3]])
		e := l.declEntity(res, ix, entity.KindVariable, name, m[0], ix.lineOf(m[0]))
		res.AddEntity(*e)
	}
	for _, blk := range goVarBlockRe.FindAllSubmatchIndex(ix.data, -1) {
		body := ix.data[blk[2]:blk[3]]
		for _, m := range goVarLineRe.FindAllSubmatchIndex(body, -1) {
			name := string(body[m[2]:m[3]])
			if name == "iota" {
				continue
			}
			off := blk[2] + m[2]
			e := l.declEntity(res, ix, entity.KindVariable, name, off, ix.lineOf(off))
			res.AddEntity(*e)
		}
	}
}

// emitSignatureEdges turns parked signature metadata into parameter and
// returns edges. Parameter types are taken from the trailing token of each
// comma-separated segment; single-token segments are ambiguous between a
// name and a type and are skipped.
func (l *Golang) emitSignatureEdges(res *entity.ParseResult) {
	for i := range res.Entities {
		e := &res.Entities[i]
		if e.Type != entity.KindFunction && e.Type != entity.KindMethod {
			continue
		}
		if params := e.Metadata["params"]; params != "" {
			var names []string
			for _, seg := range strings.Split(params, ",") {
				idents := splitIdentifiers(seg)
				if len(idents) < 2 {
					continue
				}
				last := idents[len(idents)-1]
				if !goBuiltinTypes[last] {
					names = append(names, last)
				}
			}
			for _, ref := range typeRefTargets(res, names) {
				res.AddRelationship(entity.NewRelationship(e.ID, ref, entity.RelParameter))
			}
		}
		if ret := e.Metadata["returns"]; ret != "" {
			var names []string
			for _, ident := range splitIdentifiers(ret) {
				if !goBuiltinTypes[ident] {
					names = append(names, ident)
				}
			}
			for _, ref := range typeRefTargets(res, names) {
				res.AddRelationship(entity.NewRelationship(e.ID, ref, entity.RelReturns))
			}
			delete(e.Metadata, "returns")
		}
		delete(e.Metadata, "params")
	}
}

func (l *Golang) declEntity(res *entity.ParseResult, ix *lineIndex, kind entity.Kind, name string, off, endLine int) *entity.CodeEntity {
	line := ix.lineOf(off)
	e := &entity.CodeEntity{
		ID:          entity.MakeID(res.FilePath, kind, name, line),
		Name:        name,
		Type:        kind,
		FilePath:    res.FilePath,
		StartLine:   line,
		EndLine:     endLine,
		StartColumn: ix.colOf(off),
		EndColumn:   len(ix.lineText(endLine)) + 1,
		Signature:   signatureAt(ix, line),
		Docstring:   docCommentAbove(ix, line, "//"),
		Metadata:    map[string]string{},
	}
	if goExported(name) {
		e.Metadata["exported"] = "true"
	}
	return e
}

// entityNamed returns the first extracted entity with the given name.
func entityNamed(res *entity.ParseResult, name string) *entity.CodeEntity {
	for i := range res.Entities {
		if res.Entities[i].Name == name {
			return &res.Entities[i]
		}
	}
	return nil
}

func goExported(name string) bool {
	if name == "" {
		return false
	}
	return unicode.IsUpper(rune(name[0]))
}
