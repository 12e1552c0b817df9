package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/entity"
)

// findEntity fails the test when no entity with the kind and name exists.
func findEntity(t *testing.T, res *entity.ParseResult, kind entity.Kind, name string) *entity.CodeEntity {
	t.Helper()
	for i := range res.Entities {
		e := &res.Entities[i]
		if e.Type == kind && e.Name == name {
			return e
		}
	}
	t.Fatalf("no %s entity named %q in %s", kind, name, res.FilePath)
	return nil
}

// hasEdge reports whether the result contains the given relationship.
func hasEdge(res *entity.ParseResult, sourceID string, target entity.TargetRef, kind entity.RelKind) bool {
	for _, r := range res.Relationships {
		if r.SourceID == sourceID && r.Target.Key() == target.Key() && r.Type == kind {
			return true
		}
	}
	return false
}

func TestRegistry_LanguageFor(t *testing.T) {
	reg := Default()

	for ext, want := range map[string]string{
		".ts": "typescript", ".tsx": "typescript", ".js": "typescript",
		".go": "go", ".py": "python", ".PY": "python",
	} {
		lang, ok := reg.LanguageFor("file" + ext)
		require.True(t, ok, "extension %s", ext)
		assert.Equal(t, want, lang.Name(), "extension %s", ext)
	}
	_, ok := reg.LanguageFor("file.rb")
	assert.False(t, ok)
	assert.True(t, reg.CanParse("main.go"))
	assert.False(t, reg.CanParse("README.md"))
}

func TestRegistry_ParseUnsupportedExtension(t *testing.T) {
	res := Default().Parse("notes.txt", []byte("hello"))

	require.NotNil(t, res)
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "dispatch", res.Errors[0].Stage)
}

type panicLanguage struct{}

func (panicLanguage) Name() string                               { return "panicky" }
func (panicLanguage) Extensions() []string                       { return []string{".boom"} }
func (panicLanguage) Extract(string, []byte) *entity.ParseResult { panic("kaboom") }

func TestRegistry_ParseRecoversFromPanic(t *testing.T) {
	reg := NewRegistry(panicLanguage{})

	res := reg.Parse("x.boom", []byte("anything"))

	require.NotNil(t, res)
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
}

func TestRegistry_RegisterOverrides(t *testing.T) {
	reg := NewRegistry(NewGo(), panicLanguage{})
	reg.Register(NewGo())

	lang, ok := reg.LanguageFor("main.go")
	require.True(t, ok)
	assert.Equal(t, "go", lang.Name())
}

func TestParse_EmptyContent(t *testing.T) {
	for _, name := range []string{"a.ts", "a.go", "a.py"} {
		res := Default().Parse(name, nil)
		require.NotNil(t, res, name)
		assert.True(t, res.Success, name)
		assert.Empty(t, res.Entities, name)
	}
}

func TestParse_Deterministic(t *testing.T) {
	src := []byte("export class Greeter {\n  greet(): string {\n    return format();\n  }\n}\n\nfunction format(): string {\n  return 'hi';\n}\n")

	first := Default().Parse("greeter.ts", src)
	second := Default().Parse("greeter.ts", src)

	require.Equal(t, first.Entities, second.Entities)
	require.Equal(t, first.Relationships, second.Relationships)
}

func TestParse_MalformedInputNeverPanics(t *testing.T) {
	samples := map[string][]byte{
		"garbage.ts":  []byte("{{{{((((\x00\xff]]]]"),
		"garbage.go":  []byte("func ((((("),
		"garbage.py":  []byte("def :\n\tclass ("),
		"unclosed.ts": []byte("class Broken {\n  method() {\n"),
		"long.ts":     []byte("const x = '" + strings.Repeat("a", 100000) + "';\n"),
		"deep.ts":     []byte("function f() {\n" + strings.Repeat("{", 500) + strings.Repeat("}", 500) + "\n}\n"),
	}
	reg := Default()
	for name, src := range samples {
		res := reg.Parse(name, src)
		require.NotNil(t, res, name)
	}
}

func TestParse_UnclosedBlockExtendsToEOF(t *testing.T) {
	src := []byte("class Broken {\n  method() {\n    call();\n")

	res := Default().Parse("broken.ts", src)

	require.True(t, res.Success)
	class := findEntity(t, res, entity.KindClass, "Broken")
	assert.Equal(t, 3, class.EndLine)
}
