// Package extract turns (filePath, content) pairs into per-file parse
// results: code entities plus the relationships between them. Extraction is
// pattern-based, not grammar-based: each language implementation runs a fixed
// sequence of regex passes over the source, finds block ends by brace depth
// or indentation, and resolves calls only against names known within the same
// file. Identical input always produces an identical result.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jward/arbor/internal/entity"
)

// Language extracts entities and relationships for one language family.
// Extract must never panic or return a Go error: failures become entries in
// the result's Errors with Success=false, keeping any entities found before
// the failure.
type Language interface {
	// Name returns the language tag recorded in parse results.
	Name() string
	// Extensions returns the file extensions (with dot) this language owns.
	Extensions() []string
	// Extract parses content and returns a well-formed result.
	Extract(filePath string, content []byte) *entity.ParseResult
}

// Registry maps file extensions to language implementations.
type Registry struct {
	byExt map[string]Language
	langs []Language
}

// NewRegistry builds a registry over the given languages. Later registrations
// win extension conflicts.
func NewRegistry(langs ...Language) *Registry {
	r := &Registry{byExt: make(map[string]Language)}
	for _, l := range langs {
		r.Register(l)
	}
	return r
}

// Default returns a registry with the built-in languages: TypeScript and
// JavaScript, Go, and Python.
func Default() *Registry {
	return NewRegistry(NewTypeScript(), NewGo(), NewPython())
}

// Register adds a language, claiming its extensions.
func (r *Registry) Register(l Language) {
	r.langs = append(r.langs, l)
	for _, ext := range l.Extensions() {
		r.byExt[strings.ToLower(ext)] = l
	}
}

// LanguageFor returns the language owning the file's extension.
func (r *Registry) LanguageFor(path string) (Language, bool) {
	l, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return l, ok
}

// CanParse reports whether some registered language owns the file's
// extension.
func (r *Registry) CanParse(path string) bool {
	_, ok := r.LanguageFor(path)
	return ok
}

// Languages returns the registered language names in registration order.
func (r *Registry) Languages() []string {
	names := make([]string, len(r.langs))
	for i, l := range r.langs {
		names[i] = l.Name()
	}
	return names
}

// Parse dispatches to the language owning the file's extension. An
// unsupported extension yields a failed result, not an error. A language
// implementation that panics is converted to a failed result here, so Parse
// never panics regardless of what is registered.
func (r *Registry) Parse(path string, content []byte) (res *entity.ParseResult) {
	lang, ok := r.LanguageFor(path)
	if !ok {
		res = entity.NewParseResult(path, "")
		res.AddError("dispatch", fmt.Sprintf("unsupported file extension %q", filepath.Ext(path)), 0)
		return res
	}
	defer func() {
		if rec := recover(); rec != nil {
			res = entity.NewParseResult(path, lang.Name())
			res.AddError("extract", fmt.Sprintf("recovered from panic: %v", rec), 0)
		}
	}()
	return lang.Extract(path, content)
}
