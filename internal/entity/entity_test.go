package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeID_Deterministic(t *testing.T) {
	a := MakeID("src/user.ts", KindClass, "UserService", 1)
	b := MakeID("src/user.ts", KindClass, "UserService", 1)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestMakeID_DistinguishesComponents(t *testing.T) {
	base := MakeID("src/user.ts", KindClass, "UserService", 1)
	assert.NotEqual(t, base, MakeID("src/other.ts", KindClass, "UserService", 1))
	assert.NotEqual(t, base, MakeID("src/user.ts", KindFunction, "UserService", 1))
	assert.NotEqual(t, base, MakeID("src/user.ts", KindClass, "UserRepo", 1))
	assert.NotEqual(t, base, MakeID("src/user.ts", KindClass, "UserService", 2))
}

func TestMakeID_NoDelimiterCollision(t *testing.T) {
	// Joining naively would make ("ab","c") collide with ("a","bc").
	a := MakeID("ab", KindClass, "c", 1)
	b := MakeID("a", KindClass, "bc", 1)
	assert.NotEqual(t, a, b)
}

func TestMerge_OverwritesNonZeroFields(t *testing.T) {
	e := &CodeEntity{
		ID: "1", Name: "old", Type: KindFunction, FilePath: "a.go",
		StartLine: 1, EndLine: 5, Signature: "func old()",
		Metadata: map[string]string{"exported": "true"},
	}
	e.Merge(&CodeEntity{
		Name: "new", StartLine: 2, EndLine: 8,
		Metadata: map[string]string{"async": "true"},
	})

	assert.Equal(t, "new", e.Name)
	assert.Equal(t, 2, e.StartLine)
	assert.Equal(t, 8, e.EndLine)
	// Untouched fields survive.
	assert.Equal(t, KindFunction, e.Type)
	assert.Equal(t, "func old()", e.Signature)
	// Metadata merges key-wise.
	assert.Equal(t, "true", e.Metadata["exported"])
	assert.Equal(t, "true", e.Metadata["async"])
}

func TestClone_Independent(t *testing.T) {
	e := &CodeEntity{ID: "1", Name: "a", Metadata: map[string]string{"k": "v"}}
	c := e.Clone()
	c.Name = "b"
	c.Metadata["k"] = "changed"

	assert.Equal(t, "a", e.Name)
	assert.Equal(t, "v", e.Metadata["k"])
}

func TestTargetRef_Keys(t *testing.T) {
	assert.Equal(t, "e:abc", EntityRef("abc").Key())
	assert.Equal(t, "s:fetchUser", SymbolRef("fetchUser").Key())
	assert.Equal(t, "m:lodash", ModuleRef("lodash").Key())
	assert.Equal(t, EntityRef("abc").Key(), EntityKey("abc"))
}

func TestTargetRef_Resolved(t *testing.T) {
	assert.True(t, EntityRef("abc").Resolved())
	assert.False(t, SymbolRef("x").Resolved())
	assert.False(t, ModuleRef("x").Resolved())
}

func TestTargetRef_JSONShape(t *testing.T) {
	data, err := json.Marshal(SymbolRef("fetchUser"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"symbol","name":"fetchUser"}`, string(data))

	var back TargetRef
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, SymbolRef("fetchUser"), back)
}

func TestRelationship_TripleKey(t *testing.T) {
	a := NewRelationship("s1", EntityRef("t1"), RelCalls)
	b := NewRelationship("s1", EntityRef("t1"), RelCalls)
	c := NewRelationship("s1", EntityRef("t1"), RelUses)
	assert.Equal(t, a.TripleKey(), b.TripleKey())
	assert.NotEqual(t, a.TripleKey(), c.TripleKey())
	// Symbol and entity targets with the same text never collide.
	assert.NotEqual(t,
		NewRelationship("s", EntityRef("x"), RelCalls).TripleKey(),
		NewRelationship("s", SymbolRef("x"), RelCalls).TripleKey())
}

func TestParseResult_AddRelationshipDeduplicates(t *testing.T) {
	r := NewParseResult("a.ts", "typescript")
	rel := NewRelationship("s1", EntityRef("t1"), RelCalls)
	r.AddRelationship(rel)
	r.AddRelationship(rel)
	assert.Len(t, r.Relationships, 1)
}

func TestParseResult_AddErrorClearsSuccess(t *testing.T) {
	r := NewParseResult("a.ts", "typescript")
	require.True(t, r.Success)
	r.AddError("scan", "boom", 12)
	assert.False(t, r.Success)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0].Error(), "line 12")
}

func TestParseResult_RoundTrip(t *testing.T) {
	r := NewParseResult("a.ts", "typescript")
	r.AddEntity(CodeEntity{
		ID: MakeID("a.ts", KindClass, "A", 1), Name: "A", Type: KindClass,
		FilePath: "a.ts", StartLine: 1, EndLine: 10,
		Metadata: map[string]string{"exported": "true"},
	})
	r.AddRelationship(NewRelationship(r.Entities[0].ID, ModuleRef("lodash"), RelImports))

	data, err := json.Marshal(r)
	require.NoError(t, err)
	var back ParseResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *r, back)
}
