package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/entity"
)

const pySample = `"""User models."""

import os
import json as j
from typing import Optional
from .base import BaseModel, BaseQuery


MAX_USERS = 100
_cache = {}


class User(BaseModel):
    """A stored user."""

    table = "users"

    def __init__(self, name):
        self.name = name

    @property
    def display_name(self):
        return self.name.title()

    async def refresh(self):
        await reload_user(self)

    def _hash(self):
        return hash(self.name)


def reload_user(user: User) -> Optional[User]:
    """Reload one user."""
    if user is None:
        return None
    return user


def _internal():
    return MAX_USERS
`

func parsePy(t *testing.T, name, src string) *entity.ParseResult {
	t.Helper()
	res := NewPython().Extract(name, []byte(src))
	require.NotNil(t, res)
	require.True(t, res.Success, "errors: %v", res.Errors)
	return res
}

func TestPython_ModuleDocstring(t *testing.T) {
	res := parsePy(t, "app/models.py", pySample)

	mod := findEntity(t, res, entity.KindModule, "models")
	assert.Equal(t, "User models.", mod.Docstring)
	assert.Equal(t, "python", res.Language)
}

func TestPython_Imports(t *testing.T) {
	res := parsePy(t, "app/models.py", pySample)

	findEntity(t, res, entity.KindImport, "os")

	aliased := findEntity(t, res, entity.KindImport, "j")
	assert.Equal(t, "json", aliased.Metadata["source"])

	base := findEntity(t, res, entity.KindImport, "BaseModel")
	assert.Equal(t, ".base", base.Metadata["source"])
	assert.True(t, hasEdge(res, base.ID, entity.ModuleRef(".base"), entity.RelImports))
	findEntity(t, res, entity.KindImport, "BaseQuery")
}

func TestPython_ClassAndMethods(t *testing.T) {
	res := parsePy(t, "app/models.py", pySample)

	user := findEntity(t, res, entity.KindClass, "User")
	assert.Equal(t, "A stored user.", user.Docstring)
	assert.Equal(t, "true", user.Metadata["exported"])
	assert.True(t, hasEdge(res, user.ID, entity.SymbolRef("BaseModel"), entity.RelExtends))

	init := findEntity(t, res, entity.KindMethod, "__init__")
	assert.Equal(t, user.ID, init.ParentID)
	assert.NotEqual(t, "true", init.Metadata["exported"])

	refresh := findEntity(t, res, entity.KindMethod, "refresh")
	assert.Equal(t, "true", refresh.Metadata["async"])
	assert.True(t, hasEdge(res, user.ID, entity.EntityRef(refresh.ID), entity.RelContains))
}

func TestPython_PropertyDecorator(t *testing.T) {
	res := parsePy(t, "app/models.py", pySample)

	user := findEntity(t, res, entity.KindClass, "User")
	display := findEntity(t, res, entity.KindProperty, "display_name")
	assert.Equal(t, user.ID, display.ParentID)
	assert.Equal(t, "property", display.Metadata["decorators"])
}

func TestPython_ClassAttribute(t *testing.T) {
	res := parsePy(t, "app/models.py", pySample)

	user := findEntity(t, res, entity.KindClass, "User")
	table := findEntity(t, res, entity.KindProperty, "table")
	assert.Equal(t, user.ID, table.ParentID)
}

func TestPython_FunctionsAndPrivacy(t *testing.T) {
	res := parsePy(t, "app/models.py", pySample)

	reload := findEntity(t, res, entity.KindFunction, "reload_user")
	assert.Equal(t, "Reload one user.", reload.Docstring)
	assert.Equal(t, "true", reload.Metadata["exported"])

	internal := findEntity(t, res, entity.KindFunction, "_internal")
	assert.NotEqual(t, "true", internal.Metadata["exported"])
}

func TestPython_SignatureEdges(t *testing.T) {
	res := parsePy(t, "app/models.py", pySample)

	user := findEntity(t, res, entity.KindClass, "User")
	reload := findEntity(t, res, entity.KindFunction, "reload_user")
	assert.True(t, hasEdge(res, reload.ID, entity.EntityRef(user.ID), entity.RelParameter))
	assert.True(t, hasEdge(res, reload.ID, entity.EntityRef(user.ID), entity.RelReturns))
}

func TestPython_CallsResolveWithinFile(t *testing.T) {
	res := parsePy(t, "app/models.py", pySample)

	refresh := findEntity(t, res, entity.KindMethod, "refresh")
	reload := findEntity(t, res, entity.KindFunction, "reload_user")
	assert.True(t, hasEdge(res, refresh.ID, entity.EntityRef(reload.ID), entity.RelCalls))
}

func TestPython_TopLevelAssignments(t *testing.T) {
	res := parsePy(t, "app/models.py", pySample)

	maxUsers := findEntity(t, res, entity.KindVariable, "MAX_USERS")
	assert.Equal(t, "true", maxUsers.Metadata["exported"])
	cache := findEntity(t, res, entity.KindVariable, "_cache")
	assert.NotEqual(t, "true", cache.Metadata["exported"])
}

func TestPython_NestedDefsSkipped(t *testing.T) {
	src := "class Outer:\n    def method(self):\n        def inner():\n            return 1\n        return inner()\n"

	res := parsePy(t, "nested.py", src)

	findEntity(t, res, entity.KindMethod, "method")
	for i := range res.Entities {
		assert.NotEqual(t, "inner", res.Entities[i].Name, "nested def must not become an entity")
	}
}

func TestPython_IndentBlockEnds(t *testing.T) {
	src := "class A:\n    def one(self):\n        return 1\n\n    def two(self):\n        return 2\n\n\nTRAILING = 3\n"

	res := parsePy(t, "blocks.py", src)

	a := findEntity(t, res, entity.KindClass, "A")
	assert.Equal(t, 1, a.StartLine)
	assert.Equal(t, 6, a.EndLine, "trailing blanks stay outside the block")

	one := findEntity(t, res, entity.KindMethod, "one")
	assert.Equal(t, 2, one.StartLine)
	assert.Equal(t, 3, one.EndLine)

	findEntity(t, res, entity.KindVariable, "TRAILING")
}

func TestPython_MultiImportLine(t *testing.T) {
	src := "import os, sys\n"

	res := parsePy(t, "multi.py", src)

	findEntity(t, res, entity.KindImport, "os")
	findEntity(t, res, entity.KindImport, "sys")
}
