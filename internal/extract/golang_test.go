package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/entity"
)

const goSample = `package store

import (
	"context"
	"fmt"

	repo "example.com/lib/repo"
)

// User is an account record.
type User struct {
	ID   string
	Name string
	age  int
}

// UserRepository loads users.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*User, error)
}

type UserID = string

// NewUser builds a User.
func NewUser(name string) *User {
	return &User{Name: name}
}

func (u *User) Describe() string {
	return fmt.Sprintf("user %s", u.Name)
}

func (u *User) rename(name string) {
	u.Name = name
}

var ErrMissing = fmt.Errorf("missing user")

const maxUsers = 100

var (
	defaultName = "anon"
	Verbose     bool
)
`

func parseGo(t *testing.T, name, src string) *entity.ParseResult {
	t.Helper()
	res := NewGo().Extract(name, []byte(src))
	require.NotNil(t, res)
	require.True(t, res.Success, "errors: %v", res.Errors)
	return res
}

func TestGolang_ModuleEntity(t *testing.T) {
	res := parseGo(t, "store/user.go", goSample)

	mod := findEntity(t, res, entity.KindModule, "user")
	assert.Equal(t, "store", mod.Metadata["package"])
	assert.Equal(t, "go", res.Language)
}

func TestGolang_ImportBlock(t *testing.T) {
	res := parseGo(t, "store/user.go", goSample)

	ctx := findEntity(t, res, entity.KindImport, "context")
	assert.Equal(t, "context", ctx.Metadata["source"])
	assert.True(t, hasEdge(res, ctx.ID, entity.ModuleRef("context"), entity.RelImports))

	aliased := findEntity(t, res, entity.KindImport, "repo")
	assert.Equal(t, "example.com/lib/repo", aliased.Metadata["source"])
}

func TestGolang_StructAndFields(t *testing.T) {
	res := parseGo(t, "store/user.go", goSample)

	user := findEntity(t, res, entity.KindClass, "User")
	assert.Equal(t, "true", user.Metadata["exported"])
	assert.Equal(t, "User is an account record.", user.Docstring)

	id := findEntity(t, res, entity.KindProperty, "ID")
	assert.Equal(t, user.ID, id.ParentID)
	assert.Equal(t, "true", id.Metadata["exported"])
	assert.True(t, hasEdge(res, user.ID, entity.EntityRef(id.ID), entity.RelContains))

	age := findEntity(t, res, entity.KindProperty, "age")
	assert.NotEqual(t, "true", age.Metadata["exported"])
}

func TestGolang_InterfaceMethods(t *testing.T) {
	res := parseGo(t, "store/user.go", goSample)

	iface := findEntity(t, res, entity.KindInterface, "UserRepository")
	findByID := findEntity(t, res, entity.KindMethod, "FindByID")
	assert.Equal(t, iface.ID, findByID.ParentID)
	assert.True(t, hasEdge(res, iface.ID, entity.EntityRef(findByID.ID), entity.RelContains))
}

func TestGolang_MethodsAttachToReceiver(t *testing.T) {
	res := parseGo(t, "store/user.go", goSample)

	user := findEntity(t, res, entity.KindClass, "User")
	describe := findEntity(t, res, entity.KindMethod, "Describe")
	assert.Equal(t, user.ID, describe.ParentID)
	assert.Equal(t, "User", describe.Metadata["receiver"])
	assert.Equal(t, "true", describe.Metadata["exported"])

	rename := findEntity(t, res, entity.KindMethod, "rename")
	assert.Equal(t, user.ID, rename.ParentID)
	assert.NotEqual(t, "true", rename.Metadata["exported"])
}

func TestGolang_SignatureEdges(t *testing.T) {
	res := parseGo(t, "store/user.go", goSample)

	user := findEntity(t, res, entity.KindClass, "User")
	newUser := findEntity(t, res, entity.KindFunction, "NewUser")
	assert.True(t, hasEdge(res, newUser.ID, entity.EntityRef(user.ID), entity.RelReturns))

	findByID := findEntity(t, res, entity.KindMethod, "FindByID")
	assert.True(t, hasEdge(res, findByID.ID, entity.SymbolRef("Context"), entity.RelParameter))
	assert.True(t, hasEdge(res, findByID.ID, entity.EntityRef(user.ID), entity.RelReturns))
}

func TestGolang_TypeAlias(t *testing.T) {
	res := parseGo(t, "store/user.go", goSample)

	alias := findEntity(t, res, entity.KindType, "UserID")
	assert.Equal(t, alias.StartLine, alias.EndLine)
}

func TestGolang_VarAndConstBlocks(t *testing.T) {
	res := parseGo(t, "store/user.go", goSample)

	findEntity(t, res, entity.KindVariable, "ErrMissing")
	findEntity(t, res, entity.KindVariable, "maxUsers")
	findEntity(t, res, entity.KindVariable, "defaultName")
	verbose := findEntity(t, res, entity.KindVariable, "Verbose")
	assert.Equal(t, "true", verbose.Metadata["exported"])
}

func TestGolang_ModuleLinks(t *testing.T) {
	res := parseGo(t, "store/user.go", goSample)

	mod := findEntity(t, res, entity.KindModule, "user")
	user := findEntity(t, res, entity.KindClass, "User")
	assert.True(t, hasEdge(res, mod.ID, entity.EntityRef(user.ID), entity.RelDefines))
	assert.True(t, hasEdge(res, mod.ID, entity.EntityRef(user.ID), entity.RelExports))

	describe := findEntity(t, res, entity.KindMethod, "Describe")
	assert.False(t, hasEdge(res, mod.ID, entity.EntityRef(describe.ID), entity.RelDefines))
}

func TestGolang_SingleImport(t *testing.T) {
	src := "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n"

	res := parseGo(t, "main.go", src)

	imp := findEntity(t, res, entity.KindImport, "fmt")
	assert.Equal(t, "fmt", imp.Metadata["source"])
	findEntity(t, res, entity.KindFunction, "main")
}

func TestGolang_CallsResolveWithinFile(t *testing.T) {
	src := "package app\n\nfunc helper() int {\n\treturn 1\n}\n\nfunc run() int {\n\treturn helper()\n}\n"

	res := parseGo(t, "app.go", src)

	run := findEntity(t, res, entity.KindFunction, "run")
	helper := findEntity(t, res, entity.KindFunction, "helper")
	assert.True(t, hasEdge(res, run.ID, entity.EntityRef(helper.ID), entity.RelCalls))
	assert.False(t, hasEdge(res, helper.ID, entity.EntityRef(run.ID), entity.RelCalls))
}
