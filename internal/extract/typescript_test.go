package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/entity"
)

const tsSample = `import { Logger } from './logger';
import * as path from 'path';
import './side-effect';

export interface Repository {
  findById(id: string): Promise<User>;
}

export class User {
  id: string;
  name: string;

  constructor(id: string, name: string) {
    this.id = id;
    this.name = name;
  }

  describe(): string {
    return this.name;
  }
}

export class UserService extends BaseService implements Repository {
  private repo: UserRepository;

  getUser(id: string): Promise<User> {
    return this.repo.findById(id);
  }
}

export function createService(logger: Logger): UserService {
  return new UserService();
}

export const formatName = (user: User): string => user.name;

const MAX_USERS = 100;
`

func parseTS(t *testing.T, name, src string) *entity.ParseResult {
	t.Helper()
	res := NewTypeScript().Extract(name, []byte(src))
	require.NotNil(t, res)
	require.True(t, res.Success, "errors: %v", res.Errors)
	return res
}

func TestTypeScript_ModuleEntity(t *testing.T) {
	res := parseTS(t, "src/user.ts", tsSample)

	mod := findEntity(t, res, entity.KindModule, "user")
	assert.Equal(t, 1, mod.StartLine)
	assert.Equal(t, 37, mod.EndLine)
	assert.Equal(t, "typescript", res.Language)
}

func TestTypeScript_Imports(t *testing.T) {
	res := parseTS(t, "src/user.ts", tsSample)

	logger := findEntity(t, res, entity.KindImport, "Logger")
	assert.Equal(t, "./logger", logger.Metadata["source"])
	assert.True(t, hasEdge(res, logger.ID, entity.ModuleRef("./logger"), entity.RelImports))

	ns := findEntity(t, res, entity.KindImport, "path")
	assert.Equal(t, "path", ns.Metadata["source"])

	side := findEntity(t, res, entity.KindImport, "side-effect")
	assert.Equal(t, "./side-effect", side.Metadata["source"])
}

func TestTypeScript_ClassMembers(t *testing.T) {
	res := parseTS(t, "src/user.ts", tsSample)

	user := findEntity(t, res, entity.KindClass, "User")
	assert.Equal(t, 9, user.StartLine)
	assert.Equal(t, 21, user.EndLine)
	assert.Equal(t, "true", user.Metadata["exported"])

	ctor := findEntity(t, res, entity.KindMethod, "constructor")
	assert.Equal(t, user.ID, ctor.ParentID)
	assert.Equal(t, "true", ctor.Metadata["constructor"])

	describe := findEntity(t, res, entity.KindMethod, "describe")
	assert.Equal(t, user.ID, describe.ParentID)
	assert.True(t, hasEdge(res, user.ID, entity.EntityRef(describe.ID), entity.RelContains))

	id := findEntity(t, res, entity.KindProperty, "id")
	assert.Equal(t, user.ID, id.ParentID)
	findEntity(t, res, entity.KindProperty, "name")
	findEntity(t, res, entity.KindProperty, "repo")
}

func TestTypeScript_InterfaceMembers(t *testing.T) {
	res := parseTS(t, "src/user.ts", tsSample)

	repo := findEntity(t, res, entity.KindInterface, "Repository")
	findByID := findEntity(t, res, entity.KindMethod, "findById")
	assert.Equal(t, repo.ID, findByID.ParentID)
	assert.True(t, hasEdge(res, repo.ID, entity.EntityRef(findByID.ID), entity.RelContains))
}

func TestTypeScript_Inheritance(t *testing.T) {
	res := parseTS(t, "src/user.ts", tsSample)

	svc := findEntity(t, res, entity.KindClass, "UserService")
	repo := findEntity(t, res, entity.KindInterface, "Repository")

	// BaseService is not declared in this file, so it stays an unresolved
	// symbol. Repository is local and resolves to the entity.
	assert.True(t, hasEdge(res, svc.ID, entity.SymbolRef("BaseService"), entity.RelExtends))
	assert.True(t, hasEdge(res, svc.ID, entity.EntityRef(repo.ID), entity.RelImplements))
}

func TestTypeScript_CallsResolveWithinFile(t *testing.T) {
	res := parseTS(t, "src/user.ts", tsSample)

	getUser := findEntity(t, res, entity.KindMethod, "getUser")
	findByID := findEntity(t, res, entity.KindMethod, "findById")
	assert.True(t, hasEdge(res, getUser.ID, entity.EntityRef(findByID.ID), entity.RelCalls))
}

func TestTypeScript_SignatureEdges(t *testing.T) {
	res := parseTS(t, "src/user.ts", tsSample)

	create := findEntity(t, res, entity.KindFunction, "createService")
	svc := findEntity(t, res, entity.KindClass, "UserService")
	assert.True(t, hasEdge(res, create.ID, entity.EntityRef(svc.ID), entity.RelReturns))
	assert.True(t, hasEdge(res, create.ID, entity.SymbolRef("Logger"), entity.RelParameter))

	user := findEntity(t, res, entity.KindClass, "User")
	getUser := findEntity(t, res, entity.KindMethod, "getUser")
	assert.True(t, hasEdge(res, getUser.ID, entity.EntityRef(user.ID), entity.RelReturns))
}

func TestTypeScript_ArrowAndVariable(t *testing.T) {
	res := parseTS(t, "src/user.ts", tsSample)

	format := findEntity(t, res, entity.KindFunction, "formatName")
	assert.Equal(t, format.StartLine, format.EndLine, "expression arrow spans one line")
	assert.Equal(t, "true", format.Metadata["exported"])

	maxUsers := findEntity(t, res, entity.KindVariable, "MAX_USERS")
	assert.NotEqual(t, "true", maxUsers.Metadata["exported"])
}

func TestTypeScript_ModuleLinks(t *testing.T) {
	res := parseTS(t, "src/user.ts", tsSample)

	mod := findEntity(t, res, entity.KindModule, "user")
	user := findEntity(t, res, entity.KindClass, "User")
	assert.True(t, hasEdge(res, mod.ID, entity.EntityRef(user.ID), entity.RelDefines))
	assert.True(t, hasEdge(res, mod.ID, entity.EntityRef(user.ID), entity.RelExports))

	// Class members hang off the class, not the module.
	ctor := findEntity(t, res, entity.KindMethod, "constructor")
	assert.False(t, hasEdge(res, mod.ID, entity.EntityRef(ctor.ID), entity.RelDefines))
}

func TestTypeScript_JavaScriptDialect(t *testing.T) {
	src := "const service = require('./service');\n\nfunction main() {\n  service.run();\n}\n\nmodule.exports = { main };\n"

	res := parseTS(t, "lib/main.js", src)

	assert.Equal(t, "javascript", res.Language)
	svc := findEntity(t, res, entity.KindImport, "service")
	assert.Equal(t, "./service", svc.Metadata["source"])
	findEntity(t, res, entity.KindFunction, "main")
}

func TestTypeScript_ReExport(t *testing.T) {
	src := "export { User, Role } from './models';\n"

	res := parseTS(t, "index.ts", src)

	user := findEntity(t, res, entity.KindExport, "User")
	assert.Equal(t, "./models", user.Metadata["source"])
	findEntity(t, res, entity.KindExport, "Role")

	mod := findEntity(t, res, entity.KindModule, "index")
	assert.True(t, hasEdge(res, mod.ID, entity.EntityRef(user.ID), entity.RelExports))
}

func TestTypeScript_ExportListMarksLocals(t *testing.T) {
	src := "function helper() {\n  return 1;\n}\n\nexport { helper };\n"

	res := parseTS(t, "helper.ts", src)

	helper := findEntity(t, res, entity.KindFunction, "helper")
	assert.Equal(t, "true", helper.Metadata["exported"])
}

func TestTypeScript_EnumAndTypeAlias(t *testing.T) {
	src := "export enum Color {\n  Red,\n  Green,\n}\n\nexport type Hex = string;\n\ntype Alias = Color;\n"

	res := parseTS(t, "color.ts", src)

	color := findEntity(t, res, entity.KindEnum, "Color")
	assert.Equal(t, 1, color.StartLine)
	assert.Equal(t, 4, color.EndLine)
	findEntity(t, res, entity.KindType, "Hex")
	alias := findEntity(t, res, entity.KindType, "Alias")
	assert.NotEqual(t, "true", alias.Metadata["exported"])
}
