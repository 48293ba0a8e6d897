package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultrascript-lang/ultrascript/internal/ast"
	"github.com/ultrascript-lang/ultrascript/internal/classes"
	"github.com/ultrascript-lang/ultrascript/internal/config"
	"github.com/ultrascript-lang/ultrascript/internal/diaglog"
	"github.com/ultrascript-lang/ultrascript/internal/funcmgr"
	"github.com/ultrascript-lang/ultrascript/internal/scope"
)

func ident(name string) *ast.Identifier { return &ast.Identifier{Name: name} }

// buildModule runs the same pipeline internal/driver will: discover
// functions, analyze scopes, finalize classes, generate code.
func buildModule(t *testing.T, program *ast.Program) *Module {
	t.Helper()
	cfg := config.Default()

	fm := funcmgr.New(diaglog.NoOp())
	fm.Discover(program)

	tree, err := scope.Analyze(program, cfg, diaglog.NoOp())
	require.NoError(t, err)

	classReg := classes.NewRegistry()
	require.NoError(t, classReg.Finalize(program))

	gen := New(fm, tree, classReg, cfg, diaglog.NoOp())
	mod, err := gen.Generate(program)
	require.NoError(t, err)
	return mod
}

// doubleProgram mirrors spec.md §8's golden scenario:
//
//	function double(x: int) { return x * 2; }
//	function main() { return double(21); }
func doubleProgram() *ast.Program {
	double := &ast.FunctionDecl{
		Name:   "double",
		Params: []ast.Param{{Name: "x", Type: ast.Int64}},
		Ret:    ast.Int64,
		Body: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.BinaryOp{
				Op:    "*",
				Left:  ident("x"),
				Right: &ast.NumberLit{Value: 2},
			}},
		},
	}
	main := &ast.FunctionDecl{
		Name: "main",
		Body: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.Call{
				Callee: ident("double"),
				Args:   []ast.Expr{&ast.NumberLit{Value: 21}},
			}},
		},
	}
	return &ast.Program{Body: []ast.Stmt{double, main}}
}

func TestGenerateDoubleScenarioProducesResolvedMain(t *testing.T) {
	mod := buildModule(t, doubleProgram())

	require.Len(t, mod.Functions, 2)
	var mainFn, doubleFn *FunctionCode
	for i := range mod.Functions {
		switch mod.Functions[i].Name {
		case "main":
			mainFn = &mod.Functions[i]
		case "double":
			doubleFn = &mod.Functions[i]
		}
	}
	require.NotNil(t, mainFn, "loader requires a main label (spec.md §4.7 step 7)")
	require.NotNil(t, doubleFn)

	assert.NoError(t, mainFn.Buffer.ValidateAllLabelsResolved())
	assert.NoError(t, doubleFn.Buffer.ValidateAllLabelsResolved())
	assert.Positive(t, mainFn.Buffer.Len())
	assert.Positive(t, doubleFn.Buffer.Len())

	calls := mainFn.Buffer.UnresolvedRuntimeCalls()
	assert.Empty(t, calls, "main calls double directly, not through a runtime entry")

	patches := doubleFn.Buffer.FunctionInstancePatches()
	assert.Empty(t, patches, "double's body never references another function's address")
}

// ifElseProgram exercises nested-scope unwinding through a return
// inside an if/else body.
func ifElseProgram() *ast.Program {
	body := &ast.FunctionDecl{
		Name:   "classify",
		Params: []ast.Param{{Name: "n", Type: ast.Int64}},
		Ret:    ast.Int64,
		Body: []ast.Stmt{
			&ast.IfStmt{
				Cond: &ast.BinaryOp{Op: "<", Left: ident("n"), Right: &ast.NumberLit{Value: 0}},
				Then: []ast.Stmt{
					&ast.VarDecl{Kind: ast.DeclLet, Declarators: []ast.Declarator{
						{Name: "sign", Type: ast.Int64, Init: &ast.NumberLit{Value: -1}},
					}},
					&ast.ReturnStmt{Value: ident("sign")},
				},
				Else: []ast.Stmt{
					&ast.ReturnStmt{Value: &ast.NumberLit{Value: 1}},
				},
			},
			&ast.ReturnStmt{Value: &ast.NumberLit{Value: 0}},
		},
	}
	main := &ast.FunctionDecl{Name: "main", Body: nil}
	return &ast.Program{Body: []ast.Stmt{body, main}}
}

func TestGenerateIfElseUnwindsNestedScopeOnReturn(t *testing.T) {
	mod := buildModule(t, ifElseProgram())

	var classify *FunctionCode
	for i := range mod.Functions {
		if mod.Functions[i].Name == "classify" {
			classify = &mod.Functions[i]
		}
	}
	require.NotNil(t, classify)
	assert.NoError(t, classify.Buffer.ValidateAllLabelsResolved())
	assert.Positive(t, classify.Buffer.Len())
}

// stringConcatProgram exercises the inline-string-data path and its
// associated peephole skip.
func stringConcatProgram() *ast.Program {
	greet := &ast.FunctionDecl{
		Name: "greet",
		Ret:  ast.StringType,
		Body: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.BinaryOp{
				Op:    "+",
				Left:  &ast.StringLit{Base: ast.Base{ResultType: ast.StringType}, Value: "hello "},
				Right: &ast.StringLit{Base: ast.Base{ResultType: ast.StringType}, Value: "world"},
			}},
		},
	}
	main := &ast.FunctionDecl{Name: "main", Body: nil}
	return &ast.Program{Body: []ast.Stmt{greet, main}}
}

func TestGenerateStringLiteralEmbedsInlineData(t *testing.T) {
	mod := buildModule(t, stringConcatProgram())

	var greet *FunctionCode
	for i := range mod.Functions {
		if mod.Functions[i].Name == "greet" {
			greet = &mod.Functions[i]
		}
	}
	require.NotNil(t, greet)
	assert.NoError(t, greet.Buffer.ValidateAllLabelsResolved())

	calls := greet.Buffer.UnresolvedRuntimeCalls()
	found := false
	for _, p := range calls {
		if p.Symbol == "__runtime_string_concat" {
			found = true
		}
	}
	assert.True(t, found, "string `+` must call the runtime concat entry")
}

func runtimeCallSymbolsOf(fn *FunctionCode) []string {
	var out []string
	for _, p := range fn.Buffer.UnresolvedRuntimeCalls() {
		out = append(out, p.Symbol)
	}
	return out
}

// typeofProgram exercises `typeof`'s lowering through the runtime's
// type-introspection entry (spec.md §11.6's supplemented feature).
func typeofProgram() *ast.Program {
	fn := &ast.FunctionDecl{
		Name:   "kindOf",
		Params: []ast.Param{{Name: "x", Type: ast.Any}},
		Ret:    ast.Int64,
		Body: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.UnaryOp{Op: "typeof", Prefix: true, Operand: ident("x")}},
		},
	}
	main := &ast.FunctionDecl{Name: "main", Body: nil}
	return &ast.Program{Body: []ast.Stmt{fn, main}}
}

func TestGenerateTypeofCallsRuntimeIntrospectionEntry(t *testing.T) {
	mod := buildModule(t, typeofProgram())

	var kindOf *FunctionCode
	for i := range mod.Functions {
		if mod.Functions[i].Name == "kindOf" {
			kindOf = &mod.Functions[i]
		}
	}
	require.NotNil(t, kindOf)
	assert.NoError(t, kindOf.Buffer.ValidateAllLabelsResolved())
	assert.Contains(t, runtimeCallSymbolsOf(kindOf), "__runtime_typeof")
}

// tensorLiteralProgram exercises the `tensor` literal's typed-array
// fast path (spec.md §11.6's supplemented feature): its elements must
// be repacked through the runtime's typed-array converter, not left
// boxed the way a plain array literal's elements are.
func tensorLiteralProgram() *ast.Program {
	fn := &ast.FunctionDecl{
		Name: "makeTensor",
		Ret:  ast.TensorType,
		Body: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.TypedArrayLit{
				ElementType: ast.Float64,
				Elements: []ast.Expr{
					&ast.NumberLit{Value: 1},
					&ast.NumberLit{Value: 2},
					&ast.NumberLit{Value: 3},
				},
			}},
		},
	}
	main := &ast.FunctionDecl{Name: "main", Body: nil}
	return &ast.Program{Body: []ast.Stmt{fn, main}}
}

func TestGenerateTensorLiteralUsesTypedArrayFastPath(t *testing.T) {
	mod := buildModule(t, tensorLiteralProgram())

	var makeTensor *FunctionCode
	for i := range mod.Functions {
		if mod.Functions[i].Name == "makeTensor" {
			makeTensor = &mod.Functions[i]
		}
	}
	require.NotNil(t, makeTensor)
	assert.NoError(t, makeTensor.Buffer.ValidateAllLabelsResolved())
	assert.Contains(t, runtimeCallSymbolsOf(makeTensor), "__runtime_typed_array_from",
		"a tensor literal must repack its boxed elements through the typed-array converter")
}
