package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultrascript-lang/ultrascript/internal/ast"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse("t.gts", src)
	require.NoError(t, err)
	return prog
}

func TestVarDeclWithTypeAnnotationAndInit(t *testing.T) {
	prog := mustParse(t, "let count: int32 = 0;")
	require.Len(t, prog.Body, 1)
	decl := prog.Body[0].(*ast.VarDecl)
	assert.Equal(t, ast.DeclLet, decl.Kind)
	require.Len(t, decl.Declarators, 1)
	assert.Equal(t, "count", decl.Declarators[0].Name)
	assert.Equal(t, ast.Int32, decl.Declarators[0].Type)
	require.NotNil(t, decl.Declarators[0].Init)
}

func TestVarDeclUnknownTypeNameBecomesClassInstance(t *testing.T) {
	prog := mustParse(t, "var p: Point;")
	decl := prog.Body[0].(*ast.VarDecl)
	assert.Equal(t, ast.ClassInstance, decl.Declarators[0].Type)
	assert.Equal(t, "Point", decl.Declarators[0].ClassName)
}

func TestMultipleDeclaratorsInOneStatement(t *testing.T) {
	prog := mustParse(t, "let a = 1, b = 2;")
	decl := prog.Body[0].(*ast.VarDecl)
	require.Len(t, decl.Declarators, 2)
	assert.Equal(t, "a", decl.Declarators[0].Name)
	assert.Equal(t, "b", decl.Declarators[1].Name)
}

func TestBinaryPrecedence(t *testing.T) {
	prog := mustParse(t, "let x = 1 + 2 * 3;")
	decl := prog.Body[0].(*ast.VarDecl)
	add := decl.Declarators[0].Init.(*ast.BinaryOp)
	assert.Equal(t, "+", add.Op)
	_, leftIsNumber := add.Left.(*ast.NumberLit)
	assert.True(t, leftIsNumber)
	mul := add.Right.(*ast.BinaryOp)
	assert.Equal(t, "*", mul.Op)
}

func TestExponentIsRightAssociative(t *testing.T) {
	prog := mustParse(t, "let x = 2 ** 3 ** 2;")
	decl := prog.Body[0].(*ast.VarDecl)
	top := decl.Declarators[0].Init.(*ast.BinaryOp)
	assert.Equal(t, "**", top.Op)
	_, leftIsNumber := top.Left.(*ast.NumberLit)
	assert.True(t, leftIsNumber)
	_, rightIsExponent := top.Right.(*ast.BinaryOp)
	assert.True(t, rightIsExponent)
}

func TestTernary(t *testing.T) {
	prog := mustParse(t, "let x = a ? b : c;")
	decl := prog.Body[0].(*ast.VarDecl)
	tern := decl.Declarators[0].Init.(*ast.Ternary)
	require.NotNil(t, tern.Cond)
	require.NotNil(t, tern.Then)
	require.NotNil(t, tern.Else)
}

func TestAssignmentToPropertyBecomesPropertyAssignment(t *testing.T) {
	prog := mustParse(t, "obj.field = 5;")
	stmt := prog.Body[0].(*ast.ExprStmt)
	pa := stmt.X.(*ast.PropertyAssignment)
	assert.Equal(t, "field", pa.Name)
}

func TestComputedAssignmentToArrayIndex(t *testing.T) {
	prog := mustParse(t, "arr[0] = 9;")
	stmt := prog.Body[0].(*ast.ExprStmt)
	pa := stmt.X.(*ast.PropertyAssignment)
	require.NotNil(t, pa.Key)
}

func TestFunctionDeclWithParamsAndReturnType(t *testing.T) {
	prog := mustParse(t, "function add(a: int32, b: int32): int32 { return a + b; }")
	fn := prog.Body[0].(*ast.FunctionDecl)
	assert.Equal(t, "add", fn.Name)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, ast.Int32, fn.Ret)
	require.Len(t, fn.Body, 1)
	_, isReturn := fn.Body[0].(*ast.ReturnStmt)
	assert.True(t, isReturn)
}

func TestClassDeclWithConstructorMethodAndOperator(t *testing.T) {
	src := `
class Point {
	x: float64;
	y: float64;
	constructor(x: float64, y: float64) {
		this.x = x;
		this.y = y;
	}
	length(): float64 {
		return this.x;
	}
	operator +(other: Point): Point {
		return this;
	}
}`
	prog := mustParse(t, src)
	cls := prog.Body[0].(*ast.ClassDecl)
	assert.Equal(t, "Point", cls.Name)
	require.Len(t, cls.Fields, 2)
	require.NotNil(t, cls.Constructor)
	require.Len(t, cls.Methods, 1)
	assert.Equal(t, "length", cls.Methods[0].Name)
	require.Len(t, cls.Operators, 1)
	assert.Equal(t, "+", cls.Operators[0].Operator)
}

func TestClassExtends(t *testing.T) {
	prog := mustParse(t, "class Square extends Shape { constructor() { super(); } }")
	cls := prog.Body[0].(*ast.ClassDecl)
	assert.Equal(t, "Shape", cls.Parent)
	require.NotNil(t, cls.Constructor)
	require.Len(t, cls.Constructor.Body, 1)
	exprStmt := cls.Constructor.Body[0].(*ast.ExprStmt)
	_, isSuperCall := exprStmt.X.(*ast.SuperCall)
	assert.True(t, isSuperCall)
}

func TestIfElseIfChain(t *testing.T) {
	prog := mustParse(t, `
if (a) { x = 1; } else if (b) { x = 2; } else { x = 3; }`)
	ifStmt := prog.Body[0].(*ast.IfStmt)
	require.Len(t, ifStmt.Else, 1)
	_, isElseIf := ifStmt.Else[0].(*ast.IfStmt)
	assert.True(t, isElseIf)
}

func TestCStyleFor(t *testing.T) {
	prog := mustParse(t, "for (let i = 0; i < 10; i++) { sum += i; }")
	forStmt := prog.Body[0].(*ast.ForStmt)
	require.NotNil(t, forStmt.Init)
	require.NotNil(t, forStmt.Cond)
	require.NotNil(t, forStmt.Post)
}

func TestForEachTwoBindings(t *testing.T) {
	prog := mustParse(t, "for each (|k, v| in xs) { sum += v; }")
	fe := prog.Body[0].(*ast.ForEachStmt)
	assert.Equal(t, "k", fe.KeyVar)
	assert.Equal(t, "v", fe.ValueVar)
	assert.False(t, fe.ValueOnly)
}

func TestForEachSingleBinding(t *testing.T) {
	prog := mustParse(t, "for each (|v| in xs) { sum += v; }")
	fe := prog.Body[0].(*ast.ForEachStmt)
	assert.Equal(t, "v", fe.ValueVar)
	assert.True(t, fe.ValueOnly)
}

func TestWhileLoop(t *testing.T) {
	prog := mustParse(t, "while (x < 10) { x++; }")
	w := prog.Body[0].(*ast.WhileStmt)
	require.NotNil(t, w.Cond)
	require.Len(t, w.Body, 1)
}

func TestSwitchWithDefault(t *testing.T) {
	src := `
switch (x) {
	case 1:
		y = 1;
		break;
	case 2: {
		y = 2;
		break;
	}
	default:
		y = 0;
}`
	prog := mustParse(t, src)
	sw := prog.Body[0].(*ast.SwitchStmt)
	require.Len(t, sw.Cases, 3)
	assert.Len(t, sw.Cases[0].Values, 1)
	assert.Len(t, sw.Cases[2].Values, 0)
}

func TestImportNamedList(t *testing.T) {
	prog := mustParse(t, `import { foo, bar as baz } from "./mod.gts";`)
	imp := prog.Body[0].(*ast.ImportStmt)
	require.Len(t, imp.Specifiers, 2)
	assert.Equal(t, "foo", imp.Specifiers[0].Local)
	assert.Equal(t, "baz", imp.Specifiers[1].Local)
	assert.Equal(t, "bar", imp.Specifiers[1].Imported)
}

func TestImportDefaultAndNamespace(t *testing.T) {
	prog := mustParse(t, `import Foo from "./foo.gts";`)
	imp := prog.Body[0].(*ast.ImportStmt)
	assert.True(t, imp.Specifiers[0].IsDefault)

	prog2 := mustParse(t, `import * as Utils from "./utils.gts";`)
	imp2 := prog2.Body[0].(*ast.ImportStmt)
	assert.True(t, imp2.Specifiers[0].IsNamespace)
	assert.Equal(t, "Utils", imp2.Specifiers[0].Local)
}

func TestExportFunctionDecl(t *testing.T) {
	prog := mustParse(t, "export function f() { return 1; }")
	exp := prog.Body[0].(*ast.ExportStmt)
	require.NotNil(t, exp.Decl)
	_, isFn := exp.Decl.(*ast.FunctionDecl)
	assert.True(t, isFn)
}

func TestNewExprCallForm(t *testing.T) {
	prog := mustParse(t, "let p = new Point(1, 2);")
	decl := prog.Body[0].(*ast.VarDecl)
	ne := decl.Declarators[0].Init.(*ast.NewExpr)
	assert.Equal(t, "Point", ne.ClassName)
	require.Len(t, ne.Args, 2)
	assert.Nil(t, ne.DartArgs)
}

func TestNewExprDartStyle(t *testing.T) {
	prog := mustParse(t, "let p = new Point{x: 1, y: 2};")
	decl := prog.Body[0].(*ast.VarDecl)
	ne := decl.Declarators[0].Init.(*ast.NewExpr)
	require.Len(t, ne.DartArgs, 2)
	assert.Equal(t, "x", ne.DartArgs[0].Key)
	assert.Nil(t, ne.Args)
}

func TestGoExprRequiresCall(t *testing.T) {
	prog := mustParse(t, "go worker(1, 2);")
	stmt := prog.Body[0].(*ast.ExprStmt)
	ge := stmt.X.(*ast.GoExpr)
	require.NotNil(t, ge.Call)
}

func TestGoExprRejectsNonCall(t *testing.T) {
	_, err := Parse("t.gts", "go 5;")
	require.Error(t, err)
}

func TestAwaitExpr(t *testing.T) {
	prog := mustParse(t, "let r = await p;")
	decl := prog.Body[0].(*ast.VarDecl)
	aw := decl.Declarators[0].Init.(*ast.AwaitExpr)
	require.NotNil(t, aw.Target)
}

func TestRegexLiteralSplitsPatternAndFlags(t *testing.T) {
	prog := mustParse(t, "let r = /abc/i;")
	decl := prog.Body[0].(*ast.VarDecl)
	re := decl.Declarators[0].Init.(*ast.RegexLit)
	assert.Equal(t, "abc", re.Pattern)
	assert.Equal(t, "i", re.Flags)
}

func TestTemplateLiteralSplitsInterpolation(t *testing.T) {
	prog := mustParse(t, "let s = `hello ${name} !`;")
	decl := prog.Body[0].(*ast.VarDecl)
	tl := decl.Declarators[0].Init.(*ast.TemplateLit)
	require.Len(t, tl.Parts, 3)
	first := tl.Parts[0].(*ast.StringLit)
	assert.Equal(t, "hello ", first.Value)
	_, isIdent := tl.Parts[1].(*ast.Identifier)
	assert.True(t, isIdent)
	third := tl.Parts[2].(*ast.StringLit)
	assert.Equal(t, " !", third.Value)
}

func TestSliceExpression(t *testing.T) {
	prog := mustParse(t, "let s = a[1:3];")
	decl := prog.Body[0].(*ast.VarDecl)
	sl := decl.Declarators[0].Init.(*ast.SliceExpr)
	require.NotNil(t, sl.Lo)
	require.NotNil(t, sl.Hi)
}

func TestFullSliceToken(t *testing.T) {
	prog := mustParse(t, "let s = a[:];")
	decl := prog.Body[0].(*ast.VarDecl)
	sl := decl.Declarators[0].Init.(*ast.SliceExpr)
	assert.Nil(t, sl.Lo)
	assert.Nil(t, sl.Hi)
}

func TestObjectAndArrayLiterals(t *testing.T) {
	prog := mustParse(t, `let o = { a: 1, b: [1, 2, 3] };`)
	decl := prog.Body[0].(*ast.VarDecl)
	obj := decl.Declarators[0].Init.(*ast.ObjectLit)
	require.Len(t, obj.Properties, 2)
	arr := obj.Properties[1].Value.(*ast.ArrayLit)
	require.Len(t, arr.Elements, 3)
}

func TestComputedMethodCall(t *testing.T) {
	prog := mustParse(t, `obj[name](1, 2);`)
	stmt := prog.Body[0].(*ast.ExprStmt)
	cmc := stmt.X.(*ast.ComputedMethodCall)
	require.NotNil(t, cmc.Name)
	require.Len(t, cmc.Args, 2)
}

func TestMethodCallChain(t *testing.T) {
	prog := mustParse(t, `a.b.c(1);`)
	stmt := prog.Body[0].(*ast.ExprStmt)
	mc := stmt.X.(*ast.MethodCall)
	assert.Equal(t, "c", mc.Name)
	inner := mc.Object.(*ast.PropertyAccess)
	assert.Equal(t, "b", inner.Name)
}

func TestPostfixIncrementBindsTighterThanBinary(t *testing.T) {
	prog := mustParse(t, "let x = i++ + 1;")
	decl := prog.Body[0].(*ast.VarDecl)
	add := decl.Declarators[0].Init.(*ast.BinaryOp)
	_, leftIsPostfix := add.Left.(*ast.PostfixIncDec)
	assert.True(t, leftIsPostfix)
}
