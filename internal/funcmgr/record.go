// Package funcmgr implements the function compilation manager
// (spec.md §4.4): discover every function in the program, assign each a
// dense id, and order their bodies for emission so an outer function's
// "reference to inner function" immediates are always backed by a known
// offset.
package funcmgr

import "github.com/ultrascript-lang/ultrascript/internal/ast"

// Record is one compiled-or-to-be-compiled function: a top-level
// declaration, a function/arrow expression, a method, a constructor, or
// an operator overload (spec.md §3 "Function record").
type Record struct {
	Name      string
	DebugName string

	// Node is the originating AST node (*ast.FunctionDecl,
	// *ast.MethodDecl, *ast.ConstructorDecl,
	// *ast.OperatorOverloadDecl, *ast.FunctionExpr, or
	// *ast.ArrowFunction), kept so internal/codegen can pair a Record
	// with the scope.Tree.FunctionScope pass 1 built for the same node
	// without re-deriving the AST walk.
	Node interface{}

	Params []ast.Param
	Ret    ast.DataType
	Body   []ast.Stmt

	FunctionID     uint16
	CodeOffset     int
	CodeSize       int
	MachineAddress uint64

	ParameterCount     int
	IsMethod           bool
	IsUnmanaged        bool
	IsInline           bool
	IsOperatorOverload bool

	// ClassName is the declaring class for a constructor, method, or
	// operator overload (empty otherwise), so codegen can resolve
	// `this.field` to a static property offset without re-parsing
	// DebugName's "Class.member" mangling.
	ClassName string

	// children holds the function literals lexically nested directly
	// in Body; CompileOrder visits these before r itself.
	children []*Record
}

// Children exposes the nested function literals discovered inside r,
// in discovery order.
func (r *Record) Children() []*Record { return r.children }
