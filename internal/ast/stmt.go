package ast

import "github.com/ultrascript-lang/ultrascript/internal/diag"

// Stmt is the sum type of every statement node, kept separate from Expr
// per spec.md §9 ("expression and statement categories are separate sum
// types to avoid partial dispatch").
type Stmt interface {
	stmtNode()
	Position() diag.Position
}

// StmtBase is embedded by every Stmt variant to supply its position.
// Exported so callers outside this package (the parser) can construct
// literal node values.
type StmtBase struct {
	Pos diag.Position
}

func (b StmtBase) Position() diag.Position { return b.Pos }

// NewStmtBase constructs a StmtBase at pos.
func NewStmtBase(pos diag.Position) StmtBase { return StmtBase{Pos: pos} }

// VarDecl is a `var|let|const` declaration, possibly declaring several
// names in one statement.
type VarDecl struct {
	StmtBase
	Kind         DeclarationKind
	Declarators  []Declarator
}

type Declarator struct {
	Name      string
	Type      DataType
	ClassName string // non-empty when Type == ClassInstance
	Init      Expr   // nil if uninitialized
}

type FunctionDecl struct {
	StmtBase
	Name   string
	Params []Param
	Ret    DataType
	Body   []Stmt
}

type ClassField struct {
	Name     string
	Type     DataType
	Default  Expr
	IsStatic bool
	Access   string // "public", "private", "protected", or "" (default public)
}

type ConstructorDecl struct {
	StmtBase
	Params []Param
	Body   []Stmt
}

type MethodDecl struct {
	StmtBase
	Name     string
	Params   []Param
	Ret      DataType
	Body     []Stmt
	IsStatic bool
	Access   string
}

// OperatorOverloadDecl is `operator +(other: T) { ... }` inside a class.
type OperatorOverloadDecl struct {
	StmtBase
	Operator string
	Params   []Param
	Ret      DataType
	Body     []Stmt
}

type ClassDecl struct {
	StmtBase
	Name        string
	Parent      string // "" if no `extends`
	Fields      []ClassField
	Constructor *ConstructorDecl
	Methods     []*MethodDecl
	Operators   []*OperatorOverloadDecl
}

type IfStmt struct {
	StmtBase
	Cond Expr
	Then []Stmt
	Else []Stmt // nil if no else branch; may itself be a single IfStmt for else-if
}

// ForStmt is the C-style `for (init; cond; post) { ... }` loop. Any of
// Init/Cond/Post may be nil.
type ForStmt struct {
	StmtBase
	Init Stmt
	Cond Expr
	Post Stmt
	Body []Stmt
}

// ForEachStmt is `for each (|key, value| in expr) { ... }`. ValueOnly
// is true for the single-binding form `for each (|value| in expr)`.
type ForEachStmt struct {
	StmtBase
	KeyVar, ValueVar string
	ValueOnly        bool
	Iterable         Expr
	Body             []Stmt
}

type WhileStmt struct {
	StmtBase
	Cond Expr
	Body []Stmt
}

type CaseClause struct {
	// Values is empty for the `default:` clause.
	Values []Expr
	Body   []Stmt
}

type SwitchStmt struct {
	StmtBase
	Discriminant Expr
	Cases        []CaseClause
}

type ReturnStmt struct {
	StmtBase
	Value Expr // nil for a bare `return;`
}

type BreakStmt struct {
	StmtBase
}

type ImportSpecifier struct {
	Local    string
	Imported string // "" for the default import
	IsDefault bool
	IsNamespace bool
}

type ImportStmt struct {
	StmtBase
	Specifiers []ImportSpecifier
	ModulePath string
}

type ExportSpecifier struct {
	Local    string
	Exported string
}

type ExportStmt struct {
	StmtBase
	IsDefault  bool
	Default    Expr // non-nil when IsDefault
	Specifiers []ExportSpecifier
	Decl       Stmt // non-nil for `export function f() {}` / `export class C {}`
}

type BlockStmt struct {
	StmtBase
	Body []Stmt
}

type ExprStmt struct {
	StmtBase
	X Expr
}

func (*VarDecl) stmtNode()              {}
func (*FunctionDecl) stmtNode()         {}
func (*ClassDecl) stmtNode()            {}
func (*ConstructorDecl) stmtNode()      {}
func (*MethodDecl) stmtNode()           {}
func (*OperatorOverloadDecl) stmtNode() {}
func (*IfStmt) stmtNode()               {}
func (*ForStmt) stmtNode()              {}
func (*ForEachStmt) stmtNode()          {}
func (*WhileStmt) stmtNode()            {}
func (*SwitchStmt) stmtNode()           {}
func (*ReturnStmt) stmtNode()           {}
func (*BreakStmt) stmtNode()            {}
func (*ImportStmt) stmtNode()           {}
func (*ExportStmt) stmtNode()           {}
func (*BlockStmt) stmtNode()            {}
func (*ExprStmt) stmtNode()             {}

// Program is the root of a parsed file.
type Program struct {
	Body []Stmt
}
