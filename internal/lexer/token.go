// Package lexer turns GoTS source text into a token stream with
// line/column information, per spec.md §4.1.
package lexer

import "fmt"

// Kind identifies the syntactic category of a Token.
type Kind int

const (
	EOF Kind = iota

	// Literals.
	Number
	String
	Template
	Regex
	Boolean

	Identifier

	// Keywords.
	Function
	Go
	Await
	Let
	Var
	Const
	If
	Else
	For
	Each
	In
	While
	Switch
	Case
	Default
	Break
	Return
	Import
	Export
	From
	As
	Class
	Extends
	Super
	This
	Constructor
	Public
	Private
	Protected
	Static
	New
	Tensor
	Operator
	Typeof

	// Punctuation and operators.
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semicolon
	Colon
	Comma
	Dot
	Question
	SliceColon // "[:]" as a single token
	Pipe       // "|", delimits a for-each binding: for each (|k, v| in xs)

	Assign
	Equal
	StrictEqual
	NotEqual
	StrictNotEqual
	Less
	Greater
	LessEqual
	GreaterEqual
	And
	Or
	Not

	Plus
	Minus
	Multiply
	Divide
	Modulo
	Power

	PlusAssign
	MinusAssign
	MultiplyAssign
	DivideAssign

	Increment
	Decrement
)

var keywords = map[string]Kind{
	"function":    Function,
	"go":          Go,
	"await":       Await,
	"let":         Let,
	"var":         Var,
	"const":       Const,
	"if":          If,
	"else":        Else,
	"for":         For,
	"each":        Each,
	"in":          In,
	"while":       While,
	"return":      Return,
	"switch":      Switch,
	"case":        Case,
	"default":     Default,
	"break":       Break,
	"import":      Import,
	"export":      Export,
	"from":        From,
	"as":          As,
	"tensor":      Tensor,
	"new":         New,
	"class":       Class,
	"extends":     Extends,
	"super":       Super,
	"this":        This,
	"constructor": Constructor,
	"public":      Public,
	"private":     Private,
	"protected":   Protected,
	"static":      Static,
	"operator":    Operator,
	"typeof":      Typeof,
	"true":        Boolean,
	"false":       Boolean,
}

// Token is a single lexical unit: a kind, its literal text, and its
// origin position.
type Token struct {
	Kind   Kind
	Lexeme string
	Line   int
	Column int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Kind, t.Lexeme, t.Line, t.Column)
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

var kindNames = map[Kind]string{
	EOF: "eof", Number: "number", String: "string", Template: "template",
	Regex: "regex", Boolean: "boolean", Identifier: "identifier",
	Function: "function", Go: "go", Await: "await", Let: "let", Var: "var",
	Const: "const", If: "if", Else: "else", For: "for", Each: "each", In: "in",
	While: "while", Switch: "switch", Case: "case", Default: "default",
	Break: "break", Return: "return", Import: "import", Export: "export",
	From: "from", As: "as", Class: "class", Extends: "extends", Super: "super",
	This: "this", Constructor: "constructor", Public: "public",
	Private: "private", Protected: "protected", Static: "static", New: "new",
	Tensor: "tensor", Operator: "operator", Typeof: "typeof",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[",
	RBracket: "]", Semicolon: ";", Colon: ":", Comma: ",", Dot: ".",
	Question: "?", SliceColon: "[:]", Pipe: "|",
	Assign: "=", Equal: "==", StrictEqual: "===", NotEqual: "!=",
	StrictNotEqual: "!==", Less: "<", Greater: ">", LessEqual: "<=",
	GreaterEqual: ">=", And: "&&", Or: "||", Not: "!",
	Plus: "+", Minus: "-", Multiply: "*", Divide: "/", Modulo: "%", Power: "**",
	PlusAssign: "+=", MinusAssign: "-=", MultiplyAssign: "*=", DivideAssign: "/=",
	Increment: "++", Decrement: "--",
}

// canPrecedeRegex reports whether a "/" following this kind cannot
// legally be a division operator, i.e. a regex literal is permitted
// here: assignment (plain and compound), open bracket/paren/brace,
// statement separators, unary/logical/arithmetic/comparison operators,
// comma, `return`, and `typeof`.
func (k Kind) canPrecedeRegex() bool {
	switch k {
	case Assign, PlusAssign, MinusAssign, MultiplyAssign, DivideAssign,
		LParen, LBracket, LBrace, Semicolon, Colon, Not, And, Or,
		Question, Plus, Minus, Multiply, Divide, Modulo, Power,
		Less, Greater, LessEqual, GreaterEqual,
		Equal, NotEqual, StrictEqual, StrictNotEqual, Comma, Return, Typeof:
		return true
	default:
		return false
	}
}
