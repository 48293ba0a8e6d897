// Package ast defines the abstract syntax tree produced by the parser:
// a tagged sum type per syntactic category (spec.md §9 design note),
// exhaustively matched rather than dispatched through an RTTI-style
// visitor hierarchy.
package ast

// DataType is the compiler's closed type enum (spec.md §3).
type DataType int

const (
	Any DataType = iota // alias: Unknown
	Void
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Boolean
	StringType
	RegexType
	TensorType
	PromiseType
	FunctionType
	SliceType
	ArrayType
	ClassInstance
	RuntimeObject
)

// Unknown is an alias for Any, per spec.md §3.
const Unknown = Any

func (d DataType) String() string {
	switch d {
	case Any:
		return "any"
	case Void:
		return "void"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Boolean:
		return "boolean"
	case StringType:
		return "string"
	case RegexType:
		return "regex"
	case TensorType:
		return "tensor"
	case PromiseType:
		return "promise"
	case FunctionType:
		return "function"
	case SliceType:
		return "slice"
	case ArrayType:
		return "array"
	case ClassInstance:
		return "class_instance"
	case RuntimeObject:
		return "runtime_object"
	default:
		return "unknown"
	}
}

// SizeOf returns the storage size in bytes for scalar types. Composite
// types (class instances, arrays, slices, functions) are always stored
// as an 8-byte pointer/descriptor in a scope frame or object.
func (d DataType) SizeOf() int {
	switch d {
	case Int8, Uint8, Boolean:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	default:
		return 8
	}
}

// AlignOf returns the natural alignment for the type, used by the scope
// frame packer (spec.md §4.3) and by class layout finalization.
func (d DataType) AlignOf() int {
	a := d.SizeOf()
	if a > 8 {
		return 8
	}
	return a
}

// DeclarationKind is the kind of a variable declaration. It is shared
// between Assignment and variable records (spec.md §9 open question:
// "declaration kind is a field of Assignment and of variable records",
// not two independent enums — see DESIGN.md).
type DeclarationKind int

const (
	DeclNone DeclarationKind = iota
	DeclVar
	DeclLet
	DeclConst
)

func (k DeclarationKind) String() string {
	switch k {
	case DeclVar:
		return "var"
	case DeclLet:
		return "let"
	case DeclConst:
		return "const"
	default:
		return "none"
	}
}
