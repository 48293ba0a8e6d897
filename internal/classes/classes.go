// Package classes computes the runtime layout of every class declared
// in a program: a numeric type_id, the packed property offsets that
// sit after objmodel.Header in every instance, and the operator-
// overload registry the code generator consults when lowering a
// binary operator applied to two class instances (spec.md §4.6, §6).
package classes

import (
	"sort"

	"github.com/ultrascript-lang/ultrascript/internal/ast"
	"github.com/ultrascript-lang/ultrascript/internal/diag"
	"github.com/ultrascript-lang/ultrascript/internal/funcmgr"
	"github.com/ultrascript-lang/ultrascript/internal/objmodel"
)

// FirstUserTypeID is the lowest type_id assigned to a user-defined
// class; ids below it are reserved for built-in runtime types
// (spec.md §6: "Classes register a numeric type_id (≥1000 for user
// classes)").
const FirstUserTypeID = 1000

// Property is one entry of a class's finalized layout.
type Property struct {
	Name     string
	Hash     uint32
	Offset   int
	Type     ast.DataType
	Flags    uint16
	Index    int
}

// OperatorOverload is one finalized operator overload, keyed by
// operator symbol and the mangled name of its compiled function.
type OperatorOverload struct {
	Operator    string
	ParamTypes  []ast.DataType
	MangledName string
}

// Class is the finalized runtime record for one class declaration:
// property layout (including the parent's fields as a prefix),
// instance size, and the operator-overload registry keyed by operator
// kind then parameter-type tuple.
type Class struct {
	Name         string
	Parent       *Class
	TypeID       uint32
	Properties   []Property
	byName       map[string]*Property
	InstanceSize int // HeaderSize + packed property bytes, rounded to 8
	Operators    map[string][]OperatorOverload
}

// Property looks up a class's own or inherited property by name.
func (c *Class) Property(name string) (*Property, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// ResolveOperator finds the overload for operator whose parameter
// types exactly match argTypes, matching the keying scheme
// funcmgr.MangleOperatorName uses so the registry and the compiled
// function can never name-drift apart.
func (c *Class) ResolveOperator(operator string, argTypes []ast.DataType) (*OperatorOverload, bool) {
	for i, ov := range c.Operators[operator] {
		if sameTypes(ov.ParamTypes, argTypes) {
			return &c.Operators[operator][i], true
		}
	}
	return nil, false
}

func sameTypes(a, b []ast.DataType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Registry finalizes every ast.ClassDecl in a program into a Class,
// resolving `extends` parents and assigning dense type_ids in
// declaration order (spec.md's grammar has no forward-reference
// problem to solve here: a class may only extend one already seen
// earlier in the same file, matching how the original implementation
// walks classes top to bottom).
type Registry struct {
	byName map[string]*Class
	all    []*Class
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Class{}}
}

func (r *Registry) Lookup(name string) (*Class, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func (r *Registry) All() []*Class { return r.all }

// Finalize registers every class declaration found at the top level of
// program (and inside export statements), in order, computing each
// one's property layout and operator registry as it goes.
func (r *Registry) Finalize(program *ast.Program) error {
	nextTypeID := uint32(FirstUserTypeID)
	for _, st := range program.Body {
		decl, ok := unwrapClassDecl(st)
		if !ok {
			continue
		}
		c, err := r.finalizeOne(decl, nextTypeID)
		if err != nil {
			return err
		}
		nextTypeID++
		r.byName[c.Name] = c
		r.all = append(r.all, c)
	}
	return nil
}

func unwrapClassDecl(s ast.Stmt) (*ast.ClassDecl, bool) {
	switch st := s.(type) {
	case *ast.ClassDecl:
		return st, true
	case *ast.ExportStmt:
		if cd, ok := st.Decl.(*ast.ClassDecl); ok {
			return cd, true
		}
	}
	return nil, false
}

func (r *Registry) finalizeOne(decl *ast.ClassDecl, typeID uint32) (*Class, error) {
	var parent *Class
	if decl.Parent != "" {
		p, ok := r.byName[decl.Parent]
		if !ok {
			return nil, diag.SemanticError(decl.Position(), "class %s extends undeclared class %s", decl.Name, decl.Parent)
		}
		parent = p
	}

	c := &Class{
		Name:      decl.Name,
		Parent:    parent,
		TypeID:    typeID,
		byName:    map[string]*Property{},
		Operators: map[string][]OperatorOverload{},
	}

	offset := objmodel.HeaderSize
	index := 0
	if parent != nil {
		for _, pp := range parent.Properties {
			prop := pp
			c.Properties = append(c.Properties, prop)
			c.byName[prop.Name] = &c.Properties[len(c.Properties)-1]
			index++
		}
		offset = parent.InstanceSize
	}

	// Own fields are laid out by declaration order within each
	// alignment group (largest alignment first) rather than by use
	// frequency: unlike a function's stack frame, an instance layout
	// is part of the class's externally visible ABI, so it must be
	// stable across compilations regardless of how often a field is
	// accessed.
	byAlign := map[int][]ast.ClassField{}
	for _, f := range decl.Fields {
		if f.IsStatic {
			continue
		}
		byAlign[f.Type.AlignOf()] = append(byAlign[f.Type.AlignOf()], f)
	}
	for _, a := range []int{8, 4, 2, 1} {
		if len(byAlign[a]) > 0 {
			offset = roundUp(offset, a)
		}
		for _, f := range byAlign[a] {
			prop := Property{
				Name:   f.Name,
				Hash:   objmodel.FNV1a32(f.Name),
				Offset: offset,
				Type:   f.Type,
				Index:  index,
			}
			c.Properties = append(c.Properties, prop)
			c.byName[prop.Name] = &c.Properties[len(c.Properties)-1]
			offset += f.Type.SizeOf()
			index++
		}
	}
	c.InstanceSize = roundUp(offset, 8)

	for _, op := range decl.Operators {
		paramTypes := make([]ast.DataType, len(op.Params))
		for i, p := range op.Params {
			paramTypes[i] = p.Type
		}
		ov := OperatorOverload{
			Operator:    op.Operator,
			ParamTypes:  paramTypes,
			MangledName: funcmgr.MangleOperatorName(decl.Name, op.Operator, op.Params),
		}
		c.Operators[op.Operator] = append(c.Operators[op.Operator], ov)
	}
	for _, overloads := range c.Operators {
		sort.Slice(overloads, func(i, j int) bool { return overloads[i].MangledName < overloads[j].MangledName })
	}

	return c, nil
}

func roundUp(n, align int) int {
	if align <= 0 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}
