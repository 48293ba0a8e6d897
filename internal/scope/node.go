package scope

import "github.com/ultrascript-lang/ultrascript/internal/ast"

// VariableRecord is one declared variable within a scope (spec.md §3).
type VariableRecord struct {
	Name         string
	DeclKind     ast.DeclarationKind
	Type         ast.DataType
	ClassName    string // non-empty when Type == ast.ClassInstance
	StackOffset  int
	IsGlobal     bool
	IsMutable    bool
	IsStatic     bool
	HasDefault   bool
	UseCount     int // textual use count, the frequency proxy from spec.md §4.3
}

// RegisterSlot is where an ancestor scope's frame pointer lives: either
// one of the three physical registers, or a numbered stack slot.
type RegisterSlot struct {
	IsRegister bool
	Register   string // "r12", "r13", or "r14" when IsRegister
	StackSlot  int    // slot index when !IsRegister
}

// LexicalScopeNode is one node of the scope tree (spec.md §3).
type LexicalScopeNode struct {
	Depth           int
	IsFunctionScope bool
	IsLoopIteration bool // marks a `for` scope created for a let/const init

	DeclaredVariables []VariableRecord
	VariableOffsets   map[string]int
	TotalFrameSize    int

	// DeclaredFunctions lists function declarations lexically enclosed
	// directly in this scope, for hoisting (spec.md §4.3).
	DeclaredFunctions []string

	// CanBeOptimizedAway is advisory (spec.md §4.3 pass 1): a
	// var-only block scope whose variables the analyzer may merge into
	// the enclosing function scope.
	CanBeOptimizedAway bool
	MergedInto         Handle // valid when CanBeOptimizedAway was applied

	// Escapes records variables in this scope that escape (spec.md §4.3).
	Escapes map[string]bool

	// SelfParentNeeds / DescendantParentNeeds are the two disjoint
	// sources of priority_sorted_parent_scopes (spec.md §3, §4.3).
	SelfParentNeeds      map[int]int // ancestor depth -> access frequency
	DescendantParentNeeds map[int]int

	// PrioritySortedParentScopes is self+descendant needs merged and
	// sorted hottest-first.
	PrioritySortedParentScopes []int

	// RegisterPlan maps an ancestor depth to where its frame pointer is
	// held while this scope (or a function rooted at it) executes.
	RegisterPlan map[int]RegisterSlot

	Parent   Handle
	Children []Handle
}

func newNode(depth int, parent Handle, isFunctionScope bool) LexicalScopeNode {
	return LexicalScopeNode{
		Depth:                 depth,
		IsFunctionScope:       isFunctionScope,
		VariableOffsets:       map[string]int{},
		Escapes:               map[string]bool{},
		SelfParentNeeds:       map[int]int{},
		DescendantParentNeeds: map[int]int{},
		RegisterPlan:          map[int]RegisterSlot{},
		Parent:                parent,
		MergedInto:            InvalidHandle,
	}
}

// FindVariable looks up name among this node's own declarations only.
func (n *LexicalScopeNode) FindVariable(name string) (*VariableRecord, bool) {
	for i := range n.DeclaredVariables {
		if n.DeclaredVariables[i].Name == name {
			return &n.DeclaredVariables[i], true
		}
	}
	return nil, false
}
