package scope

// Handle is a numeric reference to a LexicalScopeNode living in an
// Arena. Scopes are never linked by Go pointer in a cyclic back-pointer
// graph (spec.md §9 design note: "Back-pointer graphs in scopes become
// arena-allocated nodes referenced by numeric handles"); a child only
// ever learns its parent's Handle, assigned once when the child is
// created during pass 1, so cycles are structurally impossible.
type Handle int

// InvalidHandle marks the absence of a scope, e.g. the parent of the
// program's top-level scope.
const InvalidHandle Handle = -1

const arenaPageSize = 64

// Arena is a growable pool of LexicalScopeNode values, indexed by
// Handle. This mirrors the page-pool allocator pattern used for
// instruction nodes in the teacher's JIT backend, adapted here to scope
// tree nodes instead of machine instructions.
type Arena struct {
	pages []*[arenaPageSize]LexicalScopeNode
	next  int
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{}
}

// Alloc allocates a new zero-valued node and returns its Handle.
func (a *Arena) Alloc() Handle {
	page, idx := a.next/arenaPageSize, a.next%arenaPageSize
	if page == len(a.pages) {
		a.pages = append(a.pages, &[arenaPageSize]LexicalScopeNode{})
	}
	h := Handle(a.next)
	a.pages[page][idx] = LexicalScopeNode{Parent: InvalidHandle}
	a.next++
	return h
}

// Get returns a pointer to the node for h. The pointer is only valid
// until the arena grows no further writes reallocate existing pages, so
// it may be held across the lifetime of analysis.
func (a *Arena) Get(h Handle) *LexicalScopeNode {
	page, idx := int(h)/arenaPageSize, int(h)%arenaPageSize
	return &a.pages[page][idx]
}

// Len returns the number of allocated nodes.
func (a *Arena) Len() int { return a.next }
