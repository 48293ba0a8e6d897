package scope

import (
	"sort"

	"github.com/ultrascript-lang/ultrascript/internal/config"
	"github.com/ultrascript-lang/ultrascript/internal/diag"
	"github.com/ultrascript-lang/ultrascript/internal/diaglog"
)

// builtinGlobals are identifiers the analyzer must not report as
// unresolved even though no user scope declares them: they name
// external collaborators (spec.md §1, §6), not compiler-tracked
// variables.
var builtinGlobals = map[string]bool{
	"console": true, "runtime": true, "Math": true, "JSON": true,
	"Promise": true, "Object": true, "Array": true, "String": true,
	"Number": true, "Boolean": true, "undefined": true, "NaN": true,
	"Infinity": true, "globalThis": true,
}

// pass2 implements spec.md §4.3 "Pass 2 — escape analysis and access
// plan".
type pass2 struct {
	tree *Tree
	cfg  config.Config
	log  *diaglog.Logger
	uses []useSite
}

func (p *pass2) run() error {
	for _, u := range p.uses {
		if err := p.resolveAndRecord(u); err != nil {
			return err
		}
	}
	for h := 0; h < p.tree.Arena.Len(); h++ {
		p.computeRegisterPlan(Handle(h))
		if err := p.computeOffsets(Handle(h)); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass2) nearestFunctionScope(h Handle) Handle {
	for h != InvalidHandle {
		n := p.tree.Node(h)
		if n.IsFunctionScope {
			return h
		}
		h = n.Parent
	}
	return InvalidHandle
}

func (p *pass2) resolveAndRecord(u useSite) error {
	if builtinGlobals[u.name] {
		return nil
	}
	defScope := InvalidHandle
	for h := u.scope; h != InvalidHandle; h = p.tree.Node(h).Parent {
		if _, ok := p.tree.Node(h).FindVariable(u.name); ok {
			defScope = h
			break
		}
		for _, f := range p.tree.Node(h).DeclaredFunctions {
			if f == u.name {
				// A hoisted function declaration, not a frame variable.
				return nil
			}
		}
	}
	if defScope == InvalidHandle {
		return diag.SemanticError(u.pos, "unresolved identifier %s", u.name)
	}

	defNode := p.tree.Node(defScope)
	useNode := p.tree.Node(u.scope)
	if defNode.Depth > useNode.Depth {
		// Arena construction only ever parents a deeper scope under a
		// shallower one, so a defining scope strictly above the use in
		// depth but reached by walking parents is structurally
		// impossible; this would only fire on an internal bug.
		return diag.CodegenError("internal: defining scope depth %d exceeds using scope depth %d for %s",
			defNode.Depth, useNode.Depth, u.name)
	}

	if v, ok := defNode.FindVariable(u.name); ok {
		v.UseCount++
	}

	if defScope != u.scope {
		defDepth := defNode.Depth
		useNode.SelfParentNeeds[defDepth] += defNode.useFrequencyOf(u.name)

		for walk := p.tree.Node(u.scope).Parent; walk != InvalidHandle && walk != defScope; walk = p.tree.Node(walk).Parent {
			p.tree.Node(walk).DescendantParentNeeds[defDepth]++
		}
	}

	if p.nearestFunctionScope(u.scope) != p.nearestFunctionScope(defScope) {
		defNode.Escapes[u.name] = true
	}
	return nil
}

func (n *LexicalScopeNode) useFrequencyOf(name string) int {
	if v, ok := n.FindVariable(name); ok {
		if v.UseCount == 0 {
			return 1
		}
		return v.UseCount
	}
	return 1
}

func (p *pass2) computeRegisterPlan(h Handle) {
	n := p.tree.Node(h)
	freq := map[int]int{}
	for depth, f := range n.SelfParentNeeds {
		freq[depth] += f
	}
	for depth, f := range n.DescendantParentNeeds {
		freq[depth] += f
	}
	depths := make([]int, 0, len(freq))
	for d := range freq {
		depths = append(depths, d)
	}
	sort.Slice(depths, func(i, j int) bool {
		if freq[depths[i]] != freq[depths[j]] {
			return freq[depths[i]] > freq[depths[j]]
		}
		return depths[i] < depths[j]
	})
	n.PrioritySortedParentScopes = depths

	regNames := []string{"r12", "r13", "r14"}
	slot := 0
	for i, depth := range depths {
		if i < len(regNames) {
			n.RegisterPlan[depth] = RegisterSlot{IsRegister: true, Register: regNames[i]}
		} else {
			n.RegisterPlan[depth] = RegisterSlot{IsRegister: false, StackSlot: slot}
			slot++
		}
	}
}

func (p *pass2) computeOffsets(h Handle) error {
	// A CanBeOptimizedAway scope still gets its own frame layout: the
	// back end decides at codegen time whether to fold it into
	// MergedInto, so every scope must be self-consistent regardless.
	n := p.tree.Node(h)
	groups := map[int][]*VariableRecord{}
	for i := range n.DeclaredVariables {
		v := &n.DeclaredVariables[i]
		a := v.Type.AlignOf()
		groups[a] = append(groups[a], v)
	}
	alignments := []int{8, 4, 2, 1}
	offset := 0
	for _, a := range alignments {
		vars := groups[a]
		sort.SliceStable(vars, func(i, j int) bool { return vars[i].UseCount > vars[j].UseCount })
		for _, v := range vars {
			n.VariableOffsets[v.Name] = offset
			v.StackOffset = offset
			offset += v.Type.SizeOf()
		}
	}
	align := p.cfg.ScopeFrameAlignment
	if align <= 0 {
		align = 8
	}
	n.TotalFrameSize = roundUp(offset, align)

	for _, v := range n.DeclaredVariables {
		if n.VariableOffsets[v.Name]+v.Type.SizeOf() > n.TotalFrameSize {
			return diag.CodegenError("internal: variable %s overruns scope frame (offset %d, size %d, frame %d)",
				v.Name, n.VariableOffsets[v.Name], v.Type.SizeOf(), n.TotalFrameSize)
		}
	}
	return nil
}

func roundUp(v, align int) int {
	if align <= 0 {
		return v
	}
	return (v + align - 1) / align * align
}
