package codegen

import (
	asm "github.com/ultrascript-lang/ultrascript/internal/asm/amd64"
	"github.com/ultrascript-lang/ultrascript/internal/ast"
)

func (c *funcCtx) lowerStmts(stmts []ast.Stmt) {
	for _, s := range stmts {
		c.lowerStmt(s)
	}
}

// lowerBlock runs body inside the scope pass 1 recorded for
// (node, tag), entering and leaving that frame around the statements
// (a no-op frame switch when pass 1 merged the block into its
// enclosing scope).
func (c *funcCtx) lowerBlock(node interface{}, tag string, body []ast.Stmt) {
	leave := c.enterScope(node, tag)
	c.lowerStmts(body)
	leave()
}

func (c *funcCtx) lowerStmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.VarDecl:
		c.lowerVarDecl(st)
	case *ast.FunctionDecl, *ast.ClassDecl:
		// Compiled independently via funcmgr.CompileOrder /
		// internal/classes; a declaration site itself emits nothing.
	case *ast.IfStmt:
		c.lowerIf(st)
	case *ast.WhileStmt:
		c.lowerWhile(st)
	case *ast.ForStmt:
		c.lowerFor(st)
	case *ast.ForEachStmt:
		c.lowerForEach(st)
	case *ast.SwitchStmt:
		c.lowerSwitch(st)
	case *ast.ReturnStmt:
		c.lowerReturn(st)
	case *ast.BreakStmt:
		c.lowerBreak()
	case *ast.BlockStmt:
		c.lowerBlock(st, "body", st.Body)
	case *ast.ExprStmt:
		c.lowerExpr(st.X)
	case *ast.ExportStmt:
		if st.Decl != nil {
			c.lowerStmt(st.Decl)
		}
		if st.Default != nil {
			c.lowerExpr(st.Default)
		}
	case *ast.ImportStmt:
		// Module resolution is the driver's job (SPEC_FULL.md §6); a
		// compiled function body never sees an import as executable
		// code.
	}
}

func (c *funcCtx) lowerVarDecl(st *ast.VarDecl) {
	for _, d := range st.Declarators {
		if d.Init == nil {
			continue
		}
		val := c.lowerExpr(d.Init)
		addr, _, err := c.variableAddress(d.Name)
		if err != nil {
			continue
		}
		c.storeValue(addr, val, d.Type)
	}
}

func (c *funcCtx) lowerIf(st *ast.IfStmt) {
	elseLabel := c.gen.newLabel("else")
	endLabel := c.gen.newLabel("endif")

	cond := c.lowerExpr(st.Cond)
	c.toBool(cond)
	if st.Else != nil {
		c.buf.JccLabel(asm.CondEqual, elseLabel)
	} else {
		c.buf.JccLabel(asm.CondEqual, endLabel)
	}
	c.lowerBlock(st, "then", st.Then)
	if st.Else != nil {
		c.buf.JmpLabel(endLabel)
		c.buf.EmitLabelPlaceholder(elseLabel)
		c.lowerBlock(st, "else", st.Else)
	}
	c.buf.EmitLabelPlaceholder(endLabel)
}

// toBool leaves ZF set such that `je` means "falsy", matching
// spec.md's `test rax, rax; jz else_label` pattern, regardless of
// whether the condition evaluated to an integer or a double (doubles
// are truncated to an integer truthiness check via rax after
// evaluation, see exprResult.materializeInt).
func (c *funcCtx) toBool(v exprResult) {
	r := c.materializeInt(v)
	c.buf.TestRegReg(r, r)
}

func (c *funcCtx) lowerWhile(st *ast.WhileStmt) {
	headLabel := c.gen.newLabel("whilehead")
	endLabel := c.gen.newLabel("whileend")
	c.loopStack = append(c.loopStack, loopCtx{endLabel: endLabel, openScopeDepth: len(c.openScopes)})

	c.buf.EmitLabelPlaceholder(headLabel)
	cond := c.lowerExpr(st.Cond)
	c.toBool(cond)
	c.buf.JccLabel(asm.CondEqual, endLabel)
	c.lowerBlock(st, "body", st.Body)
	c.buf.JmpLabel(headLabel)
	c.buf.EmitLabelPlaceholder(endLabel)

	c.loopStack = c.loopStack[:len(c.loopStack)-1]
}

func (c *funcCtx) lowerFor(st *ast.ForStmt) {
	// A `for` with a let/const init gets its own merged init+body
	// scope (pass1.go's processFor, tag "for"); a var/bare init reuses
	// the enclosing scope and the loop body gets its own "body" scope
	// per iteration only if pass1 decided it needs one.
	leave := c.enterScope(st, "for")
	defer leave()

	if st.Init != nil {
		c.lowerStmt(st.Init)
	}
	headLabel := c.gen.newLabel("forhead")
	endLabel := c.gen.newLabel("forend")
	c.loopStack = append(c.loopStack, loopCtx{endLabel: endLabel, openScopeDepth: len(c.openScopes)})

	c.buf.EmitLabelPlaceholder(headLabel)
	if st.Cond != nil {
		cond := c.lowerExpr(st.Cond)
		c.toBool(cond)
		c.buf.JccLabel(asm.CondEqual, endLabel)
	}
	c.lowerBlock(st, "body", st.Body)
	if st.Post != nil {
		c.lowerStmt(st.Post)
	}
	c.buf.JmpLabel(headLabel)
	c.buf.EmitLabelPlaceholder(endLabel)

	c.loopStack = c.loopStack[:len(c.loopStack)-1]
}

// lowerForEach lowers the inline-index-loop form over an array
// (spec.md §4.6: "load length, cmp i, len; jge end; load element; ...;
// inc i; jmp loop"). Object iteration falls through to the
// property-iteration runtime call.
func (c *funcCtx) lowerForEach(st *ast.ForEachStmt) {
	leave := c.enterScope(st, "foreach")
	defer leave()

	iterable := c.lowerExpr(st.Iterable)
	arr := c.materializeInt(iterable)

	if st.Iterable.Type() != ast.ArrayType && st.Iterable.Type() != ast.SliceType {
		c.buf.MovRegReg(asm.RDI, arr)
		c.buf.CallRuntime("__runtime_array_iterate_properties")
		return
	}

	idxAddr, _, idxErr := c.variableAddress(st.ValueVar)
	_ = idxErr
	lenReg := asm.RCX
	c.buf.MovRegMem(lenReg, c.mem(arr, 0)) // array header: length at offset 0
	idxReg := asm.RDX
	c.buf.XorRegReg(idxReg, idxReg)

	headLabel := c.gen.newLabel("foreachhead")
	endLabel := c.gen.newLabel("foreachend")
	c.loopStack = append(c.loopStack, loopCtx{endLabel: endLabel, openScopeDepth: len(c.openScopes)})

	c.buf.EmitLabelPlaceholder(headLabel)
	c.buf.CmpRegReg(idxReg, lenReg)
	c.buf.JccLabel(asm.CondGreaterEqual, endLabel)

	if !st.ValueOnly {
		keyAddr, _, err := c.variableAddress(st.KeyVar)
		if err == nil {
			c.buf.MovMemReg(keyAddr, idxReg)
		}
	}
	elemReg := asm.RBX
	elemMem := asm.MemoryOperand{Base: arr, HasIndex: true, Index: idxReg, Scale: 8, Disp: 8}
	c.buf.MovRegMem(elemReg, elemMem)
	if idxErr == nil {
		c.buf.MovMemReg(idxAddr, elemReg)
	}

	c.lowerBlock(st, "body", st.Body)
	c.buf.AddRegImm32(idxReg, 1)
	c.buf.JmpLabel(headLabel)
	c.buf.EmitLabelPlaceholder(endLabel)

	c.loopStack = c.loopStack[:len(c.loopStack)-1]
}

// lowerSwitch emits a chain of cmp/je per case (spec.md §4.6). The
// dense-jump-table form for a compact small-integer range isn't
// implemented yet — see the TODO below — so every switch currently
// compiles to the comparison-chain path regardless of how dense its
// case values are.
func (c *funcCtx) lowerSwitch(st *ast.SwitchStmt) {
	leave := c.enterScope(st, "switch")
	defer leave()

	disc := c.lowerExpr(st.Discriminant)
	discReg := c.materializeInt(disc)

	endLabel := c.gen.newLabel("switchend")
	c.loopStack = append(c.loopStack, loopCtx{endLabel: endLabel, openScopeDepth: len(c.openScopes)})

	// TODO: when every case value is a small integer literal within a
	// compact range, emit an indirect jump through a label table
	// instead of this comparison chain.
	var caseLabels []string
	defaultLabel := ""
	for i := range st.Cases {
		cs := &st.Cases[i]
		label := c.gen.newLabel("case")
		caseLabels = append(caseLabels, label)
		if len(cs.Values) == 0 {
			defaultLabel = label
			continue
		}
		for _, v := range cs.Values {
			val := c.lowerExpr(v)
			valReg := c.materializeInt(val)
			c.buf.CmpRegReg(discReg, valReg)
			c.buf.JccLabel(asm.CondEqual, label)
		}
	}
	if defaultLabel != "" {
		c.buf.JmpLabel(defaultLabel)
	} else {
		c.buf.JmpLabel(endLabel)
	}
	for i := range st.Cases {
		c.buf.EmitLabelPlaceholder(caseLabels[i])
		c.lowerBlock(&st.Cases[i], "case", st.Cases[i].Body)
	}
	c.buf.EmitLabelPlaceholder(endLabel)

	c.loopStack = c.loopStack[:len(c.loopStack)-1]
}

func (c *funcCtx) lowerReturn(st *ast.ReturnStmt) {
	if st.Value != nil {
		v := c.lowerExpr(st.Value)
		c.materializeReturn(v)
	}
	if n := c.unwindTo(0); n > 0 {
		c.buf.AddRegImm32(asm.RSP, n)
	}
	c.buf.JmpLabel(c.epilogueLabel)
}

func (c *funcCtx) lowerBreak() {
	if len(c.loopStack) == 0 {
		return
	}
	top := c.loopStack[len(c.loopStack)-1]
	if n := c.unwindTo(top.openScopeDepth); n > 0 {
		c.buf.AddRegImm32(asm.RSP, n)
	}
	c.buf.JmpLabel(top.endLabel)
}
