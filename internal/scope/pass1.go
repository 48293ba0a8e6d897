package scope

import (
	"github.com/ultrascript-lang/ultrascript/internal/ast"
	"github.com/ultrascript-lang/ultrascript/internal/diag"
	"github.com/ultrascript-lang/ultrascript/internal/diaglog"
)

// useSite records one textual reference to an identifier, found while
// pass 1 walks expressions to discover nested function literals. Pass 2
// resolves each one to its defining scope and builds the escape set and
// access-frequency counts from this list (spec.md §4.3 pass 2).
type useSite struct {
	scope       Handle
	enclosingFn Handle
	name        string
	pos         diag.Position
}

// pass1 implements spec.md §4.3 "Pass 1 — declarations and hoisting".
type pass1 struct {
	tree *Tree
	log  *diaglog.Logger
	uses []useSite

	// functionScopes maps each function-shaped AST node (by pointer
	// identity) to the Handle of the function scope pass 1 created for
	// it, so later stages (internal/codegen) can find a funcmgr.Record's
	// own scope without re-deriving the traversal pass 1 already did.
	functionScopes map[interface{}]Handle

	// blockScopes maps a (owning AST node, branch tag) pair to the
	// Handle its statements actually ran in (which may be the parent
	// Handle, when no new scope was needed). internal/codegen looks
	// these up with the exact same keys while lowering the same AST
	// nodes, instead of re-deriving pass 1's create-or-reuse decision
	// by re-running blockNeedsOwnScope a second time.
	blockScopes map[blockKey]Handle
}

// blockKey identifies one lexical block within a statement that may own
// more than one (an if's "then" vs "else", a switch's per-case bodies).
type blockKey struct {
	node interface{}
	tag  string
}

func (p *pass1) run(program *ast.Program) Handle {
	p.functionScopes = map[interface{}]Handle{}
	p.blockScopes = map[blockKey]Handle{}
	root := p.tree.Arena.Alloc()
	*p.tree.Node(root) = newNode(0, InvalidHandle, true)
	p.processStmts(program.Body, root, root)
	return root
}

// blockNeedsOwnScope reports whether any statement directly in stmts
// (not inside a nested block/function/loop) is a let/const declaration,
// per spec.md §4.3: "let and const are block-scoped; they create a new
// scope node if and only if the block is not entirely var-only."
func blockNeedsOwnScope(stmts []ast.Stmt) bool {
	for _, s := range stmts {
		if vd, ok := s.(*ast.VarDecl); ok && (vd.Kind == ast.DeclLet || vd.Kind == ast.DeclConst) {
			return true
		}
	}
	return false
}

// processBlock processes stmts that form a lexical block (if/while
// body, bare block, etc.), creating a new child scope only when
// required, and returns the scope the statements actually executed in.
// key identifies this block for internal/codegen's later lookup via
// Tree.BlockScope. The switch scope and a for-with-let loop scope don't
// go through processBlock; their callers record those keys directly.
func (p *pass1) processBlock(stmts []ast.Stmt, parent, enclosingFn Handle, force bool, key blockKey) Handle {
	create := force || blockNeedsOwnScope(stmts)
	target := parent
	if create {
		h := p.tree.Arena.Alloc()
		parentNode := p.tree.Node(parent)
		*p.tree.Node(h) = newNode(parentNode.Depth+1, parent, false)
		parentNode.Children = append(parentNode.Children, h)
		target = h
	}
	if key.node != nil {
		p.blockScopes[key] = target
	}
	p.processStmts(stmts, target, enclosingFn)
	if create {
		n := p.tree.Node(target)
		if len(n.DeclaredVariables) == 0 {
			n.CanBeOptimizedAway = true
			n.MergedInto = parent
		}
	}
	return target
}

func (p *pass1) processStmts(stmts []ast.Stmt, current, enclosingFn Handle) {
	for _, s := range stmts {
		p.processStmt(s, current, enclosingFn)
	}
}

func (p *pass1) processStmt(s ast.Stmt, current, enclosingFn Handle) {
	switch st := s.(type) {
	case *ast.VarDecl:
		target := current
		if st.Kind == ast.DeclVar {
			target = enclosingFn
		}
		for _, d := range st.Declarators {
			p.declare(target, d.Name, st.Kind, d.Type, d.ClassName)
			if d.Init != nil {
				p.walkExpr(d.Init, current, enclosingFn)
			}
		}
	case *ast.FunctionDecl:
		p.registerFunction(enclosingFn, st.Name)
		h := p.newFunctionScope(current)
		p.functionScopes[st] = h
		p.declareParams(h, st.Params)
		p.processStmts(st.Body, h, h)
	case *ast.ClassDecl:
		p.processClass(st, current)
	case *ast.IfStmt:
		p.walkExpr(st.Cond, current, enclosingFn)
		p.processBlock(st.Then, current, enclosingFn, false, blockKey{st, "then"})
		if st.Else != nil {
			p.processBlock(st.Else, current, enclosingFn, false, blockKey{st, "else"})
		}
	case *ast.WhileStmt:
		p.walkExpr(st.Cond, current, enclosingFn)
		p.processBlock(st.Body, current, enclosingFn, false, blockKey{st, "body"})
	case *ast.ForStmt:
		p.processFor(st, current, enclosingFn)
	case *ast.ForEachStmt:
		p.processForEach(st, current, enclosingFn)
	case *ast.SwitchStmt:
		p.walkExpr(st.Discriminant, current, enclosingFn)
		needsOwn := false
		for _, c := range st.Cases {
			if blockNeedsOwnScope(c.Body) {
				needsOwn = true
			}
		}
		switchScope := current
		if needsOwn {
			h := p.tree.Arena.Alloc()
			pn := p.tree.Node(current)
			*p.tree.Node(h) = newNode(pn.Depth+1, current, false)
			pn.Children = append(pn.Children, h)
			switchScope = h
		}
		p.blockScopes[blockKey{st, "switch"}] = switchScope
		for i := range st.Cases {
			c := &st.Cases[i]
			for _, v := range c.Values {
				p.walkExpr(v, switchScope, enclosingFn)
			}
			p.processBlock(c.Body, switchScope, enclosingFn, false, blockKey{c, "case"})
		}
	case *ast.ReturnStmt:
		if st.Value != nil {
			p.walkExpr(st.Value, current, enclosingFn)
		}
	case *ast.BlockStmt:
		p.processBlock(st.Body, current, enclosingFn, false, blockKey{st, "body"})
	case *ast.ExprStmt:
		p.walkExpr(st.X, current, enclosingFn)
	case *ast.ImportStmt, *ast.ExportStmt, *ast.BreakStmt:
		// No declarations or nested functions to discover.
	}
}

func (p *pass1) processFor(st *ast.ForStmt, current, enclosingFn Handle) {
	if vd, ok := st.Init.(*ast.VarDecl); ok && (vd.Kind == ast.DeclLet || vd.Kind == ast.DeclConst) {
		h := p.tree.Arena.Alloc()
		pn := p.tree.Node(current)
		node := newNode(pn.Depth+1, current, false)
		node.IsLoopIteration = true
		*p.tree.Node(h) = node
		pn.Children = append(pn.Children, h)
		p.blockScopes[blockKey{st, "for"}] = h

		for _, d := range vd.Declarators {
			p.declare(h, d.Name, vd.Kind, d.Type, d.ClassName)
			if d.Init != nil {
				p.walkExpr(d.Init, h, enclosingFn)
			}
		}
		if st.Cond != nil {
			p.walkExpr(st.Cond, h, enclosingFn)
		}
		if st.Post != nil {
			p.processStmt(st.Post, h, enclosingFn)
		}
		p.processStmts(st.Body, h, enclosingFn)
		return
	}

	if st.Init != nil {
		p.processStmt(st.Init, current, enclosingFn)
	}
	if st.Cond != nil {
		p.walkExpr(st.Cond, current, enclosingFn)
	}
	if st.Post != nil {
		p.processStmt(st.Post, current, enclosingFn)
	}
	p.processBlock(st.Body, current, enclosingFn, false, blockKey{st, "body"})
}

func (p *pass1) processForEach(st *ast.ForEachStmt, current, enclosingFn Handle) {
	p.walkExpr(st.Iterable, current, enclosingFn)
	h := p.tree.Arena.Alloc()
	pn := p.tree.Node(current)
	node := newNode(pn.Depth+1, current, false)
	node.IsLoopIteration = true
	*p.tree.Node(h) = node
	pn.Children = append(pn.Children, h)
	p.blockScopes[blockKey{st, "foreach"}] = h

	if !st.ValueOnly {
		p.declare(h, st.KeyVar, ast.DeclLet, ast.Any, "")
	}
	p.declare(h, st.ValueVar, ast.DeclLet, ast.Any, "")
	p.processStmts(st.Body, h, enclosingFn)
}

func (p *pass1) processClass(st *ast.ClassDecl, current Handle) {
	if st.Constructor != nil {
		h := p.newFunctionScope(current)
		p.functionScopes[st.Constructor] = h
		p.declareParams(h, st.Constructor.Params)
		p.processStmts(st.Constructor.Body, h, h)
	}
	for _, m := range st.Methods {
		h := p.newFunctionScope(current)
		p.functionScopes[m] = h
		p.declareParams(h, m.Params)
		p.processStmts(m.Body, h, h)
	}
	for _, op := range st.Operators {
		h := p.newFunctionScope(current)
		p.functionScopes[op] = h
		p.declareParams(h, op.Params)
		p.processStmts(op.Body, h, h)
	}
}

func (p *pass1) newFunctionScope(parent Handle) Handle {
	h := p.tree.Arena.Alloc()
	pn := p.tree.Node(parent)
	*p.tree.Node(h) = newNode(pn.Depth+1, parent, true)
	pn.Children = append(pn.Children, h)
	return h
}

func (p *pass1) declareParams(scope Handle, params []ast.Param) {
	for _, prm := range params {
		p.declare(scope, prm.Name, ast.DeclLet, prm.Type, prm.ClassName)
	}
}

func (p *pass1) declare(scope Handle, name string, kind ast.DeclarationKind, typ ast.DataType, className string) {
	n := p.tree.Node(scope)
	if _, ok := n.FindVariable(name); ok {
		return
	}
	n.DeclaredVariables = append(n.DeclaredVariables, VariableRecord{
		Name:      name,
		DeclKind:  kind,
		Type:      typ,
		ClassName: className,
		IsMutable: kind != ast.DeclConst,
	})
}

func (p *pass1) registerFunction(scope Handle, name string) {
	n := p.tree.Node(scope)
	for _, f := range n.DeclaredFunctions {
		if f == name {
			return
		}
	}
	n.DeclaredFunctions = append(n.DeclaredFunctions, name)
}

// walkExpr discovers function/arrow expressions nested in expr and
// builds their scopes; it does not yet resolve identifier uses (that is
// pass 2's job).
func (p *pass1) walkExpr(e ast.Expr, current, enclosingFn Handle) {
	if e == nil {
		return
	}
	switch x := e.(type) {
	case *ast.Identifier:
		p.uses = append(p.uses, useSite{scope: current, enclosingFn: enclosingFn, name: x.Name, pos: x.Position()})
	case *ast.FunctionExpr:
		h := p.newFunctionScope(current)
		p.functionScopes[x] = h
		p.declareParams(h, x.Params)
		p.processStmts(x.Body, h, h)
	case *ast.ArrowFunction:
		h := p.newFunctionScope(current)
		p.functionScopes[x] = h
		p.declareParams(h, x.Params)
		if x.ExprBody != nil {
			p.walkExpr(x.ExprBody, h, h)
		} else {
			p.processStmts(x.Body, h, h)
		}
	case *ast.BinaryOp:
		p.walkExpr(x.Left, current, enclosingFn)
		p.walkExpr(x.Right, current, enclosingFn)
	case *ast.UnaryOp:
		p.walkExpr(x.Operand, current, enclosingFn)
	case *ast.Ternary:
		p.walkExpr(x.Cond, current, enclosingFn)
		p.walkExpr(x.Then, current, enclosingFn)
		p.walkExpr(x.Else, current, enclosingFn)
	case *ast.Assignment:
		p.walkExpr(x.Target, current, enclosingFn)
		p.walkExpr(x.Value, current, enclosingFn)
	case *ast.PostfixIncDec:
		p.walkExpr(x.Operand, current, enclosingFn)
	case *ast.PropertyAccess:
		p.walkExpr(x.Object, current, enclosingFn)
	case *ast.ComputedPropertyAccess:
		p.walkExpr(x.Object, current, enclosingFn)
		p.walkExpr(x.Key, current, enclosingFn)
	case *ast.PropertyAssignment:
		p.walkExpr(x.Object, current, enclosingFn)
		if x.Key != nil {
			p.walkExpr(x.Key, current, enclosingFn)
		}
		p.walkExpr(x.Value, current, enclosingFn)
	case *ast.ArrayAccess:
		p.walkExpr(x.Array, current, enclosingFn)
		p.walkExpr(x.Index, current, enclosingFn)
	case *ast.SliceExpr:
		p.walkExpr(x.Array, current, enclosingFn)
		p.walkExpr(x.Lo, current, enclosingFn)
		p.walkExpr(x.Hi, current, enclosingFn)
	case *ast.ArrayLit:
		for _, el := range x.Elements {
			p.walkExpr(el, current, enclosingFn)
		}
	case *ast.ObjectLit:
		for _, prop := range x.Properties {
			p.walkExpr(prop.Value, current, enclosingFn)
		}
	case *ast.TypedArrayLit:
		for _, el := range x.Elements {
			p.walkExpr(el, current, enclosingFn)
		}
	case *ast.Call:
		p.walkExpr(x.Callee, current, enclosingFn)
		for _, a := range x.Args {
			p.walkExpr(a, current, enclosingFn)
		}
	case *ast.MethodCall:
		p.walkExpr(x.Object, current, enclosingFn)
		for _, a := range x.Args {
			p.walkExpr(a, current, enclosingFn)
		}
	case *ast.ComputedMethodCall:
		p.walkExpr(x.Object, current, enclosingFn)
		p.walkExpr(x.Name, current, enclosingFn)
		for _, a := range x.Args {
			p.walkExpr(a, current, enclosingFn)
		}
	case *ast.NewExpr:
		for _, a := range x.Args {
			p.walkExpr(a, current, enclosingFn)
		}
		for _, kv := range x.DartArgs {
			p.walkExpr(kv.Value, current, enclosingFn)
		}
	case *ast.SuperCall:
		for _, a := range x.Args {
			p.walkExpr(a, current, enclosingFn)
		}
	case *ast.SuperMethodCall:
		for _, a := range x.Args {
			p.walkExpr(a, current, enclosingFn)
		}
	case *ast.OperatorCall:
		p.walkExpr(x.Left, current, enclosingFn)
		p.walkExpr(x.Right, current, enclosingFn)
	case *ast.GoExpr:
		p.walkExpr(x.Call, current, enclosingFn)
	case *ast.AwaitExpr:
		p.walkExpr(x.Target, current, enclosingFn)
	}
}
