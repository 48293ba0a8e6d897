package scope

import (
	"github.com/ultrascript-lang/ultrascript/internal/ast"
	"github.com/ultrascript-lang/ultrascript/internal/config"
	"github.com/ultrascript-lang/ultrascript/internal/diaglog"
)

// Tree is the whole-program scope tree produced by the two-pass
// analyzer (spec.md §4.3).
type Tree struct {
	Arena *Arena
	Root  Handle

	// functionScopes maps a function-shaped AST node (by pointer
	// identity: *ast.FunctionDecl, *ast.MethodDecl,
	// *ast.ConstructorDecl, *ast.OperatorOverloadDecl,
	// *ast.FunctionExpr, or *ast.ArrowFunction) to the Handle of the
	// scope pass 1 created for its body.
	functionScopes map[interface{}]Handle

	blockScopes map[blockKey]Handle
}

func (t *Tree) Node(h Handle) *LexicalScopeNode { return t.Arena.Get(h) }

// FunctionScope finds the scope Handle belonging to a function-shaped
// AST node's own body, so internal/codegen can look up a
// funcmgr.Record's frame layout without re-walking the AST.
func (t *Tree) FunctionScope(node interface{}) (Handle, bool) {
	h, ok := t.functionScopes[node]
	return h, ok
}

// BlockScope finds the scope Handle a lexical block actually ran in.
// node/tag must match the (node, tag) pair pass 1 recorded for that
// block — see blockKey's call sites in pass1.go (an if's "then"/"else",
// a while/for's "body", a for-with-let's "for", a foreach's "foreach",
// a switch's "switch", or a case clause's "case"). The returned Handle
// may be the same as the enclosing scope when pass 1 decided no new
// scope was needed for that block.
func (t *Tree) BlockScope(node interface{}, tag string) (Handle, bool) {
	h, ok := t.blockScopes[blockKey{node, tag}]
	return h, ok
}

// Analyze runs both passes over program and returns the finished tree.
// log may be diaglog.NoOp() in tests.
func Analyze(program *ast.Program, cfg config.Config, log *diaglog.Logger) (*Tree, error) {
	t := &Tree{Arena: NewArena()}
	p := &pass1{tree: t, log: log}
	t.Root = p.run(program)
	t.functionScopes = p.functionScopes
	t.blockScopes = p.blockScopes

	p2 := &pass2{tree: t, cfg: cfg, log: log, uses: p.uses}
	if err := p2.run(); err != nil {
		return nil, err
	}
	return t, nil
}
