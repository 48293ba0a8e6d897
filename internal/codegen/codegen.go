// Package codegen is the AST code generator (spec.md §4.6): the
// largest subsystem, owning an instruction builder, the scope
// analyzer's result, and the function compilation manager, and
// lowering every AST node to x86-64 machine code.
//
// Scoping decision (see DESIGN.md): a function literal (FunctionExpr,
// ArrowFunction) evaluates to a heap-allocated {code_addr, env_ptr}
// closure record. env_ptr points at an array of the ancestor frame
// pointers the literal's scope needs (loadAncestorEnvInto); a call
// through the closure passes that array in r10, and the callee's
// prologue copies it to rbx and loads each ancestor pointer into the
// register or stack slot its RegisterPlan assigns. Within one function
// body, nested block scopes (if/while/for/switch bodies) share a single
// activation: entering a nested scope pushes the current r15 and
// switches to a fresh frame; leaving it pops r15 back. r12-r14 and a
// small fixed stack-slot area cache ancestor frame pointers for
// descendants per scope.LexicalScopeNode.RegisterPlan, as spec.md §4.6
// describes.
package codegen

import (
	"fmt"

	asm "github.com/ultrascript-lang/ultrascript/internal/asm/amd64"
	"github.com/ultrascript-lang/ultrascript/internal/ast"
	"github.com/ultrascript-lang/ultrascript/internal/classes"
	"github.com/ultrascript-lang/ultrascript/internal/config"
	"github.com/ultrascript-lang/ultrascript/internal/diag"
	"github.com/ultrascript-lang/ultrascript/internal/diaglog"
	"github.com/ultrascript-lang/ultrascript/internal/funcmgr"
	"github.com/ultrascript-lang/ultrascript/internal/scope"
)

// ancestorSlotCount is the fixed number of stack-resident ancestor
// pointer slots reserved in every function's prologue, for ancestor
// depths beyond the r12-r14 register pool. A fixed size is a
// deliberate simplification over computing each function's actual
// maximum RegisterPlan stack-slot usage (see DESIGN.md).
const ancestorSlotCount = 4

// FunctionCode is one compiled function body: either a real
// funcmgr.Record, or the synthetic top-level entry (Record == nil,
// Name == "main") that spec.md §4.7 step 7 requires the loader to
// locate by label.
type FunctionCode struct {
	Name   string
	Record *funcmgr.Record
	Buffer *asm.CodeBuffer
}

// Module is the complete output of code generation: one CodeBuffer per
// function, each independently label-validated and, unless
// Config.DisablePeephole is set or the body embeds inline data,
// peephole-optimized, ready for internal/funcmgr.Compile-style offset assignment and
// concatenation by the loader.
type Module struct {
	Functions []FunctionCode
}

// Generator lowers a whole program to a Module.
type Generator struct {
	funcMgr   *funcmgr.Manager
	scopeTree *scope.Tree
	classes   *classes.Registry
	cfg       config.Config
	log       *diaglog.Logger

	// recordByNode indexes funcMgr's records by their originating AST
	// node, so a FunctionExpr/ArrowFunction used as a value (which may
	// have no name at all — funcmgr.Manager.Lookup only resolves by
	// name) can still be paired with its compiled Record during
	// expression lowering.
	recordByNode map[interface{}]*funcmgr.Record

	labelCounter int
}

// New builds a Generator over the results of the earlier pipeline
// stages.
func New(funcMgr *funcmgr.Manager, scopeTree *scope.Tree, classReg *classes.Registry, cfg config.Config, log *diaglog.Logger) *Generator {
	byNode := make(map[interface{}]*funcmgr.Record, len(funcMgr.Records()))
	for _, r := range funcMgr.Records() {
		byNode[r.Node] = r
	}
	return &Generator{funcMgr: funcMgr, scopeTree: scopeTree, classes: classReg, cfg: cfg, log: log, recordByNode: byNode}
}

func (g *Generator) newLabel(tag string) string {
	g.labelCounter++
	return fmt.Sprintf("__L%s_%d", tag, g.labelCounter)
}

// Generate lowers program's top-level statements into the synthetic
// "main" entry and every function discovered by funcMgr.Discover into
// its own FunctionCode, in funcMgr.CompileOrder (innermost-first, so a
// reference to a nested function's id is always valid, spec.md §4.4).
func (g *Generator) Generate(program *ast.Program) (*Module, error) {
	mod := &Module{}

	mainFn, err := g.genMain(program)
	if err != nil {
		return nil, err
	}
	mod.Functions = append(mod.Functions, *mainFn)

	// A top-level `function main() {...}` declaration still gets a
	// normal funcmgr.Record (a dense function_id, a place in
	// CompileOrder among its peers), but its body already ran inside
	// genMain's own "main" label above — it isn't compiled a second
	// time under its own label, which would otherwise produce two
	// FunctionCode entries both named "main".
	mainDecl := findTopLevelMain(program.Body)
	for _, rec := range g.funcMgr.CompileOrder() {
		if mainDecl != nil && rec.Node == mainDecl {
			continue
		}
		fc, err := g.genFunction(rec)
		if err != nil {
			return nil, err
		}
		mod.Functions = append(mod.Functions, *fc)
	}
	return mod, nil
}

func (g *Generator) genMain(program *ast.Program) (*FunctionCode, error) {
	buf := asm.NewCodeBuffer()
	buf.EmitLabelPlaceholder("main")

	entryScope := g.scopeTree.Root
	entryBody := program.Body
	if mainDecl := findTopLevelMain(program.Body); mainDecl != nil {
		// A top-level `function main() {...}` declaration (the shape
		// every spec.md §8 golden scenario uses) names the program's
		// entry point explicitly. Its body runs under the synthetic
		// "main" label directly rather than through a second, separately
		// addressable function sharing that name (Generate skips
		// recompiling its Record below) — but pass1 gave it its own
		// scope.Tree.FunctionScope like any other function, so its body
		// must still run in that scope, not Root.
		h, ok := g.scopeTree.FunctionScope(mainDecl)
		if !ok {
			return nil, diag.CodegenError("internal: no scope recorded for top-level main")
		}
		entryScope, entryBody = h, mainDecl.Body
	}

	ctx := &funcCtx{gen: g, buf: buf}
	if err := ctx.emitPrologue(entryScope, nil, false); err != nil {
		return nil, err
	}
	ctx.epilogueLabel = g.newLabel("epilogue")
	ctx.lowerStmts(entryBody)
	buf.EmitLabelPlaceholder(ctx.epilogueLabel)
	ctx.emitEpilogue()

	if err := buf.ValidateAllLabelsResolved(); err != nil {
		return nil, err
	}
	if !g.cfg.DisablePeephole && !ctx.hasInlineData {
		buf.Peephole()
	}
	return &FunctionCode{Name: "main", Buffer: buf}, nil
}

// findTopLevelMain returns the top-level `function main() {...}`
// declaration in body, if one exists.
func findTopLevelMain(body []ast.Stmt) *ast.FunctionDecl {
	for _, s := range body {
		if fd, ok := s.(*ast.FunctionDecl); ok && fd.Name == "main" {
			return fd
		}
	}
	return nil
}

func (g *Generator) genFunction(rec *funcmgr.Record) (*FunctionCode, error) {
	ownHandle, ok := g.scopeTree.FunctionScope(rec.Node)
	if !ok {
		return nil, diag.CodegenError("internal: no scope recorded for function %s", rec.DebugName)
	}
	buf := asm.NewCodeBuffer()
	ctx := &funcCtx{gen: g, buf: buf, record: rec}
	if err := ctx.emitPrologue(ownHandle, rec.Params, rec.IsMethod); err != nil {
		return nil, err
	}
	ctx.epilogueLabel = g.newLabel("epilogue")
	ctx.lowerStmts(rec.Body)
	buf.EmitLabelPlaceholder(ctx.epilogueLabel)
	ctx.emitEpilogue()

	if err := buf.ValidateAllLabelsResolved(); err != nil {
		return nil, err
	}
	if !g.cfg.DisablePeephole && !ctx.hasInlineData {
		buf.Peephole()
	}
	if g.log != nil {
		g.log.Stage("codegen").WithField("function_id", rec.FunctionID).Debugf("compiled %s (%d bytes)", rec.DebugName, buf.Len())
	}
	return &FunctionCode{Name: rec.DebugName, Record: rec, Buffer: buf}, nil
}
