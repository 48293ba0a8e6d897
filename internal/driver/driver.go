package driver

import (
	"os"

	"github.com/ultrascript-lang/ultrascript/internal/ast"
	"github.com/ultrascript-lang/ultrascript/internal/classes"
	"github.com/ultrascript-lang/ultrascript/internal/codegen"
	"github.com/ultrascript-lang/ultrascript/internal/config"
	"github.com/ultrascript-lang/ultrascript/internal/diaglog"
	"github.com/ultrascript-lang/ultrascript/internal/funcmgr"
	"github.com/ultrascript-lang/ultrascript/internal/loader"
	"github.com/ultrascript-lang/ultrascript/internal/scope"
)

// Driver sequences every pipeline stage named in spec.md §2's component
// table (A through G): resolve and parse, discover functions, analyze
// scopes, finalize classes, generate code, and load. It owns nothing
// the stages themselves don't already own (spec.md §5's resource
// lifetimes); it just threads one Config and one Logger through all of
// them, matching every stage's existing constructor shape.
type Driver struct {
	cfg config.Config
	log *diaglog.Logger
}

func New(cfg config.Config, log *diaglog.Logger) *Driver {
	if log == nil {
		log = diaglog.NoOp()
	}
	return &Driver{cfg: cfg, log: log}
}

// Result is everything Compile produces: the generated module and the
// function manager that owns its records, ready to hand to a Loader.
// The entry module's import graph (and any circular-import warnings) is
// carried alongside for callers that want to report it.
type Result struct {
	Module  *codegen.Module
	FuncMgr *funcmgr.Manager
	Graph   *ModuleGraph
	Entry   *Module
}

// Compile runs stages A-F (parse, scope analysis, function discovery,
// class finalization, codegen) on the entry file at path, resolving and
// lazily parsing its import graph along the way. It returns a
// *diag.Error for any user-facing failure; the caller is expected to
// render it with diag.Reporter.
func (d *Driver) Compile(path string) (*Result, error) {
	graph := NewModuleGraph(d.log)
	entry, err := graph.Load(path)
	if err != nil {
		return nil, err
	}
	program := entry.Program

	fm := funcmgr.New(d.log)
	fm.Discover(program)

	tree, err := scope.Analyze(program, d.cfg, d.log)
	if err != nil {
		return nil, err
	}

	classReg := classes.NewRegistry()
	if err := classReg.Finalize(program); err != nil {
		return nil, err
	}

	gen := codegen.New(fm, tree, classReg, d.cfg, d.log)
	mod, err := gen.Generate(program)
	if err != nil {
		return nil, err
	}

	return &Result{Module: mod, FuncMgr: fm, Graph: graph, Entry: entry}, nil
}

// Check runs only parse + scope analysis (stages A-C), the `--check`
// mode cobra exposes for editor tooling: enough to surface every lex,
// parse, and semantic error without paying for codegen or the JIT load.
func (d *Driver) Check(path string) (*ast.Program, error) {
	graph := NewModuleGraph(d.log)
	entry, err := graph.Load(path)
	if err != nil {
		return nil, err
	}
	if _, err := scope.Analyze(entry.Program, d.cfg, d.log); err != nil {
		return nil, err
	}
	return entry.Program, nil
}

// Run compiles path and loads it, then executes main against rt
// (spec.md §4.7 step 8). rt is supplied by the embedding host: the
// goroutine scheduler is an external collaborator (spec.md §1, §5) this
// repository does not implement.
func (d *Driver) Run(path string, rt loader.Runtime) (*loader.Program, error) {
	res, err := d.Compile(path)
	if err != nil {
		return nil, err
	}
	ld := loader.New(d.log)
	prog, err := ld.Load(res.Module, res.FuncMgr, rt)
	if err != nil {
		return nil, err
	}
	prog.Run()
	return prog, nil
}

// ReadSource reads a file's contents for the reporter to render
// excerpts against; kept here so cmd/ultrascript doesn't need to know
// the entry path was re-read rather than cached from Compile.
func ReadSource(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
