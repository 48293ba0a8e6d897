// Package loader is the JIT loader (spec.md §4.7): it takes the
// finished internal/codegen.Module, maps one page-aligned executable
// region, copies every function's code into it, resolves the two
// classes of deferred patch (runtime ABI calls and function-instance
// addresses), flips the region executable, and hands control to the
// external goroutine runtime to run "main".
//
// mmap/mprotect go through golang.org/x/sys/unix rather than raw
// syscall numbers, matching how the broader ecosystem (and the
// mmap-backed block device in the reference pack) wraps them.
package loader

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ultrascript-lang/ultrascript/internal/codegen"
	"github.com/ultrascript-lang/ultrascript/internal/diag"
	"github.com/ultrascript-lang/ultrascript/internal/diaglog"
	"github.com/ultrascript-lang/ultrascript/internal/funcmgr"
	"github.com/ultrascript-lang/ultrascript/internal/runtimeabi"
)

// Runtime is the loader's entire contract with the goroutine runtime
// (spec.md §5: "treated as an external collaborator" — its scheduler,
// GC, and class/property metadata are specified and implemented
// elsewhere). ResolveTrampoline supplies the address the loader
// patches into every CallRuntime call site in the mapped region;
// SpawnMainGoroutine/WaitForMainGoroutine are the two calls the loader
// itself makes, once, to actually run the compiled program.
type Runtime interface {
	ResolveTrampoline(symbol string) (uintptr, bool)
	SpawnMainGoroutine(mainAddr uintptr)
	WaitForMainGoroutine()
}

// Program is a loaded, executable module: a live mmap region plus the
// address of its "main" entry point. Per spec.md §4.7's closing note,
// the region is intentionally never unmapped by this package — any
// goroutine still draining when the driver exits may still hold
// function addresses from the region's function table, so only the OS
// reclaiming the pages at process exit is safe.
type Program struct {
	region   []byte
	mainAddr uintptr
	rt       Runtime
}

// Run spawns main as the root goroutine and blocks until it completes
// (spec.md §4.7 step 8).
func (p *Program) Run() {
	p.rt.SpawnMainGoroutine(p.mainAddr)
	p.rt.WaitForMainGoroutine()
}

// MainAddr returns the machine address of the compiled program's entry
// point, mostly useful for tests that want to assert on it without
// actually running the region.
func (p *Program) MainAddr() uintptr { return p.mainAddr }

// Loader owns the mmap lifecycle for one compiled Module.
type Loader struct {
	log *diaglog.Logger
}

func New(log *diaglog.Logger) *Loader {
	if log == nil {
		log = diaglog.NoOp()
	}
	return &Loader{log: log}
}

// funcLayout records where one FunctionCode's bytes landed inside the
// mapped region, so step 4/5's patches (recorded as offsets relative to
// the function's own buffer) can be translated to absolute region
// offsets.
type funcLayout struct {
	fn     *codegen.FunctionCode
	offset int
}

// Load implements spec.md §4.7 steps 1-7: everything up to (but not
// including) actually running the program.
func (l *Loader) Load(mod *codegen.Module, funcMgr *funcmgr.Manager, rt Runtime) (*Program, error) {
	layouts, totalSize, mainOffset, mainFound := layOut(mod)
	if !mainFound {
		return nil, diag.LoaderError("__main label not found")
	}

	pageSize := unix.Getpagesize()
	size := roundUpToPage(totalSize, pageSize)
	if size == 0 {
		size = pageSize
	}

	region, err := mmapRW(size)
	if err != nil {
		return nil, diag.LoaderError("mmap failed: %v", err).Wrap(err)
	}

	for _, fl := range layouts {
		copy(region[fl.offset:], fl.fn.Buffer.Bytes())
	}

	base := uintptr(unsafe.Pointer(&region[0]))

	if err := l.resolveRuntimeCalls(region, base, layouts, rt); err != nil {
		_ = unix.Munmap(region)
		return nil, err
	}

	addrTable := funcMgr.AssignAddresses(uint64(base))
	for _, fl := range layouts {
		for _, p := range fl.fn.Buffer.FunctionInstancePatches() {
			addr, ok := addrTable[p.FunctionID]
			if !ok {
				_ = unix.Munmap(region)
				return nil, diag.LoaderError("no machine address recorded for function_id %d", p.FunctionID)
			}
			absOffset := fl.offset + p.Offset
			patchAbsolute(region, absOffset, addr)
		}
	}
	// main's own body may itself reference another function's address
	// (e.g. top-level code assigning a function expression to a
	// variable); it was laid out like any other buffer above, so its
	// patches are resolved in the same loop via layouts.

	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(region)
		return nil, diag.LoaderError("mprotect failed: %v", err).Wrap(err)
	}

	l.log.Stage("loader").WithField("size", size).WithField("functions", len(layouts)).Debugf("mapped module at 0x%x", base)

	return &Program{region: region, mainAddr: base + uintptr(mainOffset), rt: rt}, nil
}

// layOut concatenates every function's bytes in Module.Functions order
// and records each one's starting offset, mirroring
// funcmgr.Manager.Compile's offset bookkeeping (which internal/codegen
// doesn't drive directly, since it builds every FunctionCode up front
// rather than through a streaming emit callback).
func layOut(mod *codegen.Module) (layouts []funcLayout, totalSize int, mainOffset int, mainFound bool) {
	offset := 0
	for i := range mod.Functions {
		fn := &mod.Functions[i]
		layouts = append(layouts, funcLayout{fn: fn, offset: offset})
		if fn.Record != nil {
			fn.Record.CodeOffset = offset
			fn.Record.CodeSize = fn.Buffer.Len()
		}
		if fn.Name == "main" {
			mainOffset = offset
			mainFound = true
		}
		offset += fn.Buffer.Len()
	}
	return layouts, offset, mainOffset, mainFound
}

// resolveRuntimeCalls implements step 4: for every unresolved runtime
// call site, look up the trampoline's address through rt and patch the
// rel32 displacement from the call site to it.
func (l *Loader) resolveRuntimeCalls(region []byte, base uintptr, layouts []funcLayout, rt Runtime) error {
	for _, fl := range layouts {
		for _, call := range fl.fn.Buffer.UnresolvedRuntimeCalls() {
			if !runtimeabi.IsKnown(call.Symbol) {
				return diag.LoaderError("unresolved runtime call: %s", call.Symbol)
			}
			addr, ok := rt.ResolveTrampoline(call.Symbol)
			if !ok {
				return diag.LoaderError("unresolved runtime call: %s", call.Symbol)
			}
			absOffset := fl.offset + call.Offset
			instrEnd := uint64(base) + uint64(absOffset) + 4
			patchRel32(region, absOffset, uint64(addr), instrEnd)
		}
	}
	return nil
}

func roundUpToPage(n, pageSize int) int {
	if pageSize <= 0 {
		return n
	}
	return (n + pageSize - 1) / pageSize * pageSize
}

// mmapRW implements spec.md §4.7 step 2: a page-aligned, private,
// anonymous RW mapping big enough to hold the whole module.
func mmapRW(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// patchAbsolute overwrites the 8-byte immediate slot reserved by
// asm_amd64.MovFunctionAddress once that function's real address is
// known, directly in the mapped region (the per-function CodeBuffer's
// own PatchAbsoluteAddress writes to its own, now-superseded backing
// array; step 3 already copied those bytes into region).
func patchAbsolute(region []byte, offset int, addr uint64) {
	binary.LittleEndian.PutUint64(region[offset:offset+8], addr)
}

// patchRel32 overwrites the 4-byte call displacement reserved by
// asm_amd64.CallRuntime once the target trampoline's address is known.
func patchRel32(region []byte, offset int, target, instrEnd uint64) {
	rel := int32(int64(target) - int64(instrEnd))
	binary.LittleEndian.PutUint32(region[offset:offset+4], uint32(rel))
}
