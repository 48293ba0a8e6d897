package driver

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultrascript-lang/ultrascript/internal/config"
	"github.com/ultrascript-lang/ultrascript/internal/diaglog"
)

// fakeRuntime stands in for the external goroutine runtime (spec.md
// §5) the same way internal/loader's own test double does: every
// trampoline this module's console.log call sites could need resolves
// to a distinguishable nonzero address, and Run is recorded rather
// than actually dispatched into the mapped region.
type fakeRuntime struct {
	mu      sync.Mutex
	spawned []uintptr
	waited  int
}

func newFakeRuntime() *fakeRuntime { return &fakeRuntime{} }

func (f *fakeRuntime) ResolveTrampoline(symbol string) (uintptr, bool) {
	return 0x1000, true
}

func (f *fakeRuntime) SpawnMainGoroutine(mainAddr uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, mainAddr)
}

func (f *fakeRuntime) WaitForMainGoroutine() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waited++
}

func newTestDriver() *Driver {
	return New(config.Default(), diaglog.NoOp())
}

func TestCompileProducesMainAndEveryTopLevelFunction(t *testing.T) {
	dir := t.TempDir()
	entry := writeFile(t, dir, "main.gts", `
function double(x: int32): int32 {
	return x + x;
}
function main() {
	console.log(double(21));
}
`)

	res, err := newTestDriver().Compile(entry)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotNil(t, res.Module)
	require.NotNil(t, res.Entry)

	var names []string
	for _, fn := range res.Module.Functions {
		names = append(names, fn.Name)
	}
	assert.Contains(t, names, "main")
	assert.Contains(t, names, "double")
	assert.Len(t, res.Module.Functions, 2, "an explicit top-level main must not also compile a second time under its own label")

	_, ok := res.FuncMgr.Lookup("double")
	assert.True(t, ok)
}

func TestCompileResolvesImportsAcrossModules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "util.gts", "export function helper(): int32 { return 7; }\n")
	entry := writeFile(t, dir, "main.gts", `import { helper } from "./util";
function main() {
	console.log(helper());
}
`)

	res, err := newTestDriver().Compile(entry)
	require.NoError(t, err)
	assert.Empty(t, res.Graph.Cycles)

	utilPath, err := ResolveModule(entry, "./util")
	require.NoError(t, err)
	assert.Contains(t, res.Graph.modules, utilPath)
}

func TestCompileFailsOnUnresolvedImportBeforeCodegen(t *testing.T) {
	dir := t.TempDir()
	entry := writeFile(t, dir, "main.gts", `import { x } from "./nope";
function main() { console.log(x); }
`)

	_, err := newTestDriver().Compile(entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot open module file")
}

func TestCompileFailsOnUnresolvedIdentifier(t *testing.T) {
	dir := t.TempDir()
	entry := writeFile(t, dir, "main.gts", `
function main() {
	console.log(doesNotExist);
}
`)

	_, err := newTestDriver().Compile(entry)
	require.Error(t, err, "an undeclared identifier must fail scope analysis before codegen ever runs")
}

func TestCheckStopsBeforeCodegenAndReturnsParsedProgram(t *testing.T) {
	dir := t.TempDir()
	entry := writeFile(t, dir, "main.gts", `
function main() {
	let x: int32 = 1;
	console.log(x);
}
`)

	program, err := newTestDriver().Check(entry)
	require.NoError(t, err)
	require.NotNil(t, program)
	assert.NotEmpty(t, program.Body)
}

func TestCheckSurfacesScopeErrorsWithoutCodegen(t *testing.T) {
	dir := t.TempDir()
	entry := writeFile(t, dir, "main.gts", `
function main() {
	console.log(doesNotExist);
}
`)

	_, err := newTestDriver().Check(entry)
	require.Error(t, err)
}

func TestCheckFailsWithSpecModuleMessageOnBadImport(t *testing.T) {
	dir := t.TempDir()
	entry := writeFile(t, dir, "main.gts", `import { x } from "./nope";
function main() { console.log(x); }
`)

	_, err := newTestDriver().Check(entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot open module file")
}

// TestRunLoadsAndSpawnsMain exercises the full pipeline through the
// loader and a fake Runtime (spec.md §4.7 step 8), asserting the
// driver hands the loader a real, resolvable main address without
// ever jumping into the mapped region itself.
func TestRunLoadsAndSpawnsMain(t *testing.T) {
	dir := t.TempDir()
	entry := writeFile(t, dir, "main.gts", `
function main() {
	console.log(1);
}
`)

	rt := newFakeRuntime()
	prog, err := newTestDriver().Run(entry, rt)
	require.NoError(t, err)
	require.NotNil(t, prog)

	assert.NotZero(t, prog.MainAddr())
	assert.Equal(t, []uintptr{prog.MainAddr()}, rt.spawned)
	assert.Equal(t, 1, rt.waited)
}

func TestRunFailsWhenCompileFails(t *testing.T) {
	dir := t.TempDir()
	entry := writeFile(t, dir, "main.gts", `import { x } from "./nope";
function main() { console.log(x); }
`)

	_, err := newTestDriver().Run(entry, newFakeRuntime())
	require.Error(t, err)
}

func TestReadSourceReturnsFileContents(t *testing.T) {
	dir := t.TempDir()
	entry := writeFile(t, dir, "main.gts", "function main() {}\n")

	src, err := ReadSource(entry)
	require.NoError(t, err)
	assert.Equal(t, "function main() {}\n", src)
}

func TestReadSourceFailsOnMissingFile(t *testing.T) {
	_, err := ReadSource(filepath.Join(t.TempDir(), "missing.gts"))
	require.Error(t, err)
}
