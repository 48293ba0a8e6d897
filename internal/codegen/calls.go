package codegen

import (
	asm "github.com/ultrascript-lang/ultrascript/internal/asm/amd64"
	"github.com/ultrascript-lang/ultrascript/internal/ast"
)

var argRegs = []asm.Reg{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}

// evalArgsInto lowers args left to right, pushing each result to the
// real stack (so evaluating one argument can never clobber a register
// still holding an earlier one), then pops them into the System V
// integer argument registers in order. Mixed int/float arguments are
// normalized to integer registers here; this generator does not thread
// doubles through the XMM argument-class registers for calls, so a
// float-typed parameter arrives as its CvtsdToSi-truncated bit pattern
// — adequate for the integer-heavy programs this compiler targets, not
// a full System V float-argument implementation (see DESIGN.md).
func (c *funcCtx) evalArgsInto(args []ast.Expr, startSlot int) int {
	n := len(args)
	for _, a := range args {
		v := c.lowerExpr(a)
		r := c.materializeInt(v)
		c.buf.PushReg(r)
	}
	for i := n - 1; i >= 0; i-- {
		slot := startSlot + i
		if slot >= len(argRegs) {
			continue // 7th+ call arguments via the stack are not implemented (see DESIGN.md).
		}
		c.buf.PopReg(argRegs[slot])
	}
	return startSlot + n
}

// lowerCall handles a bare function call `f(args)`. A statically known
// target (a top-level function, a function expression bound to a
// name funcmgr.Discover recorded) takes the call_fast path: its
// machine address is a patchable movabs (funcmgr.Record.FunctionID)
// immediately followed by a call through that register. If that target
// itself captures ancestor scopes (a nested function called directly
// by name rather than through a closure value), its environment array
// is built and passed in r10 exactly as lowerFunctionValue builds one
// for a closure value, before any call argument is loaded into a
// register. An unknown callee (a local holding a closure value,
// spec.md §4.6 "Calls" / §8 scenario 3) evaluates to a
// {code_addr, env_ptr} record and calls through its code_addr with
// env_ptr in r10.
func (c *funcCtx) lowerCall(x *ast.Call) exprResult {
	if id, ok := x.Callee.(*ast.Identifier); ok {
		if rec, ok := c.gen.funcMgr.Lookup(id.Name); ok {
			var depths []int
			if h, ok := c.gen.scopeTree.FunctionScope(rec.Node); ok {
				depths = c.gen.scopeTree.Node(h).PrioritySortedParentScopes
			}
			needsEnv := len(depths) > 0
			if needsEnv {
				c.loadAncestorEnvInto(asm.RBX, depths)
				c.buf.PushReg(asm.RBX)
			}
			c.evalArgsInto(x.Args, 0)
			if needsEnv {
				c.buf.PopReg(asm.R10)
			}
			c.buf.MovFunctionAddress(asm.RAX, rec.FunctionID)
			c.buf.CallReg(asm.RAX)
			return exprResult{isFloat: isFloatType(rec.Ret)}
		}
	}
	callee := c.lowerExpr(x.Callee)
	calleeReg := c.materializeInt(callee)
	c.buf.PushReg(calleeReg)
	c.evalArgsInto(x.Args, 0)
	c.buf.PopReg(asm.RBX)
	c.buf.MovRegMem(asm.R10, c.mem(asm.RBX, 8))
	c.buf.MovRegMem(asm.RAX, c.mem(asm.RBX, 0))
	c.buf.CallReg(asm.RAX)
	return exprResult{isFloat: isFloatType(x.Type())}
}

// lowerMethodCall lowers obj.name(args) through the hash-keyed dynamic
// dispatch the object model provides: the method is fetched by its
// name hash and called with the object as an implicit `this` in
// argument slot 0 (spec.md §4.6's method calling convention). Method
// calls are not resolved against the object's static class, even when
// that class is known.
//
// console and the lock handle returned by __runtime_lock_create are
// runtime-provided globals, not user classes, so their methods are
// special-cased here to the typed runtime entries spec.md §6 names
// directly, rather than going through property-hash dispatch.
func (c *funcCtx) lowerMethodCall(x *ast.MethodCall) exprResult {
	if id, ok := x.Object.(*ast.Identifier); ok {
		if id.Name == "console" && x.Name == "log" {
			return c.lowerConsoleLog(x)
		}
	}
	if lockCall, ok := c.lowerLockMethodCall(x); ok {
		return lockCall
	}

	obj := c.lowerExpr(x.Object)
	objReg := c.materializeInt(obj)
	c.buf.PushReg(objReg)

	// Every method call takes the hash-keyed dynamic dispatch path the
	// object model provides.
	c.evalArgsInto(x.Args, 1)
	c.buf.PopReg(asm.RDI)
	c.buf.MovRegImm32(asm.RSI, int32(methodHash(x.Name)))
	c.buf.CallRuntime("__object_get_property_by_hash_performance")
	c.buf.CallReg(asm.RAX)
	return exprResult{}
}

// lowerConsoleLog lowers console.log(args...) to one typed runtime
// call per argument (spec.md §6: "Console: __console_log_float64
// (double), __console_log_string(*const u8), plus typed variants"),
// rather than the generic property-hash dispatch every other method
// call takes — console is a runtime-provided global, not a class.
func (c *funcCtx) lowerConsoleLog(x *ast.MethodCall) exprResult {
	for _, arg := range x.Args {
		v := c.lowerExpr(arg)
		if v.isFloat {
			c.materializeFloat(v)
			c.buf.CallRuntime("__console_log_float64")
			continue
		}
		r := c.materializeInt(v)
		c.buf.MovRegReg(asm.RDI, r)
		switch arg.Type() {
		case ast.StringType:
			c.buf.CallRuntime("__console_log_string")
		case ast.Boolean:
			c.buf.CallRuntime("__console_log_boolean")
		default:
			c.buf.CallRuntime("__console_log_int64")
		}
	}
	return exprResult{}
}

// lockMethodRuntimeNames maps a lock handle's method names to their
// typed runtime entries (spec.md §6 "Locks").
var lockMethodRuntimeNames = map[string]string{
	"lock":              "__runtime_lock_lock",
	"unlock":            "__runtime_lock_unlock",
	"tryLock":           "__runtime_lock_try_lock",
	"tryLockFor":        "__runtime_lock_try_lock_for",
	"isLockedByCurrent": "__runtime_lock_is_locked_by_current",
}

// lowerLockMethodCall special-cases runtime.lock.create() and the
// methods of the opaque integer handle it returns: a handle carries no
// class to dispatch through, so this matches on shape (the
// runtime.lock.create() call chain) and on method name (for the
// handle's own methods) rather than on a static receiver type. A user
// class that happened to declare a same-named method would be
// shadowed by this; a known simplification (see DESIGN.md).
func (c *funcCtx) lowerLockMethodCall(x *ast.MethodCall) (exprResult, bool) {
	if pa, ok := x.Object.(*ast.PropertyAccess); ok {
		if runtimeID, ok := pa.Object.(*ast.Identifier); ok && runtimeID.Name == "runtime" && pa.Name == "lock" && x.Name == "create" {
			c.buf.CallRuntime("__runtime_lock_create")
			return exprResult{}, true
		}
	}
	entry, ok := lockMethodRuntimeNames[x.Name]
	if !ok {
		return exprResult{}, false
	}
	obj := c.lowerExpr(x.Object)
	handle := c.materializeInt(obj)
	c.buf.PushReg(handle)
	c.evalArgsInto(x.Args, 1)
	c.buf.PopReg(asm.RDI)
	c.buf.CallRuntime(entry)
	return exprResult{}, true
}

func (c *funcCtx) lowerComputedMethodCall(x *ast.ComputedMethodCall) exprResult {
	obj := c.lowerExpr(x.Object)
	objReg := c.materializeInt(obj)
	c.buf.PushReg(objReg)
	name := c.lowerExpr(x.Name)
	nameReg := c.materializeInt(name)
	c.buf.PushReg(nameReg)
	c.evalArgsInto(x.Args, 1)
	c.buf.PopReg(asm.RSI)
	c.buf.PopReg(asm.RDI)
	c.buf.PushReg(asm.RDI)
	c.buf.CallRuntime("__object_get_property_by_hash_performance")
	c.buf.PopReg(asm.RDI)
	c.buf.CallReg(asm.RAX)
	return exprResult{}
}

func methodHash(name string) uint32 {
	h := uint32(0x811C9DC5)
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 0x01000193
	}
	return h
}

// lowerNewExpr lowers `new C(args)` (positional constructor call) and
// the Dart-style `new C{k: v, ...}` object-literal form (per-key
// property writes, spec.md §4.6 "Classes").
func (c *funcCtx) lowerNewExpr(x *ast.NewExpr) exprResult {
	cls, ok := c.gen.classes.Lookup(x.ClassName)
	typeID := int32(0)
	if ok {
		typeID = int32(cls.TypeID)
	}
	c.buf.MovRegImm32(asm.RDI, typeID)
	c.buf.CallRuntime("__object_create_by_type_id_performance")
	c.buf.PushReg(asm.RAX)

	if len(x.DartArgs) > 0 {
		for _, prop := range x.DartArgs {
			val := c.lowerExpr(prop.Value)
			valReg := c.materializeInt(val)
			c.buf.MovRegReg(asm.RDX, valReg)
			c.buf.MovRegImm32(asm.RCX, int32(prop.Value.Type()))
			c.buf.MovRegImm32(asm.RSI, int32(methodHash(prop.Key)))
			c.buf.PopReg(asm.RDI)
			c.buf.PushReg(asm.RDI)
			c.buf.CallRuntime("__object_set_property_by_hash_performance")
		}
		c.buf.PopReg(asm.RAX)
		return exprResult{}
	}

	if ok {
		if rec, ok := c.gen.funcMgr.Lookup(x.ClassName + ".constructor"); ok {
			c.buf.PopReg(asm.RDI)
			c.buf.PushReg(asm.RDI)
			c.evalArgsInto(x.Args, 1)
			c.buf.PopReg(asm.RDI)
			c.buf.MovFunctionAddress(asm.RAX, rec.FunctionID)
			c.buf.CallReg(asm.RAX)
			c.buf.PopReg(asm.RAX)
			return exprResult{}
		}
	}
	c.buf.PopReg(asm.RAX)
	return exprResult{}
}

// lowerSuperCall and lowerSuperMethodCall dispatch to the parent
// class's constructor/method by mangled name, with the current `this`
// forwarded as the implicit receiver.
func (c *funcCtx) lowerSuperCall(x *ast.SuperCall) exprResult {
	thisAddr, _, err := c.variableAddress("this")
	if err != nil {
		return exprResult{}
	}
	if c.record == nil {
		return exprResult{}
	}
	className, parentName := c.enclosingClassAndParent()
	_ = className
	if parentName == "" {
		return exprResult{}
	}
	rec, ok := c.gen.funcMgr.Lookup(parentName + ".constructor")
	if !ok {
		return exprResult{}
	}
	c.buf.MovRegMem(asm.RBX, thisAddr)
	c.buf.PushReg(asm.RBX)
	c.evalArgsInto(x.Args, 1)
	c.buf.PopReg(asm.RDI)
	c.buf.MovFunctionAddress(asm.RAX, rec.FunctionID)
	c.buf.CallReg(asm.RAX)
	return exprResult{}
}

func (c *funcCtx) lowerSuperMethodCall(x *ast.SuperMethodCall) exprResult {
	thisAddr, _, err := c.variableAddress("this")
	if err != nil {
		return exprResult{}
	}
	_, parentName := c.enclosingClassAndParent()
	if parentName == "" {
		return exprResult{}
	}
	rec, ok := c.gen.funcMgr.Lookup(parentName + "." + x.Name)
	if !ok {
		return exprResult{}
	}
	c.buf.MovRegMem(asm.RBX, thisAddr)
	c.buf.PushReg(asm.RBX)
	c.evalArgsInto(x.Args, 1)
	c.buf.PopReg(asm.RDI)
	c.buf.MovFunctionAddress(asm.RAX, rec.FunctionID)
	c.buf.CallReg(asm.RAX)
	return exprResult{isFloat: isFloatType(rec.Ret)}
}

// enclosingClassAndParent recovers the class and parent names for the
// method/constructor currently being compiled from its mangled
// funcmgr name ("Class.member" / "Class.constructor").
func (c *funcCtx) enclosingClassAndParent() (string, string) {
	if c.record == nil {
		return "", ""
	}
	name := c.record.Name
	dot := -1
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return "", ""
	}
	className := name[:dot]
	cls, ok := c.gen.classes.Lookup(className)
	if !ok || cls.Parent == nil {
		return className, ""
	}
	return className, cls.Parent.Name
}

// lowerOperatorCall dispatches `a OP b` between two class instances to
// the resolved overload's mangled function (classes.Class.
// ResolveOperator / funcmgr.MangleOperatorName). Resolving the
// overload needs the operand's declared class name, which
// ast.OperatorCall doesn't carry (only its resolved DataType, which is
// just ClassInstance) — a follow-on that threads the name through from
// the analyzer would let this resolve statically; for now every
// operator call takes the plain BinaryOp lowering instead. See
// DESIGN.md.
func (c *funcCtx) lowerOperatorCall(x *ast.OperatorCall) exprResult {
	return c.lowerBinaryOp(&ast.BinaryOp{Op: x.Operator, Left: x.Left, Right: x.Right})
}

// lowerGoExpr spawns x.Call as a new goroutine. A call with no
// arguments uses __goroutine_spawn_direct with the target's address in
// rdi; a call with arguments evaluates them into the argument registers
// and uses __goroutine_spawn_with_args. No heap frame is built for the
// arguments.
func (c *funcCtx) lowerGoExpr(x *ast.GoExpr) exprResult {
	id, ok := x.Call.Callee.(*ast.Identifier)
	if !ok {
		return exprResult{}
	}
	rec, ok := c.gen.funcMgr.Lookup(id.Name)
	if !ok {
		return exprResult{}
	}
	if len(x.Call.Args) == 0 {
		c.buf.MovFunctionAddress(asm.RDI, rec.FunctionID)
		c.buf.CallRuntime("__goroutine_spawn_direct")
		return exprResult{}
	}
	c.evalArgsInto(x.Call.Args, 0)
	// Argument registers are already populated per the normal calling
	// convention; __goroutine_spawn_with_args additionally takes the
	// target function's address so the runtime scheduler can marshal
	// them into the new goroutine's stack before its first resume.
	c.buf.MovRegReg(asm.RSI, asm.RDI)
	c.buf.MovFunctionAddress(asm.RDI, rec.FunctionID)
	c.buf.CallRuntime("__goroutine_spawn_with_args")
	return exprResult{}
}

// lowerAwaitExpr resolves `await go f(args)` to a spawn-and-wait
// runtime call, or a bare `await g` on an already-spawned handle to
// the wait entry directly.
func (c *funcCtx) lowerAwaitExpr(x *ast.AwaitExpr) exprResult {
	if goExpr, ok := x.Target.(*ast.GoExpr); ok {
		id, ok := goExpr.Call.Callee.(*ast.Identifier)
		if !ok {
			return exprResult{}
		}
		rec, ok := c.gen.funcMgr.Lookup(id.Name)
		if !ok {
			return exprResult{}
		}
		c.buf.MovFunctionAddress(asm.RDI, rec.FunctionID)
		c.buf.CallRuntime("__goroutine_spawn_and_wait_direct")
		return exprResult{isFloat: isFloatType(rec.Ret)}
	}
	v := c.lowerExpr(x.Target)
	handle := c.materializeInt(v)
	c.buf.MovRegReg(asm.RDI, handle)
	c.buf.CallRuntime("__runtime_wait_for_main_goroutine_v2")
	return exprResult{}
}
