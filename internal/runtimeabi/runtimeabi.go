// Package runtimeabi is the static table of every extern-C runtime
// entry point the code generator may call and the loader must resolve
// (spec.md §4.7 step 4, §6). The generator consults it to decide which
// call/spawn form a call site can use; the loader consults it to
// resolve internal/asm/amd64.RuntimeCallPatch entries against the
// runtime's trampoline table after mmap.
package runtimeabi

// CallingConvention tags how the generator must marshal arguments for
// an entry: the System V AMD64 integer/SSE argument-class rules apply
// either way, but FastCall entries are guaranteed leaf-call-safe (no
// callee-saved clobber beyond the standard ABI) while the rest may
// reenter the goroutine scheduler.
type CallingConvention uint8

const (
	ConvSystemV CallingConvention = iota
	ConvFastCall
)

// Entry describes one runtime ABI function: its argument arity (for
// the generator's argument-marshaling code) and calling convention.
type Entry struct {
	Name  string
	Arity int
	Conv  CallingConvention
}

// Table is the full runtime ABI surface from spec.md §6, keyed by the
// V2/authoritative name (see the Open Question decision in DESIGN.md).
var Table = buildTable()

func buildTable() map[string]Entry {
	entries := []Entry{
		// Console.
		{"__console_log_float64", 1, ConvSystemV},
		{"__console_log_int64", 1, ConvSystemV},
		{"__console_log_string", 1, ConvSystemV},
		{"__console_log_boolean", 1, ConvSystemV},

		// Object model (spec.md §6/§9).
		{"__object_create_by_type_id_performance", 1, ConvFastCall},
		{"__object_get_property_by_hash_performance", 2, ConvFastCall},
		{"__object_set_property_by_hash_performance", 4, ConvFastCall},
		{"__object_get_property_by_index_performance", 2, ConvFastCall},
		{"__object_set_property_by_index_performance", 3, ConvFastCall},

		// Class registry.
		{"__register_class_performance", 2, ConvSystemV},
		{"__class_add_property_performance", 4, ConvSystemV},
		{"__class_set_inheritance_performance", 2, ConvSystemV},
		{"__class_finalize_layout_performance", 1, ConvSystemV},

		// Functions.
		{"__register_function_fast", 3, ConvFastCall},
		{"__lookup_function_fast", 1, ConvFastCall},

		// Goroutines.
		{"__goroutine_spawn_fast", 1, ConvFastCall},
		{"__goroutine_spawn_direct", 1, ConvFastCall},
		{"__goroutine_spawn_with_args", 2, ConvSystemV},
		{"__goroutine_spawn_and_wait_fast", 1, ConvFastCall},
		{"__goroutine_spawn_and_wait_direct", 1, ConvFastCall},
		{"__runtime_spawn_main_goroutine_v2", 1, ConvSystemV},
		{"__runtime_wait_for_main_goroutine_v2", 0, ConvSystemV},

		// Timers and async.
		{"__gots_set_timeout_v2", 2, ConvSystemV},
		{"__gots_clear_timeout_v2", 1, ConvSystemV},
		{"__gots_set_interval_v2", 2, ConvSystemV},
		{"__gots_clear_interval_v2", 1, ConvSystemV},
		{"__gots_add_async_handle_v2", 1, ConvSystemV},
		{"__gots_cancel_async_handle_v2", 1, ConvSystemV},
		{"__gots_complete_async_handle_v2", 1, ConvSystemV},

		// Scope frames and strings.
		{"__runtime_alloc_scope_frame", 1, ConvFastCall},
		{"__runtime_string_concat", 2, ConvSystemV},
		{"__runtime_array_iterate_properties", 1, ConvSystemV},

		// Type system and introspection.
		{"__runtime_typeof", 1, ConvFastCall},
		{"__runtime_typed_array_from", 2, ConvSystemV},

		// Locks.
		{"__runtime_lock_create", 0, ConvSystemV},
		{"__runtime_lock_lock", 1, ConvSystemV},
		{"__runtime_lock_unlock", 1, ConvSystemV},
		{"__runtime_lock_try_lock", 1, ConvSystemV},
		{"__runtime_lock_try_lock_for", 2, ConvSystemV},
		{"__runtime_lock_is_locked_by_current", 1, ConvSystemV},
	}
	// The full runtime.* syscall surface (time, fs, net, process, dns,
	// crypto, buffer, child, events, streams, os, tty, modules, url,
	// path, util, perf, zlib, vm, atomics, shared array buffer) is
	// declared here by namespace, not individually enumerated: each
	// family gets one representative dispatch entry, matching how the
	// original implementation's runtime_syscalls.h groups its bindings
	// by subsystem rather than listing every libuv-backed call.
	for _, ns := range []string{
		"time", "fs", "net", "process", "dns", "crypto", "buffer", "child",
		"events", "streams", "os", "tty", "modules", "url", "path", "util",
		"perf", "zlib", "vm", "atomics", "shared_array_buffer",
	} {
		entries = append(entries, Entry{Name: "__runtime_" + ns + "_dispatch", Arity: 2, Conv: ConvSystemV})
	}

	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return m
}

// Lookup resolves name to its Entry, following a legacy alias first if
// one applies.
func Lookup(name string) (Entry, bool) {
	if canonical, ok := legacyAliases[name]; ok {
		name = canonical
	}
	e, ok := Table[name]
	return e, ok
}

// IsKnown reports whether name (or its legacy alias) is a registered
// runtime entry, used by the code generator to reject an unrecognized
// call target before it ever reaches CodeBuffer.CallRuntime.
func IsKnown(name string) bool {
	_, ok := Lookup(name)
	return ok
}
