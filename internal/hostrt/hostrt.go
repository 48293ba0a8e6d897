// Package hostrt provides the loader.Runtime the standalone CLI links
// against. The goroutine scheduler, GC, and object-model runtime are
// external collaborators this repository only declares the calling
// convention for (spec.md §1, §5); a production deployment supplies its
// own implementation and calls driver.Run directly instead of going
// through this package. Unavailable exists so `ultrascript run` fails
// with the loader's own typed "unresolved runtime call" error the
// moment compiled code actually needs a trampoline, rather than with a
// nil-interface panic.
package hostrt

import "github.com/ultrascript-lang/ultrascript/internal/loader"

// Stub resolves no trampoline and never actually runs anything; its
// Spawn/Wait methods exist only to satisfy loader.Runtime for programs
// whose compiled code happens to contain no runtime call at all (a
// plain arithmetic function with no I/O, say).
type Stub struct{}

// Unavailable returns a loader.Runtime with no trampolines wired in.
func Unavailable() loader.Runtime { return Stub{} }

func (Stub) ResolveTrampoline(symbol string) (uintptr, bool) { return 0, false }

func (Stub) SpawnMainGoroutine(mainAddr uintptr) {}

func (Stub) WaitForMainGoroutine() {}
