package runtimeabi

// legacyAliases maps a pre-V2 runtime entry name to the V2 name that
// now serves it, per the Open Question decision recorded in
// DESIGN.md: V2 names are authoritative for new code, but a bare
// legacy name (found alongside its _v2 counterpart in
// original_source/, e.g. __runtime_spawn_main_goroutine next to
// __runtime_spawn_main_goroutine_v2) still resolves during the
// transition window so an older compiled artifact's unresolved_runtime_calls
// entries keep working.
var legacyAliases = map[string]string{
	"__runtime_spawn_main_goroutine":      "__runtime_spawn_main_goroutine_v2",
	"__runtime_wait_for_main_goroutine":   "__runtime_wait_for_main_goroutine_v2",
	"__gots_set_timeout":                  "__gots_set_timeout_v2",
	"__gots_clear_timeout":                "__gots_clear_timeout_v2",
	"__gots_set_interval":                 "__gots_set_interval_v2",
	"__gots_clear_interval":               "__gots_clear_interval_v2",
	"__gots_add_async_handle":             "__gots_add_async_handle_v2",
	"__gots_cancel_async_handle":          "__gots_cancel_async_handle_v2",
	"__gots_complete_async_handle":        "__gots_complete_async_handle_v2",
}
