package runtimeabi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownV2EntryResolvesDirectly(t *testing.T) {
	e, ok := Lookup("__gots_set_timeout_v2")
	require.True(t, ok)
	assert.Equal(t, 2, e.Arity)
}

func TestLegacyAliasResolvesToSameEntryAsV2(t *testing.T) {
	legacy, ok := Lookup("__runtime_spawn_main_goroutine")
	require.True(t, ok)
	v2, ok := Lookup("__runtime_spawn_main_goroutine_v2")
	require.True(t, ok)
	assert.Equal(t, v2, legacy)
}

func TestUnknownEntryIsRejected(t *testing.T) {
	assert.False(t, IsKnown("__totally_made_up_entry"))
}

func TestObjectModelEntriesArePresent(t *testing.T) {
	for _, name := range []string{
		"__object_create_by_type_id_performance",
		"__object_get_property_by_hash_performance",
		"__object_set_property_by_hash_performance",
	} {
		assert.True(t, IsKnown(name), name)
	}
}

func TestSyscallNamespaceDispatchEntriesArePresent(t *testing.T) {
	for _, ns := range []string{"fs", "net", "crypto", "atomics"} {
		assert.True(t, IsKnown("__runtime_"+ns+"_dispatch"), ns)
	}
}
