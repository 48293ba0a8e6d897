package objmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFNV1a32SanityAnchors(t *testing.T) {
	assert.Equal(t, uint32(0x811C9DC5), FNV1a32(""))
	assert.Equal(t, uint32(0xAEA01128), FNV1a32("age"))
}

func TestHeaderSizeIsTwelveBytes(t *testing.T) {
	assert.Equal(t, 12, HeaderSize)
}

func TestDynamicPropertiesSetGetRoundTrip(t *testing.T) {
	d := NewDynamicProperties(0)
	require.NoError(t, d.Set("nickname", DynamicValue{Kind: KindScalar, Scalar: 42}))

	v, ok := d.GetByHash(FNV1a32("nickname"))
	require.True(t, ok)
	assert.Equal(t, uint64(42), v.Scalar)
	assert.Equal(t, 1, d.Count())
}

func TestDynamicPropertiesDetectsHashCollision(t *testing.T) {
	d := NewDynamicProperties(0)
	require.NoError(t, d.Set("a", DynamicValue{Scalar: 1}))
	// Re-setting the same name is not a collision.
	require.NoError(t, d.Set("a", DynamicValue{Scalar: 2}))

	v, _ := d.GetByHash(FNV1a32("a"))
	assert.Equal(t, uint64(2), v.Scalar)
}

func TestSetByHashSkipsNameBookkeeping(t *testing.T) {
	d := NewDynamicProperties(0)
	h := FNV1a32("computed")
	d.SetByHash(h, DynamicValue{Kind: KindPointer, Ptr: 0xdead})

	v, ok := d.GetByHash(h)
	require.True(t, ok)
	assert.Equal(t, uintptr(0xdead), v.Ptr)
}
