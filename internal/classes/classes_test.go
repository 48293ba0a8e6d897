package classes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultrascript-lang/ultrascript/internal/objmodel"
	"github.com/ultrascript-lang/ultrascript/internal/parser"
)

func mustFinalize(t *testing.T, src string) *Registry {
	t.Helper()
	prog, err := parser.Parse("t.gts", src)
	require.NoError(t, err)
	reg := NewRegistry()
	require.NoError(t, reg.Finalize(prog))
	return reg
}

func TestClassGetsTypeIDFrom1000(t *testing.T) {
	reg := mustFinalize(t, `class Point { x: int32; y: int32; }`)
	c, ok := reg.Lookup("Point")
	require.True(t, ok)
	assert.Equal(t, uint32(FirstUserTypeID), c.TypeID)
}

func TestPropertyOffsetsStartAfterHeaderAndAreAlignmentOrdered(t *testing.T) {
	reg := mustFinalize(t, `class Mixed { flag: boolean; total: float64; count: int32; }`)
	c, _ := reg.Lookup("Mixed")

	total, ok := c.Property("total")
	require.True(t, ok)
	// The 12-byte header is padded to 16 so the float64 is 8-aligned.
	assert.Equal(t, objmodel.HeaderSize+4, total.Offset)

	count, ok := c.Property("count")
	require.True(t, ok)
	assert.Equal(t, objmodel.HeaderSize+4+8, count.Offset)

	flag, ok := c.Property("flag")
	require.True(t, ok)
	assert.Equal(t, objmodel.HeaderSize+4+8+4, flag.Offset)
}

func TestSecondClassGetsNextTypeID(t *testing.T) {
	reg := mustFinalize(t, `
		class A { x: int32; }
		class B { y: int32; }
	`)
	a, _ := reg.Lookup("A")
	b, _ := reg.Lookup("B")
	assert.Equal(t, uint32(FirstUserTypeID), a.TypeID)
	assert.Equal(t, uint32(FirstUserTypeID+1), b.TypeID)
}

func TestChildClassInheritsParentFieldsAsPrefix(t *testing.T) {
	reg := mustFinalize(t, `
		class Animal { age: int32; }
		class Dog extends Animal { breed: int32; }
	`)
	dog, ok := reg.Lookup("Dog")
	require.True(t, ok)

	age, ok := dog.Property("age")
	require.True(t, ok)
	assert.Equal(t, objmodel.HeaderSize, age.Offset)

	breed, ok := dog.Property("breed")
	require.True(t, ok)
	assert.Equal(t, objmodel.HeaderSize+4, breed.Offset)
}

func TestExtendsUndeclaredClassIsAnError(t *testing.T) {
	prog, err := parser.Parse("t.gts", `class Dog extends Ghost { }`)
	require.NoError(t, err)
	reg := NewRegistry()
	assert.Error(t, reg.Finalize(prog))
}

func TestOperatorOverloadRegistryKeyedByParamTypeTuple(t *testing.T) {
	reg := mustFinalize(t, `
		class Vector {
			x: float64;
			operator +(other: Vector) { return this; }
		}
	`)
	v, ok := reg.Lookup("Vector")
	require.True(t, ok)

	ov, ok := v.ResolveOperator("+", v.Operators["+"][0].ParamTypes)
	require.True(t, ok)
	assert.Contains(t, ov.MangledName, "Vector.operatorAdd_")
}
