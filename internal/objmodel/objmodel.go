// Package objmodel implements the bit-exact runtime object layout from
// spec.md §6/§9: a 12-byte header, packed property storage at natural
// alignment, and a dynamic-properties fallback for writes to
// properties a class never declared. Everything here describes the
// shape of memory the JIT'd code reads and writes directly — this
// package itself never runs inside the JIT, it is the authority the
// code generator and the loader's runtime trampolines both consult.
package objmodel

import "github.com/dolthub/swiss"

// HeaderSize is the fixed byte size of every object's header, before
// any packed property bytes: type_id:u32 | ref_count:u32 |
// property_count:u16 | flags:u16.
const HeaderSize = 12

// Flag bits stored in a Header's Flags field.
const (
	FlagNone     uint16 = 0
	FlagSealed   uint16 = 1 << 0 // no further dynamic properties may be added
	FlagFrozen   uint16 = 1 << 1 // no property, static or dynamic, may be written
)

// Header is the in-memory layout every object instance begins with.
// Field order and widths are load-bearing: the code generator computes
// property offsets assuming this exact 12-byte prefix.
type Header struct {
	TypeID         uint32
	RefCount       uint32
	PropertyCount  uint16
	Flags          uint16
}

// FNV1a32 is the bit-exact property-name hash from spec.md §6:
// h=0x811C9DC5; for each byte, h = (h xor b) * 0x01000193.
func FNV1a32(name string) uint32 {
	const offsetBasis uint32 = 0x811C9DC5
	const prime uint32 = 0x01000193
	h := offsetBasis
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= prime
	}
	return h
}

// DynamicProperties is the fallback map consulted by
// __object_get/set_property_by_hash_performance when a property isn't
// part of a class's static layout (spec.md §4.6: "Assignment to a
// non-existent class property falls through to the dynamic-properties
// map"). It is backed by dolthub/swiss rather than a plain Go map so
// that this table and internal/classes' compile-time property hash
// table share the same key shape and the same low-overhead
// open-addressing implementation (see DESIGN.md).
type DynamicProperties struct {
	byHash *swiss.Map[uint32, DynamicValue]
	names  map[uint32]string // hash -> original name, for collision detection and enumeration
}

// DynamicValue is a tagged union wide enough to hold any GoTS runtime
// value that can live in the dynamic-properties fallback: a raw 64-bit
// scalar (integers, floats via math.Float64bits, booleans) or a
// pointer-sized reference (objects, strings, slices).
type DynamicValue struct {
	Kind   ValueKind
	Scalar uint64
	Ptr    uintptr
}

type ValueKind uint8

const (
	KindScalar ValueKind = iota
	KindPointer
)

// NewDynamicProperties allocates an empty fallback table. cap is a
// size hint, not a hard limit; the underlying swiss.Map grows as
// needed.
func NewDynamicProperties(capacityHint uint32) *DynamicProperties {
	if capacityHint == 0 {
		capacityHint = 4
	}
	return &DynamicProperties{
		byHash: swiss.NewMap[uint32, DynamicValue](capacityHint),
		names:  make(map[uint32]string, capacityHint),
	}
}

// Set records name's value under its FNV-1a-32 hash. A hash collision
// between two distinct names is reported as an error rather than
// silently overwriting the earlier property, since the object model
// promises one slot per distinct property name.
func (d *DynamicProperties) Set(name string, v DynamicValue) error {
	h := FNV1a32(name)
	if existing, ok := d.names[h]; ok && existing != name {
		return &CollisionError{Hash: h, First: existing, Second: name}
	}
	d.names[h] = name
	d.byHash.Put(h, v)
	return nil
}

// GetByHash is the table lookup behind
// __object_get_property_by_hash_performance: the generated code only
// ever has the hash, computed at compile time for a literal property
// name or at run time for obj[name].
func (d *DynamicProperties) GetByHash(hash uint32) (DynamicValue, bool) {
	return d.byHash.Get(hash)
}

// SetByHash is the dynamic counterpart used when the code generator
// cannot recover the original property name (a computed `obj[name] =
// v` where name isn't a literal). The original name is unrecoverable
// in that case, so collision detection is skipped — this mirrors the
// runtime ABI, which only ever receives a hash, never a name.
func (d *DynamicProperties) SetByHash(hash uint32, v DynamicValue) {
	d.byHash.Put(hash, v)
}

func (d *DynamicProperties) Count() int { return d.byHash.Count() }

// CollisionError reports two distinct property names hashing to the
// same FNV-1a-32 value within one object — astronomically unlikely for
// real identifiers, but the object model's correctness depends on it
// never happening silently.
type CollisionError struct {
	Hash          uint32
	First, Second string
}

func (e *CollisionError) Error() string {
	return "objmodel: property name hash collision between " + e.First + " and " + e.Second
}
