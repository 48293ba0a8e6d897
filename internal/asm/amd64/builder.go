// Package asm_amd64 is the bespoke x86-64 instruction builder described
// in spec.md §4.5. It is deliberately narrower than a general
// multi-target assembler: the instruction set below is exactly what
// internal/codegen needs to lower GoTS, encoded directly to REX/ModR.M/
// SIB bytes rather than through an intermediate Node/NodeList IR. The
// register enum and instruction-name conventions are grounded on the
// teacher's original amd64 assembler package (see DESIGN.md's "Final
// trim pass" for what was superseded and removed); the encoder itself
// is new.
package asm_amd64

import (
	"encoding/binary"

	"github.com/ultrascript-lang/ultrascript/internal/diag"
)

// Reg is a general-purpose 64-bit register, numbered exactly like the
// hardware encoding (0-7 legacy, 8-15 require a REX prefix bit).
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

func (r Reg) needsREX() bool { return r >= R8 }
func (r Reg) low3() byte     { return byte(r) & 0x7 }

// XmmReg is a 128-bit SSE register, XMM0-XMM15.
type XmmReg uint8

const (
	XMM0 XmmReg = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
)

func (r XmmReg) needsREX() bool { return r >= XMM8 }
func (r XmmReg) low3() byte     { return byte(r) & 0x7 }

// MemoryOperand is base(+index*scale)+disp, or a RIP-relative operand
// when RipRelative is set (Base/Index/Scale are ignored in that case).
type MemoryOperand struct {
	Base        Reg
	HasIndex    bool
	Index       Reg
	Scale       uint8 // 1, 2, 4, or 8
	Disp        int32
	RipRelative bool
}

// ImmediateOperand is a sign-extended or absolute immediate of 1, 4, or
// 8 bytes.
type ImmediateOperand struct {
	Value int64
	Size  int // 1, 4, or 8
}

// PatchInfo locates an 8-byte absolute immediate written by
// MovFunctionAddress so the loader can later overwrite it with the
// real machine address once functions are placed in the JIT'd region
// (spec.md §4.4's address-assignment phase happens after codegen).
type PatchInfo struct {
	Offset     int    // byte offset within the buffer of the 8-byte slot
	FunctionID uint16 // which funcmgr.Record this patch resolves to
}

// RuntimeCallPatch locates a call instruction's rel32 operand that
// targets an extern-C runtime ABI entry (spec.md §6), resolved once the
// loader knows where the runtime trampolines live.
type RuntimeCallPatch struct {
	Offset   int // byte offset of the rel32 operand
	Symbol   string
}

// CodeBuffer accumulates encoded machine code for one function along
// with everything needed to patch it after the fact: label offsets for
// intra-function jumps, unresolved jump sites awaiting those labels,
// runtime-call sites awaiting trampoline addresses, and function-
// address immediates awaiting the dense function_id table.
type CodeBuffer struct {
	code                   []byte
	labelOffsets           map[string]int
	unresolvedJumps        []jumpFixup
	unresolvedRuntimeCalls []RuntimeCallPatch
	functionInstancePatches []PatchInfo
}

type jumpFixup struct {
	offset int // byte offset of the rel32 field
	label  string
	instrEnd int // offset right after the rel32 field, i.e. where the jump lands if rel32==0
}

func NewCodeBuffer() *CodeBuffer {
	return &CodeBuffer{labelOffsets: make(map[string]int)}
}

func (b *CodeBuffer) Len() int       { return len(b.code) }
func (b *CodeBuffer) Bytes() []byte  { return b.code }

func (b *CodeBuffer) emit(bs ...byte) { b.code = append(b.code, bs...) }

func (b *CodeBuffer) emitImm32(v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	b.code = append(b.code, tmp[:]...)
}

func (b *CodeBuffer) emitImm64(v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	b.code = append(b.code, tmp[:]...)
}

// EmitLabelPlaceholder records the current offset as the definition
// site of label. A function's own internal branch targets (loop heads,
// if/else joins, switch dispatch blocks) are labels.
func (b *CodeBuffer) EmitLabelPlaceholder(label string) {
	b.labelOffsets[label] = len(b.code)
}

// rex builds a REX prefix: W for 64-bit operand size, R/X/B extend the
// ModR.M reg/SIB index/ModR.M rm or SIB base fields into 8-15.
func rex(w, r, x, bb bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if bb {
		v |= 0x01
	}
	return v
}

// modrmReg encodes a reg-reg ModR.M byte (mod=11).
func modrmReg(regField, rm byte) byte {
	return 0xC0 | (regField&0x7)<<3 | (rm & 0x7)
}

// encodeMem writes the ModR.M(+SIB)(+disp) bytes for `regField` (the
// reg operand, already reduced mod 8) addressing mem, choosing disp8 vs
// disp32 form and a SIB byte when an index is present or the base is
// RSP/R12 (whose low3 aliases the SIB-escape encoding).
func (b *CodeBuffer) encodeMem(regField byte, mem MemoryOperand) {
	if mem.RipRelative {
		b.emit(0x00 | (regField&0x7)<<3 | 0x5)
		b.emitImm32(mem.Disp)
		return
	}
	needsSIB := mem.HasIndex || mem.Base.low3() == 0x4
	dispMode := byte(0x80) // disp32
	if mem.Disp == 0 && mem.Base.low3() != 0x5 {
		dispMode = 0x00
	} else if mem.Disp >= -128 && mem.Disp <= 127 {
		dispMode = 0x40 // disp8
	}
	rm := mem.Base.low3()
	if needsSIB {
		rm = 0x4
	}
	b.emit(dispMode | (regField&0x7)<<3 | rm)
	if needsSIB {
		scaleBits := scaleEncoding(mem.Scale)
		idx := byte(0x4) // no-index encoding
		if mem.HasIndex {
			idx = mem.Index.low3()
		}
		b.emit(scaleBits<<6 | idx<<3 | mem.Base.low3())
	}
	switch dispMode {
	case 0x40:
		b.emit(byte(int8(mem.Disp)))
	case 0x80:
		b.emitImm32(mem.Disp)
	default:
		if mem.Base.low3() == 0x5 {
			b.emitImm32(mem.Disp)
		}
	}
}

func scaleEncoding(scale uint8) byte {
	switch scale {
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	default:
		return 0
	}
}

// --- mov family ---

// MovRegReg is `mov dst, src` at 64-bit operand size.
func (b *CodeBuffer) MovRegReg(dst, src Reg) {
	b.emit(rex(true, src.needsREX(), false, dst.needsREX()))
	b.emit(0x89)
	b.emit(modrmReg(src.low3(), dst.low3()))
}

// MovRegMem is `mov dst, [mem]`.
func (b *CodeBuffer) MovRegMem(dst Reg, mem MemoryOperand) {
	b.emit(rex(true, dst.needsREX(), mem.HasIndex && mem.Index.needsREX(), mem.Base.needsREX()))
	b.emit(0x8B)
	b.encodeMem(dst.low3(), mem)
}

// MovMemReg is `mov [mem], src`.
func (b *CodeBuffer) MovMemReg(mem MemoryOperand, src Reg) {
	b.emit(rex(true, src.needsREX(), mem.HasIndex && mem.Index.needsREX(), mem.Base.needsREX()))
	b.emit(0x89)
	b.encodeMem(src.low3(), mem)
}

// MovRegImm32 is `mov dst, imm32` (sign-extended to 64 bits).
func (b *CodeBuffer) MovRegImm32(dst Reg, imm int32) {
	b.emit(rex(true, false, false, dst.needsREX()))
	b.emit(0xC7)
	b.emit(modrmReg(0, dst.low3()))
	b.emitImm32(imm)
}

// MovFunctionAddress emits a `movabs dst, imm64` whose immediate is a
// patchable slot: funcmgr doesn't know machine addresses until the
// loader places code in its mmap'd region (spec.md §4.4's Address
// phase), so the emitted imm64 is a placeholder recorded as a
// PatchInfo and overwritten in place once addresses are known.
func (b *CodeBuffer) MovFunctionAddress(dst Reg, functionID uint16) PatchInfo {
	b.emit(rex(true, false, false, dst.needsREX()))
	b.emit(0xB8 + dst.low3())
	offset := len(b.code)
	b.emitImm64(0)
	p := PatchInfo{Offset: offset, FunctionID: functionID}
	b.functionInstancePatches = append(b.functionInstancePatches, p)
	return p
}

// MovRegImm64 emits a non-patchable `movabs dst, imm64`, used for raw
// 64-bit constants (a float64 literal's bit pattern en route to an XMM
// register, or a large integer literal) that never need a loader-time
// patch.
func (b *CodeBuffer) MovRegImm64(dst Reg, imm uint64) {
	b.emit(rex(true, false, false, dst.needsREX()))
	b.emit(0xB8 + dst.low3())
	b.emitImm64(int64(imm))
}

// TestRegReg is `test a, b` (sets flags like `and` without storing).
func (b *CodeBuffer) TestRegReg(a, bReg Reg) {
	b.emit(rex(true, bReg.needsREX(), false, a.needsREX()))
	b.emit(0x85)
	b.emit(modrmReg(bReg.low3(), a.low3()))
}

// NegReg is two's-complement negation, `neg dst` (F7 /3).
func (b *CodeBuffer) NegReg(dst Reg) {
	b.emit(rex(true, false, false, dst.needsREX()))
	b.emit(0xF7)
	b.emit(0xC0 | 3<<3 | dst.low3())
}

func (b *CodeBuffer) immGroup1(opDigit byte, dst Reg, imm int32) {
	b.emit(rex(true, false, false, dst.needsREX()))
	b.emit(0x81)
	b.emit(0xC0 | opDigit<<3 | dst.low3())
	b.emitImm32(imm)
}

// AddRegImm32 is `add dst, imm32`.
func (b *CodeBuffer) AddRegImm32(dst Reg, imm int32) { b.immGroup1(0, dst, imm) }

// SubRegImm32 is `sub dst, imm32`, used to reserve a stack frame
// (`sub rsp, <locals_size>`, spec.md §4.6).
func (b *CodeBuffer) SubRegImm32(dst Reg, imm int32) { b.immGroup1(5, dst, imm) }

// CmpRegImm32 is `cmp dst, imm32`.
func (b *CodeBuffer) CmpRegImm32(dst Reg, imm int32) { b.immGroup1(7, dst, imm) }

// ShlRegImm8 is `shl dst, imm8` (C1 /4 ib).
func (b *CodeBuffer) ShlRegImm8(dst Reg, imm uint8) {
	b.emit(rex(true, false, false, dst.needsREX()))
	b.emit(0xC1)
	b.emit(0xC0 | 4<<3 | dst.low3())
	b.emit(imm)
}

// ShrRegImm8 is `shr dst, imm8` (C1 /5 ib).
func (b *CodeBuffer) ShrRegImm8(dst Reg, imm uint8) {
	b.emit(rex(true, false, false, dst.needsREX()))
	b.emit(0xC1)
	b.emit(0xC0 | 5<<3 | dst.low3())
	b.emit(imm)
}

// SetccReg writes the 8-bit boolean result of cond into the low byte of
// dst (0F 90+cc /r); codegen zero-extends it with MovZxByteReg to
// produce the integer 0/1 the language's boolean values use.
func (b *CodeBuffer) SetccReg(cond Condition, dst Reg) {
	if dst.needsREX() {
		b.emit(rex(false, false, false, true))
	}
	b.emit(0x0F, setccOpcode[cond])
	b.emit(modrmReg(0, dst.low3()))
}

var setccOpcode = map[Condition]byte{
	CondEqual: 0x94, CondNotEqual: 0x95,
	CondLess: 0x9C, CondLessEqual: 0x9E,
	CondGreater: 0x9F, CondGreaterEqual: 0x9D,
}

// MovZxByteReg zero-extends the low byte of src into all 64 bits of
// dst (REX.W 0F B6 /r).
func (b *CodeBuffer) MovZxByteReg(dst, src Reg) {
	b.emit(rex(true, dst.needsREX(), false, src.needsREX()))
	b.emit(0x0F, 0xB6)
	b.emit(modrmReg(dst.low3(), src.low3()))
}

// MovsdRegMem loads a double from memory into an XMM register.
func (b *CodeBuffer) MovsdRegMem(dst XmmReg, mem MemoryOperand) {
	b.emit(0xF2)
	if dst.needsREX() || mem.Base.needsREX() || (mem.HasIndex && mem.Index.needsREX()) {
		b.emit(rex(false, dst.needsREX(), mem.HasIndex && mem.Index.needsREX(), mem.Base.needsREX()))
	}
	b.emit(0x0F, 0x10)
	b.encodeMem(dst.low3(), mem)
}

// MovsdMemReg stores a double from an XMM register into memory.
func (b *CodeBuffer) MovsdMemReg(mem MemoryOperand, src XmmReg) {
	b.emit(0xF2)
	if src.needsREX() || mem.Base.needsREX() || (mem.HasIndex && mem.Index.needsREX()) {
		b.emit(rex(false, src.needsREX(), mem.HasIndex && mem.Index.needsREX(), mem.Base.needsREX()))
	}
	b.emit(0x0F, 0x11)
	b.encodeMem(src.low3(), mem)
}

// MovqXmmReg moves 64 bits from a general-purpose register into the
// low 64 bits of an XMM register (66 REX.W 0F 6E /r), used to get a
// float64 literal's raw bit pattern (loaded via MovRegImm64) into XMM.
func (b *CodeBuffer) MovqXmmReg(dst XmmReg, src Reg) {
	b.emit(0x66)
	b.emit(rex(true, dst.needsREX(), false, src.needsREX()))
	b.emit(0x0F, 0x6E)
	b.emit(modrmReg(dst.low3(), src.low3()))
}

// CvtsdToSi truncates-converts a double to a 64-bit integer register
// (F2 REX.W 0F 2C /r).
func (b *CodeBuffer) CvtsdToSi(dst Reg, src XmmReg) {
	b.emit(0xF2)
	b.emit(rex(true, dst.needsREX(), false, src.needsREX()))
	b.emit(0x0F, 0x2C)
	b.emit(modrmReg(dst.low3(), src.low3()))
}

// MovMemImm32 stores a sign-extended 32-bit immediate to memory
// (C7 /0 id), used for small-width variable initializers.
func (b *CodeBuffer) MovMemImm32(mem MemoryOperand, imm int32) {
	b.emit(rex(true, false, mem.HasIndex && mem.Index.needsREX(), mem.Base.needsREX()))
	b.emit(0xC7)
	b.encodeMem(0, mem)
	b.emitImm32(imm)
}

// --- arithmetic ---

func (b *CodeBuffer) arithRegReg(opcode byte, regField byte, dst, src Reg) {
	b.emit(rex(true, src.needsREX(), false, dst.needsREX()))
	b.emit(opcode)
	b.emit(modrmReg(src.low3(), dst.low3()))
	_ = regField
}

func (b *CodeBuffer) AddRegReg(dst, src Reg) { b.arithRegReg(0x01, 0, dst, src) }
func (b *CodeBuffer) SubRegReg(dst, src Reg) { b.arithRegReg(0x29, 0, dst, src) }
func (b *CodeBuffer) CmpRegReg(dst, src Reg) { b.arithRegReg(0x39, 0, dst, src) }
func (b *CodeBuffer) AndRegReg(dst, src Reg) { b.arithRegReg(0x21, 0, dst, src) }
func (b *CodeBuffer) OrRegReg(dst, src Reg)  { b.arithRegReg(0x09, 0, dst, src) }
func (b *CodeBuffer) XorRegReg(dst, src Reg) { b.arithRegReg(0x31, 0, dst, src) }

// IMulRegReg is the two-operand form `imul dst, src` (0F AF /r).
func (b *CodeBuffer) IMulRegReg(dst, src Reg) {
	b.emit(rex(true, dst.needsREX(), false, src.needsREX()))
	b.emit(0x0F, 0xAF)
	b.emit(modrmReg(dst.low3(), src.low3()))
}

// Cqo sign-extends RAX into RDX:RAX ahead of a 64-bit IDiv.
func (b *CodeBuffer) Cqo() { b.emit(0x48, 0x99) }

// IDivReg is `idiv divisor`, dividing RDX:RAX and leaving the quotient
// in RAX and remainder in RDX.
func (b *CodeBuffer) IDivReg(divisor Reg) {
	b.emit(rex(true, false, false, divisor.needsREX()))
	b.emit(0xF7)
	b.emit(0xC0 | 7<<3 | divisor.low3())
}

func (b *CodeBuffer) PushReg(r Reg) {
	if r.needsREX() {
		b.emit(rex(false, false, false, true))
	}
	b.emit(0x50 + r.low3())
}

func (b *CodeBuffer) PopReg(r Reg) {
	if r.needsREX() {
		b.emit(rex(false, false, false, true))
	}
	b.emit(0x58 + r.low3())
}

func (b *CodeBuffer) Ret() { b.emit(0xC3) }

// LeaRegMem is `lea dst, [mem]`, used for address-of rather than load.
func (b *CodeBuffer) LeaRegMem(dst Reg, mem MemoryOperand) {
	b.emit(rex(true, dst.needsREX(), mem.HasIndex && mem.Index.needsREX(), mem.Base.needsREX()))
	b.emit(0x8D)
	b.encodeMem(dst.low3(), mem)
}

// CallReg is an indirect call through a register (FF /2).
func (b *CodeBuffer) CallReg(r Reg) {
	if r.needsREX() {
		b.emit(rex(false, false, false, true))
	}
	b.emit(0xFF)
	b.emit(0xC0 | 2<<3 | r.low3())
}

// CallRuntime emits a rel32 call whose displacement is unresolved until
// the loader knows where the named runtime ABI trampoline lives.
func (b *CodeBuffer) CallRuntime(symbol string) {
	b.emit(0xE8)
	offset := len(b.code)
	b.emitImm32(0)
	b.unresolvedRuntimeCalls = append(b.unresolvedRuntimeCalls, RuntimeCallPatch{Offset: offset, Symbol: symbol})
}

// EmitRawBytes appends data verbatim to the buffer, used by codegen to
// embed a string literal's bytes behind an unconditional jump (so
// execution never falls into them) rather than threading a separate
// data section through the loader. A function that calls this must
// skip CodeBuffer.Peephole: the pass scans raw bytes for instruction
// patterns and cannot tell embedded data from code.
func (b *CodeBuffer) EmitRawBytes(data []byte) { b.code = append(b.code, data...) }

// LeaLabel emits a RIP-relative `lea dst, [rip+label]`, backpatched by
// the same mechanism as JmpLabel/JccLabel: a RIP-relative disp32 and a
// rel32 jump displacement are computed identically (both are
// target-minus-next-instruction-address), so one fixup list serves
// both.
func (b *CodeBuffer) LeaLabel(dst Reg, label string) {
	b.emit(rex(true, dst.needsREX(), false, false))
	b.emit(0x8D)
	b.emit((dst.low3()&0x7)<<3 | 0x5)
	offset := len(b.code)
	b.emitImm32(0)
	b.unresolvedJumps = append(b.unresolvedJumps, jumpFixup{offset: offset, label: label, instrEnd: offset + 4})
}

// --- control flow ---

// JmpLabel emits an unconditional near jump to a label that may not be
// defined yet; ValidateAllLabelsResolved backpatches the rel32 once every label in
// the function has a known offset.
func (b *CodeBuffer) JmpLabel(label string) {
	b.emit(0xE9)
	offset := len(b.code)
	b.emitImm32(0)
	b.unresolvedJumps = append(b.unresolvedJumps, jumpFixup{offset: offset, label: label, instrEnd: offset + 4})
}

// Condition is a CPU flags test used by JccLabel, matching the
// standard x86 condition-code mnemonics.
type Condition byte

const (
	CondEqual Condition = iota
	CondNotEqual
	CondLess
	CondLessEqual
	CondGreater
	CondGreaterEqual
)

var jccOpcode = map[Condition]byte{
	CondEqual: 0x84, CondNotEqual: 0x85,
	CondLess: 0x8C, CondLessEqual: 0x8E,
	CondGreater: 0x8F, CondGreaterEqual: 0x8D,
}

func (b *CodeBuffer) JccLabel(cond Condition, label string) {
	b.emit(0x0F, jccOpcode[cond])
	offset := len(b.code)
	b.emitImm32(0)
	b.unresolvedJumps = append(b.unresolvedJumps, jumpFixup{offset: offset, label: label, instrEnd: offset + 4})
}

// ResolveLabel is kept for API symmetry with spec.md §4.5's
// resolve_label/validate_all_labels_resolved pair, but actual
// backpatching happens in one pass across every recorded fixup (the
// buffer doesn't know a label is its final definition until the
// function's whole body has been emitted).
func (b *CodeBuffer) ResolveLabel(label string) (int, bool) {
	off, ok := b.labelOffsets[label]
	return off, ok
}

// ValidateAllLabelsResolved backpatches every jump against the labels
// recorded so far and fails if any label was never defined.
func (b *CodeBuffer) ValidateAllLabelsResolved() error {
	for _, f := range b.unresolvedJumps {
		target, ok := b.labelOffsets[f.label]
		if !ok {
			return diag.CodegenError("internal: unresolved label %q in compiled function", f.label)
		}
		rel := int32(target - f.instrEnd)
		binary.LittleEndian.PutUint32(b.code[f.offset:f.offset+4], uint32(rel))
	}
	return nil
}

// UnresolvedRuntimeCalls exposes pending runtime trampoline patches for
// the loader to resolve once it has mapped the ABI trampoline table.
func (b *CodeBuffer) UnresolvedRuntimeCalls() []RuntimeCallPatch { return b.unresolvedRuntimeCalls }

// FunctionInstancePatches exposes pending function-address patches for
// the loader to resolve once funcmgr.AssignAddresses has run.
func (b *CodeBuffer) FunctionInstancePatches() []PatchInfo { return b.functionInstancePatches }

// PatchAbsoluteAddress overwrites an 8-byte immediate slot (previously
// reserved by MovFunctionAddress) with a real machine address.
func (b *CodeBuffer) PatchAbsoluteAddress(offset int, addr uint64) {
	binary.LittleEndian.PutUint64(b.code[offset:offset+8], addr)
}

// PatchRel32 overwrites a 4-byte call displacement (previously reserved
// by CallRuntime) once the target trampoline's address is known.
func (b *CodeBuffer) PatchRel32(offset int, target, instrEnd uint64) {
	rel := int32(int64(target) - int64(instrEnd))
	binary.LittleEndian.PutUint32(b.code[offset:offset+4], uint32(rel))
}

// --- SSE floating point ---

func (b *CodeBuffer) sseRegReg(prefix byte, op1, op2 byte, dst, src XmmReg) {
	b.emit(prefix)
	if dst.needsREX() || src.needsREX() {
		b.emit(rex(false, dst.needsREX(), false, src.needsREX()))
	}
	b.emit(op1, op2)
	b.emit(modrmReg(dst.low3(), src.low3()))
}

func (b *CodeBuffer) MovsdRegReg(dst, src XmmReg) { b.sseRegReg(0xF2, 0x0F, 0x10, dst, src) }
func (b *CodeBuffer) AddsdRegReg(dst, src XmmReg) { b.sseRegReg(0xF2, 0x0F, 0x58, dst, src) }
func (b *CodeBuffer) SubsdRegReg(dst, src XmmReg) { b.sseRegReg(0xF2, 0x0F, 0x5C, dst, src) }
func (b *CodeBuffer) MulsdRegReg(dst, src XmmReg) { b.sseRegReg(0xF2, 0x0F, 0x59, dst, src) }
func (b *CodeBuffer) DivsdRegReg(dst, src XmmReg) { b.sseRegReg(0xF2, 0x0F, 0x5E, dst, src) }

// CvtsiToSd converts a 64-bit general-purpose integer register to a
// double in an xmm register (F2 REX.W 0F 2A /r).
func (b *CodeBuffer) CvtsiToSd(dst XmmReg, src Reg) {
	b.emit(0xF2)
	b.emit(rex(true, dst.needsREX(), false, src.needsREX()))
	b.emit(0x0F, 0x2A)
	b.emit(modrmReg(dst.low3(), src.low3()))
}

// Peephole runs a single forward pass removing the one redundant
// pattern codegen is known to emit: a self-move `mov r, r` produced
// when a variable's source and destination register happen to land in
// the same slot after register assignment. Label offsets recorded
// before this pass are adjusted to stay valid against the shrunk
// buffer.
func (b *CodeBuffer) Peephole() {
	type rexMov struct {
		start, end int
		dst, src   byte
	}
	var redundant []rexMov
	for i := 0; i+2 < len(b.code); i++ {
		if b.code[i]&0xF0 == 0x40 && b.code[i+1] == 0x89 {
			modrm := b.code[i+2]
			if modrm&0xC0 == 0xC0 {
				regField := (modrm >> 3) & 0x7
				rm := modrm & 0x7
				rexByte := b.code[i]
				rExt := rexByte&0x04 != 0
				bExt := rexByte&0x01 != 0
				srcFull := regField
				dstFull := rm
				if rExt {
					srcFull |= 0x8
				}
				if bExt {
					dstFull |= 0x8
				}
				if srcFull == dstFull {
					redundant = append(redundant, rexMov{start: i, end: i + 3, dst: dstFull, src: srcFull})
				}
			}
		}
	}
	if len(redundant) == 0 {
		return
	}
	removed := make([]bool, len(b.code))
	for _, r := range redundant {
		for k := r.start; k < r.end; k++ {
			removed[k] = true
		}
	}
	shift := make([]int, len(b.code)+1)
	running := 0
	for i := range b.code {
		shift[i] = running
		if removed[i] {
			running++
		}
	}
	shift[len(b.code)] = running

	newCode := make([]byte, 0, len(b.code)-running)
	for i, bt := range b.code {
		if !removed[i] {
			newCode = append(newCode, bt)
		}
	}
	for label, off := range b.labelOffsets {
		b.labelOffsets[label] = off - shift[off]
	}
	for i := range b.unresolvedJumps {
		b.unresolvedJumps[i].offset -= shift[b.unresolvedJumps[i].offset]
		b.unresolvedJumps[i].instrEnd -= shift[b.unresolvedJumps[i].instrEnd]
	}
	for i := range b.unresolvedRuntimeCalls {
		b.unresolvedRuntimeCalls[i].Offset -= shift[b.unresolvedRuntimeCalls[i].Offset]
	}
	for i := range b.functionInstancePatches {
		b.functionInstancePatches[i].Offset -= shift[b.functionInstancePatches[i].Offset]
	}
	b.code = newCode
}
