package jit

import (
	"encoding/binary"
	"testing"
)

type fakeMemory struct {
	buf []byte
}

func newFakeMemory(size int) *fakeMemory        { return &fakeMemory{buf: make([]byte, size)} }
func (m *fakeMemory) Bytes() []byte             { return m.buf }
func (m *fakeMemory) BeginWrite() error         { return nil }
func (m *fakeMemory) EndWrite() error           { return nil }
func (m *fakeMemory) Finalize(codeSize int) error { return nil }
func (m *fakeMemory) Close() error              { return nil }

func newTestAssembler(t *testing.T, size int) (*Assembler, *fakeMemory) {
	t.Helper()
	mem := newFakeMemory(size)
	asm := NewAssembler()
	asm.SetOutput(mem)
	return asm, mem
}

func wordAt(mem *fakeMemory, offset int) uint32 {
	return binary.LittleEndian.Uint32(mem.buf[offset:])
}

func TestEmitMoveImmediateU32(t *testing.T) {
	asm, mem := newTestAssembler(t, 64)

	if err := asm.EmitMoveImmediateU32(R2, 0x1234); err != nil {
		t.Fatalf("emit: %v", err)
	}
	want := uint32(0x52800000) | (0x1234 << 5) | uint32(R2)
	if got := wordAt(mem, 0); got != want {
		t.Fatalf("MOVZ encoding = %#x, want %#x", got, want)
	}
	if asm.CodeSize() != 4 {
		t.Fatalf("code size = %d, want 4 (no MOVK for a zero high half)", asm.CodeSize())
	}

	asm2, mem2 := newTestAssembler(t, 64)
	if err := asm2.EmitMoveImmediateU32(R3, 0x00010001); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if asm2.CodeSize() != 8 {
		t.Fatalf("code size = %d, want 8 (MOVZ + MOVK)", asm2.CodeSize())
	}
	wantMovk := uint32(0x72A00000) | (1 << 5) | uint32(R3)
	if got := wordAt(mem2, 4); got != wantMovk {
		t.Fatalf("MOVK encoding = %#x, want %#x", got, wantMovk)
	}
}

func TestEmitCompareAndCset(t *testing.T) {
	asm, mem := newTestAssembler(t, 64)
	if err := asm.EmitCompareU32Registers(R2, R3); err != nil {
		t.Fatalf("emit compare: %v", err)
	}
	want := uint32(0x6B00001F) | (uint32(R3) << 16) | (uint32(R2) << 5)
	if got := wordAt(mem, 0); got != want {
		t.Fatalf("CMP W encoding = %#x, want %#x", got, want)
	}

	if err := asm.EmitCsetU32(R7, CondEQ); err != nil {
		t.Fatalf("emit cset: %v", err)
	}
	wantCset := uint32(0x1A9F07E0) | ((CondEQ ^ 1) << 12) | uint32(R7)
	if got := wordAt(mem, 4); got != wantCset {
		t.Fatalf("CSET encoding = %#x, want %#x", got, wantCset)
	}
}

func TestLoadStoreOffsetValidation(t *testing.T) {
	asm, _ := newTestAssembler(t, 64)

	if err := asm.EmitLoadU32FromBasePlusOffset(R2, R3, 4093); err == nil {
		t.Fatalf("expected error for unaligned/out-of-range u32 offset")
	}
	if asm.CodeSize() != 0 {
		t.Fatalf("rejected emit must not append bytes, got code size %d", asm.CodeSize())
	}

	if err := asm.EmitLoadU32FromBasePlusOffset(R2, R3, 4092); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := asm.EmitAddImmediateToPointer(R4, R5, 4096); err == nil {
		t.Fatalf("expected error for imm12 > 4095")
	}
}

// TestBranchPatchDeltaConvention exercises testable property 2: the
// resolved immediate encodes (target_byte_offset - branch_byte_offset)/4,
// with a self-branch encoding 0 and a branch to the next instruction
// encoding +1.
func TestBranchPatchDeltaConvention(t *testing.T) {
	asm, mem := newTestAssembler(t, 64)

	selfLabel := asm.CreateLabel()
	if err := asm.BindLabel(selfLabel); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := asm.Branch(selfLabel); err != nil {
		t.Fatalf("branch: %v", err)
	}

	nextLabel := asm.CreateLabel()
	if err := asm.Branch(nextLabel); err != nil {
		t.Fatalf("branch: %v", err)
	}
	if err := asm.BindLabel(nextLabel); err != nil {
		t.Fatalf("bind: %v", err)
	}

	if err := asm.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	selfWord := wordAt(mem, 0)
	if imm26 := selfWord & 0x03FFFFFF; imm26 != 0 {
		t.Fatalf("self-branch imm26 = %#x, want 0", imm26)
	}

	nextWord := wordAt(mem, 4)
	if imm26 := nextWord & 0x03FFFFFF; imm26 != 1 {
		t.Fatalf("branch-to-next imm26 = %#x, want 1", imm26)
	}
}

func TestFinalizeUnboundLabelFails(t *testing.T) {
	asm, _ := newTestAssembler(t, 64)
	label := asm.CreateLabel()
	if err := asm.Branch(label); err != nil {
		t.Fatalf("branch: %v", err)
	}
	if err := asm.Finalize(); err == nil {
		t.Fatalf("expected finalize to fail on an unbound label")
	}
}

func TestBindLabelTwiceFails(t *testing.T) {
	asm, _ := newTestAssembler(t, 64)
	label := asm.CreateLabel()
	if err := asm.BindLabel(label); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := asm.BindLabel(label); err == nil {
		t.Fatalf("expected second bind of the same label to fail")
	}
}

func TestEmitStorePairAndLoadPairEncodings(t *testing.T) {
	asm, mem := newTestAssembler(t, 64)
	if err := asm.EmitStorePairPreIndexed(R19, R20, RegSP, -32); err != nil {
		t.Fatalf("emit stp: %v", err)
	}
	stpImm := int32(-32 / 8)
	want := uint32(0xA9800000) | ((uint32(stpImm) & 0x7F) << 15) | (uint32(R20) << 10) | (uint32(RegSP) << 5) | uint32(R19)
	if got := wordAt(mem, 0); got != want {
		t.Fatalf("STP encoding = %#x, want %#x", got, want)
	}

	if err := asm.EmitLoadPairPostIndexed(R19, R20, RegSP, 32); err != nil {
		t.Fatalf("emit ldp: %v", err)
	}
	wantLdp := uint32(0xA8C00000) | ((uint32(32/8) & 0x7F) << 15) | (uint32(R20) << 10) | (uint32(RegSP) << 5) | uint32(R19)
	if got := wordAt(mem, 4); got != wantLdp {
		t.Fatalf("LDP encoding = %#x, want %#x", got, wantLdp)
	}
}
