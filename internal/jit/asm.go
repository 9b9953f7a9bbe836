// asm.go - AArch64 宏汇编器
//
// 本文件实现了一个有状态的 AArch64 机器码发射器：将 32 位指令字写入
// 已绑定的可执行内存缓冲区，维护前向引用标签表，并在 Finalize 时回填
// 分支立即数。指令位模式直接来自编码表，按操作数逐条复现；具体来源
// 见 DESIGN.md 的逐条说明。
package jit

import (
	"encoding/binary"

	"github.com/j1t-vm/j1t/internal/jiterr"
)

// ============================================================================
// 标签与重定位
// ============================================================================

// Label is an opaque forward-reference identity created by CreateLabel and
// bound at most once by BindLabel（标签只能绑定一次，重复绑定是错误）.
type Label int

type labelState struct {
	bound  bool
	offset int
}

type patchKind int

const (
	patchUnconditional patchKind = iota
	patchConditional
)

type branchPatch struct {
	instrOffset int
	target      Label
	kind        patchKind
	cond        uint32
}

// ============================================================================
// 汇编器
// ============================================================================

// Assembler emits AArch64 machine code into a bound ExecutableMemory
// buffer. It keeps no state beyond the current buffer, cursor, label table
// and patch list — there is no process-wide global state (§9).
type Assembler struct {
	mem    ExecutableMemory
	cursor int
	labels []labelState
	patches []branchPatch
	sealed  bool
}

// NewAssembler returns an Assembler with no bound output buffer.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// SetOutput binds buf as the emission target and resets all mutable state.
func (a *Assembler) SetOutput(mem ExecutableMemory) {
	a.mem = mem
	a.cursor = 0
	a.labels = a.labels[:0]
	a.patches = a.patches[:0]
	a.sealed = false
}

// CodeSize returns the number of bytes emitted so far.
func (a *Assembler) CodeSize() int { return a.cursor }

func (a *Assembler) emit(instr uint32) error {
	buf := a.mem.Bytes()
	if a.cursor+4 > len(buf) {
		return jiterr.New(jiterr.J1001, "macro assembler output buffer too small")
	}
	binary.LittleEndian.PutUint32(buf[a.cursor:], instr)
	a.cursor += 4
	return nil
}

func (a *Assembler) overwrite(offset int, instr uint32) error {
	buf := a.mem.Bytes()
	if offset+4 > len(buf) {
		return jiterr.New(jiterr.J1001, "macro assembler overwrite past buffer end")
	}
	binary.LittleEndian.PutUint32(buf[offset:], instr)
	return nil
}

// CreateLabel returns a fresh unbound label identity.
func (a *Assembler) CreateLabel() Label {
	id := Label(len(a.labels))
	a.labels = append(a.labels, labelState{})
	return id
}

// BindLabel sets label's offset to the current cursor.
func (a *Assembler) BindLabel(label Label) error {
	if int(label) >= len(a.labels) {
		return jiterr.New(jiterr.J0008, "bind_label: unknown label identity")
	}
	if a.labels[label].bound {
		return jiterr.New(jiterr.J0007, "bind_label: label already bound")
	}
	a.labels[label] = labelState{bound: true, offset: a.cursor}
	return nil
}

func encodeUnconditionalImm26(delta int32) uint32 {
	return 0x14000000 | (uint32(delta) & 0x03FFFFFF)
}

func encodeConditionalImm19(cond uint32, delta int32) uint32 {
	return 0x54000000 | ((uint32(delta) & 0x7FFFF) << 5) | (cond & 0xF)
}

// ============================================================================
// 数据移动指令
// ============================================================================

// EmitMoveImmediateU32 emits MOVZ of the low 16 bits, followed by MOVK at
// LSL 16 if the high half-word is non-zero.
func (a *Assembler) EmitMoveImmediateU32(rd Reg, imm32 uint32) error {
	imm0 := imm32 & 0xFFFF
	imm1 := (imm32 >> 16) & 0xFFFF
	if err := a.emit(0x52800000 | (imm0 << 5) | uint32(rd)); err != nil {
		return err
	}
	if imm1 != 0 {
		if err := a.emit(0x72A00000 | (imm1 << 5) | uint32(rd)); err != nil {
			return err
		}
	}
	return nil
}

// EmitMovePointerImmediate emits MOVZ followed by MOVK at shifts 16/32/48
// for each non-zero half-word of imm64.
func (a *Assembler) EmitMovePointerImmediate(rd Reg, imm64 uint64) error {
	if err := a.emit(0xD2800000 | (uint32(imm64&0xFFFF) << 5) | uint32(rd)); err != nil {
		return err
	}
	for hw := uint32(1); hw <= 3; hw++ {
		half := uint32((imm64 >> (16 * hw)) & 0xFFFF)
		if half == 0 {
			continue
		}
		if err := a.emit(0xF2800000 | (hw << 21) | (half << 5) | uint32(rd)); err != nil {
			return err
		}
	}
	return nil
}

// EmitMoveU32Register encodes `orr wd, wzr, wn` (mov alias).
func (a *Assembler) EmitMoveU32Register(rd, rn Reg) error {
	return a.emit(0x2A0003E0 | (uint32(rn) << 16) | uint32(rd))
}

// EmitMovePointerRegister encodes `orr xd, xzr, xn` (mov alias).
func (a *Assembler) EmitMovePointerRegister(rd, rn Reg) error {
	return a.emit(0xAA0003E0 | (uint32(rn) << 16) | uint32(rd))
}

// ============================================================================
// 加载/存储指令（加载-存储架构，不支持内存直接运算）
// ============================================================================

func validU32Offset(off int32) bool { return off >= 0 && off%4 == 0 && off <= 4092 }

// EmitLoadU32FromBasePlusOffset emits LDR Wd, [Xn, #off] (32-bit).
func (a *Assembler) EmitLoadU32FromBasePlusOffset(rd, rn Reg, off int32) error {
	if !validU32Offset(off) {
		return jiterr.New(jiterr.J0005, "load u32: offset must be in [0,4092] and a multiple of 4")
	}
	imm12 := uint32(off) / 4
	return a.emit(0xB9400000 | (imm12 << 10) | (uint32(rn) << 5) | uint32(rd))
}

// EmitStoreU32FromRegisterToBasePlusOffset emits STR Wd, [Xn, #off].
func (a *Assembler) EmitStoreU32FromRegisterToBasePlusOffset(rd, rn Reg, off int32) error {
	if !validU32Offset(off) {
		return jiterr.New(jiterr.J0005, "store u32: offset must be in [0,4092] and a multiple of 4")
	}
	imm12 := uint32(off) / 4
	return a.emit(0xB9000000 | (imm12 << 10) | (uint32(rn) << 5) | uint32(rd))
}

func validPointerOffset(off int32) bool { return off >= 0 && off%8 == 0 && off <= 32760 }

// EmitLoadPointerFromBasePlusOffset emits LDR Xd, [Xn, #off] (64-bit).
func (a *Assembler) EmitLoadPointerFromBasePlusOffset(rd, rn Reg, off int32) error {
	if !validPointerOffset(off) {
		return jiterr.New(jiterr.J0005, "load pointer: offset must be non-negative and a multiple of 8")
	}
	imm12 := uint32(off) / 8
	return a.emit(0xF9400000 | (imm12 << 10) | (uint32(rn) << 5) | uint32(rd))
}

// EmitStorePointerFromRegisterToBasePlusOffset emits STR Xd, [Xn, #off].
func (a *Assembler) EmitStorePointerFromRegisterToBasePlusOffset(rd, rn Reg, off int32) error {
	if !validPointerOffset(off) {
		return jiterr.New(jiterr.J0005, "store pointer: offset must be non-negative and a multiple of 8")
	}
	imm12 := uint32(off) / 8
	return a.emit(0xF9000000 | (imm12 << 10) | (uint32(rn) << 5) | uint32(rd))
}

// ============================================================================
// 指针算术指令
// ============================================================================

// EmitAddImmediateToPointer emits ADD Xd, Xn, #imm12.
func (a *Assembler) EmitAddImmediateToPointer(rd, rn Reg, imm uint32) error {
	if imm > 4095 {
		return jiterr.New(jiterr.J0005, "add immediate to pointer: imm must be <= 4095")
	}
	return a.emit(0x91000000 | ((imm & 0xFFF) << 10) | (uint32(rn) << 5) | uint32(rd))
}

// EmitSubtractImmediateFromPointer emits SUB Xd, Xn, #imm12.
func (a *Assembler) EmitSubtractImmediateFromPointer(rd, rn Reg, imm uint32) error {
	if imm > 4095 {
		return jiterr.New(jiterr.J0005, "subtract immediate from pointer: imm must be <= 4095")
	}
	return a.emit(0xD1000000 | ((imm & 0xFFF) << 10) | (uint32(rn) << 5) | uint32(rd))
}

// EmitAddPointerRegister emits ADD Xd, Xn, Xm (64-bit).
func (a *Assembler) EmitAddPointerRegister(rd, rn, rm Reg) error {
	return a.emit(0x8B000000 | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd))
}

// ============================================================================
// 32 位算术指令
// ============================================================================

// EmitAddU32Register emits ADD Wd, Wn, Wm.
func (a *Assembler) EmitAddU32Register(rd, rn, rm Reg) error {
	return a.emit(0x0B000000 | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd))
}

// EmitSubtractU32Register emits SUB Wd, Wn, Wm.
func (a *Assembler) EmitSubtractU32Register(rd, rn, rm Reg) error {
	return a.emit(0x4B000000 | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd))
}

// EmitMultiplyU32Register emits MADD Wd, Wn, Wm, WZR (MUL alias).
func (a *Assembler) EmitMultiplyU32Register(rd, rn, rm Reg) error {
	return a.emit(0x1B007C00 | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd))
}

// EmitDivideI32Register emits SDIV Wd, Wn, Wm.
func (a *Assembler) EmitDivideI32Register(rd, rn, rm Reg) error {
	return a.emit(0x1AC00C00 | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd))
}

// EmitDivideU32Register emits UDIV Wd, Wn, Wm.
func (a *Assembler) EmitDivideU32Register(rd, rn, rm Reg) error {
	return a.emit(0x1AC00800 | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd))
}

// EmitShiftLeftU32Immediate emits the LSL alias of UBFM Wd, Wn, #immr, #imms
// with immr = (32-sh) mod 32, imms = 31-sh.
func (a *Assembler) EmitShiftLeftU32Immediate(rd, rn Reg, sh uint32) error {
	if sh > 31 {
		return jiterr.New(jiterr.J0005, "shift left u32: shift must be <= 31")
	}
	immr := (32 - sh) % 32
	imms := uint32(31) - sh
	return a.emit(0x53000000 | (immr << 16) | (imms << 10) | (uint32(rn) << 5) | uint32(rd))
}

// ============================================================================
// 比较与条件选择指令
// ============================================================================

// EmitCompareU32Registers emits SUBS WZR, Wn, Wm (CMP alias).
func (a *Assembler) EmitCompareU32Registers(rn, rm Reg) error {
	return a.emit(0x6B00001F | (uint32(rm) << 16) | (uint32(rn) << 5))
}

// EmitComparePointerRegisters emits SUBS XZR, Xn, Xm (CMP alias).
func (a *Assembler) EmitComparePointerRegisters(rn, rm Reg) error {
	return a.emit(0xEB00001F | (uint32(rm) << 16) | (uint32(rn) << 5))
}

// EmitCsetU32 emits CSINC Wd, WZR, WZR, invcond (CSET alias): rd is 1 when
// cond holds, 0 otherwise.
func (a *Assembler) EmitCsetU32(rd Reg, cond uint32) error {
	invCond := cond ^ 1
	return a.emit(0x1A9F07E0 | (invCond << 12) | uint32(rd))
}

// ============================================================================
// 控制流指令
// ============================================================================

// EmitCallRegister emits BLR Xn.
func (a *Assembler) EmitCallRegister(rn Reg) error {
	return a.emit(0xD63F0000 | (uint32(rn) << 5))
}

// EmitReturn emits RET (defaults to X30).
func (a *Assembler) EmitReturn() error {
	return a.emit(0xD65F03C0)
}

// Branch records a patch at the current cursor and emits an unconditional
// zero-immediate placeholder.
func (a *Assembler) Branch(target Label) error {
	instrOffset := a.cursor
	if err := a.emit(encodeUnconditionalImm26(0)); err != nil {
		return err
	}
	a.patches = append(a.patches, branchPatch{instrOffset: instrOffset, target: target, kind: patchUnconditional})
	return nil
}

// BranchCond records a patch at the current cursor and emits a conditional
// zero-immediate B.cond placeholder for the given condition.
func (a *Assembler) BranchCond(cond uint32, target Label) error {
	instrOffset := a.cursor
	if err := a.emit(encodeConditionalImm19(cond, 0)); err != nil {
		return err
	}
	a.patches = append(a.patches, branchPatch{instrOffset: instrOffset, target: target, kind: patchConditional, cond: cond})
	return nil
}

// BranchEqual is BranchCond(CondEQ, target).
func (a *Assembler) BranchEqual(target Label) error { return a.BranchCond(CondEQ, target) }

// BranchNotEqual is BranchCond(CondNE, target).
func (a *Assembler) BranchNotEqual(target Label) error { return a.BranchCond(CondNE, target) }

// ============================================================================
// 序言/尾声辅助指令（STP/LDP 寄存器对）
// ============================================================================

// EmitStorePairPreIndexed emits STP Xt1, Xt2, [Xn, #off]! with off a
// multiple of 8 in [-512, 504].
func (a *Assembler) EmitStorePairPreIndexed(rt1, rt2, rn Reg, off int32) error {
	imm7 := uint32(off/8) & 0x7F
	return a.emit(0xA9800000 | (imm7 << 15) | (uint32(rt2) << 10) | (uint32(rn) << 5) | uint32(rt1))
}

// EmitLoadPairPostIndexed emits LDP Xt1, Xt2, [Xn], #off.
func (a *Assembler) EmitLoadPairPostIndexed(rt1, rt2, rn Reg, off int32) error {
	imm7 := uint32(off/8) & 0x7F
	return a.emit(0xA8C00000 | (imm7 << 15) | (uint32(rt2) << 10) | (uint32(rn) << 5) | uint32(rt1))
}

// ============================================================================
// 重定位解析
// ============================================================================

// Finalize resolves all recorded branch patches. The delta base is the
// branch instruction itself, never PC+4（差值基准是分支指令本身，而非
// PC+4，这是正确性的关键）.
func (a *Assembler) Finalize() error {
	for _, p := range a.patches {
		if int(p.target) >= len(a.labels) {
			return jiterr.New(jiterr.J0008, "finalize: unknown branch target label")
		}
		ls := a.labels[p.target]
		if !ls.bound {
			return jiterr.New(jiterr.J0006, "finalize: unbound branch target label")
		}

		deltaBytes := ls.offset - p.instrOffset
		if deltaBytes%4 != 0 {
			return jiterr.New(jiterr.J0004, "finalize: branch target not instruction-aligned")
		}
		deltaInstr := int32(deltaBytes / 4)

		switch p.kind {
		case patchUnconditional:
			if deltaInstr < -(1<<25) || deltaInstr >= (1<<25) {
				return jiterr.New(jiterr.J0004, "finalize: unconditional branch target out of range")
			}
			if err := a.overwrite(p.instrOffset, encodeUnconditionalImm26(deltaInstr)); err != nil {
				return err
			}
		case patchConditional:
			if deltaInstr < -(1<<18) || deltaInstr >= (1<<18) {
				return jiterr.New(jiterr.J0004, "finalize: conditional branch target out of range")
			}
			if err := a.overwrite(p.instrOffset, encodeConditionalImm19(p.cond, deltaInstr)); err != nil {
				return err
			}
		}
	}
	return nil
}
