// translator.go implements the two-pass bytecode-to-AArch64 lowering
// (§4.4): pass 1 creates one label per bytecode offset (plus one for
// one-past-the-end), pass 2 emits the fixed micro-sequence for each
// opcode and binds the label for its own offset. There is no register
// allocator; every lowering's register footprint is chosen so that live
// values across the sequence live in X19/X20, the two callee-saved
// registers.
package jit

import (
	"encoding/binary"

	"github.com/j1t-vm/j1t/internal/bytecode"
	"github.com/j1t-vm/j1t/internal/jiterr"
)

const (
	runtimeErrNone           = 0
	runtimeErrStackUnderflow = 1
	runtimeErrStackOverflow  = 2
)

// Translate emits a complete compiled entry for program into asm, which
// must already be bound to an output buffer via SetOutput. putcharAddr is
// the address of the host symbol PRINT calls into.
func Translate(asm *Assembler, program bytecode.Program, putcharAddr uint64) error {
	t := &translator{asm: asm, program: program, putcharAddr: putcharAddr}
	if err := t.layoutLabels(); err != nil {
		return err
	}
	return t.emit()
}

type translator struct {
	asm         *Assembler
	program     bytecode.Program
	putcharAddr uint64
	labels      map[int]Label // bytecode offset -> label
	end         Label         // one-past-the-end label
}

func (t *translator) layoutLabels() error {
	t.labels = make(map[int]Label)
	offset := 0
	for offset < len(t.program) {
		t.labels[offset] = t.asm.CreateLabel()
		op := bytecode.Opcode(t.program[offset])
		size, err := opcodeSize(op, offset, len(t.program))
		if err != nil {
			return err
		}
		offset += size
	}
	t.labels[len(t.program)] = t.asm.CreateLabel()
	t.end = t.asm.CreateLabel() // epilogue
	return nil
}

func opcodeSize(op bytecode.Opcode, offset, programLen int) (int, error) {
	if op.HasImmediate() {
		if offset+5 > programLen {
			return 0, jiterr.At(jiterr.J0002, offset, "opcode carries an inline operand truncated by end of program")
		}
		return 5, nil
	}
	return 1, nil
}

func (t *translator) labelFor(offset int) (Label, error) {
	l, ok := t.labels[offset]
	if !ok {
		return 0, jiterr.At(jiterr.J0003, offset, "branch target outside program range")
	}
	return l, nil
}

func (t *translator) emit() error {
	runtimeError := t.asm.CreateLabel()

	if err := t.emitPrologue(); err != nil {
		return err
	}

	offset := 0
	for offset < len(t.program) {
		label := t.labels[offset]
		if err := t.asm.BindLabel(label); err != nil {
			return err
		}

		op := bytecode.Opcode(t.program[offset])
		opcodeOffset := offset
		var imm uint32
		if op.HasImmediate() {
			imm = binary.LittleEndian.Uint32(t.program[offset+1 : offset+5])
		}

		if err := t.emitOpcode(op, imm, opcodeOffset, runtimeError); err != nil {
			return err
		}

		size, err := opcodeSize(op, offset, len(t.program))
		if err != nil {
			return err
		}
		offset += size
	}

	if err := t.asm.BindLabel(t.labels[len(t.program)]); err != nil {
		return err
	}

	// Trailing sequence: normal fall-off-the-end completion.
	if err := t.asm.EmitStorePointerFromRegisterToBasePlusOffset(RegStackTop, RegCtx, ctxOffsetStackTop); err != nil {
		return err
	}
	if err := t.asm.EmitMoveImmediateU32(RegRet, 0); err != nil {
		return err
	}
	if err := t.asm.Branch(t.end); err != nil {
		return err
	}

	// Shared runtime_error block.
	if err := t.asm.BindLabel(runtimeError); err != nil {
		return err
	}
	if err := t.asm.EmitStorePointerFromRegisterToBasePlusOffset(RegStackTop, RegCtx, ctxOffsetStackTop); err != nil {
		return err
	}
	if err := t.asm.EmitStoreU32FromRegisterToBasePlusOffset(RegErrStaging, RegCtx, ctxOffsetErrorCode); err != nil {
		return err
	}
	if err := t.asm.EmitMoveImmediateU32(RegRet, 0); err != nil {
		return err
	}
	if err := t.asm.Branch(t.end); err != nil {
		return err
	}

	if err := t.asm.BindLabel(t.end); err != nil {
		return err
	}
	return t.emitEpilogue()
}

func (t *translator) emitPrologue() error {
	a := t.asm
	if err := a.EmitSubtractImmediateFromPointer(RegSP, RegSP, 32); err != nil {
		return err
	}
	if err := a.EmitStorePointerFromRegisterToBasePlusOffset(RegLink, RegSP, 24); err != nil {
		return err
	}
	if err := a.EmitStorePointerFromRegisterToBasePlusOffset(RegStackTop, RegSP, 16); err != nil {
		return err
	}
	if err := a.EmitStorePointerFromRegisterToBasePlusOffset(RegCtx, RegSP, 8); err != nil {
		return err
	}
	if err := a.EmitMovePointerRegister(RegCtx, R0); err != nil {
		return err
	}
	return a.EmitLoadPointerFromBasePlusOffset(RegStackTop, RegCtx, ctxOffsetStackTop)
}

func (t *translator) emitEpilogue() error {
	a := t.asm
	if err := a.EmitLoadPointerFromBasePlusOffset(RegCtx, RegSP, 8); err != nil {
		return err
	}
	if err := a.EmitLoadPointerFromBasePlusOffset(RegStackTop, RegSP, 16); err != nil {
		return err
	}
	if err := a.EmitLoadPointerFromBasePlusOffset(RegLink, RegSP, 24); err != nil {
		return err
	}
	if err := a.EmitAddImmediateToPointer(RegSP, RegSP, 32); err != nil {
		return err
	}
	return a.EmitReturn()
}

// checkPushBytes guards top+n against ctx.stack_end (B.HI -> overflow).
func (t *translator) checkPushBytes(n uint32, runtimeError Label) error {
	a := t.asm
	if err := a.EmitMoveImmediateU32(RegErrStaging, runtimeErrStackOverflow); err != nil {
		return err
	}
	if err := a.EmitLoadPointerFromBasePlusOffset(RegBoundsB, RegCtx, ctxOffsetStackEnd); err != nil {
		return err
	}
	if err := a.EmitAddImmediateToPointer(RegBoundsA, RegStackTop, n); err != nil {
		return err
	}
	if err := a.EmitComparePointerRegisters(RegBoundsA, RegBoundsB); err != nil {
		return err
	}
	return a.BranchCond(CondHI, runtimeError)
}

// checkPopBytes guards top-n against ctx.stack_base (B.LO -> underflow).
func (t *translator) checkPopBytes(n uint32, runtimeError Label) error {
	a := t.asm
	if err := a.EmitMoveImmediateU32(RegErrStaging, runtimeErrStackUnderflow); err != nil {
		return err
	}
	if err := a.EmitLoadPointerFromBasePlusOffset(RegBoundsB, RegCtx, ctxOffsetStackBase); err != nil {
		return err
	}
	if err := a.EmitSubtractImmediateFromPointer(RegBoundsA, RegStackTop, n); err != nil {
		return err
	}
	if err := a.EmitComparePointerRegisters(RegBoundsA, RegBoundsB); err != nil {
		return err
	}
	return a.BranchCond(CondLO, runtimeError)
}

// localsAddress computes ctx.locals + idx*4 into RegLocalsAddr.
func (t *translator) localsAddress(idx uint32) error {
	a := t.asm
	if err := a.EmitLoadPointerFromBasePlusOffset(RegLocalsPtr, RegCtx, ctxOffsetLocals); err != nil {
		return err
	}
	if err := a.EmitMoveImmediateU32(RegLocalsIdx, idx); err != nil {
		return err
	}
	if err := a.EmitShiftLeftU32Immediate(RegLocalsIdx, RegLocalsIdx, 2); err != nil {
		return err
	}
	return a.EmitAddPointerRegister(RegLocalsAddr, RegLocalsPtr, RegLocalsIdx)
}

// popInto pops a 32-bit word off the operand stack into rd, without a
// bounds check (the caller has already guarded the aggregate pop size).
func (t *translator) popInto(rd Reg) error {
	a := t.asm
	if err := a.EmitSubtractImmediateFromPointer(RegStackTop, RegStackTop, 4); err != nil {
		return err
	}
	return a.EmitLoadU32FromBasePlusOffset(rd, RegStackTop, 0)
}

func (t *translator) pushFrom(rn Reg) error {
	a := t.asm
	if err := a.EmitStoreU32FromRegisterToBasePlusOffset(rn, RegStackTop, 0); err != nil {
		return err
	}
	return a.EmitAddImmediateToPointer(RegStackTop, RegStackTop, 4)
}

func (t *translator) emitOpcode(op bytecode.Opcode, imm uint32, opcodeOffset int, runtimeError Label) error {
	a := t.asm
	switch op {
	case bytecode.NOP:
		return nil

	case bytecode.PUSH:
		if err := t.checkPushBytes(4, runtimeError); err != nil {
			return err
		}
		if err := a.EmitMoveImmediateU32(RegScratch2, imm); err != nil {
			return err
		}
		return t.pushFrom(RegScratch2)

	case bytecode.POP:
		if err := t.checkPopBytes(4, runtimeError); err != nil {
			return err
		}
		return a.EmitSubtractImmediateFromPointer(RegStackTop, RegStackTop, 4)

	case bytecode.LOCAL_GET:
		if err := t.localsAddress(imm); err != nil {
			return err
		}
		if err := a.EmitLoadU32FromBasePlusOffset(RegScratch2, RegLocalsAddr, 0); err != nil {
			return err
		}
		return t.pushFrom(RegScratch2)

	case bytecode.LOCAL_SET:
		if err := a.EmitSubtractImmediateFromPointer(RegStackTop, RegStackTop, 4); err != nil {
			return err
		}
		if err := a.EmitLoadU32FromBasePlusOffset(RegScratch2, RegStackTop, 0); err != nil {
			return err
		}
		if err := t.localsAddress(imm); err != nil {
			return err
		}
		return a.EmitStoreU32FromRegisterToBasePlusOffset(RegScratch2, RegLocalsAddr, 0)

	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV:
		if err := t.checkPopBytes(8, runtimeError); err != nil {
			return err
		}
		if err := t.popInto(RegScratch2); err != nil { // rhs
			return err
		}
		if err := t.popInto(RegScratch3); err != nil { // lhs
			return err
		}
		var err error
		switch op {
		case bytecode.ADD:
			err = a.EmitAddU32Register(RegScratch3, RegScratch3, RegScratch2)
		case bytecode.SUB:
			err = a.EmitSubtractU32Register(RegScratch3, RegScratch3, RegScratch2)
		case bytecode.MUL:
			err = a.EmitMultiplyU32Register(RegScratch3, RegScratch3, RegScratch2)
		case bytecode.DIV:
			err = a.EmitDivideI32Register(RegScratch3, RegScratch3, RegScratch2)
		}
		if err != nil {
			return err
		}
		return t.pushFrom(RegScratch3)

	case bytecode.EQ, bytecode.LESS_THAN_SIGNED, bytecode.LESS_THAN_UNSIGNED:
		if err := t.checkPopBytes(8, runtimeError); err != nil {
			return err
		}
		if err := t.popInto(RegScratch2); err != nil { // rhs
			return err
		}
		if err := t.popInto(RegScratch3); err != nil { // lhs
			return err
		}
		if err := a.EmitCompareU32Registers(RegScratch3, RegScratch2); err != nil {
			return err
		}
		var cond uint32
		switch op {
		case bytecode.EQ:
			cond = CondEQ
		case bytecode.LESS_THAN_SIGNED:
			cond = CondLT
		case bytecode.LESS_THAN_UNSIGNED:
			cond = CondLO
		}
		if err := a.EmitCsetU32(RegScratch7, cond); err != nil {
			return err
		}
		return t.pushFrom(RegScratch7)

	case bytecode.JUMP:
		target := opcodeOffset + int(int32(imm))
		if target < 0 || target > len(t.program) {
			return jiterr.At(jiterr.J0003, opcodeOffset, "jump target outside program range")
		}
		label, err := t.labelFor(target)
		if err != nil {
			return err
		}
		return a.Branch(label)

	case bytecode.JUMP_IF_ZERO, bytecode.JUMP_IF_NOT_ZERO:
		target := opcodeOffset + int(int32(imm))
		if target < 0 || target > len(t.program) {
			return jiterr.At(jiterr.J0003, opcodeOffset, "jump target outside program range")
		}
		label, err := t.labelFor(target)
		if err != nil {
			return err
		}
		if err := t.checkPopBytes(4, runtimeError); err != nil {
			return err
		}
		if err := a.EmitSubtractImmediateFromPointer(RegStackTop, RegStackTop, 4); err != nil {
			return err
		}
		if err := a.EmitLoadU32FromBasePlusOffset(RegScratch2, RegStackTop, 0); err != nil {
			return err
		}
		if err := a.EmitCompareU32Registers(RegScratch2, RZR); err != nil {
			return err
		}
		if op == bytecode.JUMP_IF_ZERO {
			return a.BranchEqual(label)
		}
		return a.BranchNotEqual(label)

	case bytecode.PRINT:
		if err := a.EmitSubtractImmediateFromPointer(RegStackTop, RegStackTop, 4); err != nil {
			return err
		}
		if err := a.EmitLoadU32FromBasePlusOffset(RegScratch2, RegStackTop, 0); err != nil {
			return err
		}
		if err := a.EmitMoveU32Register(RegRet, RegScratch2); err != nil {
			return err
		}
		if err := a.EmitMovePointerImmediate(RegIndirect, t.putcharAddr); err != nil {
			return err
		}
		return a.EmitCallRegister(RegIndirect)

	case bytecode.RET:
		if err := t.checkPopBytes(4, runtimeError); err != nil {
			return err
		}
		if err := a.EmitSubtractImmediateFromPointer(RegStackTop, RegStackTop, 4); err != nil {
			return err
		}
		if err := a.EmitLoadU32FromBasePlusOffset(RegScratch2, RegStackTop, 0); err != nil {
			return err
		}
		if err := a.EmitStorePointerFromRegisterToBasePlusOffset(RegStackTop, RegCtx, ctxOffsetStackTop); err != nil {
			return err
		}
		if err := a.EmitMoveU32Register(RegRet, RegScratch2); err != nil {
			return err
		}
		return a.Branch(t.end)

	default:
		return jiterr.At(jiterr.J0001, opcodeOffset, "invalid opcode")
	}
}
