// Package interp provides a minimal reference interpreter for the VM's
// bytecode. It exists solely to drive differential tests against the JIT
// (§8 testable property 1) — it is not a general-purpose execution engine
// and is deliberately kept small.
package interp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/j1t-vm/j1t/internal/bytecode"
)

// Errors mirror the reference interpreter's own error taxonomy.
var (
	ErrPCOutOfRange       = errors.New("interp: pc out of range")
	ErrStackUnderflow     = errors.New("interp: stack underflow")
	ErrInvalidLocalIndex  = errors.New("interp: invalid local index")
	ErrMemoryOutOfBounds  = errors.New("interp: memory access out of bounds")
	ErrDivisionByZero     = errors.New("interp: division by zero")
	ErrInvalidOpcode      = errors.New("interp: invalid opcode")
	ErrNonTerminated      = errors.New("interp: program fell off the end without RET")
)

// State is the interpreter-owned machine state: an operand stack, an
// indexed locals array and a flat linear memory buffer.
type State struct {
	Stack  []uint32
	Locals []uint32
	Memory []byte

	// Output receives bytes written by PRINT. When nil, PRINT still pops
	// its operand and the byte is discarded.
	Output func(byte)
}

// Result is the outcome of a completed RET, mirroring the reference
// engine's execution_info{pc, return_value} shape.
type Result struct {
	PC          uint32
	ReturnValue uint32
}

// Run interprets program against state until it hits RET or an error.
func Run(program bytecode.Program, state *State) (Result, error) {
	code := []byte(program)
	pc := uint32(0)

	readU8 := func() (byte, bool) {
		if int(pc) >= len(code) {
			return 0, false
		}
		v := code[pc]
		pc++
		return v, true
	}
	readU32LE := func() (uint32, bool) {
		if int(pc)+4 > len(code) {
			return 0, false
		}
		v := binary.LittleEndian.Uint32(code[pc:])
		pc += 4
		return v, true
	}
	popU32 := func() (uint32, bool) {
		n := len(state.Stack)
		if n == 0 {
			return 0, false
		}
		v := state.Stack[n-1]
		state.Stack = state.Stack[:n-1]
		return v, true
	}
	pushU32 := func(v uint32) {
		state.Stack = append(state.Stack, v)
	}
	jumpRelative := func(opcodePC uint32, rel int32) error {
		next := int64(opcodePC) + int64(rel)
		if next < 0 || next > int64(len(code)) {
			return ErrPCOutOfRange
		}
		pc = uint32(next)
		return nil
	}

	for int(pc) < len(code) {
		opcodePC := pc
		opByte, ok := readU8()
		if !ok {
			return Result{}, ErrPCOutOfRange
		}
		op := bytecode.Opcode(opByte)

		switch op {
		case bytecode.NOP:

		case bytecode.PUSH:
			imm, ok := readU32LE()
			if !ok {
				return Result{}, ErrPCOutOfRange
			}
			pushU32(imm)

		case bytecode.POP:
			if _, ok := popU32(); !ok {
				return Result{}, ErrStackUnderflow
			}

		case bytecode.LOCAL_GET:
			idx, ok := readU32LE()
			if !ok {
				return Result{}, ErrPCOutOfRange
			}
			if int(idx) >= len(state.Locals) {
				return Result{}, ErrInvalidLocalIndex
			}
			pushU32(state.Locals[idx])

		case bytecode.LOCAL_SET:
			idx, ok := readU32LE()
			if !ok {
				return Result{}, ErrPCOutOfRange
			}
			if int(idx) >= len(state.Locals) {
				return Result{}, ErrInvalidLocalIndex
			}
			v, ok := popU32()
			if !ok {
				return Result{}, ErrStackUnderflow
			}
			state.Locals[idx] = v

		case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV:
			rhs, ok1 := popU32()
			lhs, ok2 := popU32()
			if !ok1 || !ok2 {
				return Result{}, ErrStackUnderflow
			}
			var result uint32
			switch op {
			case bytecode.ADD:
				result = lhs + rhs
			case bytecode.SUB:
				result = lhs - rhs
			case bytecode.MUL:
				result = lhs * rhs
			case bytecode.DIV:
				rs, ls := int32(rhs), int32(lhs)
				if rs == 0 {
					return Result{}, ErrDivisionByZero
				}
				result = uint32(ls / rs)
			}
			pushU32(result)

		case bytecode.EQ:
			rhs, ok1 := popU32()
			lhs, ok2 := popU32()
			if !ok1 || !ok2 {
				return Result{}, ErrStackUnderflow
			}
			pushU32(boolToU32(lhs == rhs))

		case bytecode.LESS_THAN_SIGNED:
			rhs, ok1 := popU32()
			lhs, ok2 := popU32()
			if !ok1 || !ok2 {
				return Result{}, ErrStackUnderflow
			}
			pushU32(boolToU32(int32(lhs) < int32(rhs)))

		case bytecode.LESS_THAN_UNSIGNED:
			rhs, ok1 := popU32()
			lhs, ok2 := popU32()
			if !ok1 || !ok2 {
				return Result{}, ErrStackUnderflow
			}
			pushU32(boolToU32(lhs < rhs))

		case bytecode.LOAD_8_UNSIGNED:
			addr, ok := popU32()
			if !ok {
				return Result{}, ErrStackUnderflow
			}
			if int(addr) >= len(state.Memory) {
				return Result{}, ErrMemoryOutOfBounds
			}
			pushU32(uint32(state.Memory[addr]))

		case bytecode.LOAD_16_UNSIGNED:
			addr, ok := popU32()
			if !ok {
				return Result{}, ErrStackUnderflow
			}
			if int(addr)+1 >= len(state.Memory) {
				return Result{}, ErrMemoryOutOfBounds
			}
			v := uint16(state.Memory[addr]) | uint16(state.Memory[addr+1])<<8
			pushU32(uint32(v))

		case bytecode.LOAD_32:
			addr, ok := popU32()
			if !ok {
				return Result{}, ErrStackUnderflow
			}
			if int(addr)+3 >= len(state.Memory) {
				return Result{}, ErrMemoryOutOfBounds
			}
			v := binary.LittleEndian.Uint32(state.Memory[addr:])
			pushU32(v)

		case bytecode.STORE_8:
			addr, ok1 := popU32()
			val, ok2 := popU32()
			if !ok1 || !ok2 {
				return Result{}, ErrStackUnderflow
			}
			if int(addr) >= len(state.Memory) {
				return Result{}, ErrMemoryOutOfBounds
			}
			state.Memory[addr] = byte(val)

		case bytecode.READ_8_UNSIGNED:
			addr, ok := popU32()
			if !ok {
				return Result{}, ErrStackUnderflow
			}
			if int(addr) >= len(state.Memory) {
				return Result{}, ErrMemoryOutOfBounds
			}
			pushU32(uint32(state.Memory[addr]))

		case bytecode.JUMP:
			rel, ok := readU32LE()
			if !ok {
				return Result{}, ErrPCOutOfRange
			}
			if err := jumpRelative(opcodePC, int32(rel)); err != nil {
				return Result{}, err
			}

		case bytecode.JUMP_IF_ZERO:
			rel, ok := readU32LE()
			if !ok {
				return Result{}, ErrPCOutOfRange
			}
			cond, ok := popU32()
			if !ok {
				return Result{}, ErrStackUnderflow
			}
			if cond == 0 {
				if err := jumpRelative(opcodePC, int32(rel)); err != nil {
					return Result{}, err
				}
			}

		case bytecode.JUMP_IF_NOT_ZERO:
			rel, ok := readU32LE()
			if !ok {
				return Result{}, ErrPCOutOfRange
			}
			cond, ok := popU32()
			if !ok {
				return Result{}, ErrStackUnderflow
			}
			if cond != 0 {
				if err := jumpRelative(opcodePC, int32(rel)); err != nil {
					return Result{}, err
				}
			}

		case bytecode.RET:
			v, ok := popU32()
			if !ok {
				return Result{}, ErrStackUnderflow
			}
			return Result{PC: pc, ReturnValue: v}, nil

		case bytecode.PRINT:
			v, ok := popU32()
			if !ok {
				return Result{}, ErrStackUnderflow
			}
			if state.Output != nil {
				state.Output(byte(v))
			}

		default:
			return Result{}, fmt.Errorf("%w: 0x%02x", ErrInvalidOpcode, opByte)
		}
	}

	return Result{}, ErrNonTerminated
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
