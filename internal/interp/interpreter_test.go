package interp

import (
	"errors"
	"testing"

	"github.com/j1t-vm/j1t/internal/bytecode"
)

func TestRunAddReturn(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Push(40)
	b.Push(2)
	b.Add()
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	result, err := Run(program, &State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnValue != 42 {
		t.Fatalf("return value = %d, want 42", result.ReturnValue)
	}
}

func TestRunLocalShuffle(t *testing.T) {
	b := bytecode.NewBuilder()
	b.LocalGet(0)
	b.Push(1)
	b.Add()
	b.LocalSet(1)
	b.LocalGet(1)
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	state := &State{Locals: []uint32{7, 0, 0, 0}}
	result, err := Run(program, state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnValue != 8 {
		t.Fatalf("return value = %d, want 8", result.ReturnValue)
	}
	if state.Locals[1] != 8 {
		t.Fatalf("locals[1] = %d, want 8", state.Locals[1])
	}
}

func TestRunLoopCounting(t *testing.T) {
	b := bytecode.NewBuilder()
	top := b.Label()
	done := b.Label()
	b.Bind(top)
	b.LocalGet(0)
	b.Push(5)
	b.Eq()
	b.JumpIfNotZero(done)
	b.LocalGet(0)
	b.Push(1)
	b.Add()
	b.LocalSet(0)
	b.Jump(top)
	b.Bind(done)
	b.LocalGet(0)
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	state := &State{Locals: []uint32{0}}
	result, err := Run(program, state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnValue != 5 {
		t.Fatalf("return value = %d, want 5", result.ReturnValue)
	}
}

func TestRunStackUnderflow(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Pop()
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := Run(program, &State{}); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
}

func TestRunPrint(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Push('A')
	b.Print()
	b.Push(0)
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	var out []byte
	state := &State{Output: func(b byte) { out = append(out, b) }}
	result, err := Run(program, state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out) != 1 || out[0] != 0x41 {
		t.Fatalf("output = %v, want [0x41]", out)
	}
	if result.ReturnValue != 0 {
		t.Fatalf("return value = %d, want 0", result.ReturnValue)
	}
}

func TestRunDivisionByZero(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Push(10)
	b.Push(0)
	b.Div()
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := Run(program, &State{}); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("err = %v, want ErrDivisionByZero", err)
	}
}

func TestRunMemoryOpcodes(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Push(0x99)
	b.Push(3) // addr
	b.Store8()
	b.Push(3) // addr
	b.Load8Unsigned()
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	state := &State{Memory: make([]byte, 8)}
	result, err := Run(program, state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnValue != 0x99 {
		t.Fatalf("return value = %#x, want 0x99", result.ReturnValue)
	}
}

func TestRunNonTerminated(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Nop()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := Run(program, &State{}); !errors.Is(err, ErrNonTerminated) {
		t.Fatalf("err = %v, want ErrNonTerminated", err)
	}
}
