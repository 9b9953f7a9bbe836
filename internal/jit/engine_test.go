//go:build arm64

package jit

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/j1t-vm/j1t/internal/bytecode"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	logger := zaptest.NewLogger(t)
	engine := NewEngine(cfg, logger)
	t.Cleanup(func() { engine.Close() })
	return engine
}

// TestAddReturn is scenario S1: PUSH 40; PUSH 2; ADD; RET must return 42.
func TestAddReturn(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Push(40)
	b.Push(2)
	b.Add()
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	engine := newTestEngine(t)
	result, err := engine.Run(program, &RunState{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnValue != 42 {
		t.Fatalf("return value = %d, want 42", result.ReturnValue)
	}
}

// TestLocalShuffle is scenario S2.
func TestLocalShuffle(t *testing.T) {
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

	engine := newTestEngine(t)
	locals := []uint32{7, 0, 0, 0}
	result, err := engine.Run(program, &RunState{Locals: locals})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnValue != 8 {
		t.Fatalf("return value = %d, want 8", result.ReturnValue)
	}
	if locals[1] != 8 {
		t.Fatalf("locals[1] = %d, want 8", locals[1])
	}
}

// TestBranchForward is scenario S3: jump past a push-99/ret payload to a
// push-7/ret payload.
func TestBranchForward(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Push(1)
	skip := b.Label()
	b.Jump(skip)
	b.Push(99)
	b.Ret()
	b.Bind(skip)
	b.Push(7)
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	engine := newTestEngine(t)
	result, err := engine.Run(program, &RunState{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnValue != 7 {
		t.Fatalf("return value = %d, want 7", result.ReturnValue)
	}
}

// TestLoopCounting is scenario S4: i = 0; while (i != 5) { i++ }; return i.
func TestLoopCounting(t *testing.T) {
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

	engine := newTestEngine(t)
	locals := []uint32{0}
	result, err := engine.Run(program, &RunState{Locals: locals})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnValue != 5 {
		t.Fatalf("return value = %d, want 5", result.ReturnValue)
	}
}

// TestStackUnderflow is scenario S5: POP; RET must report a stack
// underflow, not crash.
func TestStackUnderflow(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Pop()
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	engine := newTestEngine(t)
	if _, err := engine.Run(program, &RunState{}); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
}

func TestStackOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.StackWords = 1
	engine := NewEngine(cfg, zaptest.NewLogger(t))
	t.Cleanup(func() { engine.Close() })

	b := bytecode.NewBuilder()
	b.Push(1)
	b.Push(2)
	b.Push(3)
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := engine.Run(program, &RunState{}); !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("err = %v, want ErrStackOverflow", err)
	}
}

func TestInvalidOpcodeFailsAtCompile(t *testing.T) {
	engine := newTestEngine(t)
	program := bytecode.Program([]byte{0xFF})
	if _, err := engine.Compile(program); err == nil {
		t.Fatalf("expected compile to fail on an invalid opcode")
	}
}

func TestCompileCacheHit(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Push(1)
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	engine := newTestEngine(t)
	first, err := engine.Compile(program)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	second, err := engine.Compile(program)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if first != second {
		t.Fatalf("expected the second compile of an identical program to hit the cache")
	}
	if engine.Stats.CacheHits.Load() != 1 {
		t.Fatalf("cache hits = %d, want 1", engine.Stats.CacheHits.Load())
	}
}
