//go:build arm64 && cgo

package jit

import (
	"bytes"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/j1t-vm/j1t/internal/bytecode"
)

// TestPrintScenario is scenario S6: PUSH 'A'; PRINT; PUSH 0; RET writes
// 0x41 through the compiled entry's BLR into the cgo trampoline and
// returns 0. The trampoline is redirected to an in-memory buffer for the
// duration of the test via SetOutputWriter.
func TestPrintScenario(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Push('A')
	b.Print()
	b.Push(0)
	b.Ret()
	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	var buf bytes.Buffer
	SetOutputWriter(&buf)
	defer SetOutputWriter(nil)

	engine := NewEngine(DefaultConfig(), zaptest.NewLogger(t))
	defer engine.Close()

	result, err := engine.Run(program, &RunState{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnValue != 0 {
		t.Fatalf("return value = %d, want 0", result.ReturnValue)
	}
	if got := buf.Bytes(); len(got) != 1 || got[0] != 0x41 {
		t.Fatalf("output = %v, want [0x41]", got)
	}
}
