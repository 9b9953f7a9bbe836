package bytecode

import (
	"encoding/binary"
	"testing"
)

func TestBuilderPushAddRet(t *testing.T) {
	b := NewBuilder()
	b.Push(40)
	b.Push(2)
	b.Add()
	b.Ret()

	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	want := []byte{
		byte(PUSH), 40, 0, 0, 0,
		byte(PUSH), 2, 0, 0, 0,
		byte(ADD),
		byte(RET),
	}
	if string(program) != string(want) {
		t.Fatalf("program = % x, want % x", []byte(program), want)
	}
}

func TestBuilderForwardJumpResolvesRelativeToOpcodeByte(t *testing.T) {
	b := NewBuilder()
	b.Push(1)
	skip := b.Label()
	b.Jump(skip)
	b.Push(99) // skipped
	b.Ret()    // skipped
	b.Bind(skip)
	b.Push(7)
	b.Ret()

	program, err := b.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	// PUSH 1 occupies [0,5); JUMP's opcode byte is at 5, its operand at
	// [6,10); skip is bound at 16 (after JUMP, PUSH 99 and RET). The
	// resolved delta is relative to the opcode byte, not the operand.
	const jumpOpcodeOffset = 5
	if Opcode(program[jumpOpcodeOffset]) != JUMP {
		t.Fatalf("expected JUMP opcode at offset %d, got %s", jumpOpcodeOffset, Opcode(program[jumpOpcodeOffset]))
	}
	delta := int32(binary.LittleEndian.Uint32(program[jumpOpcodeOffset+1 : jumpOpcodeOffset+5]))
	if delta != 11 {
		t.Fatalf("jump delta = %d, want 11 (target offset 16 - opcode offset 5)", delta)
	}
}

func TestBuilderUnboundLabelFails(t *testing.T) {
	b := NewBuilder()
	skip := b.Label()
	b.Jump(skip)
	if _, err := b.Finish(); err == nil {
		t.Fatalf("expected Finish to fail on an unbound label")
	}
}

func TestOpcodeHasImmediate(t *testing.T) {
	cases := map[Opcode]bool{
		PUSH:      true,
		LOCAL_GET: true,
		LOCAL_SET: true,
		JUMP:      true,
		ADD:       false,
		POP:       false,
		RET:       false,
	}
	for op, want := range cases {
		if got := op.HasImmediate(); got != want {
			t.Errorf("%s.HasImmediate() = %v, want %v", op, got, want)
		}
	}
}
