package bytecode

import "encoding/binary"

// Builder constructs a Program incrementally. It mirrors the vocabulary of
// the original high-level bytecode assembler (emit_push, emit_local_get,
// ...) but only as far as this repository's own tests and CLI demos need.
type Builder struct {
	code   []byte
	labels []int  // label id -> bound offset, -1 if unbound
	fixups []fixup
}

type fixup struct {
	at    int // offset of the 4-byte operand to patch
	label int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Offset returns the current write cursor, i.e. the offset the next emitted
// opcode will occupy.
func (b *Builder) Offset() int {
	return len(b.code)
}

// Label creates a fresh unbound label identity.
func (b *Builder) Label() int {
	id := len(b.labels)
	b.labels = append(b.labels, -1)
	return id
}

// Bind binds label to the current cursor.
func (b *Builder) Bind(label int) {
	b.labels[label] = len(b.code)
}

func (b *Builder) emitOp(op Opcode) {
	b.code = append(b.code, byte(op))
}

func (b *Builder) emitImm32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.code = append(b.code, buf[:]...)
}

func (b *Builder) Nop() { b.emitOp(NOP) }

func (b *Builder) Push(v uint32) {
	b.emitOp(PUSH)
	b.emitImm32(v)
}

func (b *Builder) Pop() { b.emitOp(POP) }

func (b *Builder) LocalGet(idx uint32) {
	b.emitOp(LOCAL_GET)
	b.emitImm32(idx)
}

func (b *Builder) LocalSet(idx uint32) {
	b.emitOp(LOCAL_SET)
	b.emitImm32(idx)
}

func (b *Builder) Add()               { b.emitOp(ADD) }
func (b *Builder) Sub()               { b.emitOp(SUB) }
func (b *Builder) Mul()               { b.emitOp(MUL) }
func (b *Builder) Div()               { b.emitOp(DIV) }
func (b *Builder) Eq()                { b.emitOp(EQ) }
func (b *Builder) LessThanSigned()    { b.emitOp(LESS_THAN_SIGNED) }
func (b *Builder) LessThanUnsigned()  { b.emitOp(LESS_THAN_UNSIGNED) }
func (b *Builder) Load8Unsigned()     { b.emitOp(LOAD_8_UNSIGNED) }
func (b *Builder) Load16Unsigned()    { b.emitOp(LOAD_16_UNSIGNED) }
func (b *Builder) Load32()            { b.emitOp(LOAD_32) }
func (b *Builder) Store8()            { b.emitOp(STORE_8) }
func (b *Builder) Ret()               { b.emitOp(RET) }
func (b *Builder) Print()             { b.emitOp(PRINT) }
func (b *Builder) Read8Unsigned()     { b.emitOp(READ_8_UNSIGNED) }

// jumpTo emits op followed by a placeholder relative operand that will be
// patched at Finish() once label is bound, using the same PC-relative
// convention the translator expects: the delta is measured from the opcode
// byte of this instruction.
func (b *Builder) jumpTo(op Opcode, label int) {
	at := len(b.code) + 1
	b.emitOp(op)
	b.emitImm32(0)
	b.fixups = append(b.fixups, fixup{at: at, label: label})
}

func (b *Builder) Jump(label int)           { b.jumpTo(JUMP, label) }
func (b *Builder) JumpIfZero(label int)     { b.jumpTo(JUMP_IF_ZERO, label) }
func (b *Builder) JumpIfNotZero(label int)  { b.jumpTo(JUMP_IF_NOT_ZERO, label) }

// Finish resolves all label fixups and returns the assembled Program. The
// Builder must not be reused afterward.
func (b *Builder) Finish() (Program, error) {
	for _, fx := range b.fixups {
		target := b.labels[fx.label]
		if target < 0 {
			return nil, errUnboundLabel
		}
		opcodeOffset := fx.at - 1
		delta := int32(target - opcodeOffset)
		binary.LittleEndian.PutUint32(b.code[fx.at:fx.at+4], uint32(delta))
	}
	return Program(b.code), nil
}
