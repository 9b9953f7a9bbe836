// context.go - JIT 上下文记录
//
// 主机与编译代码共享的定长内存布局：编译入口通过 X0 接收其地址，
// 该缓冲区在编译代码可能运行期间绝不能被重新分配或移动。
package jit

import "encoding/binary"

// Context field offsets (§3, §6), in bytes, for a pointer-size-8 host.
// Field offsets are k*sizeof(pointer); the error code trails as a 32-bit
// slot at word 5.
const (
	pointerSize = 8

	ctxOffsetMemory    = 0 * pointerSize
	ctxOffsetStackBase = 1 * pointerSize
	ctxOffsetStackTop  = 2 * pointerSize
	ctxOffsetStackEnd  = 3 * pointerSize
	ctxOffsetLocals    = 4 * pointerSize
	ctxOffsetErrorCode = 5 * pointerSize

	// ContextSize is the byte size of the JIT Context record.
	ContextSize = ctxOffsetErrorCode + 4
)

// Context field offsets expressed in pointer-sized units (§4.4). The
// translator emits its load/store-from-context sequences with the byte
// offsets above, not with these.
const (
	ctxWordStackBase = 1
	ctxWordStackTop  = 2
	ctxWordStackEnd  = 3
	ctxWordLocals    = 4
)

// Context is the fixed-layout record shared between host and compiled
// code. Its backing buffer's address is passed as X0 to the compiled
// entry point, so it must never be reallocated or moved while compiled
// code may be running.
type Context struct {
	buf []byte
}

// NewContext allocates a zeroed Context.
func NewContext() *Context {
	return &Context{buf: make([]byte, ContextSize)}
}

// Pointer returns the address of the context buffer's first byte, for use
// as the argument to a compiled entry point.
func (c *Context) Pointer() *byte { return &c.buf[0] }

func (c *Context) SetMemoryBase(p uintptr) { c.putPtr(ctxOffsetMemory, p) }
func (c *Context) SetStackBase(p uintptr)  { c.putPtr(ctxOffsetStackBase, p) }
func (c *Context) SetStackTop(p uintptr)   { c.putPtr(ctxOffsetStackTop, p) }
func (c *Context) SetStackEnd(p uintptr)   { c.putPtr(ctxOffsetStackEnd, p) }
func (c *Context) SetLocalsBase(p uintptr) { c.putPtr(ctxOffsetLocals, p) }

func (c *Context) StackBase() uintptr { return c.getPtr(ctxOffsetStackBase) }
func (c *Context) StackTop() uintptr  { return c.getPtr(ctxOffsetStackTop) }

// ErrorCode returns the runtime error code the compiled entry left behind
// (0 = none, 1 = stack underflow, 2 = stack overflow; §6).
func (c *Context) ErrorCode() uint32 {
	return binary.LittleEndian.Uint32(c.buf[ctxOffsetErrorCode:])
}

func (c *Context) putPtr(off int, v uintptr) {
	binary.LittleEndian.PutUint64(c.buf[off:], uint64(v))
}

func (c *Context) getPtr(off int) uintptr {
	return uintptr(binary.LittleEndian.Uint64(c.buf[off:]))
}
