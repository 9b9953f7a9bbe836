// reg.go - AArch64 寄存器与条件码定义
//
// 31 个通用寄存器 (X0-X30)，32 位视图为 Wn，64 位视图为 Xn，
// 由指令本身决定，而非寄存器编码。寄存器 31 根据指令类别
// 复用为 SP 或 ZR。
package jit

// Reg is an AArch64 general-purpose register encoding (0-31). The same
// numeric encoding names either the 32-bit (Wn) or 64-bit (Xn) view of a
// register; which view applies is determined by the instruction, not the
// register value.
type Reg uint32

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	R16
	R17
	R18
	R19
	R20
	R21
	R22
	R23
	R24
	R25
	R26
	R27
	R28
	R29
	R30
)

// RZR is the zero register (WZR/XZR)（与 SP 共享编码 31，由指令决定）; it
// shares encoding 31 with SP, disambiguated by instruction class.
const RZR Reg = 31

// RegSP names register 31 where an instruction's encoding treats it as the
// stack pointer (load/store base, ADD/SUB immediate) rather than the zero
// register.
const RegSP = RZR

// 固定寄存器分配方案（每个编译函数都使用同一套分配，无寄存器分配器，
// 每个操作码对应一段固定指令序列）。
const (
	RegCtx        = R19 // context pointer, callee-saved
	RegStackTop   = R20 // stack-top pointer, callee-saved across host calls
	RegRet        = R0  // W0: return value / outgoing first argument
	RegErrStaging = R1  // W1: staging for runtime error codes
	RegScratch2   = R2  // W2 scratch
	RegScratch3   = R3  // W3 scratch
	RegScratch7   = R7  // W7 scratch
	RegLocalsPtr  = R4  // X4 scratch: locals address arithmetic
	RegLocalsIdx  = R5  // X5/W5 scratch: locals address arithmetic
	RegLocalsAddr = R6  // X6 scratch: locals address arithmetic
	RegBoundsA    = R9  // X9 scratch: bounds arithmetic
	RegBoundsB    = R10 // X10 scratch: bounds arithmetic
	RegIndirect   = R16 // X16: indirect-call target
	RegLink       = R30 // X30: link register
)

// Condition codes used by CMP/B.cond/CSET (§4.3, §4.4).
const (
	CondEQ uint32 = 0x0
	CondNE uint32 = 0x1
	CondLO uint32 = 0x3 // unsigned less than (LT_UNSIGNED)
	CondHI uint32 = 0x8 // unsigned higher, used by the stack-overflow guard
	CondGE uint32 = 0xA
	CondLT uint32 = 0xB // signed less than
	CondGT uint32 = 0xC
	CondLE uint32 = 0xD
)
