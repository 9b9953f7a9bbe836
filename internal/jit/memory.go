// memory.go defines the ExecutableMemory abstraction (§4.1): a scoped
// resource holding a single page-aligned, writable-and-executable region
// with begin_write/end_write/finalize transitions. Platform-specific
// allocation lives in memory_unix.go, memory_darwin_arm64.go and
// memory_windows.go.
package jit

import "github.com/j1t-vm/j1t/internal/jiterr"

// ExecutableMemory is a page-aligned region that can hold JIT-compiled
// code. Reads, writes and execution never happen simultaneously: callers
// must call EndWrite before invoking compiled code and BeginWrite before
// any re-emission (§4.1 invariant).
type ExecutableMemory interface {
	// Bytes exposes the underlying buffer. Valid to call at any point in
	// the lifecycle; callers must respect the current write/execute state.
	Bytes() []byte

	// BeginWrite disables write protection for the emitting thread, where
	// the host demands it.
	BeginWrite() error

	// EndWrite re-enables write protection.
	EndWrite() error

	// Finalize is the terminal sealing call: flushes the instruction cache
	// over the written range and leaves the region executable. Idempotent.
	Finalize(codeSize int) error

	// Close unmaps the region. Double-close is a no-op.
	Close() error
}

func roundUpToPageSize(size, pageSize int) int {
	if pageSize <= 0 {
		pageSize = 4096
	}
	return (size + pageSize - 1) &^ (pageSize - 1)
}

// estimateCodeBufferSize computes the conservative upper bound from §9's
// resolved Open Question: prologue/epilogue reserve plus 24 * 4 bytes per
// opcode (the worst-case lowering, ADD/SUB/MUL/DIV's bounds check plus
// pop/pop/op/push sequence).
func estimateCodeBufferSize(programLen int) int {
	const prologueEpilogueReserve = 64
	const bytesPerOpcodeWorstCase = 24 * 4
	// Each opcode is at least one byte; programLen is a safe upper bound
	// on the opcode count even though immediates inflate it in practice.
	return prologueEpilogueReserve + programLen*bytesPerOpcodeWorstCase
}

func errAllocationFailed(cause error) error {
	return jiterr.Wrap(jiterr.J1003, -1, "executable memory allocation failed", cause)
}
