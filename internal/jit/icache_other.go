//go:build !(linux && arm64)

package jit

// flushInstructionCache is a no-op on hosts whose cache coherency model
// does not require an explicit instruction-cache sync after writing code
// (amd64), and on the darwin/arm64 path where Finalize calls
// sys_icache_invalidate directly via cgo instead.
func flushInstructionCache(code []byte) {}
