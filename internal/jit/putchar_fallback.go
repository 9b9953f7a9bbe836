//go:build !(arm64 && cgo)

package jit

// defaultPutcharAddress has no real symbol to resolve without cgo (or off
// arm64 entirely, where compiled code never runs at all — see
// entry_other.go). Programs that never execute PRINT are unaffected; the
// Engine logs a warning at compile time when a program does use it.
func defaultPutcharAddress() uint64 { return 0 }
