//go:build arm64 && cgo

// Resolves a callable trampoline compiled code can BLR into for PRINT
// (§6's host symbol dependency: "any int putchar(int)-compatible symbol").
// Rather than resolving libc's own putchar (which buffers under a FILE*
// stdout that a test harness cannot easily observe), the trampoline calls
// back into a configurable Go io.Writer, defaulting to os.Stdout, so the
// same code path is exercised in tests and production.
package jit

/*
extern int j1tPutcharGo(int c);
static void *j1t_trampoline_address(void) {
	return (void *)j1tPutcharGo;
}
*/
import "C"

import (
	"io"
	"os"
	"sync"
)

var (
	outputMu     sync.Mutex
	outputWriter io.Writer = os.Stdout
)

// SetOutputWriter redirects the output of every PRINT executed after the
// call, in any compiled program (the writer is read on each trampoline
// call). Passing nil restores os.Stdout.
func SetOutputWriter(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	outputWriter = w
}

//export j1tPutcharGo
func j1tPutcharGo(c C.int) C.int {
	outputMu.Lock()
	w := outputWriter
	outputMu.Unlock()
	w.Write([]byte{byte(c)})
	return c
}

func defaultPutcharAddress() uint64 {
	return uint64(uintptr(C.j1t_trampoline_address()))
}
