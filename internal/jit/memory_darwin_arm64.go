//go:build darwin && arm64

// memory_darwin_arm64.go - macOS/Apple Silicon 可执行内存分配
//
// Apple Silicon 的硬化运行时要求 MAP_JIT 区域始终同时映射可写与可执行，
// 实际的读写切换由每线程的写保护标志控制，通过
// pthread_jit_write_protect_np 开关。
package jit

/*
#cgo LDFLAGS: -lpthread
#include <pthread.h>
#include <libkern/OSCacheControl.h>

static void j1t_jit_write_protect(int enabled) {
	pthread_jit_write_protect_np(enabled);
}

static void j1t_cache_invalidate(void *start, size_t len) {
	sys_icache_invalidate(start, len);
}
*/
import "C"

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

type darwinExecutableMemory struct {
	buf []byte
}

// NewExecutableMemory reserves size bytes (rounded up to the host page
// size) via mmap with MAP_JIT, then immediately disables write protection
// for the calling (emitting) thread.
func NewExecutableMemory(size int) (ExecutableMemory, error) {
	pageSize := unix.Getpagesize()
	aligned := roundUpToPageSize(size, pageSize)

	buf, err := unix.Mmap(-1, 0, aligned,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_JIT)
	if err != nil {
		return nil, errAllocationFailed(err)
	}

	C.j1t_jit_write_protect(0)

	return &darwinExecutableMemory{buf: buf}, nil
}

func (m *darwinExecutableMemory) Bytes() []byte { return m.buf }

func (m *darwinExecutableMemory) BeginWrite() error {
	C.j1t_jit_write_protect(0)
	return nil
}

func (m *darwinExecutableMemory) EndWrite() error {
	C.j1t_jit_write_protect(1)
	return nil
}

func (m *darwinExecutableMemory) Finalize(codeSize int) error {
	if codeSize > len(m.buf) {
		codeSize = len(m.buf)
	}
	if codeSize > 0 {
		C.j1t_cache_invalidate(unsafe.Pointer(&m.buf[0]), C.size_t(codeSize))
	}
	return m.EndWrite()
}

func (m *darwinExecutableMemory) Close() error {
	if m.buf == nil {
		return nil
	}
	C.j1t_jit_write_protect(1)
	err := unix.Munmap(m.buf)
	m.buf = nil
	return err
}
