//go:build unix && !(darwin && arm64)

// memory_unix.go - Unix/Linux 平台可执行内存分配
//
// 使用 mmap/munmap 分配具有读写执行权限的内存（hosts requiring the macOS
// MAP_JIT / pthread_jit_write_protect_np dance use memory_darwin_arm64.go
// instead). The mapping stays read/write/execute for its whole lifetime:
// BeginWrite/EndWrite only record the write state and do not call
// mprotect, so hosts that enforce W^X at the page-table level are not
// supported by this backend.
package jit

import (
	"golang.org/x/sys/unix"
)

type unixExecutableMemory struct {
	buf      []byte
	writable bool
}

// NewExecutableMemory reserves size bytes (rounded up to the host page
// size) of anonymous private memory with read/write/execute permission
// and returns it ready for BeginWrite.
func NewExecutableMemory(size int) (ExecutableMemory, error) {
	pageSize := unix.Getpagesize()
	aligned := roundUpToPageSize(size, pageSize)

	buf, err := unix.Mmap(-1, 0, aligned,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errAllocationFailed(err)
	}

	return &unixExecutableMemory{buf: buf, writable: true}, nil
}

func (m *unixExecutableMemory) Bytes() []byte { return m.buf }

func (m *unixExecutableMemory) BeginWrite() error {
	m.writable = true
	return nil
}

func (m *unixExecutableMemory) EndWrite() error {
	m.writable = false
	return nil
}

func (m *unixExecutableMemory) Finalize(codeSize int) error {
	if codeSize > len(m.buf) {
		codeSize = len(m.buf)
	}
	flushInstructionCache(m.buf[:codeSize])
	return nil
}

func (m *unixExecutableMemory) Close() error {
	if m.buf == nil {
		return nil
	}
	err := unix.Munmap(m.buf)
	m.buf = nil
	return err
}
