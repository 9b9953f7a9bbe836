//go:build windows

// memory_windows.go - Windows 平台可执行内存分配
//
// 使用 VirtualAlloc/VirtualFree 分配具有执行权限的内存，通过
// VirtualProtect 在 BeginWrite/EndWrite 之间切换页面保护。
package jit

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	memCommit            = 0x1000
	memReserve           = 0x2000
	memRelease           = 0x8000
	pageExecuteReadWrite = 0x40
	pageExecuteRead      = 0x20
)

type windowsExecutableMemory struct {
	buf []byte
}

// NewExecutableMemory reserves size bytes (rounded up to 4KB) of committed
// memory with PAGE_EXECUTE_READWRITE permission.
func NewExecutableMemory(size int) (ExecutableMemory, error) {
	aligned := roundUpToPageSize(size, 4096)

	addr, err := windows.VirtualAlloc(0, uintptr(aligned), memCommit|memReserve, pageExecuteReadWrite)
	if err != nil {
		return nil, errAllocationFailed(err)
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), aligned)
	return &windowsExecutableMemory{buf: buf}, nil
}

func (m *windowsExecutableMemory) Bytes() []byte { return m.buf }

func (m *windowsExecutableMemory) BeginWrite() error {
	var old uint32
	return windows.VirtualProtect(uintptr(unsafe.Pointer(&m.buf[0])), uintptr(len(m.buf)), pageExecuteReadWrite, &old)
}

func (m *windowsExecutableMemory) EndWrite() error {
	var old uint32
	return windows.VirtualProtect(uintptr(unsafe.Pointer(&m.buf[0])), uintptr(len(m.buf)), pageExecuteRead, &old)
}

func (m *windowsExecutableMemory) Finalize(codeSize int) error {
	// Windows shares an instruction/data cache view coherent enough for
	// JIT purposes on all architectures Go targets; no explicit flush.
	return m.EndWrite()
}

func (m *windowsExecutableMemory) Close() error {
	if m.buf == nil {
		return nil
	}
	err := windows.VirtualFree(uintptr(unsafe.Pointer(&m.buf[0])), 0, memRelease)
	m.buf = nil
	return err
}
