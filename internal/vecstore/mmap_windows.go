//go:build windows

package vecstore

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func (s *MmapStore) mmap(size int64) error {
	if size <= 0 {
		return fmt.Errorf("invalid mmap size: %d", size)
	}

	hi := uint32(uint64(size) >> 32)
	lo := uint32(uint64(size) & 0xffffffff)

	h, err := windows.CreateFileMapping(windows.Handle(s.file.fd()), nil, windows.PAGE_READWRITE, hi, lo, nil)
	if err != nil {
		return fmt.Errorf("CreateFileMapping failed: %w", err)
	}
	s.winMapHandle = uintptr(h)

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		_ = windows.CloseHandle(h)
		s.winMapHandle = 0
		return fmt.Errorf("MapViewOfFile failed: %w", err)
	}

	s.winViewAddr = addr
	s.mapped = unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	return nil
}

func (s *MmapStore) munmap() error {
	if s.winViewAddr != 0 {
		_ = windows.UnmapViewOfFile(s.winViewAddr)
		s.winViewAddr = 0
	}
	if s.winMapHandle != 0 {
		_ = windows.CloseHandle(windows.Handle(s.winMapHandle))
		s.winMapHandle = 0
	}
	s.mapped = nil
	return nil
}
