package vecstore

import "os"

// fileHandle is the thin os.File wrapper the platform-specific mmap
// code operates on.
type fileHandle struct {
	f *os.File
}

func openFile(filename string) (*fileHandle, error) {
	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileHandle{f: f}, nil
}

func (h *fileHandle) size() (int64, error) {
	info, err := h.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (h *fileHandle) truncate(size int64) error {
	return h.f.Truncate(size)
}

func (h *fileHandle) close() error {
	return h.f.Close()
}

func (h *fileHandle) fd() uintptr {
	return h.f.Fd()
}
