//go:build !windows

package vecstore

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func (s *MmapStore) mmap(size int64) error {
	data, err := unix.Mmap(int(s.file.fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap failed: %w", err)
	}
	s.mapped = data
	return nil
}

func (s *MmapStore) munmap() error {
	if s.mapped != nil {
		err := unix.Munmap(s.mapped)
		s.mapped = nil
		return err
	}
	return nil
}
