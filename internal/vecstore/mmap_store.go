package vecstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"cortex-engine/internal/types"
)

const (
	floatSize = 4

	// formatVersion identifies the on-disk header layout. Bumped
	// whenever the header's field set changes, so a future reader can
	// refuse (or migrate) a file written by an older or newer build
	// instead of silently misreading its bytes.
	formatVersion uint32 = 2

	// headerSize is the fixed byte layout of the file header:
	//   0..7   magic ("CTXVEC02")
	//   8..11  format version (uint32)
	//   12..15 dim (uint32)
	//   16..23 count: live vector slots (uint64)
	//   24..31 capacity: allocated vector slots (uint64)
	headerSize = 32

	// growthPageVectors is how many vector slots a single capacity
	// growth step adds. Capacity always grows to the next multiple of
	// this page size, rather than scaling the file by a fraction of its
	// current size — so the allocation step is independent of how big
	// the file has already gotten.
	growthPageVectors = 4096
)

var fileMagic = [8]byte{'C', 'T', 'X', 'V', 'E', 'C', '0', '2'}

// MmapStore implements Store using a memory-mapped, capacity-paged
// file: vector slots are allocated growthPageVectors at a time and the
// allocated capacity is tracked in the header independently of how
// many slots are actually occupied, so a reader can tell "how much
// room was reserved" from "how much is live" without re-deriving it
// from the file's byte length. It never removes or rewrites a slot;
// soft-deletion of a document lives one layer up, in the vector index.
type MmapStore struct {
	filename string
	file     *fileHandle
	mu       sync.RWMutex
	mapped   []byte
	dim      int
	count    uint64
	capacity uint64

	// Windows-only handles; unused (zero) on other platforms.
	winMapHandle uintptr
	winViewAddr  uintptr
}

// NewMmapStore opens (or creates) filename as a dim-dimensional vector
// store. Reopening a file created with a different dim fails, as does
// reopening a file written by an incompatible format version.
func NewMmapStore(filename string, dim int) (*MmapStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dim: %d", dim)
	}

	f, err := openFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	store := &MmapStore{filename: filename, file: f, dim: dim}

	size, err := f.size()
	if err != nil {
		_ = f.close()
		return nil, err
	}

	if size == 0 {
		if err := store.allocate(growthPageVectors); err != nil {
			_ = f.close()
			return nil, err
		}
	} else if err := store.remap(); err != nil {
		_ = f.close()
		return nil, err
	}

	onDiskDim, onDiskCount, onDiskCapacity, err := store.readHeader()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if int(onDiskDim) != store.dim {
		_ = store.Close()
		return nil, fmt.Errorf("vector dimension mismatch: file dim=%d, requested dim=%d (delete %s to reset)", onDiskDim, store.dim, filename)
	}
	store.count = onDiskCount
	store.capacity = onDiskCapacity

	return store, nil
}

// allocate resizes the file to hold exactly slotCapacity vector slots
// and (re)writes the header to match. It is used both for the initial
// file creation and for every subsequent capacity growth step.
func (s *MmapStore) allocate(slotCapacity uint64) error {
	newSize := int64(headerSize) + int64(slotCapacity)*int64(s.dim)*floatSize
	if err := s.resize(newSize); err != nil {
		return err
	}
	if err := s.remap(); err != nil {
		return err
	}
	s.capacity = slotCapacity
	s.writeHeader()
	return nil
}

// readHeader parses and validates the fixed header at the start of
// the mapped region, returning the dim, live count, and allocated
// capacity it declares.
func (s *MmapStore) readHeader() (dim uint32, count uint64, capacity uint64, err error) {
	if len(s.mapped) < headerSize {
		return 0, 0, 0, fmt.Errorf("vector file too small for header: %d < %d", len(s.mapped), headerSize)
	}

	var mg [8]byte
	copy(mg[:], s.mapped[:8])
	if mg != fileMagic {
		return 0, 0, 0, errors.New("invalid vector file header (magic mismatch)")
	}

	version := binary.LittleEndian.Uint32(s.mapped[8:12])
	if version != formatVersion {
		return 0, 0, 0, fmt.Errorf("unsupported vector file format version %d (this build writes version %d)", version, formatVersion)
	}

	dim = binary.LittleEndian.Uint32(s.mapped[12:16])
	if dim == 0 {
		return 0, 0, 0, errors.New("invalid vector file header (dim=0)")
	}
	count = binary.LittleEndian.Uint64(s.mapped[16:24])
	capacity = binary.LittleEndian.Uint64(s.mapped[24:32])
	if count > capacity {
		return 0, 0, 0, fmt.Errorf("corrupt vector file header: count %d exceeds capacity %d", count, capacity)
	}
	return dim, count, capacity, nil
}

func (s *MmapStore) writeHeader() {
	copy(s.mapped[:8], fileMagic[:])
	binary.LittleEndian.PutUint32(s.mapped[8:12], formatVersion)
	binary.LittleEndian.PutUint32(s.mapped[12:16], uint32(s.dim))
	binary.LittleEndian.PutUint64(s.mapped[16:24], s.count)
	binary.LittleEndian.PutUint64(s.mapped[24:32], s.capacity)
}

func (s *MmapStore) resize(newSize int64) error {
	if err := s.munmap(); err != nil {
		return err
	}
	return s.file.truncate(newSize)
}

func (s *MmapStore) remap() error {
	// A view left mapped from a previous call must be torn down before
	// mapping the resized file, otherwise the old mapping still points
	// at the file's prior length and any OS-level view handle from it
	// never gets released.
	if err := s.munmap(); err != nil {
		return err
	}

	size, err := s.file.size()
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	return s.mmap(size)
}

// Append adds a vector to the store and returns its assigned id.
func (s *MmapStore) Append(vector types.Embedding) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vector) != s.dim {
		return 0, fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dim, len(vector))
	}

	if s.count == s.capacity {
		pages := s.count/growthPageVectors + 1
		if err := s.allocate(pages * growthPageVectors); err != nil {
			return 0, fmt.Errorf("grow capacity: %w", err)
		}
	}

	offset := headerSize + int(s.count)*s.dim*floatSize
	for i, v := range vector {
		binary.LittleEndian.PutUint32(s.mapped[offset+i*floatSize:], math.Float32bits(v))
	}

	s.count++
	s.writeHeader()

	return s.count - 1, nil
}

// Get retrieves a vector by id.
func (s *MmapStore) Get(id uint64) (types.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id >= s.count {
		return nil, fmt.Errorf("index out of bounds: %d >= %d", id, s.count)
	}

	offset := headerSize + int(id)*s.dim*floatSize
	vec := make(types.Embedding, s.dim)
	for i := 0; i < s.dim; i++ {
		bits := binary.LittleEndian.Uint32(s.mapped[offset+i*floatSize:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

// Count returns the number of vectors ever appended.
func (s *MmapStore) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Close flushes and closes the store.
func (s *MmapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.munmap()
	return s.file.close()
}
