package calibration

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Slot is a single fixed location in non-volatile memory.
type Slot interface {
	// Load returns the slot contents. A slot that was never written returns
	// nil or arbitrary bytes, not an error.
	Load() ([]byte, error)
	// Save replaces the slot contents.
	Save(b []byte) error
}

// FileSlot keeps the slot in a file. Save writes a temporary file and renames
// it over the slot, so a reader sees either the old or the new record.
type FileSlot struct {
	path string
}

var _ Slot = (*FileSlot)(nil)

func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

func (s *FileSlot) Load() ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read calibration slot")
	}
	return b, nil
}

func (s *FileSlot) Save(b []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create calibration dir")
	}

	tmp, err := os.CreateTemp(dir, ".slot-*")
	if err != nil {
		return errors.Wrap(err, "create calibration temp")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write calibration temp")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync calibration temp")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close calibration temp")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replace calibration slot")
}

// BlockDevice is an erasable non-volatile memory such as on-chip flash.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
	EraseBlockSize() int64
	EraseBlocks(start, length int64) error
}

// BlockSlot places the slot at a fixed byte offset of a block device. The
// offset must be aligned to an erase block; the whole block is erased on Save.
type BlockSlot struct {
	dev    BlockDevice
	offset int64
}

var _ Slot = (*BlockSlot)(nil)

func NewBlockSlot(dev BlockDevice, offset int64) (*BlockSlot, error) {
	bs := dev.EraseBlockSize()
	if bs <= 0 || offset%bs != 0 {
		return nil, errors.Errorf("slot offset %d not aligned to erase block %d", offset, bs)
	}
	return &BlockSlot{dev: dev, offset: offset}, nil
}

func (s *BlockSlot) Load() ([]byte, error) {
	b := make([]byte, RecordSize)
	if _, err := s.dev.ReadAt(b, s.offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "read calibration block")
	}
	return b, nil
}

func (s *BlockSlot) Save(b []byte) error {
	block := s.offset / s.dev.EraseBlockSize()
	if err := s.dev.EraseBlocks(block, 1); err != nil {
		return errors.Wrap(err, "erase calibration block")
	}
	if _, err := s.dev.WriteAt(b, s.offset); err != nil {
		return errors.Wrap(err, "write calibration block")
	}
	return nil
}

// MemSlot is a volatile slot for tests and simulations. FailSaves and
// CorruptSaves inject faults into the next Save calls.
type MemSlot struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	fail    int
	corrupt int
}

var _ Slot = (*MemSlot)(nil)

// ErrInjected is returned by MemSlot saves failed through FailSaves.
var ErrInjected = errors.New("injected slot failure")

func (s *MemSlot) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...), nil
}

func (s *MemSlot) Save(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.fail > 0 {
		s.fail--
		return ErrInjected
	}
	s.data = append(s.data[:0], b...)
	if s.corrupt > 0 {
		s.corrupt--
		s.data[len(s.data)-1] ^= 0xFF
	}
	return nil
}

// FailSaves makes the next n saves fail without touching the data.
func (s *MemSlot) FailSaves(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = n
}

// CorruptSaves makes the next n saves store damaged bytes.
func (s *MemSlot) CorruptSaves(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt = n
}

// Saves returns how many times Save was called.
func (s *MemSlot) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Raw replaces the slot contents directly, as garbage left in memory would.
func (s *MemSlot) Raw(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), b...)
}
