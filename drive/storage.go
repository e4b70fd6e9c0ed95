package drive

import (
	"io"
	"os"
	"sync"
)

// Disk geometry of a 35-track 1541 image.
const (
	SectorSize = 256
	Tracks     = 35

	// ImageSize is the size of a D64 image without error bytes.
	ImageSize = 683 * SectorSize
)

// SectorsPerTrack returns the number of sectors on track (1-based), or 0
// for a track outside the disk.
func SectorsPerTrack(track int) int {
	switch {
	case track < 1 || track > Tracks:
		return 0
	case track <= 17:
		return 21
	case track <= 24:
		return 19
	case track <= 30:
		return 18
	}
	return 17
}

// sectorOffset returns the image offset of track/sector.
func sectorOffset(track, sector int) (int64, bool) {
	n := SectorsPerTrack(track)
	if n == 0 || sector < 0 || sector >= n {
		return 0, false
	}
	var off int64
	for t := 1; t < track; t++ {
		off += int64(SectorsPerTrack(t))
	}
	return (off + int64(sector)) * SectorSize, true
}

// Storage is a sector-addressed disk backend.
type Storage interface {
	// ReadSector reads one sector into buf.
	ReadSector(track, sector int, buf []byte) error

	// WriteSector writes one sector from buf.
	WriteSector(track, sector int, buf []byte) error

	// Sync flushes any cached writes to storage.
	Sync() error

	// IsReadOnly returns true if storage is write protected.
	IsReadOnly() bool
}

// MemoryStorage implements Storage with an in-memory image.
type MemoryStorage struct {
	data     []byte
	readOnly bool
	mutex    sync.RWMutex
}

// NewMemoryStorage creates a blank in-memory disk.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make([]byte, ImageSize)}
}

// NewMemoryStorageFrom creates an in-memory disk holding a copy of image.
func NewMemoryStorageFrom(image []byte) (*MemoryStorage, error) {
	if len(image) < ImageSize {
		return nil, io.ErrUnexpectedEOF
	}
	m := NewMemoryStorage()
	copy(m.data, image)
	return m, nil
}

// ReadSector reads a sector from memory.
func (m *MemoryStorage) ReadSector(track, sector int, buf []byte) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	off, ok := sectorOffset(track, sector)
	if !ok {
		return io.EOF
	}
	if len(buf) < SectorSize {
		return io.ErrShortBuffer
	}
	copy(buf, m.data[off:off+SectorSize])
	return nil
}

// WriteSector writes a sector to memory.
func (m *MemoryStorage) WriteSector(track, sector int, buf []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.readOnly {
		return os.ErrPermission
	}
	off, ok := sectorOffset(track, sector)
	if !ok {
		return io.EOF
	}
	if len(buf) < SectorSize {
		return io.ErrShortBuffer
	}
	copy(m.data[off:off+SectorSize], buf)
	return nil
}

// Sync is a no-op for memory storage.
func (m *MemoryStorage) Sync() error {
	return nil
}

// IsReadOnly returns whether the storage is write protected.
func (m *MemoryStorage) IsReadOnly() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.readOnly
}

// SetReadOnly sets the write-protect flag.
func (m *MemoryStorage) SetReadOnly(readOnly bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.readOnly = readOnly
}

// Image returns a copy of the disk image.
func (m *MemoryStorage) Image() []byte {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]byte(nil), m.data...)
}

// FileStorage implements Storage on a D64 image file.
type FileStorage struct {
	file     *os.File
	readOnly bool
	mutex    sync.RWMutex
}

// NewFileStorage opens a D64 image. If readOnly is true, the file is opened
// in read-only mode.
func NewFileStorage(path string, readOnly bool) (*FileStorage, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if stat.Size() < ImageSize {
		file.Close()
		return nil, io.ErrUnexpectedEOF
	}

	return &FileStorage{file: file, readOnly: readOnly}, nil
}

// ReadSector reads a sector from the image file.
func (f *FileStorage) ReadSector(track, sector int, buf []byte) error {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	off, ok := sectorOffset(track, sector)
	if !ok {
		return io.EOF
	}
	if len(buf) < SectorSize {
		return io.ErrShortBuffer
	}
	_, err := f.file.ReadAt(buf[:SectorSize], off)
	return err
}

// WriteSector writes a sector to the image file.
func (f *FileStorage) WriteSector(track, sector int, buf []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.readOnly {
		return os.ErrPermission
	}
	off, ok := sectorOffset(track, sector)
	if !ok {
		return io.EOF
	}
	if len(buf) < SectorSize {
		return io.ErrShortBuffer
	}
	_, err := f.file.WriteAt(buf[:SectorSize], off)
	return err
}

// Sync flushes file writes to disk.
func (f *FileStorage) Sync() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.readOnly {
		return nil
	}
	return f.file.Sync()
}

// IsReadOnly returns whether the storage is write protected.
func (f *FileStorage) IsReadOnly() bool {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.readOnly
}

// Close closes the underlying file.
func (f *FileStorage) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		return err
	}
	return nil
}
