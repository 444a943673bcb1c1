package nvstore

import (
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// MmapRegion is a Region backed by a memory-mapped file of fixed size.
// It stands in for an EEPROM: the file is created
// zero-filled on first use and resized to the configured size.
type MmapRegion struct {
	mu   sync.Mutex
	path string
	file *os.File
	data mmap.MMap
}

// OpenMmapRegion maps path, creating or resizing it to size bytes.
func OpenMmapRegion(path string, size int64) (*MmapRegion, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open region file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat region file: %w", err)
	}
	if fi.Size() != size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("resize region file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap region file: %w", err)
	}

	return &MmapRegion{path: path, file: f, data: data}, nil
}

// Path returns the backing file path.
func (r *MmapRegion) Path() string { return r.path }

// Size returns the mapped length.
func (r *MmapRegion) Size() int64 { return int64(len(r.data)) }

// ReadAt copies mapped bytes into p.
func (r *MmapRegion) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return 0, fmt.Errorf("region %s is closed", r.path)
	}
	if off < 0 || off+int64(len(p)) > int64(len(r.data)) {
		return 0, fmt.Errorf("mmap read at %d: %w", off, ErrOutOfRange)
	}
	return copy(p, r.data[off:]), nil
}

// WriteAt copies p into the mapping. Call Sync to commit.
func (r *MmapRegion) WriteAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return 0, fmt.Errorf("region %s is closed", r.path)
	}
	if off < 0 || off+int64(len(p)) > int64(len(r.data)) {
		return 0, fmt.Errorf("mmap write at %d: %w", off, ErrOutOfRange)
	}
	return copy(r.data[off:], p), nil
}

// Sync flushes the mapping to the file.
func (r *MmapRegion) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return fmt.Errorf("region %s is closed", r.path)
	}
	return r.data.Flush()
}

// Close flushes, unmaps and closes the file.
func (r *MmapRegion) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.data != nil {
		if e := r.data.Flush(); e != nil {
			err = e
		}
		if e := r.data.Unmap(); e != nil && err == nil {
			err = e
		}
		r.data = nil
	}
	if r.file != nil {
		if e := r.file.Close(); e != nil && err == nil {
			err = e
		}
		r.file = nil
	}
	return err
}
