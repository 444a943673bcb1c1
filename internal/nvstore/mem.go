package nvstore

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPowerLoss is returned by MemRegion when a simulated power cut interrupts a write.
var ErrPowerLoss = errors.New("nvstore: simulated power loss")

// MemRegion is an in-memory Region used in tests and as a volatile fallback.
//
// FailAfter simulates power loss: when >= 0, the next WriteAt stores only
// that many bytes and returns ErrPowerLoss, after which the region behaves
// normally again.
type MemRegion struct {
	mu        sync.Mutex
	data      []byte
	writes    int
	syncs     int
	FailAfter int
}

// NewMemRegion creates a zero-filled region of size bytes.
func NewMemRegion(size int) *MemRegion {
	return &MemRegion{data: make([]byte, size), FailAfter: -1}
}

// Size returns the region length.
func (m *MemRegion) Size() int64 { return int64(len(m.data)) }

// ReadAt copies region bytes into p.
func (m *MemRegion) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("mem read at %d: %w", off, ErrOutOfRange)
	}
	return copy(p, m.data[off:]), nil
}

// WriteAt copies p into the region.
func (m *MemRegion) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("mem write at %d: %w", off, ErrOutOfRange)
	}
	m.writes++
	if m.FailAfter >= 0 {
		n := m.FailAfter
		if n > len(p) {
			n = len(p)
		}
		copy(m.data[off:], p[:n])
		m.FailAfter = -1
		return n, ErrPowerLoss
	}
	return copy(m.data[off:], p), nil
}

// Sync counts the call; memory needs no flush.
func (m *MemRegion) Sync() error {
	m.mu.Lock()
	m.syncs++
	m.mu.Unlock()
	return nil
}

// Bytes returns a copy of the region contents.
func (m *MemRegion) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Writes returns the number of WriteAt calls so far.
func (m *MemRegion) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Syncs returns the number of Sync calls so far.
func (m *MemRegion) Syncs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs
}
