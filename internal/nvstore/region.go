// Package nvstore models byte-addressable non-volatile memory.
//
// A Region is a fixed-size array of bytes that survives restarts. Components
// carve it into Sections at known offsets; each Section is owned by exactly
// one component and no two Sections may overlap.
package nvstore

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrOutOfRange is returned for accesses outside a region or section.
var ErrOutOfRange = errors.New("nvstore: access out of range")

// ErrOverlap is returned when a section would overlap one already claimed.
var ErrOverlap = errors.New("nvstore: section overlaps existing section")

// Region is a fixed-size block of non-volatile memory.
type Region interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the region length in bytes.
	Size() int64

	// Sync commits buffered writes to the backing medium.
	Sync() error
}

// Section is a bounded window onto a parent Region starting at Base.
// Offsets passed to ReadAt and WriteAt are relative to Base.
type Section struct {
	parent Region
	base   int64
	size   int64
	name   string
}

// Base returns the absolute offset of the section within its parent.
func (s *Section) Base() int64 { return s.base }

// Size returns the section length.
func (s *Section) Size() int64 { return s.size }

// Name returns the owner label given when the section was claimed.
func (s *Section) Name() string { return s.name }

// ReadAt reads within the section bounds.
func (s *Section) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > s.size {
		return 0, fmt.Errorf("%s: read %d bytes at %d: %w", s.name, len(p), off, ErrOutOfRange)
	}
	return s.parent.ReadAt(p, s.base+off)
}

// WriteAt writes within the section bounds.
func (s *Section) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > s.size {
		return 0, fmt.Errorf("%s: write %d bytes at %d: %w", s.name, len(p), off, ErrOutOfRange)
	}
	return s.parent.WriteAt(p, s.base+off)
}

// Sync syncs the parent region.
func (s *Section) Sync() error { return s.parent.Sync() }

// Layout hands out non-overlapping sections of a region.
type Layout struct {
	region   Region
	sections []*Section
}

// NewLayout creates a layout over region.
func NewLayout(region Region) *Layout {
	return &Layout{region: region}
}

// Claim reserves [base, base+size) for the named owner.
func (l *Layout) Claim(name string, base, size int64) (*Section, error) {
	if base < 0 || size <= 0 || base+size > l.region.Size() {
		return nil, fmt.Errorf("claim %s [%d,%d) in %d-byte region: %w",
			name, base, base+size, l.region.Size(), ErrOutOfRange)
	}
	for _, s := range l.sections {
		if base < s.base+s.size && s.base < base+size {
			return nil, fmt.Errorf("claim %s [%d,%d) vs %s [%d,%d): %w",
				name, base, base+size, s.name, s.base, s.base+s.size, ErrOverlap)
		}
	}
	s := &Section{parent: l.region, base: base, size: size, name: name}
	l.sections = append(l.sections, s)
	sort.Slice(l.sections, func(i, j int) bool { return l.sections[i].base < l.sections[j].base })
	return s, nil
}

// Sections returns the claimed sections ordered by base offset.
func (l *Layout) Sections() []*Section {
	out := make([]*Section, len(l.sections))
	copy(out, l.sections)
	return out
}
