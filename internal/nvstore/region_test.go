package nvstore

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestMemRegionReadWrite(t *testing.T) {
	r := NewMemRegion(32)

	if _, err := r.WriteAt([]byte{1, 2, 3}, 4); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	buf := make([]byte, 3)
	if _, err := r.ReadAt(buf, 4); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(buf, []byte{1, 2, 3}) {
		t.Errorf("got %v, want [1 2 3]", buf)
	}
	if r.Writes() != 1 {
		t.Errorf("Writes: got %d, want 1", r.Writes())
	}
}

func TestMemRegionOutOfRange(t *testing.T) {
	r := NewMemRegion(8)

	if _, err := r.WriteAt([]byte{1, 2}, 7); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("write past end: got %v, want ErrOutOfRange", err)
	}
	if _, err := r.ReadAt(make([]byte, 1), -1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("read before start: got %v, want ErrOutOfRange", err)
	}
}

func TestMemRegionPowerLoss(t *testing.T) {
	r := NewMemRegion(8)
	r.FailAfter = 2

	n, err := r.WriteAt([]byte{9, 9, 9, 9}, 0)
	if !errors.Is(err, ErrPowerLoss) {
		t.Fatalf("expected ErrPowerLoss, got %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 bytes written before loss, got %d", n)
	}
	if got := r.Bytes()[:4]; !bytes.Equal(got, []byte{9, 9, 0, 0}) {
		t.Errorf("torn write: got %v", got)
	}

	// Fault is one-shot.
	if _, err := r.WriteAt([]byte{7}, 3); err != nil {
		t.Errorf("second write: unexpected error %v", err)
	}
}

func TestLayoutClaim(t *testing.T) {
	l := NewLayout(NewMemRegion(128))

	a, err := l.Claim("settings", 0, 16)
	if err != nil {
		t.Fatalf("claim settings: %v", err)
	}
	if _, err := l.Claim("hot", 16, 64); err != nil {
		t.Fatalf("claim hot: %v", err)
	}

	tests := []struct {
		name       string
		base, size int64
		want       error
	}{
		{"overlap start", 8, 16, ErrOverlap},
		{"overlap end", 70, 16, ErrOverlap},
		{"past end", 100, 64, ErrOutOfRange},
		{"negative", -1, 4, ErrOutOfRange},
		{"empty", 90, 0, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Claim(tt.name, tt.base, tt.size); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if a.Base() != 0 || a.Size() != 16 || a.Name() != "settings" {
		t.Errorf("unexpected section %+v", a)
	}
	if len(l.Sections()) != 2 {
		t.Errorf("expected 2 sections, got %d", len(l.Sections()))
	}
}

func TestSectionBounds(t *testing.T) {
	r := NewMemRegion(64)
	l := NewLayout(r)
	s, err := l.Claim("cold", 32, 16)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	if _, err := s.WriteAt([]byte{0xAA}, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if r.Bytes()[32] != 0xAA {
		t.Error("section write did not land at base offset")
	}
	if _, err := s.WriteAt(make([]byte, 2), 15); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("write across section end: got %v, want ErrOutOfRange", err)
	}
	if _, err := s.ReadAt(make([]byte, 1), 16); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("read past section end: got %v, want ErrOutOfRange", err)
	}
}

func TestMmapRegionPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nv.bin")

	r, err := OpenMmapRegion(path, 64)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if r.Size() != 64 {
		t.Errorf("Size: got %d, want 64", r.Size())
	}
	if _, err := r.WriteAt([]byte("meter"), 10); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := r.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, err := OpenMmapRegion(path, 64)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r2.Close()

	buf := make([]byte, 5)
	if _, err := r2.ReadAt(buf, 10); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "meter" {
		t.Errorf("got %q, want %q", buf, "meter")
	}
}

func TestMmapRegionClosed(t *testing.T) {
	r, err := OpenMmapRegion(filepath.Join(t.TempDir(), "nv.bin"), 16)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r.Close()

	if _, err := r.WriteAt([]byte{1}, 0); err == nil {
		t.Error("expected error writing closed region")
	}
}
