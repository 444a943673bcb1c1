// Package settings stores the operator-editable configuration record in
// non-volatile memory, separate from the counter logs. The record is only
// written on an explicit save.
package settings

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/sweeney/meter-sensor/internal/nvstore"
)

// RecordSize is the on-media size of the record.
//
// Layout (little-endian):
//
//	Offset 0:  magic      (uint32) "MTR1"
//	Offset 4:  energy_kwh (float32)
//	Offset 8:  cold_water (int32)
//	Offset 12: hot_water  (int32)
//	Offset 16: checksum   (uint32) CRC-32/IEEE over bytes 0..15
const RecordSize = 20

const magic uint32 = 0x3152544d // "MTR1"

// Settings are the operator-supplied baselines. The water values seed the
// persistent counters when their logs are empty.
type Settings struct {
	EnergyKWh float32 `json:"energy_kwh"`
	ColdWater int32   `json:"cold_counter"`
	HotWater  int32   `json:"hot_counter"`
}

// Encode returns the record bytes.
func (s Settings) Encode() []byte {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(s.EnergyKWh))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(s.ColdWater))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(s.HotWater))
	binary.LittleEndian.PutUint32(buf[16:20], crc32.ChecksumIEEE(buf[:16]))
	return buf
}

// Decode parses a record. ok is false for an erased or damaged record.
func Decode(buf []byte) (s Settings, ok bool) {
	if len(buf) < RecordSize {
		return Settings{}, false
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != magic {
		return Settings{}, false
	}
	if crc32.ChecksumIEEE(buf[:16]) != binary.LittleEndian.Uint32(buf[16:20]) {
		return Settings{}, false
	}
	return Settings{
		EnergyKWh: math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		ColdWater: int32(binary.LittleEndian.Uint32(buf[8:12])),
		HotWater:  int32(binary.LittleEndian.Uint32(buf[12:16])),
	}, true
}

// Load reads the record at offset 0 of r. A missing or damaged record
// yields zero settings and ok=false; only I/O failures are errors.
func Load(r nvstore.Region) (s Settings, ok bool, err error) {
	buf := make([]byte, RecordSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return Settings{}, false, fmt.Errorf("read settings: %w", err)
	}
	s, ok = Decode(buf)
	return s, ok, nil
}

// Save writes the record at offset 0 of r and syncs it.
func Save(r nvstore.Region, s Settings) error {
	if _, err := r.WriteAt(s.Encode(), 0); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := r.Sync(); err != nil {
		return fmt.Errorf("sync settings: %w", err)
	}
	return nil
}

// Validate rejects values that cannot seed a counter.
func (s Settings) Validate() error {
	if s.ColdWater < 0 {
		return fmt.Errorf("cold_counter must not be negative, got %d", s.ColdWater)
	}
	if s.HotWater < 0 {
		return fmt.Errorf("hot_counter must not be negative, got %d", s.HotWater)
	}
	if math.IsNaN(float64(s.EnergyKWh)) || math.IsInf(float64(s.EnergyKWh), 0) || s.EnergyKWh < 0 {
		return fmt.Errorf("energy_kwh must be a non-negative number, got %v", s.EnergyKWh)
	}
	return nil
}

// CounterValue returns the baseline for a named counter ("hot" or "cold").
func (s Settings) CounterValue(name string) (int64, bool) {
	switch name {
	case "hot":
		return int64(s.HotWater), true
	case "cold":
		return int64(s.ColdWater), true
	}
	return 0, false
}
