package counter

import (
	"encoding/binary"
	"hash/crc32"
)

// SlotSize is the on-media size of one log slot.
//
// Layout (little-endian):
//
//	Offset 0:  generation (uint32)
//	Offset 4:  value      (int64)
//	Offset 12: checksum   (uint32) CRC-32/IEEE over bytes 0..11
const SlotSize = 16

const payloadSize = 12

// Slot is one decoded log entry.
type Slot struct {
	Generation uint32
	Value      int64
}

func (s Slot) encode() []byte {
	buf := make([]byte, SlotSize)
	binary.LittleEndian.PutUint32(buf[0:4], s.Generation)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(s.Value))
	binary.LittleEndian.PutUint32(buf[12:16], crc32.ChecksumIEEE(buf[:payloadSize]))
	return buf
}

// decodeSlot returns the slot in buf and whether its checksum validates.
// Generation 0 is never written, so an erased slot of zeros is rejected
// even if its checksum happened to match.
func decodeSlot(buf []byte) (Slot, bool) {
	if len(buf) < SlotSize {
		return Slot{}, false
	}
	want := binary.LittleEndian.Uint32(buf[12:16])
	if crc32.ChecksumIEEE(buf[:payloadSize]) != want {
		return Slot{}, false
	}
	s := Slot{
		Generation: binary.LittleEndian.Uint32(buf[0:4]),
		Value:      int64(binary.LittleEndian.Uint64(buf[4:12])),
	}
	if s.Generation == 0 {
		return Slot{}, false
	}
	return s, true
}
