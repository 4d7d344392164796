package fit

import (
	"encoding/binary"

	"github.com/snksoft/crc"
)

// crcParams is CRC-16/ARC, the checksum FIT uses for headers and files.
var crcParams = &crc.Parameters{
	Width:      16,
	Polynomial: 0x8005,
	ReflectIn:  true,
	ReflectOut: true,
	Init:       0x0000,
	FinalXor:   0x0000,
}

// Checksum is a streaming FIT CRC calculation.
type Checksum struct {
	h *crc.Hash
}

// NewChecksum returns a checksum in its initial state.
func NewChecksum() *Checksum {
	return &Checksum{h: crc.NewHash(crcParams)}
}

// Write updates the checksum with p.
func (c *Checksum) Write(p []byte) (int, error) {
	return c.h.Write(p)
}

// Sum16 returns the checksum of everything written so far.
func (c *Checksum) Sum16() uint16 {
	return c.h.CRC16()
}

// Reset returns the checksum to its initial state.
func (c *Checksum) Reset() {
	c.h.Reset()
}

// ComputeCRC returns the FIT CRC of data.
func ComputeCRC(data []byte) uint16 {
	c := NewChecksum()
	c.Write(data)
	return c.Sum16()
}

func appendCRC(buf []byte, sum uint16) []byte {
	return binary.LittleEndian.AppendUint16(buf, sum)
}
