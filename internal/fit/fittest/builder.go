// Package fittest builds FIT byte streams for tests without going through the
// fit package's writer or CRC implementation.
package fittest

import (
	"encoding/binary"

	"example.com/fitfaker/internal/fit"
)

// Builder assembles one segment record by record. All definitions use the
// little-endian architecture unless DefineBE is used.
type Builder struct {
	body []byte
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

// Define appends a definition record for local type local.
func (b *Builder) Define(local uint8, kind fit.MesgNum, fields ...fit.FieldDef) *Builder {
	return b.define(local, fit.ArchLittleEndian, kind, fields, nil)
}

// DefineBE appends a big-endian definition record.
func (b *Builder) DefineBE(local uint8, kind fit.MesgNum, fields ...fit.FieldDef) *Builder {
	return b.define(local, fit.ArchBigEndian, kind, fields, nil)
}

// DefineDev appends a definition record carrying developer fields.
func (b *Builder) DefineDev(local uint8, kind fit.MesgNum, fields []fit.FieldDef, dev []fit.DevFieldDef) *Builder {
	return b.define(local, fit.ArchLittleEndian, kind, fields, dev)
}

func (b *Builder) define(local, arch uint8, kind fit.MesgNum, fields []fit.FieldDef, dev []fit.DevFieldDef) *Builder {
	hdr := 0x40 | local
	if len(dev) > 0 {
		hdr |= 0x20
	}
	b.body = append(b.body, hdr, 0, arch)
	if arch == fit.ArchBigEndian {
		b.body = binary.BigEndian.AppendUint16(b.body, uint16(kind))
	} else {
		b.body = binary.LittleEndian.AppendUint16(b.body, uint16(kind))
	}
	b.body = append(b.body, uint8(len(fields)))
	for _, f := range fields {
		b.body = append(b.body, f.Num, f.Size, uint8(f.BaseType))
	}
	if len(dev) > 0 {
		b.body = append(b.body, uint8(len(dev)))
		for _, f := range dev {
			b.body = append(b.body, f.Num, f.Size, f.DevIndex)
		}
	}
	return b
}

// Data appends a normal data record; values are concatenated in order.
func (b *Builder) Data(local uint8, values ...[]byte) *Builder {
	b.body = append(b.body, local&0x0F)
	for _, v := range values {
		b.body = append(b.body, v...)
	}
	return b
}

// Compressed appends a compressed-timestamp data record.
func (b *Builder) Compressed(local, offset uint8, values ...[]byte) *Builder {
	b.body = append(b.body, 0x80|(local&0x03)<<5|offset&0x1F)
	for _, v := range values {
		b.body = append(b.body, v...)
	}
	return b
}

// Raw appends arbitrary body bytes.
func (b *Builder) Raw(p []byte) *Builder {
	b.body = append(b.body, p...)
	return b
}

// BodyLen returns the number of record bytes appended so far.
func (b *Builder) BodyLen() int {
	return len(b.body)
}

// Bytes returns a well-formed segment with a 14-byte header.
func (b *Builder) Bytes() []byte {
	return b.encode(uint32(len(b.body)), 14)
}

// LegacyBytes returns a well-formed segment with a 12-byte header.
func (b *Builder) LegacyBytes() []byte {
	return b.encode(uint32(len(b.body)), 12)
}

// BytesDeclaring returns a segment whose header declares dataSize while the
// full body is written. Both CRCs are computed over the bytes actually
// present, the way a producer with a size bookkeeping bug would write them.
func (b *Builder) BytesDeclaring(dataSize uint32) []byte {
	return b.encode(dataSize, 14)
}

func (b *Builder) encode(dataSize uint32, headerSize int) []byte {
	out := make([]byte, 0, headerSize+len(b.body)+2)
	out = append(out, uint8(headerSize), 0x20)
	out = binary.LittleEndian.AppendUint16(out, 2194)
	out = binary.LittleEndian.AppendUint32(out, dataSize)
	out = append(out, '.', 'F', 'I', 'T')
	if headerSize == 14 {
		out = binary.LittleEndian.AppendUint16(out, CRC(out))
	}
	out = append(out, b.body...)
	return binary.LittleEndian.AppendUint16(out, CRC(out))
}

// U8 encodes a single byte.
func U8(v uint8) []byte { return []byte{v} }

// U16 encodes v little-endian.
func U16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }

// U32 encodes v little-endian.
func U32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

// Str encodes s null-padded to size bytes.
func Str(s string, size int) []byte {
	out := make([]byte, size)
	copy(out, s)
	if len(s) >= size {
		out[size-1] = 0
	}
	return out
}

var crcTable = [16]uint16{
	0x0000, 0xCC01, 0xD801, 0x1400, 0xF001, 0x3C00, 0x2800, 0xE401,
	0xA001, 0x6C00, 0x7800, 0xB401, 0x5000, 0x9C01, 0x8801, 0x4400,
}

// CRC is the nibble-table FIT checksum.
func CRC(data []byte) uint16 {
	var sum uint16
	for _, c := range data {
		tmp := crcTable[sum&0xF]
		sum = (sum >> 4) & 0x0FFF
		sum = sum ^ tmp ^ crcTable[c&0xF]
		tmp = crcTable[sum&0xF]
		sum = (sum >> 4) & 0x0FFF
		sum = sum ^ tmp ^ crcTable[(c>>4)&0xF]
	}
	return sum
}
