package fit

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BaseType is the FIT base type byte. Bit 7 marks endian-sensitive types.
type BaseType uint8

const (
	BaseEnum    BaseType = 0x00
	BaseSint8   BaseType = 0x01
	BaseUint8   BaseType = 0x02
	BaseSint16  BaseType = 0x83
	BaseUint16  BaseType = 0x84
	BaseSint32  BaseType = 0x85
	BaseUint32  BaseType = 0x86
	BaseString  BaseType = 0x07
	BaseFloat32 BaseType = 0x88
	BaseFloat64 BaseType = 0x89
	BaseUint8z  BaseType = 0x0A
	BaseUint16z BaseType = 0x8B
	BaseUint32z BaseType = 0x8C
	BaseByte    BaseType = 0x0D
	BaseSint64  BaseType = 0x8E
	BaseUint64  BaseType = 0x8F
	BaseUint64z BaseType = 0x90

	baseTypeNumMask = 0x1F
)

var baseTypeSizes = map[BaseType]int{
	BaseEnum:    1,
	BaseSint8:   1,
	BaseUint8:   1,
	BaseSint16:  2,
	BaseUint16:  2,
	BaseSint32:  4,
	BaseUint32:  4,
	BaseString:  1,
	BaseFloat32: 4,
	BaseFloat64: 8,
	BaseUint8z:  1,
	BaseUint16z: 2,
	BaseUint32z: 4,
	BaseByte:    1,
	BaseSint64:  8,
	BaseUint64:  8,
	BaseUint64z: 8,
}

var baseTypeNames = map[BaseType]string{
	BaseEnum:    "enum",
	BaseSint8:   "sint8",
	BaseUint8:   "uint8",
	BaseSint16:  "sint16",
	BaseUint16:  "uint16",
	BaseSint32:  "sint32",
	BaseUint32:  "uint32",
	BaseString:  "string",
	BaseFloat32: "float32",
	BaseFloat64: "float64",
	BaseUint8z:  "uint8z",
	BaseUint16z: "uint16z",
	BaseUint32z: "uint32z",
	BaseByte:    "byte",
	BaseSint64:  "sint64",
	BaseUint64:  "uint64",
	BaseUint64z: "uint64z",
}

// Known reports whether b is one of the base types defined by the protocol.
func (b BaseType) Known() bool {
	_, ok := baseTypeSizes[b]
	return ok
}

// Size returns the width of one element of the base type. Unknown types are
// treated as single bytes so their payload can be carried opaquely.
func (b BaseType) Size() int {
	if n, ok := baseTypeSizes[b]; ok {
		return n
	}
	return 1
}

func (b BaseType) String() string {
	if s, ok := baseTypeNames[b]; ok {
		return s
	}
	return fmt.Sprintf("base(0x%02X)", uint8(b))
}

func (b BaseType) isZeroInvalid() bool {
	switch b {
	case BaseUint8z, BaseUint16z, BaseUint32z, BaseUint64z:
		return true
	}
	return false
}

func (b BaseType) isSigned() bool {
	switch b {
	case BaseSint8, BaseSint16, BaseSint32, BaseSint64:
		return true
	}
	return false
}

func (b BaseType) isInteger() bool {
	switch b {
	case BaseFloat32, BaseFloat64, BaseString, BaseByte:
		return false
	}
	return b.Known()
}

// invalidUint returns the raw invalid sentinel for integer base types.
func (b BaseType) invalidUint() uint64 {
	if b.isZeroInvalid() {
		return 0
	}
	size := b.Size()
	if b.isSigned() {
		return uint64(1)<<(uint(size)*8-1) - 1
	}
	if size == 8 {
		return math.MaxUint64
	}
	return uint64(1)<<(uint(size)*8) - 1
}

type endian interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func byteOrder(arch uint8) endian {
	if arch == ArchBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func decodeUint(order binary.ByteOrder, data []byte) (uint64, bool) {
	switch len(data) {
	case 1:
		return uint64(data[0]), true
	case 2:
		return uint64(order.Uint16(data)), true
	case 4:
		return uint64(order.Uint32(data)), true
	case 8:
		return order.Uint64(data), true
	}
	return 0, false
}

// fitsUint reports whether v can be stored in size bytes.
func fitsUint(size int, v uint64) bool {
	return size >= 8 || v < uint64(1)<<(uint(size)*8)
}

func encodeUint(order binary.ByteOrder, size int, v uint64) []byte {
	buf := make([]byte, size)
	switch size {
	case 1:
		buf[0] = uint8(v)
	case 2:
		order.PutUint16(buf, uint16(v))
	case 4:
		order.PutUint32(buf, uint32(v))
	case 8:
		order.PutUint64(buf, v)
	}
	return buf
}
