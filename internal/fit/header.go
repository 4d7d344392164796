package fit

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	headerSizeLegacy = 12
	headerSizeFull   = 14
	crcSize          = 2

	// ProtocolVersion is the only protocol version the writer emits (2.0).
	ProtocolVersion uint8 = 0x20
	// ProfileVersion is the profile version stamped into written headers.
	ProfileVersion uint16 = 2194
)

var fileMagic = [4]byte{'.', 'F', 'I', 'T'}

// ParseHeader decodes a segment header from buf, which must hold at least the
// declared header size.
func ParseHeader(buf []byte) (Header, error) {
	var hdr Header
	if len(buf) < headerSizeLegacy {
		return hdr, io.ErrUnexpectedEOF
	}
	hdr.Size = buf[0]
	if hdr.Size != headerSizeLegacy && hdr.Size != headerSizeFull {
		return hdr, fmt.Errorf("%w: header size %d", ErrIntegrity, hdr.Size)
	}
	if len(buf) < int(hdr.Size) {
		return hdr, io.ErrUnexpectedEOF
	}
	hdr.ProtocolVersion = buf[1]
	hdr.ProfileVersion = binary.LittleEndian.Uint16(buf[2:4])
	hdr.DataSize = binary.LittleEndian.Uint32(buf[4:8])
	copy(hdr.Magic[:], buf[8:12])
	if hdr.Magic != fileMagic {
		return hdr, fmt.Errorf("%w: bad magic %q", ErrIntegrity, hdr.Magic[:])
	}
	if hdr.Size == headerSizeFull {
		hdr.CRC = binary.LittleEndian.Uint16(buf[12:14])
	}
	return hdr, nil
}

// MarshalHeader encodes a 14-byte header including its CRC.
func MarshalHeader(dataSize uint32, profileVersion uint16) []byte {
	buf := make([]byte, 0, headerSizeFull)
	buf = append(buf, headerSizeFull, ProtocolVersion)
	buf = binary.LittleEndian.AppendUint16(buf, profileVersion)
	buf = binary.LittleEndian.AppendUint32(buf, dataSize)
	buf = append(buf, fileMagic[:]...)
	return appendCRC(buf, ComputeCRC(buf))
}

// looksLikeHeader reports whether a plausible segment header starts at offset.
func looksLikeHeader(src dataSource, offset int64) bool {
	buf, err := sliceExact(src, offset, headerSizeLegacy)
	if err != nil {
		return false
	}
	if buf[0] != headerSizeLegacy && buf[0] != headerSizeFull {
		return false
	}
	return [4]byte(buf[8:12]) == fileMagic
}
