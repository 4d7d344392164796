package fit

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// IntegrityReport summarizes a successful structural pre-check.
type IntegrityReport struct {
	Size     int64
	Segments []Header
	// Consistent is false when the declared data sizes do not tile the file;
	// decoding such a file needs Options.Resync.
	Consistent bool
}

// CheckIntegrity validates the container structure without decoding records:
// header size and magic, header CRC when present, a declared data size that
// fits inside the input, and a zero CRC residue over the whole input. The
// residue holds for chained segments because each segment's trailing CRC
// returns the running checksum to its initial state.
func CheckIntegrity(r io.ReaderAt, size int64) (IntegrityReport, error) {
	rep := IntegrityReport{Size: size}
	if size < headerSizeLegacy+crcSize {
		return rep, fmt.Errorf("%w: %d bytes is too short", ErrIntegrity, size)
	}

	offset := int64(0)
	rep.Consistent = true
	for offset < size {
		hdr, err := readHeaderAt(r, offset, size)
		if err != nil {
			if offset == 0 {
				return rep, err
			}
			rep.Consistent = false
			break
		}
		if hdr.HasCRC() {
			buf := make([]byte, headerSizeLegacy)
			if _, err := r.ReadAt(buf, offset); err != nil {
				return rep, fmt.Errorf("%w: %v", ErrIntegrity, err)
			}
			if got := ComputeCRC(buf); got != hdr.CRC {
				return rep, fmt.Errorf("%w: header CRC 0x%04X, computed 0x%04X at offset %d", ErrIntegrity, hdr.CRC, got, offset)
			}
		}
		end := offset + int64(hdr.Size) + int64(hdr.DataSize) + crcSize
		if end > size {
			if offset == 0 {
				return rep, fmt.Errorf("%w: declared data size %d exceeds file size %d", ErrIntegrity, hdr.DataSize, size)
			}
			rep.Consistent = false
			break
		}
		rep.Segments = append(rep.Segments, hdr)
		offset = end
	}

	sum := NewChecksum()
	if _, err := io.Copy(sum, io.NewSectionReader(r, 0, size)); err != nil {
		return rep, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if residue := sum.Sum16(); residue != 0 {
		tail := make([]byte, crcSize)
		stored := uint16(0)
		if _, err := r.ReadAt(tail, size-crcSize); err == nil {
			stored = binary.LittleEndian.Uint16(tail)
		}
		return rep, fmt.Errorf("%w: file CRC mismatch (stored 0x%04X)", ErrIntegrity, stored)
	}
	return rep, nil
}

// CheckFile runs CheckIntegrity on a fresh read of path.
func CheckFile(path string) (IntegrityReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return IntegrityReport{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return IntegrityReport{}, err
	}
	return CheckIntegrity(f, info.Size())
}

func readHeaderAt(r io.ReaderAt, offset, size int64) (Header, error) {
	if offset+headerSizeLegacy > size {
		return Header{}, fmt.Errorf("%w: truncated header at offset %d", ErrIntegrity, offset)
	}
	buf := make([]byte, headerSizeFull)
	n := headerSizeFull
	if offset+int64(n) > size {
		n = headerSizeLegacy
	}
	if _, err := r.ReadAt(buf[:n], offset); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if buf[0] != headerSizeLegacy && buf[0] != headerSizeFull {
		return Header{}, fmt.Errorf("%w: header size %d at offset %d", ErrIntegrity, buf[0], offset)
	}
	if int(buf[0]) > n {
		return Header{}, fmt.Errorf("%w: truncated header at offset %d", ErrIntegrity, offset)
	}
	return ParseHeader(buf[:buf[0]])
}
