package fit

import (
	"bufio"
	"fmt"
	"io"
	"math"
)

const defaultWriteBuffer = 64 << 10

// Output is the resource a Writer encodes into. Bytes are appended with Write;
// the header is patched with WriteAt and re-read with ReadAt when the writer
// is closed. *os.File satisfies it.
type Output interface {
	io.Writer
	io.WriterAt
	io.ReaderAt
}

// WriterOptions controls encoding.
type WriterOptions struct {
	ProfileVersion uint16
	BufferSize     int
}

// Writer encodes messages into a single FIT segment. Definition records are
// emitted whenever a message's layout differs from the layout currently
// active for its local type.
type Writer struct {
	out            Output
	bw             *bufio.Writer
	profileVersion uint16

	active      [maxLocalTypes]*Definition
	bodyLen     int64
	messages    int
	definitions int
	scratch     []byte

	closed bool
	err    error
}

// NewWriter writes a placeholder header to out and returns a Writer. out
// must be empty.
func NewWriter(out Output, opts WriterOptions) (*Writer, error) {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultWriteBuffer
	}
	pv := opts.ProfileVersion
	if pv == 0 {
		pv = ProfileVersion
	}
	w := &Writer{
		out:            out,
		bw:             bufio.NewWriterSize(out, size),
		profileVersion: pv,
	}
	if _, err := w.bw.Write(MarshalHeader(0, pv)); err != nil {
		return nil, w.fail(err)
	}
	return w, nil
}

func (w *Writer) fail(err error) error {
	w.err = fmt.Errorf("%w: %v", ErrOutputWrite, err)
	return w.err
}

// Write appends m. Messages are encoded in the order Write is called.
func (w *Writer) Write(m *Message) error {
	if w.closed {
		return ErrWriterClosed
	}
	if w.err != nil {
		return w.err
	}
	if m.LocalType >= maxLocalTypes {
		return fmt.Errorf("fit: local message type %d out of range", m.LocalType)
	}
	if m.Arch != ArchLittleEndian && m.Arch != ArchBigEndian {
		return fmt.Errorf("fit: architecture %d not encodable", m.Arch)
	}
	for _, f := range m.Fields {
		if len(f.Data) > math.MaxUint8 {
			return fmt.Errorf("fit: %s field %d has unencodable size %d", m.Kind.Name(), f.Num, len(f.Data))
		}
	}
	for _, f := range m.DevFields {
		if len(f.Data) > math.MaxUint8 {
			return fmt.Errorf("fit: %s developer field %d has unencodable size %d", m.Kind.Name(), f.Num, len(f.Data))
		}
	}
	if len(m.Fields) > math.MaxUint8 || len(m.DevFields) > math.MaxUint8 {
		return fmt.Errorf("fit: %s has too many fields", m.Kind.Name())
	}

	def := m.Definition()
	if !def.Equal(w.active[m.LocalType]) {
		w.scratch = appendDefinition(w.scratch[:0], def)
		if err := w.emit(w.scratch); err != nil {
			return err
		}
		w.active[m.LocalType] = def
		w.definitions++
	}

	recHdr := m.LocalType
	if m.Compressed && m.LocalType <= compressedLocalMask>>5 {
		recHdr = recordCompressedMask | m.LocalType<<5 | (m.TimeOffset & compressedTimeMask)
	}
	w.scratch = append(w.scratch[:0], recHdr)
	for _, f := range m.Fields {
		w.scratch = append(w.scratch, f.Data...)
	}
	for _, f := range m.DevFields {
		w.scratch = append(w.scratch, f.Data...)
	}
	if err := w.emit(w.scratch); err != nil {
		return err
	}
	w.messages++
	return nil
}

func (w *Writer) emit(p []byte) error {
	if _, err := w.bw.Write(p); err != nil {
		return w.fail(err)
	}
	w.bodyLen += int64(len(p))
	return nil
}

func appendDefinition(buf []byte, def *Definition) []byte {
	recHdr := recordDefinitionFlag | def.LocalType
	if len(def.DevFields) > 0 {
		recHdr |= recordDevDataFlag
	}
	buf = append(buf, recHdr, 0, def.Arch)
	buf = byteOrder(def.Arch).AppendUint16(buf, uint16(def.Kind))
	buf = append(buf, uint8(len(def.Fields)))
	for _, f := range def.Fields {
		buf = append(buf, f.Num, f.Size, uint8(f.BaseType))
	}
	if len(def.DevFields) > 0 {
		buf = append(buf, uint8(len(def.DevFields)))
		for _, f := range def.DevFields {
			buf = append(buf, f.Num, f.Size, f.DevIndex)
		}
	}
	return buf
}

// Close patches the header with the final data size and appends the file
// CRC. It does not close out.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}
	if err := w.bw.Flush(); err != nil {
		return w.fail(err)
	}
	if w.bodyLen > math.MaxUint32 {
		return w.fail(fmt.Errorf("data size %d exceeds format limit", w.bodyLen))
	}
	if _, err := w.out.WriteAt(MarshalHeader(uint32(w.bodyLen), w.profileVersion), 0); err != nil {
		return w.fail(err)
	}
	sum := NewChecksum()
	if _, err := io.Copy(sum, io.NewSectionReader(w.out, 0, headerSizeFull+w.bodyLen)); err != nil {
		return w.fail(err)
	}
	if _, err := w.out.Write(appendCRC(nil, sum.Sum16())); err != nil {
		return w.fail(err)
	}
	return nil
}

// BodyLen returns the number of record bytes written so far.
func (w *Writer) BodyLen() int64 {
	return w.bodyLen
}

// Size returns the encoded size once the writer is closed.
func (w *Writer) Size() int64 {
	return headerSizeFull + w.bodyLen + crcSize
}

// Messages returns the number of data records written.
func (w *Writer) Messages() int {
	return w.messages
}

// Definitions returns the number of definition records written.
func (w *Writer) Definitions() int {
	return w.definitions
}
