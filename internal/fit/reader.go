package fit

import (
	"errors"
	"fmt"
	"io"
	"os"

	"example.com/fitfaker/internal/common"
)

const (
	recordCompressedMask = 0x80
	recordDefinitionFlag = 0x40
	recordDevDataFlag    = 0x20
	localTypeMask        = 0x0F
	compressedLocalMask  = 0x60
	compressedTimeMask   = 0x1F

	definitionFixedSize = 5
	fieldDefSize        = 3
	maxLocalTypes       = 16
)

// Options controls decoding.
type Options struct {
	// Resync ignores declared data sizes and locates each segment's end from
	// the record stream itself.
	Resync bool
	// NoExpand disables synthesized timestamp and component fields.
	NoExpand  bool
	BlockSize int
	Metrics   *common.Metrics
}

// Reader decodes a FIT stream message by message while building an index of
// what it has seen.
type Reader struct {
	source dataSource
	size   int64
	offset int64
	opts   Options

	inSegment bool
	segStart  int64
	bodyStart int64
	bodyEnd   int64
	header    Header

	defs          [maxLocalTypes]*Definition
	lastTimestamp uint32
	haveTimestamp bool

	index FileIndex
}

// Open opens the file at path and prepares a Reader over it.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	src := newBlockSource(f, f, info.Size(), opts.BlockSize)
	return newReader(src, opts), nil
}

// NewReader prepares a Reader over the first size bytes of r.
func NewReader(r io.ReaderAt, size int64, opts Options) *Reader {
	return newReader(newBlockSource(r, nil, size, opts.BlockSize), opts)
}

func newReader(src dataSource, opts Options) *Reader {
	return &Reader{source: src, size: src.Size(), opts: opts}
}

// Close releases the underlying source.
func (r *Reader) Close() error {
	if r.source == nil {
		return nil
	}
	err := r.source.Close()
	r.source = nil
	return err
}

// Header returns the header of the segment currently being decoded.
func (r *Reader) Header() Header {
	return r.header
}

// Index returns a copy of the accumulated index.
func (r *Reader) Index() FileIndex {
	out := FileIndex{
		Segments:    make([]Header, len(r.index.Segments)),
		Messages:    make([]MessageIndex, len(r.index.Messages)),
		Definitions: r.index.Definitions,
	}
	copy(out.Segments, r.index.Segments)
	copy(out.Messages, r.index.Messages)
	return out
}

// Next decodes the next data message. Definition records are consumed
// internally. It returns io.EOF after the last segment.
func (r *Reader) Next() (*Message, error) {
	if r.source == nil {
		return nil, io.EOF
	}
	for {
		if !r.inSegment {
			if r.offset >= r.size {
				return nil, io.EOF
			}
			if err := r.startSegment(); err != nil {
				return nil, err
			}
			continue
		}
		end, err := r.atSegmentEnd()
		if err != nil {
			return nil, err
		}
		if end {
			r.finishSegment()
			continue
		}
		msg, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
}

// ReadAll drains the reader.
func (r *Reader) ReadAll() ([]*Message, error) {
	var out []*Message
	for {
		msg, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
}

func (r *Reader) startSegment() error {
	lead, err := sliceExact(r.source, r.offset, 1)
	if err != nil {
		return fmt.Errorf("%w: truncated header at offset %d", ErrMalformed, r.offset)
	}
	hdrLen := int(lead[0])
	if hdrLen < headerSizeLegacy {
		return fmt.Errorf("%w: header size %d at offset %d", ErrMalformed, hdrLen, r.offset)
	}
	buf, err := sliceExact(r.source, r.offset, hdrLen)
	if err != nil {
		return fmt.Errorf("%w: truncated header at offset %d", ErrMalformed, r.offset)
	}
	hdr, err := ParseHeader(buf)
	if err != nil {
		return fmt.Errorf("%w: segment at offset %d: %v", ErrMalformed, r.offset, err)
	}

	r.header = hdr
	r.segStart = r.offset
	r.bodyStart = r.offset + int64(hdr.Size)
	r.defs = [maxLocalTypes]*Definition{}
	r.index.Segments = append(r.index.Segments, hdr)
	r.offset = r.bodyStart
	r.inSegment = true
	if r.opts.Metrics != nil {
		r.opts.Metrics.AddBytes(int64(hdr.Size))
	}

	if r.opts.Resync {
		r.bodyEnd = -1
		return nil
	}
	r.bodyEnd = r.bodyStart + int64(hdr.DataSize)
	if !r.boundaryAt(r.bodyEnd) {
		common.Logf("segment %d at offset %d declares %d data bytes but the stream does not end there",
			len(r.index.Segments), r.segStart, hdr.DataSize)
		return fmt.Errorf("%w: segment %d declares %d bytes", ErrRecoverableFraming, len(r.index.Segments), hdr.DataSize)
	}
	return nil
}

// boundaryAt reports whether a segment body may end at p: a CRC follows and
// then either the end of the stream or another segment header.
func (r *Reader) boundaryAt(p int64) bool {
	if p+crcSize > r.size {
		return false
	}
	if p+crcSize == r.size {
		return true
	}
	return looksLikeHeader(r.source, p+crcSize)
}

func (r *Reader) atSegmentEnd() (bool, error) {
	if !r.opts.Resync {
		switch {
		case r.offset == r.bodyEnd:
			return true, nil
		case r.offset > r.bodyEnd:
			return false, fmt.Errorf("%w: record crosses declared end at offset %d", ErrRecoverableFraming, r.bodyEnd)
		}
		return false, nil
	}
	if r.offset+crcSize > r.size {
		return false, fmt.Errorf("%w: stream ends inside segment at offset %d", ErrMalformed, r.offset)
	}
	if r.boundaryAt(r.offset) {
		if declared := r.bodyStart + int64(r.header.DataSize); declared != r.offset {
			common.Logf("resync: segment %d body ends at offset %d (declared %d)", len(r.index.Segments), r.offset, declared)
			if r.opts.Metrics != nil {
				r.opts.Metrics.IncResync()
			}
		}
		r.bodyEnd = r.offset
		return true, nil
	}
	return false, nil
}

func (r *Reader) finishSegment() {
	r.offset = r.bodyEnd + crcSize
	r.inSegment = false
	if r.opts.Metrics != nil {
		r.opts.Metrics.AddBytes(crcSize)
	}
}

// recordLimit is the exclusive offset no record may extend past.
func (r *Reader) recordLimit() int64 {
	if r.opts.Resync {
		return r.size - crcSize
	}
	return r.bodyEnd
}

func (r *Reader) overrun(what string, at int64) error {
	if r.opts.Resync {
		return fmt.Errorf("%w: %s at offset %d runs past end of stream", ErrMalformed, what, at)
	}
	return fmt.Errorf("%w: %s at offset %d crosses declared end %d", ErrRecoverableFraming, what, at, r.bodyEnd)
}

func (r *Reader) readRecord() (*Message, error) {
	start := r.offset
	limit := r.recordLimit()
	if start+1 > limit {
		return nil, r.overrun("record header", start)
	}
	hb, err := sliceExact(r.source, start, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: record header at offset %d: %v", ErrMalformed, start, err)
	}
	recHdr := hb[0]

	switch {
	case recHdr&recordCompressedMask != 0:
		local := (recHdr & compressedLocalMask) >> 5
		def := r.defs[local]
		if def == nil {
			return nil, fmt.Errorf("%w: compressed record at offset %d uses undefined local type %d", ErrMalformed, start, local)
		}
		msg, err := r.readData(def, start, limit)
		if err != nil {
			return nil, err
		}
		msg.Compressed = true
		msg.TimeOffset = recHdr & compressedTimeMask
		r.index.Messages[len(r.index.Messages)-1].Compressed = true
		if r.haveTimestamp {
			ts := r.resolveCompressed(msg.TimeOffset)
			if !r.opts.NoExpand && msg.Field(FieldTimestamp) == nil {
				msg.Fields = append(msg.Fields, Field{
					Num:      FieldTimestamp,
					BaseType: BaseUint32,
					Data:     encodeUint(byteOrder(msg.Arch), 4, uint64(ts)),
					Expanded: true,
				})
			}
		}
		return msg, nil
	case recHdr&recordDefinitionFlag != 0:
		local := recHdr & localTypeMask
		def, next, err := r.readDefinition(start, local, recHdr&recordDevDataFlag != 0, limit)
		if err != nil {
			return nil, err
		}
		r.defs[local] = def
		r.index.Definitions++
		if r.opts.Metrics != nil {
			r.opts.Metrics.AddBytes(next - start)
		}
		r.offset = next
		return nil, nil
	default:
		local := recHdr & localTypeMask
		def := r.defs[local]
		if def == nil {
			return nil, fmt.Errorf("%w: record at offset %d uses undefined local type %d", ErrMalformed, start, local)
		}
		return r.readData(def, start, limit)
	}
}

func (r *Reader) readDefinition(start int64, local uint8, dev bool, limit int64) (*Definition, int64, error) {
	pos := start + 1
	if pos+definitionFixedSize > limit {
		return nil, 0, r.overrun("definition", start)
	}
	fixed, err := sliceExact(r.source, pos, definitionFixedSize)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: definition at offset %d: %v", ErrMalformed, start, err)
	}
	arch := fixed[1]
	if arch != ArchLittleEndian && arch != ArchBigEndian {
		return nil, 0, fmt.Errorf("%w: definition at offset %d has architecture %d", ErrMalformed, start, arch)
	}
	def := &Definition{
		LocalType: local,
		Arch:      arch,
		Kind:      MesgNum(byteOrder(arch).Uint16(fixed[2:4])),
	}
	numFields := int(fixed[4])
	pos += definitionFixedSize

	if pos+int64(numFields*fieldDefSize) > limit {
		return nil, 0, r.overrun("definition fields", start)
	}
	if numFields > 0 {
		raw, err := sliceExact(r.source, pos, numFields*fieldDefSize)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: definition at offset %d: %v", ErrMalformed, start, err)
		}
		def.Fields = make([]FieldDef, numFields)
		for i := range def.Fields {
			b := raw[i*fieldDefSize : (i+1)*fieldDefSize]
			def.Fields[i] = FieldDef{Num: b[0], Size: b[1], BaseType: BaseType(b[2])}
		}
		pos += int64(numFields * fieldDefSize)
	}

	if dev {
		if pos+1 > limit {
			return nil, 0, r.overrun("developer field count", start)
		}
		cnt, err := sliceExact(r.source, pos, 1)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: definition at offset %d: %v", ErrMalformed, start, err)
		}
		numDev := int(cnt[0])
		pos++
		if pos+int64(numDev*fieldDefSize) > limit {
			return nil, 0, r.overrun("developer field definitions", start)
		}
		if numDev > 0 {
			raw, err := sliceExact(r.source, pos, numDev*fieldDefSize)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: definition at offset %d: %v", ErrMalformed, start, err)
			}
			def.DevFields = make([]DevFieldDef, numDev)
			for i := range def.DevFields {
				b := raw[i*fieldDefSize : (i+1)*fieldDefSize]
				def.DevFields[i] = DevFieldDef{Num: b[0], Size: b[1], DevIndex: b[2]}
			}
			pos += int64(numDev * fieldDefSize)
		}
	}
	return def, pos, nil
}

func (r *Reader) readData(def *Definition, start, limit int64) (*Message, error) {
	pos := start + 1
	n := def.DataSize()
	if pos+int64(n) > limit {
		return nil, r.overrun(def.Kind.Name()+" record", start)
	}
	raw, err := sliceExact(r.source, pos, n)
	if err != nil {
		return nil, fmt.Errorf("%w: record at offset %d: %v", ErrMalformed, start, err)
	}
	// raw aliases the block buffer; every field gets its own copy.
	body := make([]byte, n)
	copy(body, raw)

	msg := &Message{
		Kind:      def.Kind,
		LocalType: def.LocalType,
		Arch:      def.Arch,
		Fields:    make([]Field, 0, len(def.Fields)),
		Offset:    start,
	}
	cursor := 0
	for _, fd := range def.Fields {
		size := int(fd.Size)
		msg.Fields = append(msg.Fields, Field{
			Num:      fd.Num,
			BaseType: fd.BaseType,
			Data:     body[cursor : cursor+size : cursor+size],
		})
		cursor += size
	}
	if len(def.DevFields) > 0 {
		msg.DevFields = make([]DevField, 0, len(def.DevFields))
		for _, fd := range def.DevFields {
			size := int(fd.Size)
			msg.DevFields = append(msg.DevFields, DevField{
				Num:      fd.Num,
				DevIndex: fd.DevIndex,
				Data:     body[cursor : cursor+size : cursor+size],
			})
			cursor += size
		}
	}

	if ts, ok := msg.Uint(FieldTimestamp); ok {
		r.lastTimestamp = uint32(ts)
		r.haveTimestamp = true
	}
	if !r.opts.NoExpand {
		expandComponents(msg)
	}

	r.offset = pos + int64(n)
	r.index.Messages = append(r.index.Messages, MessageIndex{
		Offset:    start,
		Kind:      msg.Kind,
		LocalType: msg.LocalType,
		Segment:   len(r.index.Segments) - 1,
	})
	if r.opts.Metrics != nil {
		r.opts.Metrics.AddMessage(r.offset - start)
	}
	return msg, nil
}

// resolveCompressed applies a 5-bit rolling offset to the last full timestamp.
func (r *Reader) resolveCompressed(offset uint8) uint32 {
	last := r.lastTimestamp
	ts := (last &^ compressedTimeMask) + uint32(offset)
	if uint32(offset) < last&compressedTimeMask {
		ts += compressedTimeMask + 1
	}
	r.lastTimestamp = ts
	return ts
}

func expandComponents(m *Message) {
	for _, c := range components {
		if c.onlyKind != m.Kind || m.Field(c.dst) != nil {
			continue
		}
		v, ok := m.Uint(c.src)
		if !ok {
			continue
		}
		m.Fields = append(m.Fields, Field{
			Num:      c.dst,
			BaseType: c.dstType,
			Data:     encodeUint(byteOrder(m.Arch), c.dstType.Size(), v),
			Expanded: true,
		})
	}
}
