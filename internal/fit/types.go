package fit

// MesgNum is the global message number carried by a definition record.
type MesgNum uint16

const (
	MesgNumFileID           MesgNum = 0
	MesgNumCapabilities     MesgNum = 1
	MesgNumDeviceSettings   MesgNum = 2
	MesgNumUserProfile      MesgNum = 3
	MesgNumZonesTarget      MesgNum = 7
	MesgNumSport            MesgNum = 12
	MesgNumSession          MesgNum = 18
	MesgNumLap              MesgNum = 19
	MesgNumRecord           MesgNum = 20
	MesgNumEvent            MesgNum = 21
	MesgNumDeviceInfo       MesgNum = 23
	MesgNumWorkout          MesgNum = 26
	MesgNumActivity         MesgNum = 34
	MesgNumFileCreator      MesgNum = 49
	MesgNumHRV              MesgNum = 78
	MesgNumFieldDescription MesgNum = 206
	MesgNumDeveloperDataID  MesgNum = 207
	MesgNumInvalid          MesgNum = 0xFFFF
)

// Architecture values stored in definition records.
const (
	ArchLittleEndian uint8 = 0
	ArchBigEndian    uint8 = 1
)

// Header is the file header that opens every FIT segment.
type Header struct {
	Size            uint8
	ProtocolVersion uint8
	ProfileVersion  uint16
	DataSize        uint32
	Magic           [4]byte
	CRC             uint16
}

// HasCRC reports whether the header carries a non-zero header CRC.
func (h Header) HasCRC() bool {
	return h.Size >= headerSizeFull && h.CRC != 0
}

type FieldDef struct {
	Num      uint8
	Size     uint8
	BaseType BaseType
}

type DevFieldDef struct {
	Num      uint8
	Size     uint8
	DevIndex uint8
}

// Definition describes the layout used by data records of one local type
// until the local type is redefined or the segment ends.
type Definition struct {
	LocalType uint8
	Arch      uint8
	Kind      MesgNum
	Fields    []FieldDef
	DevFields []DevFieldDef
}

// DataSize returns the number of bytes a data record of this layout occupies
// after its record header.
func (d *Definition) DataSize() int {
	n := 0
	for _, f := range d.Fields {
		n += int(f.Size)
	}
	for _, f := range d.DevFields {
		n += int(f.Size)
	}
	return n
}

// Equal compares two layouts field by field.
func (d *Definition) Equal(o *Definition) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.LocalType != o.LocalType || d.Arch != o.Arch || d.Kind != o.Kind {
		return false
	}
	if len(d.Fields) != len(o.Fields) || len(d.DevFields) != len(o.DevFields) {
		return false
	}
	for i := range d.Fields {
		if d.Fields[i] != o.Fields[i] {
			return false
		}
	}
	for i := range d.DevFields {
		if d.DevFields[i] != o.DevFields[i] {
			return false
		}
	}
	return true
}

// Field is a single field value in its encoded form. Data is stored in the
// byte order of the owning message's architecture.
type Field struct {
	Num      uint8
	BaseType BaseType
	Data     []byte
	// Expanded marks values synthesized by the reader that were not present
	// in the encoded record.
	Expanded bool
}

// DevField carries developer (third-party) field bytes verbatim.
type DevField struct {
	Num      uint8
	DevIndex uint8
	Data     []byte
}

// Message is one decoded data record.
type Message struct {
	Kind      MesgNum
	LocalType uint8
	Arch      uint8
	Fields    []Field
	DevFields []DevField

	// Compressed is set when the record used a compressed timestamp header;
	// TimeOffset holds the 5-bit offset from that header.
	Compressed bool
	TimeOffset uint8

	// Offset is the byte offset of the record header in the source stream.
	Offset int64
}

// MessageIndex is the per-message metadata collected by a Reader.
type MessageIndex struct {
	Offset     int64
	Kind       MesgNum
	LocalType  uint8
	Segment    int
	Compressed bool
}

// FileIndex accumulates what a Reader has seen so far.
type FileIndex struct {
	Segments    []Header
	Messages    []MessageIndex
	Definitions int
}
