package fit_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"example.com/fitfaker/internal/common"
	"example.com/fitfaker/internal/fit"
	"example.com/fitfaker/internal/fit/fittest"
)

func decode(t *testing.T, data []byte, opts fit.Options) ([]*fit.Message, fit.FileIndex) {
	t.Helper()
	r := fit.NewReader(bytes.NewReader(data), int64(len(data)), opts)
	defer r.Close()
	msgs, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return msgs, r.Index()
}

func kinds(msgs []*fit.Message) []fit.MesgNum {
	out := make([]fit.MesgNum, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind
	}
	return out
}

func mustUint(t *testing.T, m *fit.Message, num uint8) uint64 {
	t.Helper()
	v, ok := m.Uint(num)
	if !ok {
		t.Fatalf("%s field %d missing or invalid", m.Kind.Name(), num)
	}
	return v
}

func TestReaderDecodesZwiftRide(t *testing.T) {
	msgs, idx := decode(t, fittest.ZwiftRide().Bytes(), fit.Options{})
	want := []fit.MesgNum{fit.MesgNumFileID, fit.MesgNumRecord, fit.MesgNumDeviceInfo}
	if got := kinds(msgs); !equalKinds(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	if got := mustUint(t, msgs[0], fit.FileIDManufacturer); got != uint64(fit.ManufacturerZwift) {
		t.Fatalf("file_id manufacturer = %d", got)
	}
	if got := mustUint(t, msgs[1], fit.RecordPower); got != 250 {
		t.Fatalf("power = %d, want 250", got)
	}
	if got := mustUint(t, msgs[1], fit.RecordHeartRate); got != 140 {
		t.Fatalf("heart rate = %d, want 140", got)
	}
	if len(idx.Segments) != 1 || idx.Definitions != 3 || len(idx.Messages) != 3 {
		t.Fatalf("index = %+v", idx)
	}
	if idx.Segments[0].Size != 14 || idx.Segments[0].ProfileVersion != 2194 {
		t.Fatalf("segment header = %+v", idx.Segments[0])
	}
	// 14-byte header, then the file_id definition: 6 fixed bytes and 4 fields
	first := int64(14 + 6 + 4*3)
	if msgs[0].Offset != first || idx.Messages[0].Offset != first {
		t.Fatalf("first record offset = %d", msgs[0].Offset)
	}
}

func TestReaderRichActivity(t *testing.T) {
	msgs, idx := decode(t, fittest.RichActivity().Bytes(), fit.Options{})
	if got := kinds(msgs); !equalKinds(got, fittest.RichActivityKinds) {
		t.Fatalf("kinds = %v, want %v", got, fittest.RichActivityKinds)
	}
	if idx.Definitions != 11 {
		t.Fatalf("definitions = %d, want 11", idx.Definitions)
	}

	if got := mustUint(t, msgs[0], fit.FileIDSerialNumber); got != 12345 {
		t.Fatalf("serial = %d", got)
	}
	if name, ok := msgs[3].String(fit.DeviceInfoProductName); !ok || name != "Zwift" {
		t.Fatalf("product_name = %q, %v", name, ok)
	}
	if got := mustUint(t, msgs[4], fit.DeviceInfoManufacturer); got != 32 {
		t.Fatalf("second device manufacturer = %d", got)
	}

	rec := msgs[6]
	if f := rec.Field(fit.RecordEnhancedSpeed); f == nil || !f.Expanded {
		t.Fatalf("enhanced_speed not synthesized: %+v", f)
	}
	if got := mustUint(t, rec, fit.RecordEnhancedSpeed); got != 8000 {
		t.Fatalf("enhanced_speed = %d", got)
	}
	if got := mustUint(t, rec, fit.RecordEnhancedAltitude); got != 2600 {
		t.Fatalf("enhanced_altitude = %d", got)
	}
	if len(rec.DevFields) != 1 || !bytes.Equal(rec.DevFields[0].Data, fittest.U16(55)) {
		t.Fatalf("developer fields = %+v", rec.DevFields)
	}

	for i, want := range map[int]uint32{7: fittest.BaseTime + 3, 8: fittest.BaseTime + 5} {
		m := msgs[i]
		if !m.Compressed || !idx.Messages[i].Compressed {
			t.Fatalf("message %d not flagged compressed", i)
		}
		f := m.Field(fit.FieldTimestamp)
		if f == nil || !f.Expanded {
			t.Fatalf("message %d timestamp not synthesized", i)
		}
		if got := mustUint(t, m, fit.FieldTimestamp); got != uint64(want) {
			t.Fatalf("message %d timestamp = %d, want %d", i, got, want)
		}
	}

	lap := msgs[9]
	if lap.Arch != fit.ArchBigEndian {
		t.Fatalf("lap arch = %d", lap.Arch)
	}
	if got := mustUint(t, lap, 7); got != 5000 {
		t.Fatalf("lap total_elapsed_time = %d", got)
	}
	if got := mustUint(t, lap, 110); got != 8100 {
		t.Fatalf("lap enhanced_avg_speed = %d", got)
	}

	vendor := msgs[10]
	if vendor.Kind.Known() || vendor.Kind.Name() != "unknown_65280" {
		t.Fatalf("vendor kind = %s", vendor.Kind.Name())
	}
	if !bytes.Equal(vendor.Field(0).Data, []byte{0xDE, 0xAD, 0x01}) {
		t.Fatalf("vendor payload = %X", vendor.Field(0).Data)
	}
	if got := mustUint(t, msgs[11], 125); got != 8200 {
		t.Fatalf("session enhanced_max_speed = %d", got)
	}
	if got := mustUint(t, msgs[13], fit.RecordHeartRate); got != 123 {
		t.Fatalf("trailing record heart rate = %d", got)
	}
}

func TestReaderNoExpand(t *testing.T) {
	msgs, _ := decode(t, fittest.RichActivity().Bytes(), fit.Options{NoExpand: true})
	for i, m := range msgs {
		for _, f := range m.Fields {
			if f.Expanded {
				t.Fatalf("message %d has expanded field %d", i, f.Num)
			}
		}
	}
	if msgs[7].Field(fit.FieldTimestamp) != nil {
		t.Fatal("compressed record should not carry a timestamp")
	}
}

func TestReaderLegacyHeader(t *testing.T) {
	msgs, idx := decode(t, fittest.ZwiftRide().LegacyBytes(), fit.Options{})
	if len(msgs) != 3 || idx.Segments[0].Size != 12 {
		t.Fatalf("messages = %d, header = %+v", len(msgs), idx.Segments[0])
	}
}

func TestReaderChainedSegments(t *testing.T) {
	data := append(fittest.ZwiftRide().Bytes(), fittest.RichActivity().Bytes()...)
	msgs, idx := decode(t, data, fit.Options{})
	if len(msgs) != 3+len(fittest.RichActivityKinds) {
		t.Fatalf("messages = %d", len(msgs))
	}
	if len(idx.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(idx.Segments))
	}
	if idx.Messages[3].Segment != 1 {
		t.Fatalf("message 3 segment = %d", idx.Messages[3].Segment)
	}
}

func TestReaderFraming(t *testing.T) {
	b := fittest.ZwiftRide()
	short := b.BytesDeclaring(uint32(b.BodyLen() - 10))

	r := fit.NewReader(bytes.NewReader(short), int64(len(short)), fit.Options{})
	_, err := r.ReadAll()
	if !errors.Is(err, fit.ErrRecoverableFraming) {
		t.Fatalf("expected ErrRecoverableFraming, got %v", err)
	}

	metrics := common.NewMetrics()
	msgs, _ := decode(t, short, fit.Options{Resync: true, Metrics: metrics})
	if len(msgs) != 3 {
		t.Fatalf("resync decoded %d messages, want 3", len(msgs))
	}
	if s := metrics.Snapshot(); s.Resyncs != 1 || s.Messages != 3 || s.Bytes != int64(len(short)) {
		t.Fatalf("metrics = %+v", s)
	}
}

func TestReaderMalformed(t *testing.T) {
	good := fittest.ZwiftRide().Bytes()
	tests := []struct {
		name string
		data []byte
		opts fit.Options
	}{
		{
			name: "truncated in resync",
			data: good[:len(good)-5],
			opts: fit.Options{Resync: true},
		},
		{
			name: "undefined local type",
			data: fittest.New().Data(3, fittest.U8(1)).Bytes(),
		},
		{
			name: "undefined compressed local type",
			data: fittest.New().Compressed(2, 1, fittest.U8(1)).Bytes(),
		},
		{
			name: "bad architecture",
			data: fittest.New().Raw([]byte{0x40, 0, 7, 0, 0, 0}).Bytes(),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := fit.NewReader(bytes.NewReader(tc.data), int64(len(tc.data)), tc.opts)
			_, err := r.ReadAll()
			if !errors.Is(err, fit.ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestOpenReadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ride.fit")
	if err := os.WriteFile(path, fittest.RichActivity().Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	r, err := fit.Open(path, fit.Options{BlockSize: 16})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	count := 0
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		count++
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if count != len(fittest.RichActivityKinds) {
		t.Fatalf("count = %d", count)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next after Close = %v, want EOF", err)
	}
}

func equalKinds(a, b []fit.MesgNum) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
