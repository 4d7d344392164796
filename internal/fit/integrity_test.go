package fit_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"example.com/fitfaker/internal/fit"
	"example.com/fitfaker/internal/fit/fittest"
)

func TestComputeCRCMatchesNibbleTable(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{0, 1, 12, 97, 4096} {
		data := make([]byte, n)
		rng.Read(data)
		if got, want := fit.ComputeCRC(data), fittest.CRC(data); got != want {
			t.Fatalf("len %d: CRC 0x%04X, want 0x%04X", n, got, want)
		}
	}

	c := fit.NewChecksum()
	c.Write([]byte("123456789"))
	if got := c.Sum16(); got != 0xBB3D {
		t.Fatalf("check value 0x%04X, want 0xBB3D", got)
	}
	c.Reset()
	if got := c.Sum16(); got != 0 {
		t.Fatalf("after Reset 0x%04X", got)
	}
}

func TestCheckIntegrityAccepts(t *testing.T) {
	b := fittest.ZwiftRide()
	tests := []struct {
		name       string
		data       []byte
		segments   int
		consistent bool
	}{
		{name: "full header", data: b.Bytes(), segments: 1, consistent: true},
		{name: "legacy header", data: b.LegacyBytes(), segments: 1, consistent: true},
		{name: "chained", data: append(b.Bytes(), fittest.RichActivity().Bytes()...), segments: 2, consistent: true},
		{name: "declared short", data: b.BytesDeclaring(uint32(b.BodyLen() - 10)), segments: 1, consistent: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rep, err := fit.CheckIntegrity(bytes.NewReader(tc.data), int64(len(tc.data)))
			if err != nil {
				t.Fatalf("CheckIntegrity: %v", err)
			}
			if len(rep.Segments) != tc.segments || rep.Consistent != tc.consistent {
				t.Fatalf("report = %+v", rep)
			}
		})
	}
}

func TestCheckIntegrityRejects(t *testing.T) {
	b := fittest.ZwiftRide()
	good := b.Bytes()
	corrupt := func(fn func([]byte)) []byte {
		out := append([]byte(nil), good...)
		fn(out)
		return out
	}
	tests := []struct {
		name string
		data []byte
	}{
		{name: "too short", data: good[:10]},
		{name: "bad magic", data: corrupt(func(p []byte) { p[9] = 'X' })},
		{name: "bad header size", data: corrupt(func(p []byte) { p[0] = 13 })},
		{name: "bad header crc", data: corrupt(func(p []byte) { p[12] ^= 0xFF })},
		{name: "declared too long", data: b.BytesDeclaring(uint32(b.BodyLen() + 40))},
		{name: "body flipped", data: corrupt(func(p []byte) { p[20] ^= 0x01 })},
		{name: "trailer flipped", data: corrupt(func(p []byte) { p[len(p)-1] ^= 0x80 })},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fit.CheckIntegrity(bytes.NewReader(tc.data), int64(len(tc.data)))
			if !errors.Is(err, fit.ErrIntegrity) {
				t.Fatalf("expected ErrIntegrity, got %v", err)
			}
		})
	}
}

func TestCheckIntegrityIgnoresUnsetHeaderCRC(t *testing.T) {
	data := fittest.ZwiftRide().Bytes()
	binary.LittleEndian.PutUint16(data[12:14], 0)
	// the trailing CRC covers the header bytes too
	binary.LittleEndian.PutUint16(data[len(data)-2:], fittest.CRC(data[:len(data)-2]))
	if _, err := fit.CheckIntegrity(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ride.fit")
	if err := os.WriteFile(path, fittest.RichActivity().Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rep, err := fit.CheckFile(path)
	if err != nil {
		t.Fatalf("CheckFile: %v", err)
	}
	if fi, _ := os.Stat(path); rep.Size != fi.Size() {
		t.Fatalf("size = %d", rep.Size)
	}
	if _, err := fit.CheckFile(filepath.Join(dir, "missing.fit")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file error = %v", err)
	}
}
