// Package verify checks a converted FIT file against its source without
// sharing the encoder's code paths: the output CRC is recomputed with a
// separate table-driven implementation and message contents are compared by
// digest.
package verify

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/gzip"

	"example.com/fitfaker/internal/fit"
	"example.com/fitfaker/internal/rewrite"
)

// Report lists every discrepancy found between an input and its output.
type Report struct {
	Input          string   `json:"input"`
	Output         string   `json:"output"`
	InputMessages  int      `json:"inputMessages"`
	OutputMessages int      `json:"outputMessages"`
	Identity       int      `json:"identity"`
	DeclaredSize   uint32   `json:"declaredSize"`
	CRC            uint16   `json:"crc"`
	InputRecovered bool     `json:"inputRecovered"`
	Problems       []string `json:"problems,omitempty"`
}

// OK reports whether the output passed every check.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) addf(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// identityFields are the fields a conversion may change, per message kind.
var identityFields = map[fit.MesgNum]map[uint8]bool{
	fit.MesgNumFileID:     {fit.FileIDManufacturer: true, fit.FileIDProduct: true},
	fit.MesgNumDeviceInfo: {fit.DeviceInfoManufacturer: true, fit.DeviceInfoProduct: true, fit.DeviceInfoProductName: true},
}

// Compare decodes input and output and checks that the output carries target
// on every identity message, keeps the input's message order and contents
// otherwise, and has a consistent declared length and trailing CRC. An error
// is returned only when a file cannot be read or decoded; content mismatches
// are listed in the report.
func Compare(inputPath, outputPath string, target rewrite.Device) (*Report, error) {
	if target.ProductName == "" {
		return nil, fmt.Errorf("%w: manufacturer %d product %d", rewrite.ErrUnknownProduct, target.Manufacturer, target.Product)
	}
	rep := &Report{Input: inputPath, Output: outputPath}

	inData, err := load(inputPath)
	if err != nil {
		return nil, err
	}
	outData, err := load(outputPath)
	if err != nil {
		return nil, err
	}

	in, err := decode(inData, false)
	if errors.Is(err, fit.ErrRecoverableFraming) {
		rep.InputRecovered = true
		in, err = decode(inData, true)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inputPath, err)
	}
	checkContainer(rep, outData)
	out, err := decode(outData, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", outputPath, err)
	}
	rep.InputMessages = len(in)
	rep.OutputMessages = len(out)

	if len(in) != len(out) {
		rep.addf("message count: input %d, output %d", len(in), len(out))
	}
	n := len(in)
	if len(out) < n {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		a, b := in[i], out[i]
		if a.Kind != b.Kind {
			rep.addf("message %d: kind %s in input, %s in output", i, a.Kind.Name(), b.Kind.Name())
			continue
		}
		if digest(a) != digest(b) {
			rep.addf("message %d (%s): contents differ", i, a.Kind.Name())
		}
	}
	for i, m := range out {
		if checkIdentity(rep, i, m, target) {
			rep.Identity++
		}
	}
	return rep, nil
}

func checkIdentity(rep *Report, i int, m *fit.Message, target rewrite.Device) bool {
	switch v := fit.Narrow(m).(type) {
	case *fit.FileID:
		if code, ok := v.Manufacturer(); !ok || code != target.Manufacturer {
			rep.addf("message %d (file_id): manufacturer %s", i, valueOf(m, fit.FileIDManufacturer))
		}
		if code, ok := v.Product(); !ok || code != target.Product {
			rep.addf("message %d (file_id): product %s", i, valueOf(m, fit.FileIDProduct))
		}
	case *fit.DeviceInfo:
		if code, ok := v.Manufacturer(); !ok || code != target.Manufacturer {
			rep.addf("message %d (device_info): manufacturer %s", i, valueOf(m, fit.DeviceInfoManufacturer))
		}
		if code, ok := v.Product(); !ok || code != target.Product {
			rep.addf("message %d (device_info): product %s", i, valueOf(m, fit.DeviceInfoProduct))
		}
		if name, _ := v.ProductName(); name != target.ProductName {
			rep.addf("message %d (device_info): product_name %q", i, name)
		}
	default:
		return false
	}
	return true
}

func valueOf(m *fit.Message, num uint8) string {
	f := m.Field(num)
	if f == nil {
		return "missing"
	}
	return m.FormatValue(f)
}

// checkContainer validates the output's single-segment framing directly from
// the bytes.
func checkContainer(rep *Report, data []byte) {
	if len(data) < 14 {
		rep.addf("output: %d bytes is too short", len(data))
		return
	}
	hsize := int(data[0])
	if hsize != 12 && hsize != 14 {
		rep.addf("output: header size %d", hsize)
		return
	}
	if !bytes.Equal(data[8:12], []byte(".FIT")) {
		rep.addf("output: bad magic %q", data[8:12])
	}
	rep.DeclaredSize = binary.LittleEndian.Uint32(data[4:8])
	if want := len(data) - hsize - 2; int(rep.DeclaredSize) != want {
		rep.addf("output: declared data size %d, body is %d bytes", rep.DeclaredSize, want)
	}
	if hsize == 14 {
		if stored := binary.LittleEndian.Uint16(data[12:14]); stored != 0 && stored != crc16(data[:12]) {
			rep.addf("output: header CRC 0x%04X, computed 0x%04X", stored, crc16(data[:12]))
		}
	}
	rep.CRC = binary.LittleEndian.Uint16(data[len(data)-2:])
	if got := crc16(data[:len(data)-2]); got != rep.CRC {
		rep.addf("output: file CRC 0x%04X, computed 0x%04X", rep.CRC, got)
	}
}

// digest hashes the kind and the encoded fields of m, leaving out reader
// synthesized fields and the identity fields a conversion rewrites.
func digest(m *fit.Message) uint64 {
	skip := identityFields[m.Kind]
	h := xxhash.New()
	var hdr [4]byte
	binary.LittleEndian.PutUint16(hdr[:2], uint16(m.Kind))
	h.Write(hdr[:2])
	for _, f := range m.Fields {
		if f.Expanded || skip[f.Num] {
			continue
		}
		hdr[0], hdr[1] = f.Num, byte(f.BaseType)
		binary.LittleEndian.PutUint16(hdr[2:], uint16(len(f.Data)))
		h.Write(hdr[:])
		h.Write(f.Data)
	}
	for _, f := range m.DevFields {
		hdr[0], hdr[1] = f.Num, f.DevIndex
		binary.LittleEndian.PutUint16(hdr[2:], uint16(len(f.Data)))
		h.Write(hdr[:])
		h.Write(f.Data)
	}
	return h.Sum64()
}

func decode(data []byte, resync bool) ([]*fit.Message, error) {
	r := fit.NewReader(bytes.NewReader(data), int64(len(data)), fit.Options{Resync: resync})
	defer r.Close()
	return r.ReadAll()
}

// load reads path, inflating gzip content.
func load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer zr.Close()
	data, err = io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%s: gunzip: %w", path, err)
	}
	return data, nil
}
