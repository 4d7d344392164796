package fit

import (
	"bytes"
	"fmt"
	"strings"
)

// Field returns the field with the given number, or nil.
func (m *Message) Field(num uint8) *Field {
	if m == nil {
		return nil
	}
	for i := range m.Fields {
		if m.Fields[i].Num == num {
			return &m.Fields[i]
		}
	}
	return nil
}

// Uint decodes an integer field. The boolean is false when the field is
// missing, is not a scalar integer, or holds the base type's invalid value.
func (m *Message) Uint(num uint8) (uint64, bool) {
	f := m.Field(num)
	if f == nil || !f.BaseType.isInteger() {
		return 0, false
	}
	if len(f.Data) != f.BaseType.Size() {
		return 0, false
	}
	v, ok := decodeUint(byteOrder(m.Arch), f.Data)
	if !ok || v == f.BaseType.invalidUint() {
		return 0, false
	}
	return v, true
}

// Int decodes a signed integer field.
func (m *Message) Int(num uint8) (int64, bool) {
	f := m.Field(num)
	if f == nil {
		return 0, false
	}
	v, ok := m.Uint(num)
	if !ok {
		return 0, false
	}
	switch f.BaseType {
	case BaseSint8:
		return int64(int8(v)), true
	case BaseSint16:
		return int64(int16(v)), true
	case BaseSint32:
		return int64(int32(v)), true
	case BaseSint64:
		return int64(v), true
	}
	return int64(v), true
}

// String decodes a null-terminated string field.
func (m *Message) String(num uint8) (string, bool) {
	f := m.Field(num)
	if f == nil || f.BaseType != BaseString {
		return "", false
	}
	data := f.Data
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	if len(data) == 0 {
		return "", false
	}
	return string(data), true
}

// SetUint stores v in field num. An existing field keeps its base type when it
// is an integer at least as wide as bt that can hold v; otherwise the field is
// (re)created with bt.
func (m *Message) SetUint(num uint8, bt BaseType, v uint64) {
	order := byteOrder(m.Arch)
	if f := m.Field(num); f != nil {
		n := len(f.Data)
		if f.BaseType.isInteger() && n == f.BaseType.Size() && n >= bt.Size() && fitsUint(n, v) {
			f.Data = encodeUint(order, len(f.Data), v)
		} else {
			f.BaseType = bt
			f.Data = encodeUint(order, bt.Size(), v)
		}
		f.Expanded = false
		return
	}
	m.Fields = append(m.Fields, Field{Num: num, BaseType: bt, Data: encodeUint(order, bt.Size(), v)})
}

// SetString stores s as a null-terminated string in field num.
func (m *Message) SetString(num uint8, s string) {
	data := make([]byte, len(s)+1)
	copy(data, s)
	if f := m.Field(num); f != nil {
		f.BaseType = BaseString
		f.Data = data
		f.Expanded = false
		return
	}
	m.Fields = append(m.Fields, Field{Num: num, BaseType: BaseString, Data: data})
}

// RemoveField deletes field num and reports whether it was present.
func (m *Message) RemoveField(num uint8) bool {
	for i := range m.Fields {
		if m.Fields[i].Num == num {
			m.Fields = append(m.Fields[:i], m.Fields[i+1:]...)
			return true
		}
	}
	return false
}

// Definition derives the layout needed to encode m as it currently stands.
func (m *Message) Definition() *Definition {
	def := &Definition{
		LocalType: m.LocalType,
		Arch:      m.Arch,
		Kind:      m.Kind,
		Fields:    make([]FieldDef, 0, len(m.Fields)),
	}
	for _, f := range m.Fields {
		def.Fields = append(def.Fields, FieldDef{Num: f.Num, Size: uint8(len(f.Data)), BaseType: f.BaseType})
	}
	if len(m.DevFields) > 0 {
		def.DevFields = make([]DevFieldDef, 0, len(m.DevFields))
		for _, f := range m.DevFields {
			def.DevFields = append(def.DevFields, DevFieldDef{Num: f.Num, Size: uint8(len(f.Data)), DevIndex: f.DevIndex})
		}
	}
	return def
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	out := *m
	out.Fields = make([]Field, len(m.Fields))
	for i, f := range m.Fields {
		f.Data = append([]byte(nil), f.Data...)
		out.Fields[i] = f
	}
	if m.DevFields != nil {
		out.DevFields = make([]DevField, len(m.DevFields))
		for i, f := range m.DevFields {
			f.Data = append([]byte(nil), f.Data...)
			out.DevFields[i] = f
		}
	}
	return &out
}

// FormatValue renders a field for human consumption.
func (m *Message) FormatValue(f *Field) string {
	if f == nil {
		return ""
	}
	switch {
	case f.BaseType == BaseString:
		data := f.Data
		if i := bytes.IndexByte(data, 0); i >= 0 {
			data = data[:i]
		}
		return fmt.Sprintf("%q", string(data))
	case f.BaseType.isInteger() && len(f.Data) == f.BaseType.Size():
		v, _ := decodeUint(byteOrder(m.Arch), f.Data)
		if v == f.BaseType.invalidUint() {
			return "invalid"
		}
		if f.BaseType.isSigned() {
			n, _ := m.Int(f.Num)
			return fmt.Sprintf("%d", n)
		}
		return fmt.Sprintf("%d", v)
	default:
		parts := make([]string, len(f.Data))
		for i, b := range f.Data {
			parts[i] = fmt.Sprintf("%02X", b)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
}
