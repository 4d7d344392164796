package fit

// Variant is the narrowed view of a decoded message. Callers switch on the
// concrete type instead of comparing global message numbers.
type Variant interface {
	Message() *Message
	isVariant()
}

// FileID wraps a file_id message.
type FileID struct{ m *Message }

// DeviceInfo wraps a device_info message.
type DeviceInfo struct{ m *Message }

// Other wraps every message kind without identity semantics.
type Other struct{ m *Message }

func (v *FileID) Message() *Message     { return v.m }
func (v *DeviceInfo) Message() *Message { return v.m }
func (v *Other) Message() *Message      { return v.m }

func (*FileID) isVariant()     {}
func (*DeviceInfo) isVariant() {}
func (*Other) isVariant()      {}

// Narrow returns the variant matching m's global message number.
func Narrow(m *Message) Variant {
	switch m.Kind {
	case MesgNumFileID:
		return &FileID{m: m}
	case MesgNumDeviceInfo:
		return &DeviceInfo{m: m}
	default:
		return &Other{m: m}
	}
}

// IsIdentity reports whether m carries device identity fields.
func IsIdentity(m *Message) bool {
	return m.Kind == MesgNumFileID || m.Kind == MesgNumDeviceInfo
}

func (v *FileID) Manufacturer() (uint16, bool) {
	n, ok := v.m.Uint(FileIDManufacturer)
	return uint16(n), ok
}

func (v *FileID) Product() (uint16, bool) {
	n, ok := v.m.Uint(FileIDProduct)
	return uint16(n), ok
}

func (v *FileID) SetManufacturer(code uint16) {
	v.m.SetUint(FileIDManufacturer, BaseUint16, uint64(code))
}

func (v *FileID) SetProduct(code uint16) {
	v.m.SetUint(FileIDProduct, BaseUint16, uint64(code))
}

func (v *DeviceInfo) Manufacturer() (uint16, bool) {
	n, ok := v.m.Uint(DeviceInfoManufacturer)
	return uint16(n), ok
}

func (v *DeviceInfo) Product() (uint16, bool) {
	n, ok := v.m.Uint(DeviceInfoProduct)
	return uint16(n), ok
}

func (v *DeviceInfo) ProductName() (string, bool) {
	return v.m.String(DeviceInfoProductName)
}

func (v *DeviceInfo) DeviceIndex() (uint8, bool) {
	n, ok := v.m.Uint(DeviceInfoDeviceIndex)
	return uint8(n), ok
}

func (v *DeviceInfo) SetManufacturer(code uint16) {
	v.m.SetUint(DeviceInfoManufacturer, BaseUint16, uint64(code))
}

func (v *DeviceInfo) SetProduct(code uint16) {
	v.m.SetUint(DeviceInfoProduct, BaseUint16, uint64(code))
}

func (v *DeviceInfo) SetProductName(name string) {
	v.m.SetString(DeviceInfoProductName, name)
}
