package fittest

import (
	"encoding/binary"

	"example.com/fitfaker/internal/fit"
)

// BaseTime is the timestamp of the first message in the canned activities.
const BaseTime uint32 = 1_000_000_000

// F shortens field definitions.
func F(num, size uint8, bt fit.BaseType) fit.FieldDef {
	return fit.FieldDef{Num: num, Size: size, BaseType: bt}
}

// B16 encodes v big-endian.
func B16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }

// B32 encodes v big-endian.
func B32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

// ZwiftRide is a file_id, one record with power 250 and heart rate 140, and a
// device_info, all stamped with the Zwift manufacturer code.
func ZwiftRide() *Builder {
	return New().
		Define(0, fit.MesgNumFileID,
			F(fit.FileIDType, 1, fit.BaseEnum),
			F(fit.FileIDManufacturer, 2, fit.BaseUint16),
			F(fit.FileIDProduct, 2, fit.BaseUint16),
			F(fit.FileIDTimeCreated, 4, fit.BaseUint32)).
		Data(0, U8(4), U16(fit.ManufacturerZwift), U16(1), U32(BaseTime)).
		Define(1, fit.MesgNumRecord,
			F(fit.FieldTimestamp, 4, fit.BaseUint32),
			F(fit.RecordHeartRate, 1, fit.BaseUint8),
			F(fit.RecordPower, 2, fit.BaseUint16)).
		Data(1, U32(BaseTime+10), U8(140), U16(250)).
		Define(2, fit.MesgNumDeviceInfo,
			F(fit.FieldTimestamp, 4, fit.BaseUint32),
			F(fit.DeviceInfoDeviceIndex, 1, fit.BaseUint8),
			F(fit.DeviceInfoManufacturer, 2, fit.BaseUint16),
			F(fit.DeviceInfoProduct, 2, fit.BaseUint16)).
		Data(2, U32(BaseTime+20), U8(0), U16(fit.ManufacturerZwift), U16(1))
}

// MesgNumVendor is a global message number outside the catalog.
const MesgNumVendor fit.MesgNum = 0xFF00

// RichActivity exercises the reader broadly: developer fields, local type
// reuse, compressed timestamps, a big-endian definition, component
// expansion, and a message kind the catalog does not know. It decodes to 14
// data messages.
func RichActivity() *Builder {
	b := New()
	b.Define(0, fit.MesgNumFileID,
		F(fit.FileIDType, 1, fit.BaseEnum),
		F(fit.FileIDManufacturer, 2, fit.BaseUint16),
		F(fit.FileIDProduct, 2, fit.BaseUint16),
		F(fit.FileIDSerialNumber, 4, fit.BaseUint32z),
		F(fit.FileIDTimeCreated, 4, fit.BaseUint32)).
		Data(0, U8(4), U16(fit.ManufacturerZwift), U16(1), U32(12345), U32(BaseTime))

	b.Define(1, fit.MesgNumDeveloperDataID,
		F(3, 1, fit.BaseUint8),
		F(1, 16, fit.BaseByte)).
		Data(1, U8(0), []byte("0123456789abcdef"))
	b.Define(2, fit.MesgNumFieldDescription,
		F(0, 1, fit.BaseUint8),
		F(1, 1, fit.BaseUint8),
		F(2, 1, fit.BaseUint8),
		F(3, 8, fit.BaseString)).
		Data(2, U8(0), U8(0), U8(uint8(fit.BaseUint16)), Str("smo2", 8))

	b.Define(3, fit.MesgNumDeviceInfo,
		F(fit.FieldTimestamp, 4, fit.BaseUint32),
		F(fit.DeviceInfoDeviceIndex, 1, fit.BaseUint8),
		F(fit.DeviceInfoManufacturer, 2, fit.BaseUint16),
		F(fit.DeviceInfoProduct, 2, fit.BaseUint16),
		F(fit.DeviceInfoProductName, 16, fit.BaseString)).
		Data(3, U32(BaseTime), U8(0), U16(fit.ManufacturerZwift), U16(1), Str("Zwift", 16)).
		Data(3, U32(BaseTime), U8(1), U16(32), U16(20), Str("KICKR", 16))

	b.Define(4, fit.MesgNumEvent,
		F(fit.FieldTimestamp, 4, fit.BaseUint32),
		F(0, 1, fit.BaseEnum),
		F(1, 1, fit.BaseEnum)).
		Data(4, U32(BaseTime), U8(0), U8(0))

	b.DefineDev(5, fit.MesgNumRecord,
		[]fit.FieldDef{
			F(fit.FieldTimestamp, 4, fit.BaseUint32),
			F(fit.RecordHeartRate, 1, fit.BaseUint8),
			F(fit.RecordPower, 2, fit.BaseUint16),
			F(fit.RecordSpeed, 2, fit.BaseUint16),
			F(fit.RecordAltitude, 2, fit.BaseUint16),
		},
		[]fit.DevFieldDef{{Num: 0, Size: 2, DevIndex: 0}}).
		Data(5, U32(BaseTime+1), U8(120), U16(180), U16(8000), U16(2600), U16(55))

	// local type 1 is reused for timestamp-less records.
	b.Define(1, fit.MesgNumRecord,
		F(fit.RecordHeartRate, 1, fit.BaseUint8),
		F(fit.RecordPower, 2, fit.BaseUint16),
		F(fit.RecordSpeed, 2, fit.BaseUint16)).
		Compressed(1, 3, U8(121), U16(185), U16(8100)).
		Compressed(1, 5, U8(122), U16(190), U16(8200))

	b.DefineBE(6, fit.MesgNumLap,
		F(fit.FieldTimestamp, 4, fit.BaseUint32),
		F(7, 4, fit.BaseUint32),
		F(13, 2, fit.BaseUint16),
		F(14, 2, fit.BaseUint16)).
		Data(6, B32(BaseTime+5), B32(5000), B16(8100), B16(8200))

	b.Define(7, MesgNumVendor,
		F(0, 3, fit.BaseByte)).
		Data(7, []byte{0xDE, 0xAD, 0x01})

	b.Define(8, fit.MesgNumSession,
		F(fit.FieldTimestamp, 4, fit.BaseUint32),
		F(5, 1, fit.BaseEnum),
		F(14, 2, fit.BaseUint16),
		F(15, 2, fit.BaseUint16)).
		Data(8, U32(BaseTime+6), U8(2), U16(8100), U16(8200))

	b.Define(9, fit.MesgNumActivity,
		F(fit.FieldTimestamp, 4, fit.BaseUint32),
		F(1, 2, fit.BaseUint16),
		F(2, 1, fit.BaseEnum)).
		Data(9, U32(BaseTime+7), U16(1), U8(0))

	// trailing record reuses local type 5 without redefining it.
	b.Data(5, U32(BaseTime+8), U8(123), U16(200), U16(8300), U16(2610), U16(56))
	return b
}

// RichActivityKinds is the message kind sequence RichActivity decodes to.
var RichActivityKinds = []fit.MesgNum{
	fit.MesgNumFileID,
	fit.MesgNumDeveloperDataID,
	fit.MesgNumFieldDescription,
	fit.MesgNumDeviceInfo,
	fit.MesgNumDeviceInfo,
	fit.MesgNumEvent,
	fit.MesgNumRecord,
	fit.MesgNumRecord,
	fit.MesgNumRecord,
	fit.MesgNumLap,
	MesgNumVendor,
	fit.MesgNumSession,
	fit.MesgNumActivity,
	fit.MesgNumRecord,
}
