package fit

import (
	"fmt"
	"sort"
	"strings"
)

// Field numbers used across the codebase.
const (
	FieldTimestamp    uint8 = 253
	FieldMessageIndex uint8 = 254

	FileIDType         uint8 = 0
	FileIDManufacturer uint8 = 1
	FileIDProduct      uint8 = 2
	FileIDSerialNumber uint8 = 3
	FileIDTimeCreated  uint8 = 4
	FileIDProductName  uint8 = 8

	DeviceInfoDeviceIndex     uint8 = 0
	DeviceInfoDeviceType      uint8 = 1
	DeviceInfoManufacturer    uint8 = 2
	DeviceInfoSerialNumber    uint8 = 3
	DeviceInfoProduct         uint8 = 4
	DeviceInfoSoftwareVersion uint8 = 5
	DeviceInfoBatteryStatus   uint8 = 11
	DeviceInfoProductName     uint8 = 27

	RecordAltitude         uint8 = 2
	RecordHeartRate        uint8 = 3
	RecordCadence          uint8 = 4
	RecordDistance         uint8 = 5
	RecordSpeed            uint8 = 6
	RecordPower            uint8 = 7
	RecordEnhancedSpeed    uint8 = 73
	RecordEnhancedAltitude uint8 = 78
)

// Manufacturer codes.
const (
	ManufacturerGarmin      uint16 = 1
	ManufacturerDevelopment uint16 = 255
	ManufacturerZwift       uint16 = 260
)

// Garmin product codes.
const (
	ProductEdge1030 uint16 = 2713
	ProductEdge130  uint16 = 2909
	ProductEdge530  uint16 = 3121
	ProductEdge830  uint16 = 3122
	ProductEdge1040 uint16 = 3843
)

type mesgProfile struct {
	name   string
	fields map[uint8]string
}

var profiles = map[MesgNum]mesgProfile{
	MesgNumFileID: {name: "file_id", fields: map[uint8]string{
		0: "type", 1: "manufacturer", 2: "product", 3: "serial_number",
		4: "time_created", 5: "number", 8: "product_name",
	}},
	MesgNumFileCreator: {name: "file_creator", fields: map[uint8]string{
		0: "software_version", 1: "hardware_version",
	}},
	MesgNumDeviceSettings: {name: "device_settings"},
	MesgNumUserProfile:    {name: "user_profile"},
	MesgNumZonesTarget:    {name: "zones_target"},
	MesgNumSport:          {name: "sport"},
	MesgNumCapabilities:   {name: "capabilities"},
	MesgNumWorkout:        {name: "workout"},
	MesgNumHRV:            {name: "hrv"},
	MesgNumDeviceInfo: {name: "device_info", fields: map[uint8]string{
		253: "timestamp", 0: "device_index", 1: "device_type", 2: "manufacturer",
		3: "serial_number", 4: "product", 5: "software_version", 6: "hardware_version",
		7: "cum_operating_time", 10: "battery_voltage", 11: "battery_status",
		18: "sensor_position", 19: "descriptor", 20: "ant_transmission_type",
		21: "ant_device_number", 22: "ant_network", 25: "source_type",
		27: "product_name", 32: "battery_level",
	}},
	MesgNumRecord: {name: "record", fields: map[uint8]string{
		253: "timestamp", 0: "position_lat", 1: "position_long", 2: "altitude",
		3: "heart_rate", 4: "cadence", 5: "distance", 6: "speed", 7: "power",
		13: "temperature", 29: "accumulated_power", 53: "fractional_cadence",
		73: "enhanced_speed", 78: "enhanced_altitude",
	}},
	MesgNumEvent: {name: "event", fields: map[uint8]string{
		253: "timestamp", 0: "event", 1: "event_type", 3: "data", 4: "event_group",
	}},
	MesgNumLap: {name: "lap", fields: map[uint8]string{
		253: "timestamp", 254: "message_index", 2: "start_time",
		7: "total_elapsed_time", 8: "total_timer_time", 9: "total_distance",
		13: "avg_speed", 14: "max_speed", 19: "avg_power", 20: "max_power",
		110: "enhanced_avg_speed", 111: "enhanced_max_speed",
	}},
	MesgNumSession: {name: "session", fields: map[uint8]string{
		253: "timestamp", 254: "message_index", 2: "start_time", 5: "sport",
		6: "sub_sport", 7: "total_elapsed_time", 8: "total_timer_time",
		9: "total_distance", 14: "avg_speed", 15: "max_speed",
		16: "avg_heart_rate", 17: "max_heart_rate", 20: "avg_power",
		21: "max_power", 124: "enhanced_avg_speed", 125: "enhanced_max_speed",
	}},
	MesgNumActivity: {name: "activity", fields: map[uint8]string{
		253: "timestamp", 0: "total_timer_time", 1: "num_sessions", 2: "type",
		3: "event", 4: "event_type", 5: "local_timestamp",
	}},
	MesgNumDeveloperDataID: {name: "developer_data_id", fields: map[uint8]string{
		0: "developer_id", 1: "application_id", 2: "manufacturer_id",
		3: "developer_data_index", 4: "application_version",
	}},
	MesgNumFieldDescription: {name: "field_description", fields: map[uint8]string{
		0: "developer_data_index", 1: "field_definition_number",
		2: "fit_base_type_id", 3: "field_name", 8: "units",
	}},
}

// Name returns the profile name of a message number.
func (n MesgNum) Name() string {
	if p, ok := profiles[n]; ok {
		return p.name
	}
	return fmt.Sprintf("unknown_%d", uint16(n))
}

// Known reports whether the message number is in the catalog.
func (n MesgNum) Known() bool {
	_, ok := profiles[n]
	return ok
}

// FieldName returns the profile name of field num in message kind.
func FieldName(kind MesgNum, num uint8) string {
	if p, ok := profiles[kind]; ok {
		if name, ok := p.fields[num]; ok {
			return name
		}
	}
	if num == FieldTimestamp {
		return "timestamp"
	}
	return fmt.Sprintf("field_%d", num)
}

// component describes a field the reader synthesizes from another field when
// decoding. The copy is value-preserving; only the width changes.
type component struct {
	src      uint8
	dst      uint8
	dstType  BaseType
	onlyKind MesgNum
}

var components = []component{
	{onlyKind: MesgNumRecord, src: RecordSpeed, dst: RecordEnhancedSpeed, dstType: BaseUint32},
	{onlyKind: MesgNumRecord, src: RecordAltitude, dst: RecordEnhancedAltitude, dstType: BaseUint32},
	{onlyKind: MesgNumLap, src: 13, dst: 110, dstType: BaseUint32},
	{onlyKind: MesgNumLap, src: 14, dst: 111, dstType: BaseUint32},
	{onlyKind: MesgNumSession, src: 14, dst: 124, dstType: BaseUint32},
	{onlyKind: MesgNumSession, src: 15, dst: 125, dstType: BaseUint32},
}

var manufacturerNames = map[uint16]string{
	ManufacturerGarmin:      "garmin",
	15:                      "dynastream",
	23:                      "suunto",
	32:                      "wahoo_fitness",
	40:                      "concept2",
	69:                      "stages_cycling",
	89:                      "tacx",
	123:                     "polar_electro",
	ManufacturerDevelopment: "development",
	ManufacturerZwift:       "zwift",
	265:                     "strava",
	289:                     "hammerhead",
	294:                     "coros",
}

// ManufacturerName returns the profile name of a manufacturer code.
func ManufacturerName(code uint16) string {
	if name, ok := manufacturerNames[code]; ok {
		return name
	}
	return fmt.Sprintf("manufacturer_%d", code)
}

// LookupManufacturer resolves a manufacturer by profile name.
func LookupManufacturer(name string) (uint16, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for code, n := range manufacturerNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

// ProductCatalog resolves display names for (manufacturer, product) pairs.
type ProductCatalog interface {
	ProductName(manufacturer, product uint16) (string, bool)
}

// ProductKey identifies a product within a manufacturer.
type ProductKey struct {
	Manufacturer uint16
	Product      uint16
}

// ProductTable is a ProductCatalog backed by a map.
type ProductTable map[ProductKey]string

func (t ProductTable) ProductName(manufacturer, product uint16) (string, bool) {
	name, ok := t[ProductKey{Manufacturer: manufacturer, Product: product}]
	return name, ok && name != ""
}

// With returns a copy of t extended with extra entries.
func (t ProductTable) With(extra map[ProductKey]string) ProductTable {
	out := make(ProductTable, len(t)+len(extra))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Keys returns the table keys in manufacturer, product order.
func (t ProductTable) Keys() []ProductKey {
	keys := make([]ProductKey, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Manufacturer == keys[j].Manufacturer {
			return keys[i].Product < keys[j].Product
		}
		return keys[i].Manufacturer < keys[j].Manufacturer
	})
	return keys
}

// DefaultProducts holds the devices the rewriter can impersonate out of the box.
var DefaultProducts = ProductTable{
	{ManufacturerGarmin, ProductEdge1030}: "Edge 1030",
	{ManufacturerGarmin, ProductEdge130}:  "Edge 130",
	{ManufacturerGarmin, ProductEdge530}:  "Edge 530",
	{ManufacturerGarmin, ProductEdge830}:  "Edge 830",
	{ManufacturerGarmin, ProductEdge1040}: "Edge 1040",
}
