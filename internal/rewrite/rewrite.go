// Package rewrite replaces device identity fields in decoded FIT messages.
package rewrite

import (
	"errors"
	"fmt"
	"strconv"

	"example.com/fitfaker/internal/fit"
)

// ErrUnknownProduct is returned when the target device has no display name.
var ErrUnknownProduct = errors.New("rewrite: target product has no known name")

// Target is the device every identity message is rewritten to. The display
// name written to device_info is never part of it; it is looked up from the
// product catalog.
type Target struct {
	Manufacturer uint16
	Product      uint16
}

// DefaultTarget is a Garmin Edge 830.
var DefaultTarget = Target{
	Manufacturer: fit.ManufacturerGarmin,
	Product:      fit.ProductEdge830,
}

// Device is a Target together with the product name resolved for it.
type Device struct {
	Target
	ProductName string
}

func (d Device) String() string {
	return fmt.Sprintf("%s %s", fit.ManufacturerName(d.Manufacturer), d.ProductName)
}

// Resolve looks up the display name of target in catalog.
func Resolve(target Target, catalog fit.ProductCatalog) (Device, error) {
	if catalog != nil {
		if name, ok := catalog.ProductName(target.Manufacturer, target.Product); ok && name != "" {
			return Device{Target: target, ProductName: name}, nil
		}
	}
	return Device{}, fmt.Errorf("%w: manufacturer %d product %d", ErrUnknownProduct, target.Manufacturer, target.Product)
}

// Change records one identity field whose value was altered.
type Change struct {
	Field  string
	Before string
	After  string
}

// Outcome reports what Rewrite did to a single message.
type Outcome struct {
	Identity bool
	Changes  []Change
}

// Modified reports whether any identity value changed.
func (o Outcome) Modified() bool {
	return len(o.Changes) > 0
}

// Rewriter applies a fixed device to identity messages. It holds no per-file
// state and is safe for concurrent use.
type Rewriter struct {
	device Device
}

// NewRewriter resolves the target's product name and returns a Rewriter.
func NewRewriter(target Target, catalog fit.ProductCatalog) (*Rewriter, error) {
	device, err := Resolve(target, catalog)
	if err != nil {
		return nil, err
	}
	return &Rewriter{device: device}, nil
}

// Device returns the resolved target.
func (r *Rewriter) Device() Device {
	return r.device
}

// Rewrite sets the identity fields of file_id and device_info messages to
// the target. Other messages are left untouched.
func (r *Rewriter) Rewrite(m *fit.Message) Outcome {
	switch v := fit.Narrow(m).(type) {
	case *fit.FileID:
		out := Outcome{Identity: true}
		r.setUint(m, &out, fit.FileIDManufacturer, r.device.Manufacturer, v.SetManufacturer)
		r.setUint(m, &out, fit.FileIDProduct, r.device.Product, v.SetProduct)
		return out
	case *fit.DeviceInfo:
		out := Outcome{Identity: true}
		r.setUint(m, &out, fit.DeviceInfoManufacturer, r.device.Manufacturer, v.SetManufacturer)
		r.setUint(m, &out, fit.DeviceInfoProduct, r.device.Product, v.SetProduct)
		before, had := v.ProductName()
		if !had || before != r.device.ProductName {
			v.SetProductName(r.device.ProductName)
			out.Changes = append(out.Changes, Change{
				Field:  fit.FieldName(m.Kind, fit.DeviceInfoProductName),
				Before: quoteOrEmpty(before, had),
				After:  strconv.Quote(r.device.ProductName),
			})
		}
		return out
	default:
		return Outcome{}
	}
}

func (r *Rewriter) setUint(m *fit.Message, out *Outcome, num uint8, want uint16, set func(uint16)) {
	before, had := m.Uint(num)
	if had && before == uint64(want) {
		return
	}
	prev := ""
	if had {
		prev = strconv.FormatUint(before, 10)
	} else if f := m.Field(num); f != nil {
		prev = m.FormatValue(f)
	}
	set(want)
	out.Changes = append(out.Changes, Change{
		Field:  fit.FieldName(m.Kind, num),
		Before: prev,
		After:  strconv.Itoa(int(want)),
	})
}

func quoteOrEmpty(s string, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.Quote(s)
}

// StripExpanded removes every field the decoder synthesized and returns how
// many were removed. It applies to all message kinds.
func StripExpanded(m *fit.Message) int {
	kept := m.Fields[:0]
	removed := 0
	for _, f := range m.Fields {
		if f.Expanded {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	for i := len(kept); i < len(m.Fields); i++ {
		m.Fields[i] = fit.Field{}
	}
	m.Fields = kept
	return removed
}
