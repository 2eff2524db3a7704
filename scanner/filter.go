package scanner

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/srg/blescan/internal/bleuuid"
)

var addressPattern = regexp.MustCompile(`^[0-9A-F]{2}(:[0-9A-F]{2}){5}$`)

// Filter selects discovery events by device address, name, service UUID,
// service data or manufacturer data. Every configured criterion must match.
type Filter struct {
	address *string
	name    *string

	serviceUUID     *uuid.UUID
	serviceUUIDMask *uuid.UUID

	serviceDataUUID     *uuid.UUID
	serviceDataUUIDMask *uuid.UUID
	serviceData         []byte
	serviceDataMask     []byte

	manufacturerID       int
	manufacturerData     []byte
	manufacturerDataMask []byte
}

// FilterOption configures a Filter in NewFilter.
type FilterOption func(*Filter) error

// NewFilter builds an immutable Filter. A zero-option filter matches every event.
func NewFilter(opts ...FilterOption) (*Filter, error) {
	f := &Filter{manufacturerID: -1}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// MustFilter is NewFilter that panics on error. Intended for tests and static tables.
func MustFilter(opts ...FilterOption) *Filter {
	f, err := NewFilter(opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// WithDeviceAddress matches a device address such as "01:02:03:04:05:AB".
// Hex digits must be upper case.
func WithDeviceAddress(addr string) FilterOption {
	return func(f *Filter) error {
		if !addressPattern.MatchString(addr) {
			return &FilterError{Field: "device address", Msg: fmt.Sprintf("invalid address %q", addr)}
		}
		f.address = &addr
		return nil
	}
}

// WithDeviceName matches the advertised local name exactly.
func WithDeviceName(name string) FilterOption {
	return func(f *Filter) error {
		f.name = &name
		return nil
	}
}

// WithServiceUUID matches records advertising u.
func WithServiceUUID(u uuid.UUID) FilterOption {
	return func(f *Filter) error {
		f.serviceUUID = &u
		f.serviceUUIDMask = nil
		return nil
	}
}

// WithServiceUUIDMask matches records advertising a UUID that agrees with u
// on every bit set in mask.
func WithServiceUUIDMask(u, mask uuid.UUID) FilterOption {
	return func(f *Filter) error {
		f.serviceUUID = &u
		f.serviceUUIDMask = &mask
		return nil
	}
}

// WithServiceData matches service data for u whose prefix equals data.
// A nil data matches any service data advertised for u. mask is optional
// and, when given, must be as long as data.
func WithServiceData(u uuid.UUID, data []byte, mask ...byte) FilterOption {
	return func(f *Filter) error {
		return f.setServiceData(u, nil, data, mask)
	}
}

// WithServiceDataUUIDMask is WithServiceData where the service data UUID
// itself is compared under uuidMask.
func WithServiceDataUUIDMask(u, uuidMask uuid.UUID, data []byte, mask ...byte) FilterOption {
	return func(f *Filter) error {
		return f.setServiceData(u, &uuidMask, data, mask)
	}
}

// WithManufacturerData matches manufacturer specific data for id whose
// prefix equals data. A nil data matches any data advertised by id.
func WithManufacturerData(id int, data []byte, mask ...byte) FilterOption {
	return func(f *Filter) error {
		if id < 0 || id > 0xFFFF {
			return &FilterError{Field: "manufacturer id", Msg: fmt.Sprintf("%d is out of range", id)}
		}
		if err := checkMask("manufacturer data", data, mask); err != nil {
			return err
		}
		f.manufacturerID = id
		f.manufacturerData = bytes.Clone(data)
		f.manufacturerDataMask = cloneMask(mask)
		return nil
	}
}

func (f *Filter) setServiceData(u uuid.UUID, uuidMask *uuid.UUID, data, mask []byte) error {
	if err := checkMask("service data", data, mask); err != nil {
		return err
	}
	f.serviceDataUUID = &u
	f.serviceDataUUIDMask = uuidMask
	f.serviceData = bytes.Clone(data)
	f.serviceDataMask = cloneMask(mask)
	return nil
}

func checkMask(field string, data, mask []byte) error {
	if len(mask) == 0 {
		return nil
	}
	if data == nil {
		return &FilterError{Field: field, Msg: "mask given without data"}
	}
	if len(mask) != len(data) {
		return &FilterError{Field: field, Msg: fmt.Sprintf("mask length %d does not match data length %d", len(mask), len(data))}
	}
	return nil
}

func cloneMask(mask []byte) []byte {
	if len(mask) == 0 {
		return nil
	}
	return bytes.Clone(mask)
}

// Matches reports whether ev satisfies every criterion of f.
func (f *Filter) Matches(ev DiscoveryEvent) bool {
	if f.address != nil && *f.address != ev.Address {
		return false
	}

	rec := ev.Record
	if rec == nil {
		return !f.needsRecord()
	}

	if f.name != nil {
		name, ok := rec.LocalName()
		if !ok || name != *f.name {
			return false
		}
	}

	if f.serviceUUID != nil && !f.matchesServiceUUIDs(rec.ServiceUUIDs()) {
		return false
	}

	if f.serviceDataUUID != nil && !f.matchesServiceData(rec.ServiceData()) {
		return false
	}

	if f.manufacturerID >= 0 {
		data, ok := rec.ManufacturerDataFor(uint16(f.manufacturerID))
		if !ok || !matchesPartialData(f.manufacturerData, f.manufacturerDataMask, data) {
			return false
		}
	}

	return true
}

func (f *Filter) needsRecord() bool {
	return f.name != nil || f.serviceUUID != nil || f.serviceDataUUID != nil || f.manufacturerID >= 0
}

func (f *Filter) matchesServiceUUIDs(uuids []uuid.UUID) bool {
	for _, u := range uuids {
		if f.serviceUUIDMask == nil {
			if u == *f.serviceUUID {
				return true
			}
		} else if bleuuid.MaskedEqual(*f.serviceUUID, u, *f.serviceUUIDMask) {
			return true
		}
	}
	return false
}

func (f *Filter) matchesServiceData(serviceData map[uuid.UUID][]byte) bool {
	if f.serviceDataUUIDMask == nil {
		data, ok := serviceData[*f.serviceDataUUID]
		return ok && matchesPartialData(f.serviceData, f.serviceDataMask, data)
	}
	for u, data := range serviceData {
		if bleuuid.MaskedEqual(*f.serviceDataUUID, u, *f.serviceDataUUIDMask) &&
			matchesPartialData(f.serviceData, f.serviceDataMask, data) {
			return true
		}
	}
	return false
}

// matchesPartialData is a masked prefix comparison. A nil pattern accepts
// any candidate. The caller has already established that a candidate exists.
func matchesPartialData(pattern, mask, candidate []byte) bool {
	if pattern == nil {
		return true
	}
	if len(candidate) < len(pattern) {
		return false
	}
	for i := range pattern {
		if mask == nil {
			if candidate[i] != pattern[i] {
				return false
			}
		} else if candidate[i]&mask[i] != pattern[i]&mask[i] {
			return false
		}
	}
	return true
}

func (f *Filter) String() string {
	var parts []string
	if f.address != nil {
		parts = append(parts, "address="+*f.address)
	}
	if f.name != nil {
		parts = append(parts, fmt.Sprintf("name=%q", *f.name))
	}
	if f.serviceUUID != nil {
		s := "service=" + bleuuid.Shorten(*f.serviceUUID)
		if f.serviceUUIDMask != nil {
			s += "/" + f.serviceUUIDMask.String()
		}
		parts = append(parts, s)
	}
	if f.serviceDataUUID != nil {
		parts = append(parts, fmt.Sprintf("serviceData=%s:%x/%x", bleuuid.Shorten(*f.serviceDataUUID), f.serviceData, f.serviceDataMask))
	}
	if f.manufacturerID >= 0 {
		parts = append(parts, fmt.Sprintf("manufacturer=%04x:%x/%x", f.manufacturerID, f.manufacturerData, f.manufacturerDataMask))
	}
	return "Filter{" + strings.Join(parts, " ") + "}"
}

// Filters is a filter set. It matches an event when it is empty or when any
// member matches.
type Filters []*Filter

// Match reports whether ev passes the filter set.
func (fs Filters) Match(ev DiscoveryEvent) bool {
	if len(fs) == 0 {
		return true
	}
	for _, f := range fs {
		if f != nil && f.Matches(ev) {
			return true
		}
	}
	return false
}
