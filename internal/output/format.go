package output

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/srg/blescan/internal/advertisement"
	"github.com/srg/blescan/internal/bledb"
	"github.com/srg/blescan/internal/bleuuid"
	"github.com/srg/blescan/scanner"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Formatter renders a notification. The returned text includes the
// trailing newline.
type Formatter interface {
	Format(n Notification) (string, error)
}

// Format names accepted by NewFormatter.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// NewFormatter returns the formatter called name. Color only affects text.
func NewFormatter(name string, useColor bool) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", FormatText:
		return NewTextFormatter(useColor), nil
	case FormatJSON:
		return JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("invalid format '%s': must be one of [%s %s]", name, FormatText, FormatJSON)
	}
}

// TextFormatter prints one line per device, prefixed with the time and the
// subscription name.
type TextFormatter struct {
	found   *color.Color
	lost    *color.Color
	batch   *color.Color
	failure *color.Color
	dim     *color.Color
}

func NewTextFormatter(useColor bool) *TextFormatter {
	f := &TextFormatter{
		found:   color.New(color.FgGreen, color.Bold),
		lost:    color.New(color.FgYellow),
		batch:   color.New(color.FgCyan),
		failure: color.New(color.FgRed, color.Bold),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{f.found, f.lost, f.batch, f.failure, f.dim} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return f
}

func (f *TextFormatter) Format(n Notification) (string, error) {
	var sb strings.Builder
	prefix := f.dim.Sprintf("%s [%s]", n.Time.Format("15:04:05.000"), n.Subscription)

	switch n.Kind {
	case KindFailed:
		fmt.Fprintf(&sb, "%s %s %s\n", prefix, f.failure.Sprint("FAILED"), n.ErrorCode)
	case KindBatch:
		fmt.Fprintf(&sb, "%s %s %d device(s)\n", prefix, f.batch.Sprint("BATCH"), len(n.Events))
		for _, ev := range n.Events {
			fmt.Fprintf(&sb, "  %s\n", describeEvent(ev))
		}
	case KindDiscovered:
		label := f.labelFor(n.CallbackType)
		for _, ev := range n.Events {
			fmt.Fprintf(&sb, "%s %s %s\n", prefix, label, describeEvent(ev))
		}
	default:
		return "", fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	return sb.String(), nil
}

func (f *TextFormatter) labelFor(ct scanner.CallbackType) string {
	switch ct {
	case scanner.CallbackFirstMatch:
		return f.found.Sprint("FOUND")
	case scanner.CallbackMatchLost:
		return f.lost.Sprint("LOST")
	default:
		return "SEEN"
	}
}

func describeEvent(ev scanner.DiscoveryEvent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s rssi=%d", ev.Address, ev.RSSI)
	if ev.Record == nil {
		return sb.String()
	}
	if name, ok := ev.Record.LocalName(); ok {
		fmt.Fprintf(&sb, " name=%q", name)
	}
	if uuids := ev.Record.ServiceUUIDs(); len(uuids) > 0 {
		fmt.Fprintf(&sb, " services=%s", strings.Join(serviceLabels(uuids), ","))
	}
	for _, md := range manufacturerEntries(ev.Record) {
		if md.parsed != nil {
			fmt.Fprintf(&sb, " %s", md.parsed)
		} else {
			fmt.Fprintf(&sb, " mfr=%04x:%x", md.id, md.data)
		}
	}
	return sb.String()
}

// JSONFormatter prints one JSON object per line with a stable key order.
type JSONFormatter struct{}

func (JSONFormatter) Format(n Notification) (string, error) {
	obj := orderedmap.New[string, any]()
	obj.Set("time", n.Time.Format(time.RFC3339Nano))
	obj.Set("subscription", n.Subscription)
	obj.Set("kind", string(n.Kind))

	switch n.Kind {
	case KindFailed:
		obj.Set("error", n.ErrorCode.String())
		obj.Set("error_code", int(n.ErrorCode))
	case KindDiscovered:
		obj.Set("callback_type", n.CallbackType.String())
		fallthrough
	case KindBatch:
		events := make([]any, len(n.Events))
		for i, ev := range n.Events {
			events[i] = EventFields(ev)
		}
		obj.Set("events", events)
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("failed to encode notification: %w", err)
	}
	return string(b) + "\n", nil
}

// EventFields lays out a discovery event for JSON output.
func EventFields(ev scanner.DiscoveryEvent) *orderedmap.OrderedMap[string, any] {
	obj := orderedmap.New[string, any]()
	obj.Set("address", ev.Address)
	obj.Set("rssi", ev.RSSI)
	obj.Set("timestamp", ev.Timestamp.Format(time.RFC3339Nano))
	if ev.Record != nil {
		obj.Set("record", RecordFields(ev.Record))
	}
	return obj
}

// RecordFields lays out a decoded advertisement for JSON output. Absent
// fields are omitted; map-valued fields are sorted by key.
func RecordFields(rec *advertisement.Record) *orderedmap.OrderedMap[string, any] {
	obj := orderedmap.New[string, any]()
	if flags := rec.Flags(); flags != advertisement.FlagsAbsent {
		obj.Set("flags", flags)
	}
	if name, ok := rec.LocalName(); ok {
		obj.Set("name", name)
	}
	if rec.HasTxPowerLevel() {
		obj.Set("tx_power", rec.TxPowerLevel())
	}

	if uuids := rec.ServiceUUIDs(); len(uuids) > 0 {
		services := make([]any, len(uuids))
		for i, u := range uuids {
			services[i] = uuidFields(bleuuid.Shorten(u), bledb.ServiceName(u))
		}
		obj.Set("services", services)
	}

	if sd := rec.ServiceData(); len(sd) > 0 {
		keys := make([]string, 0, len(sd))
		byKey := make(map[string][]byte, len(sd))
		for u, data := range sd {
			k := bleuuid.Shorten(u)
			keys = append(keys, k)
			byKey[k] = data
		}
		sort.Strings(keys)
		data := orderedmap.New[string, any]()
		for _, k := range keys {
			data.Set(k, hex.EncodeToString(byKey[k]))
		}
		obj.Set("service_data", data)
	}

	if entries := manufacturerEntries(rec); len(entries) > 0 {
		mfr := make([]any, len(entries))
		for i, md := range entries {
			m := orderedmap.New[string, any]()
			m.Set("company_id", fmt.Sprintf("0x%04X", md.id))
			if vendor := bledb.LookupVendor(md.id); vendor != "" {
				m.Set("vendor", vendor)
			}
			m.Set("data", hex.EncodeToString(md.data))
			if md.parsed != nil {
				m.Set("parsed", md.parsed.String())
			}
			if md.err != nil {
				m.Set("parse_error", md.err.Error())
			}
			mfr[i] = m
		}
		obj.Set("manufacturer_data", mfr)
	}

	obj.Set("raw", hex.EncodeToString(rec.Bytes()))
	return obj
}

func uuidFields(short, name string) *orderedmap.OrderedMap[string, any] {
	m := orderedmap.New[string, any]()
	m.Set("uuid", short)
	if name != "" {
		m.Set("name", name)
	}
	return m
}

type manufacturerEntry struct {
	id     uint16
	data   []byte
	parsed fmt.Stringer
	err    error
}

func manufacturerEntries(rec *advertisement.Record) []manufacturerEntry {
	md := rec.ManufacturerData()
	ids := make([]int, 0, len(md))
	for id := range md {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	entries := make([]manufacturerEntry, 0, len(ids))
	for _, id := range ids {
		e := manufacturerEntry{id: uint16(id), data: md[uint16(id)]}
		parsed, err := advertisement.ParseManufacturerData(e.id, e.data)
		if s, ok := parsed.(fmt.Stringer); ok {
			e.parsed = s
		}
		e.err = err
		entries = append(entries, e)
	}
	return entries
}
