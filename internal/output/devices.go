package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/google/uuid"
	"github.com/srg/blescan/internal/bledb"
	"github.com/srg/blescan/internal/bleuuid"
	"github.com/srg/blescan/scanner"
)

// DeviceEntry is the latest known state of one device.
type DeviceEntry struct {
	Address   string
	Name      string
	RSSI      int
	Services  []string
	FirstSeen time.Time
	LastSeen  time.Time
	Sightings int
	InRange   bool // false once a match-lost notification arrived
}

// DeviceTable aggregates notifications per device address.
type DeviceTable struct {
	devices *hashmap.Map[string, *DeviceEntry]
}

func NewDeviceTable() *DeviceTable {
	return &DeviceTable{devices: hashmap.New[string, *DeviceEntry]()}
}

// Observe folds a notification into the table. Failures carry no device and
// are ignored.
func (t *DeviceTable) Observe(n Notification) {
	if n.Kind == KindFailed {
		return
	}
	lost := n.Kind == KindDiscovered && n.CallbackType == scanner.CallbackMatchLost
	for _, ev := range n.Events {
		t.observe(ev, lost)
	}
}

func (t *DeviceTable) observe(ev scanner.DiscoveryEvent, lost bool) {
	entry, _ := t.devices.GetOrInsert(ev.Address, &DeviceEntry{
		Address:   ev.Address,
		FirstSeen: ev.Timestamp,
	})

	// entries are replaced rather than mutated so Snapshot readers never race
	updated := *entry
	updated.RSSI = ev.RSSI
	if ev.Timestamp.After(updated.LastSeen) {
		updated.LastSeen = ev.Timestamp
	}
	if name := ev.Name(); name != "" {
		updated.Name = name
	}
	if ev.Record != nil {
		if uuids := ev.Record.ServiceUUIDs(); len(uuids) > 0 {
			updated.Services = serviceLabels(uuids)
		}
	}
	updated.InRange = !lost
	if !lost {
		updated.Sightings++
	}
	t.devices.Set(ev.Address, &updated)
}

// Len returns the number of distinct devices seen.
func (t *DeviceTable) Len() int {
	return t.devices.Len()
}

// Get returns a copy of the entry for address.
func (t *DeviceTable) Get(address string) (DeviceEntry, bool) {
	entry, ok := t.devices.Get(address)
	if !ok {
		return DeviceEntry{}, false
	}
	return *entry, true
}

// Snapshot returns copies of all entries ordered by address.
func (t *DeviceTable) Snapshot() []DeviceEntry {
	out := make([]DeviceEntry, 0, t.devices.Len())
	t.devices.Range(func(_ string, e *DeviceEntry) bool {
		out = append(out, *e)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// WriteTable renders the snapshot as an aligned table.
func (t *DeviceTable) WriteTable(w io.Writer, now time.Time) error {
	entries := t.Snapshot()
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tRSSI\tSEEN\tSTATE\tSERVICES\tLAST SEEN")
	for _, e := range entries {
		state := "in range"
		if !e.InRange {
			state = "lost"
		}
		name := e.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(e.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%d dBm\t%d\t%s\t%s\t%s ago\n",
			e.Address, name, e.RSSI, e.Sightings, state, services, now.Sub(e.LastSeen).Truncate(time.Second))
	}
	return tw.Flush()
}

// serviceLabels renders UUIDs in short form, with the assigned name when
// one is known.
func serviceLabels(uuids []uuid.UUID) []string {
	labels := make([]string, 0, len(uuids))
	for _, u := range uuids {
		label := bleuuid.Shorten(u)
		if name := bledb.ServiceName(u); name != "" {
			label += " (" + name + ")"
		}
		labels = append(labels, label)
	}
	return labels
}
