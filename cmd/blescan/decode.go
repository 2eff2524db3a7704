package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/blescan/internal/advertisement"
	"github.com/srg/blescan/internal/bledb"
	"github.com/srg/blescan/internal/bleuuid"
	"github.com/srg/blescan/internal/output"
	"github.com/srg/blescan/pkg/config"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <hex>...",
		Short: "Decode raw advertisement payloads",
		Long: `Decode one or more raw advertisement payloads given as hex strings.

Malformed payloads decode to an empty record and print a warning, matching
what the scanner does with them. Use --strict to fail instead.`,
		Example: `  blescan decode 0201060303 0d18
  blescan decode "02 01 06 1a ff 4c 00 02 15 ..." --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDecode,
	}

	cmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
	cmd.Flags().Bool("strict", false, "Fail on malformed payloads")
	return cmd
}

func runDecode(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	if format != output.FormatText && format != output.FormatJSON {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", format)
	}

	payloads := make([][]byte, len(args))
	for i, arg := range args {
		b, err := config.DecodeHex(arg)
		if err != nil {
			return fmt.Errorf("payload #%d is not hex: %w", i+1, err)
		}
		payloads[i] = b
	}

	cmd.SilenceUsage = true
	out := cmd.OutOrStdout()
	for i, b := range payloads {
		rec, err := advertisement.Parse(b)
		if err != nil && strict {
			return fmt.Errorf("payload #%d: %w", i+1, err)
		}

		if format == output.FormatJSON {
			if werr := writeRecordJSON(out, rec, err); werr != nil {
				return werr
			}
			continue
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		writeRecordText(out, i+1, rec, err)
	}
	return nil
}

func writeRecordJSON(w io.Writer, rec *advertisement.Record, decodeErr error) error {
	obj := output.RecordFields(rec)
	if decodeErr != nil {
		obj.Set("error", decodeErr.Error())
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func writeRecordText(w io.Writer, n int, rec *advertisement.Record, decodeErr error) {
	fmt.Fprintf(w, "Payload %d: %s\n", n, hex.EncodeToString(rec.Bytes()))
	if decodeErr != nil {
		fmt.Fprintf(w, "  warning: %s\n", decodeErr)
	}
	if rec.IsEmpty() {
		fmt.Fprintln(w, "  (no fields)")
		return
	}

	if flags := rec.Flags(); flags != advertisement.FlagsAbsent {
		fmt.Fprintf(w, "  Flags:        0x%02X\n", flags)
	}
	if name, ok := rec.LocalName(); ok {
		fmt.Fprintf(w, "  Name:         %q\n", name)
	}
	if rec.HasTxPowerLevel() {
		fmt.Fprintf(w, "  TX power:     %d dBm\n", rec.TxPowerLevel())
	}
	for _, u := range rec.ServiceUUIDs() {
		fmt.Fprintf(w, "  Service:      %s\n", describeUUID(bleuuid.Shorten(u), bledb.ServiceName(u)))
	}

	sd := rec.ServiceData()
	keys := make([]string, 0, len(sd))
	names := make(map[string]string, len(sd))
	data := make(map[string][]byte, len(sd))
	for u, d := range sd {
		k := bleuuid.Shorten(u)
		keys = append(keys, k)
		names[k] = bledb.ServiceName(u)
		data[k] = d
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  Service data: %s = %s\n", describeUUID(k, names[k]), hex.EncodeToString(data[k]))
	}

	md := rec.ManufacturerData()
	ids := make([]int, 0, len(md))
	for id := range md {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		company := fmt.Sprintf("0x%04X", id)
		if vendor := bledb.LookupVendor(uint16(id)); vendor != "" {
			company += " (" + vendor + ")"
		}
		payload := md[uint16(id)]
		fmt.Fprintf(w, "  Manufacturer: %s = %s\n", company, hex.EncodeToString(payload))

		parsed, err := advertisement.ParseManufacturerData(uint16(id), payload)
		switch {
		case err != nil:
			fmt.Fprintf(w, "                warning: %s\n", err)
		case parsed != nil:
			fmt.Fprintf(w, "                %s\n", strings.TrimSpace(fmt.Sprint(parsed)))
		}
	}
}

func describeUUID(short, name string) string {
	if name == "" {
		return short
	}
	return short + " (" + name + ")"
}
