// Package persist implements the Protocol's optional persisted port state
// (spec.md §6.3): a key-value file, one `<port-id>.<field>=<value>` record
// per line, holding each persistent port's type-specific fields (Mode,
// Line, Resolution, Value, Position).
//
// spec.md is explicit this is a key-value file, not JSON, so the teacher's
// JSON-tagged config structs (services/hal/config.go's BusCfg/DevCfg) are
// not a fit for the wire format; this package borrows their plain,
// field-per-concern shape instead and parses/formats by hand with
// bufio.Scanner, stdlib only. CORE never reads this file itself (spec.md
// §6.3: "the host re-applies it during prepare()") — Save/Load are pure
// functions the host calls on its own schedule, against whatever file or
// byte store it chooses.
package persist

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jangala-dev/opdi-go/port"
	"github.com/jangala-dev/opdi-go/protoerr"
)

// Well-known field names written/read for each port type (spec.md §6.3).
const (
	FieldMode       = "Mode"
	FieldLine       = "Line"
	FieldResolution = "Resolution"
	FieldReference  = "Reference"
	FieldValue      = "Value"
	FieldPosition   = "Position"
)

// Fields is one port's persisted type-specific values, keyed by field name.
type Fields map[string]string

// Store is the full persisted state: port ID -> its Fields.
type Store map[string]Fields

// Save writes store as `<id>.<field>=<value>` lines, one per field, sorted
// by port ID then field name so the output is stable across runs (spec.md
// §6.3 doesn't require this, but a diffable file is friendlier to a host
// that version-controls it).
func Save(w io.Writer, store Store) error {
	bw := bufio.NewWriter(w)
	ids := make([]string, 0, len(store))
	for id := range store {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fields := store[id]
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := fmt.Fprintf(bw, "%s.%s=%s\n", id, k, fields[k]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Load parses a key-value file back into a Store. Blank lines and lines
// starting with '#' are ignored, so a host can hand-annotate the file.
func Load(r io.Reader) (Store, error) {
	store := make(Store)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dot := strings.IndexByte(line, '.')
		eq := strings.IndexByte(line, '=')
		if dot < 0 || eq < 0 || eq < dot {
			return nil, protoerr.New(protoerr.MalformedMessage, "malformed persisted record: "+line)
		}
		id, field, value := line[:dot], line[dot+1:eq], line[eq+1:]
		if id == "" || field == "" {
			return nil, protoerr.New(protoerr.MalformedMessage, "malformed persisted record: "+line)
		}
		if store[id] == nil {
			store[id] = make(Fields)
		}
		store[id][field] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return store, nil
}

// FieldsFor extracts the persisted fields for one port, per its concrete
// type (spec.md §6.3's per-type field list). Ports with no persisted
// shape (STREAMING) return nil.
func FieldsFor(p port.Port) Fields {
	switch v := p.(type) {
	case *port.DigitalPort:
		return Fields{
			FieldMode: codeOf(int(v.Mode())),
			FieldLine: codeOf(int(v.State())),
		}
	case *port.AnalogPort:
		return Fields{
			FieldMode:       codeOf(int(v.Mode())),
			FieldResolution: codeOf(int(v.Resolution())),
			FieldReference:  codeOf(int(v.Reference())),
			FieldValue:      codeOf(int(v.Value())),
		}
	case *port.SelectPort:
		return Fields{FieldPosition: codeOf(v.State())}
	case *port.DialPort:
		return Fields{FieldPosition: codeOf(int(v.State()))}
	default:
		return nil
	}
}

// Apply re-applies previously-persisted fields onto a freshly-constructed
// port, the way a host's prepare() is expected to (spec.md §6.3). Missing
// fields are left at the port's constructed defaults; Apply never fails on
// a field the port doesn't recognise, since a persisted file written by an
// older port shape should degrade gracefully rather than block startup.
func Apply(p port.Port, f Fields) error {
	switch v := p.(type) {
	case *port.DigitalPort:
		if s, ok := f[FieldMode]; ok {
			if n, err := parseInt(s); err == nil {
				if err := v.SetMode(port.DigitalMode(n)); err != nil {
					return err
				}
			}
		}
		if s, ok := f[FieldLine]; ok {
			if n, err := parseInt(s); err == nil {
				if err := v.SetLine(port.Line(n)); err != nil {
					return err
				}
			}
		}
	case *port.AnalogPort:
		if s, ok := f[FieldMode]; ok {
			if n, err := parseInt(s); err == nil {
				if err := v.SetMode(port.AnalogMode(n)); err != nil {
					return err
				}
			}
		}
		if s, ok := f[FieldResolution]; ok {
			if n, err := parseInt(s); err == nil {
				if err := v.SetResolution(uint8(n)); err != nil {
					return err
				}
			}
		}
		if s, ok := f[FieldReference]; ok {
			if n, err := parseInt(s); err == nil {
				if err := v.SetReference(port.Reference(n)); err != nil {
					return err
				}
			}
		}
		if s, ok := f[FieldValue]; ok {
			if n, err := parseInt(s); err == nil {
				if err := v.SetValue(uint32(n)); err != nil {
					return err
				}
			}
		}
	case *port.SelectPort:
		if s, ok := f[FieldPosition]; ok {
			if n, err := parseInt(s); err == nil {
				if err := v.SetPosition(n); err != nil {
					return err
				}
			}
		}
	case *port.DialPort:
		if s, ok := f[FieldPosition]; ok {
			if n, err := parseInt(s); err == nil {
				if err := v.SetPosition(int32(n)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func codeOf(n int) string {
	return fmt.Sprintf("%d", n)
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
