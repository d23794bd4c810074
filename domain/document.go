package domain

import (
	"fmt"

	"github.com/WashU-Astroparticle-Lab/daq/runfile"
)

// bulkDataFields is the exclusion set: raw sample arrays that belong in the
// run file and must never reach the catalogue.
var bulkDataFields = map[string]bool{
	"freq_arr":  true,
	"resp_arr":  true,
	"pixel_i":   true,
	"pixel_q":   true,
	"lsb":       true,
	"usb":       true,
	"freqs_usb": true,
	"freqs_lsb": true,
}

// IsBulkDataField reports whether a field name belongs to the bulk-data
// exclusion set.
func IsBulkDataField(name string) bool { return bulkDataFields[name] }

// BuildDocument projects a run into a flat catalogue document: the common
// fields plus the run type's declared parameters, normalized to plain
// JSON-safe values. Unset optional fields are kept as explicit nulls so a
// query can tell "never recorded" from "recorded empty". The transform is
// pure; derived fields (number, type, file, utc_time) are added by the
// persistence coordinator.
func BuildDocument(run Run) (map[string]any, error) {
	c := run.Meta()
	doc := map[string]any{
		"device": c.Device,
		"filter": optString(c.Filter),
		"notes":  optString(c.Notes),
	}
	for _, p := range run.Params() {
		if bulkDataFields[p.Name] {
			continue
		}
		v, err := normalizeValue(p.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", p.Name, err)
		}
		doc[p.Name] = v
	}
	return doc, nil
}

// FileContents splits a run into the attribute and array sets of its run
// file: scalar parameters become attributes, sequence parameters and bulk
// sample data become arrays. Like BuildDocument it is pure.
func FileContents(run Run) (map[string]any, map[string]runfile.Array, error) {
	c := run.Meta()
	attrs := map[string]any{
		"device": c.Device,
		"filter": optString(c.Filter),
		"notes":  optString(c.Notes),
		"type":   string(run.Kind()),
	}
	arrays := make(map[string]runfile.Array)
	for _, p := range run.Params() {
		v, err := normalizeValue(p.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", p.Name, err)
		}
		switch s := v.(type) {
		case []float64:
			arrays[p.Name] = runfile.Float64s(s)
		case []int64:
			arrays[p.Name] = runfile.Int64s(s)
		default:
			attrs[p.Name] = v
		}
	}
	for name, arr := range run.Arrays() {
		arrays[name] = arr
	}
	return attrs, arrays, nil
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// normalizeValue maps a descriptor value onto the store-native value set:
// nil, bool, int64, float64, string, []int64, []float64. Integer and
// floating scalars stay distinguished.
func normalizeValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool, string, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, nil
	case []int64:
		out := make([]int64, len(v))
		copy(out, v)
		return out, nil
	case []int:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}
