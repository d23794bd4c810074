package runfile

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00000001-X-sweep.h5")

	attrs := map[string]any{
		"device":       "X",
		"filter":       nil,
		"freq_center":  6.025e9,
		"num_averages": int64(100),
		"dither":       true,
		"notes":        "cooldown 12, second pass",
	}
	arrays := map[string]Array{
		"freq_arr": Float64s([]float64{6.0e9, 6.1e9, 6.2e9}),
		"resp_arr": Complex128s([]complex128{complex(0.1, -0.2), complex(0.3, 0.4)}),
		"counts":   Int64s([]int64{-1, 0, 42}),
	}

	if err := Write(path, attrs, arrays); err != nil {
		t.Fatalf("Write() err=%v", err)
	}

	gotAttrs, gotArrays, err := Read(path)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	if !reflect.DeepEqual(gotAttrs, attrs) {
		t.Fatalf("attrs mismatch:\n got %#v\nwant %#v", gotAttrs, attrs)
	}
	if !reflect.DeepEqual(gotArrays, arrays) {
		t.Fatalf("arrays mismatch:\n got %#v\nwant %#v", gotArrays, arrays)
	}
}

func TestRoundTripIsBitExact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bits.h5")

	// Values that degrade under any text round-trip.
	in := []float64{
		math.Pi,
		math.SmallestNonzeroFloat64,
		math.MaxFloat64,
		math.Copysign(0, -1),
		math.Inf(1),
		math.Inf(-1),
		6.02214076e23,
	}
	if err := Write(path, map[string]any{"f": in[0]}, map[string]Array{"arr": Float64s(in)}); err != nil {
		t.Fatalf("Write() err=%v", err)
	}
	attrs, arrays, err := Read(path)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	out := arrays["arr"].Float64s
	if len(out) != len(in) {
		t.Fatalf("length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Float64bits(out[i]) != math.Float64bits(in[i]) {
			t.Fatalf("element %d: %x != %x", i, math.Float64bits(out[i]), math.Float64bits(in[i]))
		}
	}
	if math.Float64bits(attrs["f"].(float64)) != math.Float64bits(in[0]) {
		t.Fatalf("scalar attribute not bit-exact")
	}
}

func TestWriteRejectsUnsupportedAttr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.h5")
	err := Write(path, map[string]any{"x": struct{}{}}, nil)
	if err == nil {
		t.Fatalf("Write() expected error for unsupported attribute type")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("failed Write() must not leave a file behind")
	}
}

func TestReadRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.h5")
	if err := os.WriteFile(path, []byte("definitely not a run file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Read(path); err == nil {
		t.Fatalf("Read() expected error for foreign file")
	}
}

// TestReadRejectsOversizedClaims feeds truncated files whose headers claim
// far more payload than the file holds; Read must fail on the claim itself
// instead of allocating for it.
func TestReadRejectsOversizedClaims(t *testing.T) {
	writeHeader := func(arrayCount uint32) *bytes.Buffer {
		var buf bytes.Buffer
		buf.Write(magic[:])
		binary.Write(&buf, binary.LittleEndian, uint32(0)) // attributes
		binary.Write(&buf, binary.LittleEndian, arrayCount)
		return &buf
	}
	writeEntryHead := func(buf *bytes.Buffer, name string, kind ArrayKind, length uint64) {
		binary.Write(buf, binary.LittleEndian, uint16(len(name)))
		buf.WriteString(name)
		buf.WriteByte(byte(kind))
		binary.Write(buf, binary.LittleEndian, length)
	}

	cases := []struct {
		name  string
		build func() []byte
	}{
		{"float64 array length", func() []byte {
			buf := writeHeader(1)
			writeEntryHead(buf, "freq_arr", KindFloat64Array, 1<<40)
			return buf.Bytes()
		}},
		{"complex128 array length", func() []byte {
			buf := writeHeader(1)
			writeEntryHead(buf, "resp_arr", KindComplex128Array, 1<<40)
			return buf.Bytes()
		}},
		{"int64 array length", func() []byte {
			buf := writeHeader(1)
			writeEntryHead(buf, "counts", KindInt64Array, 1<<40)
			return buf.Bytes()
		}},
		{"array count", func() []byte {
			buf := writeHeader(1 << 30)
			return buf.Bytes()
		}},
		{"attribute count", func() []byte {
			var buf bytes.Buffer
			buf.Write(magic[:])
			binary.Write(&buf, binary.LittleEndian, uint32(1<<30))
			return buf.Bytes()
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "corrupt.h5")
			if err := os.WriteFile(path, tc.build(), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, err := Read(path)
			if err == nil {
				t.Fatalf("Read() expected error for oversized claim")
			}
			if !strings.Contains(err.Error(), "exceeds file size") {
				t.Fatalf("err=%v, want a size bound rejection", err)
			}
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, _, err := Read(filepath.Join(t.TempDir(), "nope.h5")); err == nil {
		t.Fatalf("Read() expected error for missing file")
	}
}

func TestEmptySets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.h5")
	if err := Write(path, map[string]any{}, map[string]Array{}); err != nil {
		t.Fatalf("Write() err=%v", err)
	}
	attrs, arrays, err := Read(path)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	if len(attrs) != 0 || len(arrays) != 0 {
		t.Fatalf("expected empty sets, got %d attrs, %d arrays", len(attrs), len(arrays))
	}
}
