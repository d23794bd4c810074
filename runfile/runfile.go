// Package runfile implements the on-disk container for a single measurement
// run: a flat set of scalar attributes plus named numeric arrays. Payloads
// are stored as raw little-endian IEEE-754 words, so a read-back reproduces
// every value bit for bit.
package runfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
)

var magic = [8]byte{'D', 'A', 'Q', 'R', 'F', 0, 0, 1}

type ArrayKind uint8

const (
	KindFloat64Array ArrayKind = iota + 1
	KindComplex128Array
	KindInt64Array
)

// Array is a tagged numeric payload. Exactly one slice is populated,
// selected by Kind.
type Array struct {
	Kind        ArrayKind
	Float64s    []float64
	Complex128s []complex128
	Int64s      []int64
}

func Float64s(v []float64) Array {
	return Array{Kind: KindFloat64Array, Float64s: v}
}

func Complex128s(v []complex128) Array {
	return Array{Kind: KindComplex128Array, Complex128s: v}
}

func Int64s(v []int64) Array {
	return Array{Kind: KindInt64Array, Int64s: v}
}

func (a Array) Len() int {
	switch a.Kind {
	case KindFloat64Array:
		return len(a.Float64s)
	case KindComplex128Array:
		return len(a.Complex128s)
	case KindInt64Array:
		return len(a.Int64s)
	}
	return 0
}

const (
	attrNull    = 0
	attrBool    = 1
	attrInt64   = 2
	attrFloat64 = 3
	attrString  = 4
)

// Write stores attributes and arrays at path, atomically via a temp file
// rename in the target directory. Attribute values must be nil, bool, int64,
// float64, or string; the document builder performs the same normalization,
// so callers generally share value preparation with it.
func Write(path string, attrs map[string]any, arrays map[string]Array) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	w := bufio.NewWriter(tmp)
	if err := writeAll(w, attrs, arrays); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Read restores the attributes and arrays written by Write.
func Read(path string) (map[string]any, map[string]Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat: %w", err)
	}
	size := fi.Size()

	r := bufio.NewReader(f)
	var got [8]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return nil, nil, fmt.Errorf("read magic: %w", err)
	}
	if got != magic {
		return nil, nil, fmt.Errorf("%s: not a run file", path)
	}

	attrs, err := readAttrs(r, size)
	if err != nil {
		return nil, nil, err
	}
	arrays, err := readArrays(r, size)
	if err != nil {
		return nil, nil, err
	}
	return attrs, arrays, nil
}

func writeAll(w *bufio.Writer, attrs map[string]any, arrays map[string]Array) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := writeUint32(w, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		if err := writeName(w, name); err != nil {
			return err
		}
		if err := writeAttr(w, name, attrs[name]); err != nil {
			return err
		}
	}

	arrNames := make([]string, 0, len(arrays))
	for name := range arrays {
		arrNames = append(arrNames, name)
	}
	sort.Strings(arrNames)
	if err := writeUint32(w, uint32(len(arrNames))); err != nil {
		return err
	}
	for _, name := range arrNames {
		if err := writeName(w, name); err != nil {
			return err
		}
		if err := writeArray(w, name, arrays[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeAttr(w *bufio.Writer, name string, value any) error {
	switch v := value.(type) {
	case nil:
		return w.WriteByte(attrNull)
	case bool:
		if err := w.WriteByte(attrBool); err != nil {
			return err
		}
		if v {
			return w.WriteByte(1)
		}
		return w.WriteByte(0)
	case int64:
		if err := w.WriteByte(attrInt64); err != nil {
			return err
		}
		return writeUint64(w, uint64(v))
	case float64:
		if err := w.WriteByte(attrFloat64); err != nil {
			return err
		}
		return writeUint64(w, math.Float64bits(v))
	case string:
		if err := w.WriteByte(attrString); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(v))); err != nil {
			return err
		}
		_, err := w.WriteString(v)
		return err
	default:
		return fmt.Errorf("attribute %q: unsupported type %T", name, value)
	}
}

func writeArray(w *bufio.Writer, name string, a Array) error {
	if err := w.WriteByte(byte(a.Kind)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(a.Len())); err != nil {
		return err
	}
	switch a.Kind {
	case KindFloat64Array:
		for _, v := range a.Float64s {
			if err := writeUint64(w, math.Float64bits(v)); err != nil {
				return err
			}
		}
	case KindComplex128Array:
		for _, v := range a.Complex128s {
			if err := writeUint64(w, math.Float64bits(real(v))); err != nil {
				return err
			}
			if err := writeUint64(w, math.Float64bits(imag(v))); err != nil {
				return err
			}
		}
	case KindInt64Array:
		for _, v := range a.Int64s {
			if err := writeUint64(w, uint64(v)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("array %q: unknown kind %d", name, a.Kind)
	}
	return nil
}

// readAttrs decodes the attribute section. size is the total file size; any
// claimed count or payload length exceeding it means a corrupt or truncated
// file, rejected before allocation.
func readAttrs(r *bufio.Reader, size int64) (map[string]any, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read attribute count: %w", err)
	}
	if int64(count) > size {
		return nil, fmt.Errorf("attribute count %d exceeds file size %d", count, size)
	}
	attrs := make(map[string]any, count)
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		switch kind {
		case attrNull:
			attrs[name] = nil
		case attrBool:
			b, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			attrs[name] = b != 0
		case attrInt64:
			u, err := readUint64(r)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			attrs[name] = int64(u)
		case attrFloat64:
			u, err := readUint64(r)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			attrs[name] = math.Float64frombits(u)
		case attrString:
			n, err := readUint32(r)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			if int64(n) > size {
				return nil, fmt.Errorf("attribute %q: length %d exceeds file size %d", name, n, size)
			}
			buf := make([]byte, n)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			attrs[name] = string(buf)
		default:
			return nil, fmt.Errorf("attribute %q: unknown kind %d", name, kind)
		}
	}
	return attrs, nil
}

func readArrays(r *bufio.Reader, size int64) (map[string]Array, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read array count: %w", err)
	}
	if int64(count) > size {
		return nil, fmt.Errorf("array count %d exceeds file size %d", count, size)
	}
	arrays := make(map[string]Array, count)
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("array %q: %w", name, err)
		}
		n, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("array %q: %w", name, err)
		}
		switch ArrayKind(kind) {
		case KindFloat64Array:
			if n > uint64(size)/8 {
				return nil, fmt.Errorf("array %q: claimed length %d exceeds file size %d", name, n, size)
			}
			vals := make([]float64, n)
			for j := range vals {
				u, err := readUint64(r)
				if err != nil {
					return nil, fmt.Errorf("array %q: %w", name, err)
				}
				vals[j] = math.Float64frombits(u)
			}
			arrays[name] = Float64s(vals)
		case KindComplex128Array:
			if n > uint64(size)/16 {
				return nil, fmt.Errorf("array %q: claimed length %d exceeds file size %d", name, n, size)
			}
			vals := make([]complex128, n)
			for j := range vals {
				re, err := readUint64(r)
				if err != nil {
					return nil, fmt.Errorf("array %q: %w", name, err)
				}
				im, err := readUint64(r)
				if err != nil {
					return nil, fmt.Errorf("array %q: %w", name, err)
				}
				vals[j] = complex(math.Float64frombits(re), math.Float64frombits(im))
			}
			arrays[name] = Complex128s(vals)
		case KindInt64Array:
			if n > uint64(size)/8 {
				return nil, fmt.Errorf("array %q: claimed length %d exceeds file size %d", name, n, size)
			}
			vals := make([]int64, n)
			for j := range vals {
				u, err := readUint64(r)
				if err != nil {
					return nil, fmt.Errorf("array %q: %w", name, err)
				}
				vals[j] = int64(u)
			}
			arrays[name] = Int64s(vals)
		default:
			return nil, fmt.Errorf("array %q: unknown kind %d", name, kind)
		}
	}
	return arrays, nil
}

func writeName(w *bufio.Writer, name string) error {
	if len(name) == 0 {
		return errors.New("empty name")
	}
	if len(name) > math.MaxUint16 {
		return fmt.Errorf("name too long: %d bytes", len(name))
	}
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(len(name)))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	_, err := w.WriteString(name)
	return err
}

func readName(r *bufio.Reader) (string, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", fmt.Errorf("read name length: %w", err)
	}
	n := binary.LittleEndian.Uint16(buf[:])
	if n == 0 {
		return "", errors.New("empty name")
	}
	name := make([]byte, n)
	if _, err := io.ReadFull(r, name); err != nil {
		return "", fmt.Errorf("read name: %w", err)
	}
	return string(name), nil
}

func writeUint32(w *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeUint64(w *bufio.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r *bufio.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
