package domain

import (
	"fmt"
	"strings"
)

// Filename derives the canonical run file name, {number}-{device}-{type}.h5.
// Pure and total: path separators, NUL bytes, and leading dots in the device
// and type segments are replaced with underscores so the result is always a
// single safe path element; everything else passes through verbatim.
func Filename(number, device string, kind Kind) string {
	return fmt.Sprintf("%s-%s-%s.h5", number, sanitizeSegment(device), sanitizeSegment(string(kind)))
}

var segmentReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

func sanitizeSegment(s string) string {
	s = segmentReplacer.Replace(s)
	if strings.HasPrefix(s, ".") {
		s = "_" + strings.TrimLeft(s, ".")
	}
	return s
}
