package persist

import (
	"errors"
	"fmt"
)

// ErrMissingDevice rejects a save before any I/O when the run has no device
// set; the catalogue cannot log a run without one.
var ErrMissingDevice = errors.New("device is required for catalogue logging")

// DataLossError is the one unrecoverable save fault: the run file could not
// be written, so the measurement itself would be lost. Catalogue trouble is
// never reported this way.
type DataLossError struct {
	Path string
	Err  error
}

func (e *DataLossError) Error() string {
	return fmt.Sprintf("run data not saved to %s: %v", e.Path, e.Err)
}

func (e *DataLossError) Unwrap() error { return e.Err }
