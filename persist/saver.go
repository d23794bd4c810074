// Package persist orchestrates the two-phase run save: binary file first,
// catalogue document second. The file write is the durability boundary; every
// catalogue-side fault after it is downgraded to a warning on the result.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/WashU-Astroparticle-Lab/daq/catalog"
	"github.com/WashU-Astroparticle-Lab/daq/domain"
	"github.com/WashU-Astroparticle-Lab/daq/runfile"
)

// Archiver mirrors a saved run file into secondary storage.
type Archiver interface {
	ArchiveFile(ctx context.Context, path string) error
}

type Options struct {
	// DataDir receives the run files; created on demand.
	DataDir string
	// Fitter, when set, runs resonator fitting on sweep runs so the results
	// land in the same catalogue document. Optional.
	Fitter domain.Fitter
	// Archiver, when set, uploads the run file after the catalogue insert.
	// Optional.
	Archiver Archiver
	// CatalogTimeout bounds each catalogue call. Zero means 10s.
	CatalogTimeout time.Duration
	Logger         *slog.Logger
}

type Saver struct {
	store catalog.Store
	opts  Options
}

func NewSaver(store catalog.Store, opts Options) *Saver {
	if store == nil || opts.DataDir == "" {
		return nil
	}
	if opts.CatalogTimeout <= 0 {
		opts.CatalogTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Saver{store: store, opts: opts}
}

// Result reports a completed save. The run file at Path exists whenever Save
// returned without error; CatalogErr, FitErr, and ArchiveErr record the
// non-fatal faults that were downgraded to warnings.
type Result struct {
	Path           string
	Number         string
	NumberDegraded bool
	DocumentID     string
	Fit            *domain.FitResult
	CatalogErr     error
	FitErr         error
	ArchiveErr     error
}

// Save persists a run: allocate a number, write the run file, then insert
// the catalogue document. Only a missing device or a file-write failure is
// fatal; an unreachable catalogue still yields a successful save and an
// orphan file that external tooling can re-register later.
func (s *Saver) Save(ctx context.Context, run domain.Run) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, fmt.Errorf("saver not initialized")
	}
	if strings.TrimSpace(run.Meta().Device) == "" {
		return Result{}, ErrMissingDevice
	}
	log := s.opts.Logger

	var res Result
	res.Number, res.NumberDegraded = s.nextNumber(ctx)
	if res.NumberDegraded {
		log.Warn("run number allocation degraded to sequence start",
			"number", res.Number)
	}

	if err := os.MkdirAll(s.opts.DataDir, 0o755); err != nil {
		return Result{}, &DataLossError{Path: s.opts.DataDir, Err: err}
	}
	path := filepath.Join(s.opts.DataDir, domain.Filename(res.Number, run.Meta().Device, run.Kind()))
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	res.Path = path

	attrs, arrays, err := domain.FileContents(run)
	if err != nil {
		return Result{}, &DataLossError{Path: path, Err: err}
	}
	if err := runfile.Write(path, attrs, arrays); err != nil {
		return Result{}, &DataLossError{Path: path, Err: err}
	}
	log.Info("run data saved", "file", path, "number", res.Number, "type", run.Kind())

	res.Fit, res.FitErr = s.tryFit(run)
	if res.FitErr != nil {
		log.Warn("resonator fit failed, document will carry no fit fields",
			"number", res.Number, "error", res.FitErr)
	}

	res.DocumentID, res.CatalogErr = s.insertDocument(ctx, run, res)
	if res.CatalogErr != nil {
		log.Warn("catalogue insert failed, run file is an orphan until re-registered",
			"file", path, "number", res.Number, "error", res.CatalogErr)
	} else {
		log.Info("catalogue document inserted", "id", res.DocumentID, "number", res.Number)
	}

	if s.opts.Archiver != nil {
		if err := s.opts.Archiver.ArchiveFile(ctx, path); err != nil {
			res.ArchiveErr = err
			log.Warn("run file archival failed", "file", path, "error", err)
		}
	}

	return res, nil
}

func (s *Saver) nextNumber(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CatalogTimeout)
	defer cancel()
	return catalog.NextNumber(ctx, s.store)
}

func (s *Saver) tryFit(run domain.Run) (*domain.FitResult, error) {
	if s.opts.Fitter == nil || run.Kind() != domain.KindSweep {
		return nil, nil
	}
	sweep, ok := run.(*domain.Sweep)
	if !ok {
		return nil, nil
	}
	fit, err := s.opts.Fitter.Fit(sweep.FreqArr, sweep.RespArr)
	if err != nil {
		return nil, err
	}
	return &fit, nil
}

func (s *Saver) insertDocument(ctx context.Context, run domain.Run, res Result) (string, error) {
	doc, err := domain.BuildDocument(run)
	if err != nil {
		return "", err
	}
	doc["utc_time"] = time.Now().UTC().Format(time.RFC3339Nano)
	doc["number"] = res.Number
	doc["type"] = string(run.Kind())
	doc["file"] = res.Path
	if res.Fit != nil {
		for name, value := range res.Fit.Fields() {
			doc[name] = value
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CatalogTimeout)
	defer cancel()
	return s.store.InsertRun(ctx, catalog.Document(doc))
}
