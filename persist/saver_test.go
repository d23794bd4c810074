package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/WashU-Astroparticle-Lab/daq/catalog"
	"github.com/WashU-Astroparticle-Lab/daq/domain"
)

// fakeStore keeps inserted documents in memory and can simulate an
// unreachable catalogue.
type fakeStore struct {
	docs        []catalog.Document
	down        bool
	maxDown     bool
	insertCalls int
}

var errDown = errors.New("dial tcp: connection refused")

func (f *fakeStore) InsertRun(ctx context.Context, doc catalog.Document) (string, error) {
	f.insertCalls++
	if f.down {
		return "", errDown
	}
	f.docs = append(f.docs, doc)
	return "doc-1", nil
}

func (f *fakeStore) MaxNumber(ctx context.Context) (string, error) {
	if f.down || f.maxDown {
		return "", errDown
	}
	if len(f.docs) == 0 {
		return "", catalog.ErrNotFound
	}
	max := ""
	for _, doc := range f.docs {
		if n, _ := doc["number"].(string); n > max {
			max = n
		}
	}
	return max, nil
}

func (f *fakeStore) FindRuns(ctx context.Context, filter catalog.Filter) ([]catalog.Document, error) {
	if f.down {
		return nil, errDown
	}
	return f.docs, nil
}

func (f *fakeStore) CountByDevice(ctx context.Context) ([]catalog.DeviceCount, error) {
	if f.down {
		return nil, errDown
	}
	return nil, nil
}

func newTestSweep(device string) *domain.Sweep {
	return &domain.Sweep{
		Common:      domain.Common{Device: device},
		FreqCenter:  6.025e9,
		FreqSpan:    10e6,
		DF:          1e3,
		NumAverages: 100,
		Amp:         0.1,
		OutputPort:  1,
		InputPort:   1,
		Dither:      true,
		FreqArr:     []float64{6.02e9, 6.03e9},
		RespArr:     []complex128{complex(0.1, 0.2), complex(0.3, -0.4)},
	}
}

func newSaver(t *testing.T, store catalog.Store, opts Options) *Saver {
	t.Helper()
	if opts.DataDir == "" {
		opts.DataDir = t.TempDir()
	}
	s := NewSaver(store, opts)
	if s == nil {
		t.Fatalf("NewSaver returned nil")
	}
	return s
}

func TestSaveWritesFileAndDocument(t *testing.T) {
	store := &fakeStore{}
	s := newSaver(t, store, Options{})

	res, err := s.Save(context.Background(), newTestSweep("Resonator_A"))
	if err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	if res.Number != "00000001" || res.NumberDegraded {
		t.Fatalf("number=%q degraded=%v", res.Number, res.NumberDegraded)
	}
	if res.CatalogErr != nil || res.FitErr != nil || res.ArchiveErr != nil {
		t.Fatalf("unexpected warnings: %+v", res)
	}
	if !strings.HasSuffix(res.Path, "00000001-Resonator_A-sweep.h5") {
		t.Fatalf("path=%q", res.Path)
	}
	if !filepath.IsAbs(res.Path) {
		t.Fatalf("path must be absolute: %q", res.Path)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("run file missing: %v", err)
	}
	if len(store.docs) != 1 {
		t.Fatalf("documents inserted: %d", len(store.docs))
	}
	doc := store.docs[0]
	if doc["number"] != "00000001" || doc["type"] != "sweep" || doc["file"] != res.Path {
		t.Fatalf("derived fields wrong: %v", doc)
	}
	if _, ok := doc["utc_time"].(string); !ok {
		t.Fatalf("utc_time missing")
	}
	if _, ok := doc["freq_arr"]; ok {
		t.Fatalf("bulk data leaked into document")
	}
}

func TestSaveRoundTripsRunFile(t *testing.T) {
	store := &fakeStore{}
	s := newSaver(t, store, Options{})
	want := newTestSweep("X")

	res, err := s.Save(context.Background(), want)
	if err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	got, err := domain.LoadSweep(res.Path)
	if err != nil {
		t.Fatalf("LoadSweep() err=%v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, want)
	}
}

func TestSaveRejectsMissingDevice(t *testing.T) {
	store := &fakeStore{}
	s := newSaver(t, store, Options{})

	_, err := s.Save(context.Background(), newTestSweep(""))
	if !errors.Is(err, ErrMissingDevice) {
		t.Fatalf("err=%v, want ErrMissingDevice", err)
	}
	if store.insertCalls != 0 {
		t.Fatalf("validation must happen before any catalogue I/O")
	}
}

func TestSaveSurvivesCatalogueOutage(t *testing.T) {
	store := &fakeStore{down: true}
	s := newSaver(t, store, Options{})

	res, err := s.Save(context.Background(), newTestSweep("X"))
	if err != nil {
		t.Fatalf("Save() must succeed during catalogue outage, err=%v", err)
	}
	if res.CatalogErr == nil {
		t.Fatalf("expected an observable catalogue warning")
	}
	if !res.NumberDegraded || res.Number != catalog.FirstNumber {
		t.Fatalf("expected degraded allocation, got %q degraded=%v", res.Number, res.NumberDegraded)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("run file must exist despite outage: %v", err)
	}
	if len(store.docs) != 0 {
		t.Fatalf("no document may exist for an orphan file")
	}
}

func TestSaveAllocatorOutageOnlyDegradesNumber(t *testing.T) {
	store := &fakeStore{maxDown: true}
	s := newSaver(t, store, Options{})

	res, err := s.Save(context.Background(), newTestSweep("X"))
	if err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	if !res.NumberDegraded || res.Number != catalog.FirstNumber {
		t.Fatalf("expected degraded first id, got %q degraded=%v", res.Number, res.NumberDegraded)
	}
	if res.CatalogErr != nil {
		t.Fatalf("insert should still succeed: %v", res.CatalogErr)
	}
	if len(store.docs) != 1 {
		t.Fatalf("documents inserted: %d", len(store.docs))
	}
}

func TestSaveFileWriteFaultIsFatal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ro")
	if err := os.MkdirAll(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	store := &fakeStore{}
	s := newSaver(t, store, Options{DataDir: filepath.Join(dir, "data")})

	_, err := s.Save(context.Background(), newTestSweep("X"))
	var lossErr *DataLossError
	if !errors.As(err, &lossErr) {
		t.Fatalf("err=%v, want *DataLossError", err)
	}
	if store.insertCalls != 0 {
		t.Fatalf("no document may be inserted after a file-write fault")
	}
}

func TestSaveConsecutiveNumbers(t *testing.T) {
	store := &fakeStore{}
	s := newSaver(t, store, Options{})

	first, err := s.Save(context.Background(), newTestSweep("X"))
	if err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	second, err := s.Save(context.Background(), newTestSweep("X"))
	if err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	if first.Number != "00000001" || second.Number != "00000002" {
		t.Fatalf("numbers %q, %q, want consecutive", first.Number, second.Number)
	}
	a, b := filepath.Base(first.Path), filepath.Base(second.Path)
	if strings.TrimPrefix(a, first.Number) != strings.TrimPrefix(b, second.Number) {
		t.Fatalf("filenames must differ only in the identifier: %q vs %q", a, b)
	}
}

func TestSaveEmbedsFitResults(t *testing.T) {
	store := &fakeStore{}
	fitter := domain.FitterFunc(func(freq []float64, resp []complex128) (domain.FitResult, error) {
		return domain.FitResult{Fr: 6.025e9, Qi: 1.2e6, Qc: 3.0e5, Ql: 2.4e5}, nil
	})
	s := newSaver(t, store, Options{Fitter: fitter})

	res, err := s.Save(context.Background(), newTestSweep("X"))
	if err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	if res.Fit == nil || res.FitErr != nil {
		t.Fatalf("fit not recorded: %+v", res)
	}
	doc := store.docs[0]
	if doc["fit_fr"] != 6.025e9 {
		t.Fatalf("fit_fr=%v", doc["fit_fr"])
	}
	if doc["fit_kappa"] != 6.025e9/3.0e5 {
		t.Fatalf("fit_kappa=%v", doc["fit_kappa"])
	}
}

func TestSaveFitFailureDoesNotBlock(t *testing.T) {
	store := &fakeStore{}
	fitter := domain.FitterFunc(func(freq []float64, resp []complex128) (domain.FitResult, error) {
		return domain.FitResult{}, errors.New("fit did not converge")
	})
	s := newSaver(t, store, Options{Fitter: fitter})

	res, err := s.Save(context.Background(), newTestSweep("X"))
	if err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	if res.FitErr == nil {
		t.Fatalf("expected observable fit warning")
	}
	doc := store.docs[0]
	if _, ok := doc["fit_fr"]; ok {
		t.Fatalf("failed fit must not leave fit fields in the document")
	}
}

func TestSaveFitterIgnoredForNonSweeps(t *testing.T) {
	store := &fakeStore{}
	called := false
	fitter := domain.FitterFunc(func(freq []float64, resp []complex128) (domain.FitResult, error) {
		called = true
		return domain.FitResult{}, nil
	})
	s := newSaver(t, store, Options{Fitter: fitter})

	ts := &domain.TimeStream{
		Common:      domain.Common{Device: "X"},
		LoFreq:      4e9,
		IfFreqs:     []float64{10e6},
		IfFreqsIn:   []float64{10e6},
		PixelCounts: 16,
		Amp:         []float64{0.1},
		PhasesI:     []float64{0},
		PhasesQ:     []float64{0},
	}
	if _, err := s.Save(context.Background(), ts); err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	if called {
		t.Fatalf("fitter must only run for sweep runs")
	}
}

type fakeArchiver struct {
	paths []string
	err   error
}

func (f *fakeArchiver) ArchiveFile(ctx context.Context, path string) error {
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	return nil
}

func TestSaveArchivesFile(t *testing.T) {
	store := &fakeStore{}
	arch := &fakeArchiver{}
	s := newSaver(t, store, Options{Archiver: arch})

	res, err := s.Save(context.Background(), newTestSweep("X"))
	if err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	if len(arch.paths) != 1 || arch.paths[0] != res.Path {
		t.Fatalf("archived paths=%v", arch.paths)
	}
}

func TestSaveArchiveFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{}
	arch := &fakeArchiver{err: errors.New("bucket unavailable")}
	s := newSaver(t, store, Options{Archiver: arch})

	res, err := s.Save(context.Background(), newTestSweep("X"))
	if err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	if res.ArchiveErr == nil {
		t.Fatalf("expected observable archive warning")
	}
	if len(store.docs) != 1 {
		t.Fatalf("archive failure must not affect the catalogue insert")
	}
}
