package domain

import (
	"fmt"

	"github.com/WashU-Astroparticle-Lab/daq/runfile"
)

// LoadSweep rebuilds a sweep run from its run file.
func LoadSweep(path string) (*Sweep, error) {
	d, err := openRunFile(path, KindSweep)
	if err != nil {
		return nil, err
	}
	s := &Sweep{
		Common:      d.common(),
		FreqCenter:  d.f64("freq_center"),
		FreqSpan:    d.f64("freq_span"),
		DF:          d.f64("df"),
		NumAverages: d.i("num_averages"),
		Amp:         d.f64("amp"),
		OutputPort:  d.i("output_port"),
		InputPort:   d.i("input_port"),
		Dither:      d.b("dither"),
		NumSkip:     d.i("num_skip"),
		FreqArr:     d.f64Arr("freq_arr"),
		RespArr:     d.c128Arr("resp_arr"),
	}
	if err := d.err(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSweepPower rebuilds a power sweep run from its run file.
func LoadSweepPower(path string) (*SweepPower, error) {
	d, err := openRunFile(path, KindSweepPower)
	if err != nil {
		return nil, err
	}
	s := &SweepPower{
		Common:      d.common(),
		FreqCenter:  d.f64("freq_center"),
		FreqSpan:    d.f64("freq_span"),
		DF:          d.f64("df"),
		NumAverages: d.i("num_averages"),
		AmpArr:      d.f64Arr("amp_arr"),
		OutputPort:  d.i("output_port"),
		InputPort:   d.i("input_port"),
		Dither:      d.b("dither"),
		NumSkip:     d.i("num_skip"),
		FreqArr:     d.f64Arr("freq_arr"),
		RespArr:     d.c128Arr("resp_arr"),
	}
	if err := d.err(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSweepFreqAndDC rebuilds a frequency-and-bias scan from its run file.
func LoadSweepFreqAndDC(path string) (*SweepFreqAndDC, error) {
	d, err := openRunFile(path, KindSweepFreqDC)
	if err != nil {
		return nil, err
	}
	s := &SweepFreqAndDC{
		Common:      d.common(),
		FreqCenter:  d.f64("freq_center"),
		FreqSpan:    d.f64("freq_span"),
		DF:          d.f64("df"),
		NumAverages: d.i("num_averages"),
		Amp:         d.f64("amp"),
		BiasMin:     d.f64("bias_min"),
		BiasMax:     d.f64("bias_max"),
		NumBias:     d.i("num_bias"),
		BiasPort:    d.i("bias_port"),
		OutputPort:  d.i("output_port"),
		InputPort:   d.i("input_port"),
		Dither:      d.b("dither"),
		NumSkip:     d.i("num_skip"),
		FreqArr:     d.f64Arr("freq_arr"),
		RespArr:     d.c128Arr("resp_arr"),
	}
	if err := d.err(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadTimeStream rebuilds a time-domain run from its run file.
func LoadTimeStream(path string) (*TimeStream, error) {
	d, err := openRunFile(path, KindTimeStream)
	if err != nil {
		return nil, err
	}
	ts := &TimeStream{
		Common:      d.common(),
		LoFreq:      d.f64("lo_freq"),
		IfFreqs:     d.f64Arr("if_freqs"),
		IfFreqsIn:   d.f64Arr("if_freqs_in"),
		DF:          d.f64("df"),
		PixelCounts: d.i("pixel_counts"),
		Amp:         d.f64Arr("amp"),
		PhasesI:     d.f64Arr("phases_i"),
		PhasesQ:     d.f64Arr("phases_q"),
		OutputPort:  d.i("output_port"),
		InputPort:   d.i("input_port"),
		Dither:      d.b("dither"),
		FreqArr:     d.f64Arr("freq_arr"),
		PixelI:      d.c128Arr("pixel_i"),
		PixelQ:      d.c128Arr("pixel_q"),
		LSB:         d.c128Arr("lsb"),
		USB:         d.c128Arr("usb"),
		FreqsUSB:    d.f64Arr("freqs_usb"),
		FreqsLSB:    d.f64Arr("freqs_lsb"),
	}
	if err := d.err(); err != nil {
		return nil, err
	}
	return ts, nil
}

// LoadTwoTonePower rebuilds a two-tone power scan from its run file.
func LoadTwoTonePower(path string) (*TwoTonePower, error) {
	d, err := openRunFile(path, KindTwoTonePower)
	if err != nil {
		return nil, err
	}
	tt := &TwoTonePower{
		Common:        d.common(),
		FreqCenter:    d.f64("freq_center"),
		FreqSpan:      d.f64("freq_span"),
		DF:            d.f64("df"),
		NumAverages:   d.i("num_averages"),
		ControlFreq:   d.f64("control_freq"),
		ControlAmpArr: d.f64Arr("control_amp_arr"),
		ReadoutAmp:    d.f64("readout_amp"),
		OutputPort:    d.i("output_port"),
		InputPort:     d.i("input_port"),
		ControlPort:   d.i("control_port"),
		Dither:        d.b("dither"),
		NumSkip:       d.i("num_skip"),
		FreqArr:       d.f64Arr("freq_arr"),
		RespArr:       d.c128Arr("resp_arr"),
	}
	if err := d.err(); err != nil {
		return nil, err
	}
	return tt, nil
}

// fileData wraps a decoded run file with typed accessors. The first field
// access that fails records the error; callers check err() once at the end.
type fileData struct {
	path    string
	attrs   map[string]any
	arrays  map[string]runfile.Array
	firstEr error
}

func openRunFile(path string, want Kind) (*fileData, error) {
	attrs, arrays, err := runfile.Read(path)
	if err != nil {
		return nil, err
	}
	got, _ := attrs["type"].(string)
	if got != string(want) {
		return nil, fmt.Errorf("%s: run type is %q, want %q", path, got, want)
	}
	return &fileData{path: path, attrs: attrs, arrays: arrays}, nil
}

func (d *fileData) err() error { return d.firstEr }

func (d *fileData) fail(name, why string) {
	if d.firstEr == nil {
		d.firstEr = fmt.Errorf("%s: attribute %q %s", d.path, name, why)
	}
}

func (d *fileData) common() Common {
	return Common{
		Device: d.str("device"),
		Filter: d.opt("filter"),
		Notes:  d.opt("notes"),
	}
}

func (d *fileData) str(name string) string {
	v, ok := d.attrs[name].(string)
	if !ok {
		d.fail(name, "missing or not a string")
	}
	return v
}

func (d *fileData) opt(name string) *string {
	v, ok := d.attrs[name]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		d.fail(name, "not a string")
		return nil
	}
	return &s
}

func (d *fileData) f64(name string) float64 {
	v, ok := d.attrs[name].(float64)
	if !ok {
		d.fail(name, "missing or not a float")
	}
	return v
}

func (d *fileData) i(name string) int {
	v, ok := d.attrs[name].(int64)
	if !ok {
		d.fail(name, "missing or not an integer")
	}
	return int(v)
}

func (d *fileData) b(name string) bool {
	v, ok := d.attrs[name].(bool)
	if !ok {
		d.fail(name, "missing or not a bool")
	}
	return v
}

func (d *fileData) f64Arr(name string) []float64 {
	a, ok := d.arrays[name]
	if !ok || a.Kind != runfile.KindFloat64Array {
		d.fail(name, "missing or not a float64 array")
		return nil
	}
	return a.Float64s
}

func (d *fileData) c128Arr(name string) []complex128 {
	a, ok := d.arrays[name]
	if !ok || a.Kind != runfile.KindComplex128Array {
		d.fail(name, "missing or not a complex128 array")
		return nil
	}
	return a.Complex128s
}
