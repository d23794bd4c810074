// Package domain models the closed set of measurement run types and the pure
// transforms over them: parameter descriptors, catalogue document building,
// and canonical filename derivation.
package domain

import (
	"errors"
	"strings"

	"github.com/WashU-Astroparticle-Lab/daq/runfile"
)

// Kind tags a run type. The set is closed; the persistence layer dispatches
// on it and the catalogue records it in the document's "type" field.
type Kind string

const (
	KindSweep        Kind = "sweep"
	KindSweepPower   Kind = "sweep_power"
	KindSweepFreqDC  Kind = "sweep_freq_and_dc"
	KindTimeStream   Kind = "timestream"
	KindTwoTonePower Kind = "two_tone_power"
)

// Common holds the fields shared by every run type. Filter and Notes are
// optional and recorded as explicit nulls in the catalogue when unset.
type Common struct {
	Device string
	Filter *string
	Notes  *string
}

func (c Common) Validate() error {
	if strings.TrimSpace(c.Device) == "" {
		return errors.New("device is required for catalogue logging")
	}
	return nil
}

// Param is one entry of a run type's ordered field descriptor. Values are
// restricted to scalars and small numeric sequences; bulk sample data never
// appears here.
type Param struct {
	Name  string
	Value any
}

// Run is the contract every measurement run type satisfies. Params returns
// the explicit, ordered parameter descriptor (the catalogue-visible field
// set); Arrays returns the bulk sample data, which goes to the run file only.
type Run interface {
	Kind() Kind
	Meta() Common
	Params() []Param
	Arrays() map[string]runfile.Array
}

// Sweep is a single-tone frequency sweep at fixed amplitude.
type Sweep struct {
	Common

	FreqCenter  float64
	FreqSpan    float64
	DF          float64
	NumAverages int
	Amp         float64
	OutputPort  int
	InputPort   int
	Dither      bool
	NumSkip     int

	// Acquired data, set by the instrument driver before save.
	FreqArr []float64
	RespArr []complex128
}

func (s *Sweep) Kind() Kind { return KindSweep }
func (s *Sweep) Meta() Common { return s.Common }

func (s *Sweep) Params() []Param {
	return []Param{
		{"freq_center", s.FreqCenter},
		{"freq_span", s.FreqSpan},
		{"df", s.DF},
		{"num_averages", s.NumAverages},
		{"amp", s.Amp},
		{"output_port", s.OutputPort},
		{"input_port", s.InputPort},
		{"dither", s.Dither},
		{"num_skip", s.NumSkip},
	}
}

func (s *Sweep) Arrays() map[string]runfile.Array {
	return map[string]runfile.Array{
		"freq_arr": runfile.Float64s(s.FreqArr),
		"resp_arr": runfile.Complex128s(s.RespArr),
	}
}

// SweepPower repeats a frequency sweep at each drive amplitude in AmpArr.
// RespArr is flattened row-major, one row per amplitude.
type SweepPower struct {
	Common

	FreqCenter  float64
	FreqSpan    float64
	DF          float64
	NumAverages int
	AmpArr      []float64
	OutputPort  int
	InputPort   int
	Dither      bool
	NumSkip     int

	FreqArr []float64
	RespArr []complex128
}

func (s *SweepPower) Kind() Kind { return KindSweepPower }
func (s *SweepPower) Meta() Common { return s.Common }

func (s *SweepPower) Params() []Param {
	return []Param{
		{"freq_center", s.FreqCenter},
		{"freq_span", s.FreqSpan},
		{"df", s.DF},
		{"num_averages", s.NumAverages},
		{"amp_arr", s.AmpArr},
		{"output_port", s.OutputPort},
		{"input_port", s.InputPort},
		{"dither", s.Dither},
		{"num_skip", s.NumSkip},
	}
}

func (s *SweepPower) Arrays() map[string]runfile.Array {
	return map[string]runfile.Array{
		"freq_arr": runfile.Float64s(s.FreqArr),
		"resp_arr": runfile.Complex128s(s.RespArr),
	}
}

// SweepFreqAndDC repeats a frequency sweep at each point of a DC bias scan.
// RespArr is flattened row-major, one row per bias point.
type SweepFreqAndDC struct {
	Common

	FreqCenter  float64
	FreqSpan    float64
	DF          float64
	NumAverages int
	Amp         float64
	BiasMin     float64
	BiasMax     float64
	NumBias     int
	BiasPort    int
	OutputPort  int
	InputPort   int
	Dither      bool
	NumSkip     int

	FreqArr []float64
	RespArr []complex128
}

func (s *SweepFreqAndDC) Kind() Kind { return KindSweepFreqDC }
func (s *SweepFreqAndDC) Meta() Common { return s.Common }

func (s *SweepFreqAndDC) Params() []Param {
	return []Param{
		{"freq_center", s.FreqCenter},
		{"freq_span", s.FreqSpan},
		{"df", s.DF},
		{"num_averages", s.NumAverages},
		{"amp", s.Amp},
		{"bias_min", s.BiasMin},
		{"bias_max", s.BiasMax},
		{"num_bias", s.NumBias},
		{"bias_port", s.BiasPort},
		{"output_port", s.OutputPort},
		{"input_port", s.InputPort},
		{"dither", s.Dither},
		{"num_skip", s.NumSkip},
	}
}

func (s *SweepFreqAndDC) Arrays() map[string]runfile.Array {
	return map[string]runfile.Array{
		"freq_arr": runfile.Float64s(s.FreqArr),
		"resp_arr": runfile.Complex128s(s.RespArr),
	}
}

// TimeStream acquires I/Q pixel streams at a comb of intermediate
// frequencies around a fixed LO.
type TimeStream struct {
	Common

	LoFreq      float64
	IfFreqs     []float64
	IfFreqsIn   []float64
	DF          float64
	PixelCounts int
	Amp         []float64
	PhasesI     []float64
	PhasesQ     []float64
	OutputPort  int
	InputPort   int
	Dither      bool

	FreqArr  []float64
	PixelI   []complex128
	PixelQ   []complex128
	LSB      []complex128
	USB      []complex128
	FreqsUSB []float64
	FreqsLSB []float64
}

func (ts *TimeStream) Kind() Kind { return KindTimeStream }
func (ts *TimeStream) Meta() Common { return ts.Common }

func (ts *TimeStream) Params() []Param {
	return []Param{
		{"lo_freq", ts.LoFreq},
		{"if_freqs", ts.IfFreqs},
		{"if_freqs_in", ts.IfFreqsIn},
		{"df", ts.DF},
		{"pixel_counts", ts.PixelCounts},
		{"amp", ts.Amp},
		{"phases_i", ts.PhasesI},
		{"phases_q", ts.PhasesQ},
		{"output_port", ts.OutputPort},
		{"input_port", ts.InputPort},
		{"dither", ts.Dither},
	}
}

func (ts *TimeStream) Arrays() map[string]runfile.Array {
	return map[string]runfile.Array{
		"freq_arr":  runfile.Float64s(ts.FreqArr),
		"pixel_i":   runfile.Complex128s(ts.PixelI),
		"pixel_q":   runfile.Complex128s(ts.PixelQ),
		"lsb":       runfile.Complex128s(ts.LSB),
		"usb":       runfile.Complex128s(ts.USB),
		"freqs_usb": runfile.Float64s(ts.FreqsUSB),
		"freqs_lsb": runfile.Float64s(ts.FreqsLSB),
	}
}

// TwoTonePower sweeps a readout tone while stepping the power of a second
// control tone.
type TwoTonePower struct {
	Common

	FreqCenter    float64
	FreqSpan      float64
	DF            float64
	NumAverages   int
	ControlFreq   float64
	ControlAmpArr []float64
	ReadoutAmp    float64
	OutputPort    int
	InputPort     int
	ControlPort   int
	Dither        bool
	NumSkip       int

	FreqArr []float64
	RespArr []complex128
}

func (tt *TwoTonePower) Kind() Kind { return KindTwoTonePower }
func (tt *TwoTonePower) Meta() Common { return tt.Common }

func (tt *TwoTonePower) Params() []Param {
	return []Param{
		{"freq_center", tt.FreqCenter},
		{"freq_span", tt.FreqSpan},
		{"df", tt.DF},
		{"num_averages", tt.NumAverages},
		{"control_freq", tt.ControlFreq},
		{"control_amp_arr", tt.ControlAmpArr},
		{"readout_amp", tt.ReadoutAmp},
		{"output_port", tt.OutputPort},
		{"input_port", tt.InputPort},
		{"control_port", tt.ControlPort},
		{"dither", tt.Dither},
		{"num_skip", tt.NumSkip},
	}
}

func (tt *TwoTonePower) Arrays() map[string]runfile.Array {
	return map[string]runfile.Array{
		"freq_arr": runfile.Float64s(tt.FreqArr),
		"resp_arr": runfile.Complex128s(tt.RespArr),
	}
}
