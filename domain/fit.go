package domain

// FitResult carries resonator circle-fit output for a sweep-type run. All
// values are in the units of the input frequency axis (Hz).
type FitResult struct {
	Fr    float64
	FrErr float64
	Qi    float64
	QiErr float64
	Qc    float64
	QcErr float64
	Ql    float64
	QlErr float64
}

// Kappa is the coupling rate fr/Qc.
func (f FitResult) Kappa() float64 {
	if f.Qc == 0 {
		return 0
	}
	return f.Fr / f.Qc
}

// Fields returns the catalogue projection of a fit result, using the field
// names the analysis tooling queries on.
func (f FitResult) Fields() map[string]any {
	return map[string]any{
		"fit_fr":     f.Fr,
		"fit_fr_err": f.FrErr,
		"fit_Qi":     f.Qi,
		"fit_Qi_err": f.QiErr,
		"fit_Qc":     f.Qc,
		"fit_Qc_err": f.QcErr,
		"fit_Ql":     f.Ql,
		"fit_Ql_err": f.QlErr,
		"fit_kappa":  f.Kappa(),
	}
}

// Fitter is the black-box resonator fit. Implementations live outside this
// module; the persistence layer only embeds successful results into sweep
// documents and downgrades failures to warnings.
type Fitter interface {
	Fit(freq []float64, resp []complex128) (FitResult, error)
}

// FitterFunc adapts a plain function to the Fitter interface.
type FitterFunc func(freq []float64, resp []complex128) (FitResult, error)

func (fn FitterFunc) Fit(freq []float64, resp []complex128) (FitResult, error) {
	return fn(freq, resp)
}
