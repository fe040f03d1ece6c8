// Package diagnostics provides non-core plotting and summary-statistics
// helpers around an estimate/residual sequence, additive instrumentation in
// the same spirit as the teacher's sim.New2DPlot, kept alongside the core
// packages rather than folded into them.
package diagnostics

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/skyward-nav/go-od/estimate"
	"github.com/skyward-nav/go-od/matrix"
)

// CovarianceTracePlot plots the trace of the covariance matrix against
// sample index for an estimate sequence, the diagnostic a filter engineer
// uses to see whether uncertainty is shrinking over a run.
func CovarianceTracePlot(estimates []*estimate.Estimate) (*plot.Plot, error) {
	if len(estimates) == 0 {
		return nil, fmt.Errorf("diagnostics: no estimates supplied")
	}

	p := plot.New()
	p.Title.Text = "Covariance trace"
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "trace(P)"

	pts := make(plotter.XYs, len(estimates))
	for i, e := range estimates {
		pts[i].X = float64(i)
		pts[i].Y = trace(e.Covar)
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Width = vg.Points(1)
	line.LineStyle.Color = color.RGBA{B: 200, A: 255}

	p.Add(line)
	p.Legend.Add("trace(P)", line)

	return p, nil
}

// ResidualPlot plots each component of the postfit residual against sample
// index for a residual sequence.
func ResidualPlot(residuals []*estimate.Residual) (*plot.Plot, error) {
	if len(residuals) == 0 {
		return nil, fmt.Errorf("diagnostics: no residuals supplied")
	}

	p := plot.New()
	p.Title.Text = "Postfit residuals"
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "residual"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	m := residuals[0].Postfit.Len()
	palette := []color.RGBA{
		{R: 200, A: 255},
		{G: 150, A: 255},
		{B: 200, A: 255},
	}

	for c := 0; c < m; c++ {
		pts := make(plotter.XYs, len(residuals))
		for i, r := range residuals {
			pts[i].X = float64(i)
			pts[i].Y = r.Postfit.AtVec(c)
		}

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		scatter.GlyphStyle.Color = palette[c%len(palette)]
		scatter.GlyphStyle.Radius = vg.Points(2)

		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("component %d", c), scatter)
	}

	return p, nil
}

// RSSPositionError returns the root-sum-square error between each
// estimate's state and the corresponding truth vector, one value per
// estimate. estimates and truth must have the same length.
func RSSPositionError(estimates []*estimate.Estimate, truth []mat.Vector) ([]float64, error) {
	if len(estimates) != len(truth) {
		return nil, fmt.Errorf("diagnostics: estimate/truth length mismatch: %d != %d", len(estimates), len(truth))
	}

	out := make([]float64, len(estimates))
	for i, e := range estimates {
		diff := make([]float64, e.State.Len())
		for j := range diff {
			diff[j] = e.State.AtVec(j) - truth[i].AtVec(j)
		}
		out[i] = floats.Norm(diff, 2)
	}
	return out, nil
}

// EmpiricalResidualCovariance returns the sample covariance of a postfit
// residual sequence, stacking each residual as a column. It is a cross-check
// against the filter's own innovation covariance: a well-tuned filter's
// residual sample covariance should roughly match R over a long run.
// It returns an error if fewer than two residuals are supplied (the sample
// covariance is undefined for n < 2) or if the computed covariance fails
// matrix.ToSymDense's symmetry check.
func EmpiricalResidualCovariance(residuals []*estimate.Residual) (*mat.SymDense, error) {
	if len(residuals) < 2 {
		return nil, fmt.Errorf("diagnostics: need at least 2 residuals to estimate covariance, got %d", len(residuals))
	}

	// matrix.Cov treats rows as variables and columns as samples, so each
	// residual component is a row and each residual index is a column.
	m := residuals[0].Postfit.Len()
	data := mat.NewDense(m, len(residuals), nil)
	for i, r := range residuals {
		for j := 0; j < m; j++ {
			data.Set(j, i, r.Postfit.AtVec(j))
		}
	}

	cov, err := matrix.Cov(data, "cols")
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %v\n%v", err, matrix.Format(data))
	}
	return cov, nil
}

func trace(m mat.Symmetric) float64 {
	n := m.SymmetricDim()
	var sum float64
	for i := 0; i < n; i++ {
		sum += m.At(i, i)
	}
	return sum
}
