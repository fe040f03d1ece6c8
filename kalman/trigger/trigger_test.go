package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/skyward-nav/go-od/epoch"
	"github.com/skyward-nav/go-od/estimate"
)

func fakeEstimate(t epoch.Epoch) *estimate.Estimate {
	state := mat.NewVecDense(2, []float64{0, 0})
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	return estimate.New(t, state, cov, mat.NewDense(2, 2, []float64{1, 0, 0, 1}), false)
}

func fakeResidual(t epoch.Epoch, accepted bool, vals ...float64) *estimate.Residual {
	v := mat.NewVecDense(len(vals), vals)
	return estimate.NewResidual(t, v, v, accepted)
}

// unitNoise is a 1x1 measurement noise with unit variance, so k*sigma == k
// and existing "outside 3-sigma"-style test comments stay numerically valid.
func unitNoise() *mat.SymDense { return mat.NewSymDense(1, []float64{1}) }

func newSigmaBounded(t *testing.T, n int, k float64, disableInterval epoch.Duration) *SigmaBounded {
	t.Helper()
	trig, err := NewSigmaBounded(n, k, disableInterval, unitNoise())
	assert.NoError(t, err)
	return trig
}

func TestNeverNeverEnables(t *testing.T) {
	trig := Never{}
	for i := 0; i < 10; i++ {
		assert.False(t, trig.Enable(fakeEstimate(epoch.FromTAISeconds(float64(i))), fakeResidual(epoch.FromTAISeconds(float64(i)), true, 0)))
	}
}

func TestAfterNFiresAtThreshold(t *testing.T) {
	trig := NewAfterN(3)
	assert.False(t, trig.Enable(fakeEstimate(epoch.FromTAISeconds(1)), fakeResidual(epoch.FromTAISeconds(1), true, 0)))
	assert.False(t, trig.Enable(fakeEstimate(epoch.FromTAISeconds(2)), fakeResidual(epoch.FromTAISeconds(2), true, 0)))
	assert.True(t, trig.Enable(fakeEstimate(epoch.FromTAISeconds(3)), fakeResidual(epoch.FromTAISeconds(3), true, 0)))
}

func TestSigmaBoundedFiresWithinBound(t *testing.T) {
	trig := newSigmaBounded(t, 3, 3.0, epoch.Duration(10))

	for i := 1; i <= 2; i++ {
		e := epoch.FromTAISeconds(float64(i))
		assert.False(t, trig.Enable(fakeEstimate(e), fakeResidual(e, true, 0.1)))
	}
	e := epoch.FromTAISeconds(3)
	assert.True(t, trig.Enable(fakeEstimate(e), fakeResidual(e, true, 0.1)))
}

func TestSigmaBoundedResetsOnOutlier(t *testing.T) {
	trig := newSigmaBounded(t, 2, 3.0, epoch.Duration(10))

	e1 := epoch.FromTAISeconds(1)
	assert.False(t, trig.Enable(fakeEstimate(e1), fakeResidual(e1, true, 0.1)))

	e2 := epoch.FromTAISeconds(2)
	assert.False(t, trig.Enable(fakeEstimate(e2), fakeResidual(e2, true, 10.0))) // outside 3-sigma

	e3 := epoch.FromTAISeconds(3)
	assert.False(t, trig.Enable(fakeEstimate(e3), fakeResidual(e3, true, 0.1)))

	e4 := epoch.FromTAISeconds(4)
	assert.True(t, trig.Enable(fakeEstimate(e4), fakeResidual(e4, true, 0.1)))
}

func TestSigmaBoundedScalesBoundByMeasurementSigma(t *testing.T) {
	// variance 25 -> sigma 5, so a residual of 10 is within 3*sigma (15) even
	// though it would fail a bare-K=3 comparison.
	wideNoise := mat.NewSymDense(1, []float64{25})
	trig, err := NewSigmaBounded(1, 3.0, epoch.Duration(10), wideNoise)
	assert.NoError(t, err)

	e := epoch.FromTAISeconds(1)
	assert.True(t, trig.Enable(fakeEstimate(e), fakeResidual(e, true, 10.0)))
}

func TestNewSigmaBoundedRejectsNilNoise(t *testing.T) {
	_, err := NewSigmaBounded(1, 3.0, epoch.Duration(10), nil)
	assert.Error(t, err)
}

func TestSigmaBoundedDisablesOnGap(t *testing.T) {
	trig := newSigmaBounded(t, 2, 3.0, epoch.Duration(10))

	e1 := epoch.FromTAISeconds(1)
	trig.Enable(fakeEstimate(e1), fakeResidual(e1, true, 0.1))
	e2 := epoch.FromTAISeconds(2)
	enabled := trig.Enable(fakeEstimate(e2), fakeResidual(e2, true, 0.1))
	assert.True(t, enabled)
	assert.False(t, trig.Disabled())

	// a long gap after having enabled should flag disable
	e3 := epoch.FromTAISeconds(100)
	trig.Enable(fakeEstimate(e3), fakeResidual(e3, true, 0.1))
	assert.True(t, trig.Disabled())
}
