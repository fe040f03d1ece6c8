package kf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/skyward-nav/go-od/epoch"
	"github.com/skyward-nav/go-od/estimate"
	"github.com/skyward-nav/go-od/matrix"
)

func newTestKF(t *testing.T) *KF {
	t.Helper()
	state := mat.NewVecDense(2, []float64{1, 1})
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	ic := estimate.NewInitCond(state, cov)
	r := mat.NewSymDense(1, []float64{0.1})

	f, err := New(ic, r)
	assert.NoError(t, err)
	assert.NotNil(t, f)
	return f
}

func identity(n int) *mat.Dense {
	id := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		id.Set(i, i, 1)
	}
	return id
}

func TestTimeUpdateRequiresSTM(t *testing.T) {
	f := newTestKF(t)
	_, err := f.TimeUpdate(epoch.FromTAISeconds(1))
	assert.ErrorIs(t, err, ErrSTMNotUpdated)
}

func TestTimeUpdateCKFPropagatesState(t *testing.T) {
	f := newTestKF(t)
	phi := mat.NewDense(2, 2, []float64{2, 0, 0, 2})
	f.SetSTM(phi)

	est, err := f.TimeUpdate(epoch.FromTAISeconds(1))
	assert.NoError(t, err)
	assert.InDelta(t, 2.0, est.State.AtVec(0), 1e-9)
	assert.InDelta(t, 2.0, est.State.AtVec(1), 1e-9)
	assert.True(t, est.Predicted)

	// P- = Phi P Phi' = 4*I
	assert.InDelta(t, 4.0, est.Covar.At(0, 0), 1e-9)
	assert.InDelta(t, 4.0, est.Covar.At(1, 1), 1e-9)

	// freshness cleared: a second call without re-setting the STM fails
	_, err = f.TimeUpdate(epoch.FromTAISeconds(2))
	assert.ErrorIs(t, err, ErrSTMNotUpdated)
}

func TestTimeUpdateEKFZeroesState(t *testing.T) {
	f := newTestKF(t)
	f.SetExtended(true)
	f.SetSTM(identity(2))

	est, err := f.TimeUpdate(epoch.FromTAISeconds(1))
	assert.NoError(t, err)
	assert.InDelta(t, 0.0, est.State.AtVec(0), 1e-12)
	assert.InDelta(t, 0.0, est.State.AtVec(1), 1e-12)
}

func TestMeasurementUpdateRequiresFreshness(t *testing.T) {
	f := newTestKF(t)
	h := mat.NewDense(1, 2, []float64{1, 0})
	z := mat.NewVecDense(1, []float64{1.5})
	zc := mat.NewVecDense(1, []float64{1.0})

	// missing STM
	_, _, err := f.MeasurementUpdate(epoch.FromTAISeconds(1), z, zc)
	assert.ErrorIs(t, err, ErrSTMNotUpdated)

	f.SetSTM(identity(2))
	// missing sensitivity
	_, _, err = f.MeasurementUpdate(epoch.FromTAISeconds(1), z, zc)
	assert.ErrorIs(t, err, ErrSensitivityNotUpdated)

	f.SetSTM(identity(2))
	f.SetSensitivity(h)
	est, res, err := f.MeasurementUpdate(epoch.FromTAISeconds(1), z, zc)
	assert.NoError(t, err)
	assert.NotNil(t, est)
	assert.NotNil(t, res)
	assert.False(t, est.Predicted)

	// second call without re-setting STM/H fails
	_, _, err = f.MeasurementUpdate(epoch.FromTAISeconds(2), z, zc)
	assert.ErrorIs(t, err, ErrSTMNotUpdated)
}

func TestMeasurementUpdateGainSingular(t *testing.T) {
	state := mat.NewVecDense(2, []float64{1, 1})
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	ic := estimate.NewInitCond(state, cov)
	r := mat.NewSymDense(1, []float64{0}) // R = 0
	f, err := New(ic, r)
	assert.NoError(t, err)

	h := mat.NewDense(1, 2, nil) // H = 0
	f.SetSTM(identity(2))
	f.SetSensitivity(h)

	z := mat.NewVecDense(1, []float64{1.0})
	zc := mat.NewVecDense(1, []float64{0.0})

	prevBefore := f.PrevEstimate()
	_, _, err = f.MeasurementUpdate(epoch.FromTAISeconds(1), z, zc)
	assert.ErrorIs(t, err, ErrGainSingular)
	// kernel state is untouched on failure
	assert.Same(t, prevBefore, f.PrevEstimate())
}

func TestMeasurementUpdateSymmetricCovariance(t *testing.T) {
	f := newTestKF(t)
	f.SetSTM(identity(2))
	f.SetSensitivity(mat.NewDense(1, 2, []float64{1, 0.5}))

	z := mat.NewVecDense(1, []float64{1.3})
	zc := mat.NewVecDense(1, []float64{1.0})

	est, _, err := f.MeasurementUpdate(epoch.FromTAISeconds(1), z, zc)
	assert.NoError(t, err)
	assert.InDelta(t, est.Covar.At(0, 1), est.Covar.At(1, 0), 1e-9)
	assert.LessOrEqual(t, matrix.RelAsymmetry(est.Covar), 1e-9)
}

// TestTimeUpdateSandwichInvariant checks P- = Phi*P*Phi' to within 1e-9
// relative Frobenius norm against a hand-computed sandwich product.
func TestTimeUpdateSandwichInvariant(t *testing.T) {
	f := newTestKF(t)
	phi := mat.NewDense(2, 2, []float64{1.2, 0.3, -0.1, 0.9})
	f.SetSTM(phi)

	est, err := f.TimeUpdate(epoch.FromTAISeconds(1))
	assert.NoError(t, err)

	prevCov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	want := &mat.Dense{}
	want.Mul(phi, prevCov)
	want.Mul(want, phi.T())

	diff := mat.NewDense(2, 2, nil)
	diff.Sub(est.Covar, want)
	rel := matrix.FrobeniusNorm(diff) / matrix.FrobeniusNorm(want)
	assert.LessOrEqual(t, rel, 1e-9)
}

func TestCovReturnsCurrentCovariance(t *testing.T) {
	f := newTestKF(t)
	cov := f.Cov()
	assert.InDelta(t, 1.0, cov.At(0, 0), 1e-9)
	assert.InDelta(t, 1.0, cov.At(1, 1), 1e-9)
	assert.InDelta(t, 0.0, cov.At(0, 1), 1e-9)
}

func TestExtendedModeToggle(t *testing.T) {
	f := newTestKF(t)
	assert.False(t, f.IsExtended())
	f.SetExtended(true)
	assert.True(t, f.IsExtended())
}
