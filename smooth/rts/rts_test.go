package rts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/skyward-nav/go-od/epoch"
	"github.com/skyward-nav/go-od/estimate"
)

func identity(n int) *mat.Dense {
	id := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		id.Set(i, i, 1)
	}
	return id
}

func estimateAt(t float64, state []float64, stm *mat.Dense) *estimate.Estimate {
	v := mat.NewVecDense(len(state), state)
	cov := mat.NewSymDense(len(state), nil)
	for i := range state {
		cov.SetSym(i, i, 1)
	}
	return estimate.New(epoch.FromTAISeconds(t), v, cov, stm, false)
}

func TestSmoothIdentitySTMLeavesStateUnchanged(t *testing.T) {
	seq := []*estimate.Estimate{
		estimateAt(0, []float64{1, 1}, identity(2)),
		estimateAt(1, []float64{2, 2}, identity(2)),
		estimateAt(2, []float64{3, 3}, identity(2)),
	}

	s := New()
	out, err := s.Smooth(seq, false)
	assert.NoError(t, err)
	assert.Len(t, out, 3)

	for i, e := range out {
		assert.InDelta(t, seq[i].State.AtVec(0), e.State.AtVec(0), 1e-9)
		assert.InDelta(t, seq[i].State.AtVec(1), e.State.AtVec(1), 1e-9)
	}
}

func TestSmoothAppliesInverseSTM(t *testing.T) {
	phi := mat.NewDense(2, 2, []float64{2, 0, 0, 2})
	seq := []*estimate.Estimate{
		estimateAt(0, []float64{1, 1}, identity(2)),
		estimateAt(1, []float64{4, 4}, phi),
	}

	s := New()
	out, err := s.Smooth(seq, false)
	assert.NoError(t, err)

	// phi^-1 * [4,4] = [2,2]
	assert.InDelta(t, 2.0, out[1].State.AtVec(0), 1e-9)
	assert.InDelta(t, 2.0, out[1].State.AtVec(1), 1e-9)
	// first estimate passes through untouched
	assert.InDelta(t, 1.0, out[0].State.AtVec(0), 1e-9)
}

func TestSmoothRejectsProcessNoise(t *testing.T) {
	seq := []*estimate.Estimate{
		estimateAt(0, []float64{1}, identity(1)),
		estimateAt(1, []float64{1}, identity(1)),
	}

	s := New()
	_, err := s.Smooth(seq, true)
	assert.ErrorIs(t, err, ErrProcessNoiseEnabled)
}

func TestSmoothRejectsSingularSTM(t *testing.T) {
	singular := mat.NewDense(2, 2, []float64{0, 0, 0, 0})
	seq := []*estimate.Estimate{
		estimateAt(0, []float64{1, 1}, identity(2)),
		estimateAt(1, []float64{1, 1}, singular),
	}

	s := New()
	_, err := s.Smooth(seq, false)
	assert.ErrorIs(t, err, ErrSTMSingular)
}

func TestSmoothRejectsEmptySequence(t *testing.T) {
	s := New()
	_, err := s.Smooth(nil, false)
	assert.Error(t, err)
}

func TestSmoothCovarianceIsSymmetric(t *testing.T) {
	phi := mat.NewDense(2, 2, []float64{1, 0.3, 0, 1})
	seq := []*estimate.Estimate{
		estimateAt(0, []float64{1, 1}, identity(2)),
		estimateAt(1, []float64{2, 2}, phi),
	}

	s := New()
	out, err := s.Smooth(seq, false)
	assert.NoError(t, err)
	assert.InDelta(t, out[1].Covar.At(0, 1), out[1].Covar.At(1, 0), 1e-9)
}
