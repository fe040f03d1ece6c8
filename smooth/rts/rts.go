// Package rts implements the backward smoothing pass (component C5): a
// simplified Rauch-Tung-Striebel style sweep over a filtered sequence of
// estimates, driven entirely by the state-transition matrix each estimate
// already carries.
//
// Unlike a textbook RTS smoother this pass needs no separate model or
// process-noise collaborator: it assumes the forward filtering pass injected
// no process noise, so Φᵢ⁻¹ alone maps an estimate back onto the previous
// reference (see original_source/src/od/kalman.rs's smooth, which the
// simplification here mirrors).
package rts

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/skyward-nav/go-od/estimate"
	"github.com/skyward-nav/go-od/kalman/kf"
	"github.com/skyward-nav/go-od/matrix"
)

// ErrSTMSingular is returned when an estimate's STM cannot be inverted.
var ErrSTMSingular = errors.New("rts: state transition matrix is singular")

// ErrProcessNoiseEnabled is returned by Smooth when told the sequence was
// produced with a non-degenerate process-noise source: the assumption this
// pass relies on (zero process noise between estimates) does not hold, and
// smoothing such a sequence would silently misstate the covariance.
var ErrProcessNoiseEnabled = kf.ErrProcessNoiseEnabled

// Smoother performs the backward STM-inverse smoothing pass.
type Smoother struct{}

// New creates a Smoother. It carries no state of its own: every input it
// needs travels with the estimates being smoothed.
func New() *Smoother { return &Smoother{} }

// Smooth takes a chronologically ordered sequence of estimates, each
// carrying the STM that propagated it from the previous estimate's epoch,
// and returns a new sequence of the same length with the backward pass
// applied. processNoiseEnabled must reflect whether the filter that produced
// est had a non-degenerate process-noise source configured during the
// forward pass; if true, Smooth refuses with ErrProcessNoiseEnabled.
func (s *Smoother) Smooth(est []*estimate.Estimate, processNoiseEnabled bool) ([]*estimate.Estimate, error) {
	if len(est) == 0 {
		return nil, fmt.Errorf("rts: empty estimate sequence")
	}
	if processNoiseEnabled {
		return nil, ErrProcessNoiseEnabled
	}

	out := make([]*estimate.Estimate, len(est))

	for i := len(est) - 1; i >= 0; i-- {
		e := est[i]
		if e.STM == nil {
			return nil, fmt.Errorf("rts: estimate %d has no state transition matrix", i)
		}

		phiInv, err := matrix.SafeInverse(e.STM)
		if err != nil {
			return nil, ErrSTMSingular
		}

		xs := &mat.Dense{}
		xs.Mul(phiInv, e.State)
		state := mat.VecDenseCopyOf(xs.ColView(0))

		ps := &mat.Dense{}
		ps.Mul(phiInv, e.Covar)
		ps.Mul(ps, phiInv.T())
		covar := matrix.Symmetrize(ps)

		out[i] = estimate.New(e.Epoch, state, covar, e.STM, e.Predicted)
	}

	return out, nil
}
